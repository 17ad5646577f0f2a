package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/araquach/acuity-datahub/internal/acuity"
	"github.com/araquach/acuity-datahub/internal/config"
	"github.com/araquach/acuity-datahub/internal/db"
	"github.com/araquach/acuity-datahub/internal/notify"
	"github.com/araquach/acuity-datahub/internal/repos"
)

func main() {
	scopeFlag := flag.String("scope", "all", "what to sync: calendars, appointments or all")
	timeout := flag.Duration("timeout", 30*time.Minute, "abort the run after this long")
	history := flag.Int("history", 0, "list the last N sync runs and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.Load()
	logger := cfg.Logger

	scope, err := acuity.ParseScope(*scopeFlag)
	if err != nil {
		logger.Fatalf("❌ %v", err)
	}

	dsn, err := cfg.ActiveDatabaseURL()
	if err != nil {
		logger.Fatalf("database URL resolution failed: %v", err)
	}
	if cfg.SandboxMode {
		logger.Println("🧪 SANDBOX MODE ENABLED — using SANDBOX_DATABASE_URL")
	}

	gdb, err := db.Open(dsn)
	if err != nil {
		logger.Fatalf("DB connection failed: %v", err)
	}
	defer db.Close(gdb)

	if err := db.HealthCheck(gdb, 3*time.Second); err != nil {
		logger.Fatalf("DB health check failed: %v", err)
	}
	logger.Println("✅ Database connection healthy.")

	if cfg.AutoMigrate {
		logger.Println("Running migrations...")
		if err := db.RunMigrations(gdb, logger); err != nil {
			logger.Fatalf("Database migration failed: %v", err)
		}
		logger.Println("✅ Database migrated successfully.")
	}

	if *history > 0 {
		printHistory(&repos.SyncRunsRepo{DB: gdb}, *history, logger)
		return
	}

	runner := acuity.NewRunner(gdb, cfg, logger)

	if cfg.KafkaBroker != "" {
		pub := notify.NewKafkaPublisher(cfg.KafkaBroker, cfg.KafkaTopic, logger)
		defer pub.Close()
		runner.Publisher = pub
		logger.Printf("📣 Publishing run summaries to %s/%s", cfg.KafkaBroker, cfg.KafkaTopic)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	logger.Printf("🚀 Running Acuity sync (scope=%s)…", scope)
	sum, err := runner.RunSync(ctx, scope)
	if err != nil {
		logger.Fatalf("Acuity sync failed: %v", err)
	}

	for _, c := range sum.PerCalendar {
		logger.Printf("   %-24s pages=%-3d seen=%-4d created=%-4d updated=%-4d skipped=%-3d halt=%s",
			c.Name, c.Pages, c.Appointments, c.Created, c.Updated, c.Skipped, c.Halt)
	}
	for _, w := range sum.Warnings {
		logger.Printf("⚠️ %s", w)
	}
	logger.Printf("✅ Sync %s: created=%d updated=%d skipped=%d", sum.Status, sum.Created, sum.Updated, sum.Skipped)

	logTotals(runner, gdb, logger)
}

func printHistory(runs *repos.SyncRunsRepo, n int, logger *logrus.Logger) {
	rows, err := runs.Recent(n)
	if err != nil {
		logger.Fatalf("load sync runs: %v", err)
	}
	if len(rows) == 0 {
		logger.Println("No sync runs recorded yet.")
		return
	}
	for _, run := range rows {
		finished := "-"
		if run.FinishedAt != nil {
			finished = run.FinishedAt.Format(time.RFC3339)
		}
		logger.Printf("%s  %-12s %-8s started=%s finished=%s created=%d updated=%d skipped=%d calendar_errors=%d",
			run.ID, run.Scope, run.Status, run.StartedAt.Format(time.RFC3339), finished,
			run.Created, run.Updated, run.Skipped, run.CalendarErrors)
	}
}

func logTotals(runner *acuity.Runner, gdb *gorm.DB, logger *logrus.Logger) {
	calendars, err := runner.Calendars.Count()
	if err != nil {
		logger.Printf("⚠️ count calendars: %v", err)
		return
	}
	types, err := repos.NewServiceTypesRepo(gdb, logger).Count()
	if err != nil {
		logger.Printf("⚠️ count appointment types: %v", err)
		return
	}
	appointments, err := runner.Reconciler.Appointments.Count()
	if err != nil {
		logger.Printf("⚠️ count appointments: %v", err)
		return
	}
	logger.Printf("📊 Stored: %d calendars, %d appointment types, %d appointments", calendars, types, appointments)
}
