package main

import (
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/araquach/acuity-datahub/internal/config"
	"github.com/araquach/acuity-datahub/internal/db"
	"github.com/araquach/acuity-datahub/internal/export"
	"github.com/araquach/acuity-datahub/internal/models"
	"github.com/araquach/acuity-datahub/internal/repos"
)

func main() {
	from := flag.String("from", "", "first day to export (YYYY-MM-DD); defaults to the sync window")
	to := flag.String("to", "", "last day to export (YYYY-MM-DD); defaults to the sync window")
	single := flag.String("appointment", "", "write one appointment as iCalendar to stdout instead")
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.Load()
	logger := cfg.Logger

	start, end, err := cfg.AppointmentWindow(time.Now())
	if err != nil {
		logger.Fatalf("❌ %v", err)
	}
	if *from != "" {
		if start, err = time.Parse("2006-01-02", *from); err != nil {
			logger.Fatalf("invalid -from %q: %v", *from, err)
		}
	}
	if *to != "" {
		if end, err = time.Parse("2006-01-02", *to); err != nil {
			logger.Fatalf("invalid -to %q: %v", *to, err)
		}
	}

	dsn, err := cfg.ActiveDatabaseURL()
	if err != nil {
		logger.Fatalf("database URL resolution failed: %v", err)
	}
	gdb, err := db.Open(dsn)
	if err != nil {
		logger.Fatalf("DB connection failed: %v", err)
	}
	defer db.Close(gdb)

	if err := db.HealthCheck(gdb, 3*time.Second); err != nil {
		logger.Fatalf("DB health check failed: %v", err)
	}

	repo := repos.NewAppointmentsRepo(gdb, logger)

	if *single != "" {
		a, err := repo.FindByAcuityID(*single)
		if err != nil {
			logger.Fatalf("load appointment %s: %v", *single, err)
		}
		if err := export.WriteAppointmentsICS(os.Stdout, []models.Appointment{*a}, time.Now()); err != nil {
			logger.Fatalf("write appointment %s: %v", *single, err)
		}
		return
	}

	rows, err := repo.ListBetween(start, end.AddDate(0, 0, 1))
	if err != nil {
		logger.Fatalf("load appointments: %v", err)
	}
	logger.Printf("📆 %d appointments between %s and %s", len(rows), start.Format("2006-01-02"), end.Format("2006-01-02"))

	files, err := export.ExportByCalendar(cfg.ExportDir, rows, time.Now(), logger)
	if err != nil {
		logger.Fatalf("export failed: %v", err)
	}
	logger.Printf("✅ Wrote %d files to %s", len(files), cfg.ExportDir)
}
