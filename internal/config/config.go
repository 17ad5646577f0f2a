package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/araquach/acuity-datahub/internal/normalize"
	"github.com/araquach/acuity-datahub/internal/util"
)

// Config centralises all environment and runtime configuration.
type Config struct {
	Logger             *logrus.Logger
	DatabaseURL        string
	SandboxDatabaseURL string
	SandboxMode        bool

	AcuityUserID  string
	AcuityAPIKey  string
	AcuityBaseURL string

	ExportDir   string
	AutoMigrate bool

	// Pagination and transport
	PageSize    int
	MaxPages    int
	HTTPTimeout time.Duration
	MaxRetries  int
	Workers     int

	// Appointment window: FromDate/ToDate win over the rolling day counts.
	DaysBack    int
	DaysForward int
	FromDate    *time.Time
	ToDate      *time.Time

	FeeThreshold        float64
	FeeDefault          float64
	RejectInvertedTimes bool
	OffsetZones         map[string][]string

	KafkaBroker string
	KafkaTopic  string
}

// Load builds the Config struct, validating critical env vars.
func Load() *Config {
	logger := util.NewLogger()
	logger.Println("Loading environment configuration...")

	cfg, err := load(os.Getenv)
	if err != nil {
		logger.Fatalf("❌ %v", err)
	}
	cfg.Logger = logger

	logger.Printf("✅ Loaded config (page size %d, max pages %d, workers %d)", cfg.PageSize, cfg.MaxPages, cfg.Workers)
	logger.Printf("📁 ExportDir: %s", cfg.ExportDir)
	return cfg
}

func load(getenv func(string) string) (*Config, error) {
	e := env{get: getenv}

	cfg := &Config{
		DatabaseURL:        e.str("DATABASE_URL", ""),
		SandboxDatabaseURL: e.str("SANDBOX_DATABASE_URL", ""),
		SandboxMode:        e.boolean("SANDBOX_MODE", false),
		AcuityUserID:       e.str("ACUITY_USER_ID", ""),
		AcuityAPIKey:       e.str("ACUITY_API_KEY", ""),
		AcuityBaseURL:      strings.TrimRight(e.str("ACUITY_BASE_URL", "https://acuityscheduling.com/api/v1"), "/"),
		ExportDir:          e.str("EXPORT_DIR", "data/exports"),
		AutoMigrate:        e.str("AUTO_MIGRATE", "") == "1",

		PageSize:    e.integer("ACUITY_PAGE_SIZE", 100),
		MaxPages:    e.integer("ACUITY_MAX_PAGES", 1000),
		HTTPTimeout: time.Duration(e.integer("ACUITY_HTTP_TIMEOUT_SECONDS", 25)) * time.Second,
		MaxRetries:  e.nonNegative("ACUITY_MAX_RETRIES", 3),
		Workers:     e.integer("SYNC_WORKERS", 1),

		DaysBack:    e.integer("ACUITY_DAYS_BACK", 60),
		DaysForward: e.nonNegative("ACUITY_DAYS_FORWARD", 0),

		FeeThreshold:        e.float("FEE_THRESHOLD", 2.0),
		FeeDefault:          e.float("FEE_DEFAULT", 1.0),
		RejectInvertedTimes: e.boolean("REJECT_INVERTED_TIMES", false),

		KafkaBroker: e.str("KAFKA_BROKER", ""),
		KafkaTopic:  e.str("KAFKA_TOPIC", "acuity_sync_runs"),
	}

	for _, key := range []string{"DATABASE_URL", "ACUITY_USER_ID", "ACUITY_API_KEY"} {
		if e.str(key, "") == "" {
			return nil, fmt.Errorf("environment variable %s is required but not set", key)
		}
	}

	var err error
	if cfg.FromDate, err = e.date("ACUITY_FROM_DATE"); err != nil {
		return nil, err
	}
	if cfg.ToDate, err = e.date("ACUITY_TO_DATE"); err != nil {
		return nil, err
	}

	overrides, err := parseOffsetZones(e.str("TZ_OFFSET_ZONES", ""))
	if err != nil {
		return nil, err
	}
	cfg.OffsetZones = normalize.DefaultOffsetZones()
	for off, zones := range overrides {
		cfg.OffsetZones[off] = zones
	}

	return cfg, nil
}

func (c *Config) ActiveDatabaseURL() (string, error) {
	if c.SandboxMode {
		if strings.TrimSpace(c.SandboxDatabaseURL) == "" {
			return "", fmt.Errorf("SANDBOX_MODE is enabled but SANDBOX_DATABASE_URL is empty")
		}
		return c.SandboxDatabaseURL, nil
	}

	if strings.TrimSpace(c.DatabaseURL) == "" {
		return "", fmt.Errorf("DATABASE_URL is empty")
	}
	return c.DatabaseURL, nil
}

// AppointmentWindow resolves the minDate/maxDate range sent upstream.
func (c *Config) AppointmentWindow(now time.Time) (time.Time, time.Time, error) {
	start := dateOnly(now.UTC().AddDate(0, 0, -c.DaysBack))
	end := dateOnly(now.UTC().AddDate(0, 0, c.DaysForward))

	if c.FromDate != nil {
		start = *c.FromDate
	}
	if c.ToDate != nil {
		end = *c.ToDate
	}

	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid appointment window: start=%s is after end=%s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return start, end, nil
}

// parseOffsetZones reads "-0700=America/Phoenix|America/Denver,-1000=Pacific/Honolulu".
// Candidates for one offset are tried in the order given.
func parseOffsetZones(raw string) (map[string][]string, error) {
	out := map[string][]string{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		off, list, ok := strings.Cut(pair, "=")
		var zones []string
		for _, z := range strings.Split(list, "|") {
			if z = strings.TrimSpace(z); z != "" {
				zones = append(zones, z)
			}
		}
		if !ok || len(zones) == 0 {
			return nil, fmt.Errorf("invalid TZ_OFFSET_ZONES entry %q (want -HHMM=Zone/Name[|Zone/Name])", pair)
		}
		key, err := normalize.OffsetKey(strings.TrimSpace(off))
		if err != nil {
			return nil, fmt.Errorf("invalid TZ_OFFSET_ZONES entry %q: %w", pair, err)
		}
		out[key] = zones
	}
	return out, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
