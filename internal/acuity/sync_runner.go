package acuity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/araquach/acuity-datahub/internal/config"
	"github.com/araquach/acuity-datahub/internal/models"
	"github.com/araquach/acuity-datahub/internal/normalize"
	"github.com/araquach/acuity-datahub/internal/repos"
	"github.com/araquach/acuity-datahub/internal/services"
)

// ErrSyncInProgress is returned when a run is requested while another run
// on the same Runner is still going.
var ErrSyncInProgress = errors.New("acuity sync already in progress")

type Scope string

const (
	ScopeCalendars    Scope = "calendars"
	ScopeAppointments Scope = "appointments"
	ScopeAll          Scope = "all"
)

func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeCalendars:
		return ScopeCalendars, nil
	case ScopeAppointments:
		return ScopeAppointments, nil
	case ScopeAll, "":
		return ScopeAll, nil
	}
	return "", fmt.Errorf("unknown sync scope %q (want calendars, appointments or all)", s)
}

func (s Scope) includesCatalog() bool      { return s == ScopeAll || s == ScopeCalendars }
func (s Scope) includesAppointments() bool { return s == ScopeAll || s == ScopeAppointments }

type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseSyncingCalendars
	PhaseSyncingServiceTypes
	PhaseSyncingAppointments
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSyncingCalendars:
		return "syncing_calendars"
	case PhaseSyncingServiceTypes:
		return "syncing_service_types"
	case PhaseSyncingAppointments:
		return "syncing_appointments"
	case PhaseDone:
		return "done"
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

// Why a calendar's pagination stopped.
const (
	HaltEmptyPage    = "empty_page"
	HaltLoopDetected = "loop_detected"
	HaltCeiling      = "page_ceiling"
	HaltError        = "error"
)

type CalendarSummary struct {
	CalendarID string `json:"calendar_id"`
	Name       string `json:"name"`

	// Appointments counts distinct ids fetched, skipped ones included.
	Appointments int      `json:"appointments"`
	Pages        int      `json:"pages"`
	Created      int      `json:"created"`
	Updated      int      `json:"updated"`
	Skipped      int      `json:"skipped"`
	Halt         string   `json:"halt"`
	Warnings     []string `json:"warnings,omitempty"`
	Error        string   `json:"error,omitempty"`
	Err          error    `json:"-"`
}

type Summary struct {
	RunID  string `json:"run_id"`
	Scope  Scope  `json:"scope"`
	Status string `json:"status"`

	CalendarsUpserted    int `json:"calendars_upserted"`
	ServiceTypesUpserted int `json:"service_types_upserted"`
	Created              int `json:"created"`
	Updated              int `json:"updated"`
	Skipped              int `json:"skipped"`

	PerCalendar []CalendarSummary `json:"per_calendar"`
	Warnings    []string          `json:"warnings"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// CalendarErrors counts calendars whose appointment sync failed.
func (s *Summary) CalendarErrors() int {
	n := 0
	for _, c := range s.PerCalendar {
		if c.Err != nil || c.Error != "" {
			n++
		}
	}
	return n
}

// SummaryPublisher receives every finished run.
type SummaryPublisher interface {
	Publish(ctx context.Context, s *Summary) error
}

type Runner struct {
	DB     *gorm.DB
	Cfg    *config.Config
	Logger *logrus.Logger

	Client     *Client
	Catalog    *services.CatalogService
	Reconciler *services.AppointmentReconcileService
	Calendars  *repos.CalendarsRepo
	Runs       *repos.SyncRunsRepo
	Publisher  SummaryPublisher
	Now        func() time.Time

	phase atomic.Int32
	mu    sync.Mutex
}

// NewRunner wires the client, repos and services from cfg.
func NewRunner(db *gorm.DB, cfg *config.Config, lg *logrus.Logger) *Runner {
	calendars := repos.NewCalendarsRepo(db, lg)
	types := repos.NewServiceTypesRepo(db, lg)

	return &Runner{
		DB:     db,
		Cfg:    cfg,
		Logger: lg,
		Client: NewClient(cfg.AcuityBaseURL, cfg.AcuityUserID, cfg.AcuityAPIKey, cfg.HTTPTimeout, cfg.MaxRetries, lg),
		Catalog: &services.CatalogService{
			Calendars:    calendars,
			ServiceTypes: types,
			Logger:       lg,
		},
		Reconciler: &services.AppointmentReconcileService{
			DB:                  db,
			Calendars:           calendars,
			ServiceTypes:        types,
			Appointments:        repos.NewAppointmentsRepo(db, lg),
			Normalizer:          normalize.NewNormalizer(cfg.OffsetZones),
			Logger:              lg,
			FeeThreshold:        cfg.FeeThreshold,
			FeeDefault:          cfg.FeeDefault,
			RejectInvertedTimes: cfg.RejectInvertedTimes,
			BatchSize:           500,
		},
		Calendars: calendars,
		Runs:      &repos.SyncRunsRepo{DB: db},
	}
}

func (r *Runner) Phase() Phase { return Phase(r.phase.Load()) }

func (r *Runner) setPhase(p Phase) {
	r.phase.Store(int32(p))
	r.Logger.Debugf("sync phase → %s", p)
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// RunFullSync refreshes calendars, appointment types and appointments.
func (r *Runner) RunFullSync(ctx context.Context) (*Summary, error) {
	return r.RunSync(ctx, ScopeAll)
}

// RunSync runs one pass over scope. Once the run has started the returned
// Summary is non-nil even when err is, so partial progress can be reported.
// An overlapping call returns a nil Summary and ErrSyncInProgress.
func (r *Runner) RunSync(ctx context.Context, scope Scope) (*Summary, error) {
	if !r.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer r.mu.Unlock()

	lg := r.Logger
	sum := &Summary{
		RunID:     uuid.NewString(),
		Scope:     scope,
		Status:    models.SyncRunStatusRunning,
		StartedAt: r.now(),
	}
	run := r.startLedger(sum)

	lg.Printf("▶️ Starting Acuity sync run=%s scope=%s", sum.RunID, scope)

	err := r.runPhases(ctx, scope, sum)

	r.setPhase(PhaseDone)
	sum.FinishedAt = r.now()
	sum.Status = runStatus(sum, err)

	r.finishLedger(run, sum)
	r.publish(ctx, sum)

	if err != nil {
		lg.Printf("❌ Acuity sync run=%s failed: %v", sum.RunID, err)
		return sum, err
	}
	lg.Printf("✅ Acuity sync run=%s %s: created=%d updated=%d skipped=%d warnings=%d (%s)",
		sum.RunID, sum.Status, sum.Created, sum.Updated, sum.Skipped, len(sum.Warnings),
		sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond))
	return sum, nil
}

func (r *Runner) runPhases(ctx context.Context, scope Scope, sum *Summary) error {
	if scope.includesCatalog() {
		r.setPhase(PhaseSyncingCalendars)
		if err := r.syncCalendars(ctx, sum); err != nil {
			return err
		}

		r.setPhase(PhaseSyncingServiceTypes)
		if err := r.syncServiceTypes(ctx, sum); err != nil {
			return err
		}
	}

	if scope.includesAppointments() {
		r.setPhase(PhaseSyncingAppointments)
		if err := r.syncAppointments(ctx, sum); err != nil {
			return err
		}
	}
	return nil
}

// A failed calendar listing is not fatal: appointments can still be synced
// for the calendars already stored.
func (r *Runner) syncCalendars(ctx context.Context, sum *Summary) error {
	raw, err := r.Client.FetchCalendars(ctx)
	if err != nil {
		sum.Warnings = append(sum.Warnings, fmt.Sprintf("calendar fetch failed, using stored calendars: %v", err))
		r.Logger.Printf("⚠️ calendar fetch failed, continuing with stored calendars: %v", err)
		return nil
	}
	n, warns, err := r.Catalog.SyncCalendars(raw)
	sum.Warnings = append(sum.Warnings, warns...)
	if err != nil {
		return fmt.Errorf("store calendars: %w", err)
	}
	sum.CalendarsUpserted = n
	return nil
}

func (r *Runner) syncServiceTypes(ctx context.Context, sum *Summary) error {
	raw, err := r.Client.FetchAppointmentTypes(ctx)
	if err != nil {
		sum.Warnings = append(sum.Warnings, fmt.Sprintf("appointment type fetch failed, using stored types: %v", err))
		r.Logger.Printf("⚠️ appointment type fetch failed, continuing with stored types: %v", err)
		return nil
	}
	n, warns, err := r.Catalog.SyncServiceTypes(raw)
	sum.Warnings = append(sum.Warnings, warns...)
	if err != nil {
		return fmt.Errorf("store appointment types: %w", err)
	}
	sum.ServiceTypesUpserted = n
	return nil
}

func runStatus(sum *Summary, err error) string {
	switch {
	case err != nil:
		return models.SyncRunStatusFailed
	case sum.CalendarErrors() > 0:
		return models.SyncRunStatusPartial
	}
	for _, c := range sum.PerCalendar {
		if c.Halt == HaltCeiling {
			return models.SyncRunStatusPartial
		}
	}
	return models.SyncRunStatusSuccess
}

func (r *Runner) startLedger(sum *Summary) *models.SyncRun {
	if r.Runs == nil {
		return nil
	}
	run := &models.SyncRun{
		ID:        sum.RunID,
		Scope:     string(sum.Scope),
		Status:    models.SyncRunStatusRunning,
		StartedAt: sum.StartedAt,
	}
	if err := r.Runs.Start(run); err != nil {
		r.Logger.Printf("⚠️ could not record sync run: %v", err)
		return nil
	}
	return run
}

func (r *Runner) finishLedger(run *models.SyncRun, sum *Summary) {
	if run == nil {
		return
	}
	warnings, err := json.Marshal(sum.Warnings)
	if err != nil {
		warnings = []byte("[]")
	}
	finished := sum.FinishedAt

	run.Status = sum.Status
	run.CalendarsUpserted = sum.CalendarsUpserted
	run.ServiceTypesUpserted = sum.ServiceTypesUpserted
	run.Created = sum.Created
	run.Updated = sum.Updated
	run.Skipped = sum.Skipped
	run.CalendarErrors = sum.CalendarErrors()
	run.Warnings = warnings
	run.FinishedAt = &finished
	run.DurationMs = sum.FinishedAt.Sub(sum.StartedAt).Milliseconds()

	if err := r.Runs.Finish(run); err != nil {
		r.Logger.Printf("⚠️ could not finalise sync run %s: %v", run.ID, err)
	}
}

// publishTimeout bounds delivery of the run summary. The run's own context
// may already be done when the summary is ready.
const publishTimeout = 10 * time.Second

func (r *Runner) publish(ctx context.Context, sum *Summary) {
	if r.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := r.Publisher.Publish(ctx, sum); err != nil {
		r.Logger.Printf("⚠️ publish run summary %s: %v", sum.RunID, err)
	}
}
