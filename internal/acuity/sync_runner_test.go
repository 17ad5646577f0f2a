package acuity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/araquach/acuity-datahub/internal/config"
	"github.com/araquach/acuity-datahub/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func quietLogger() *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	return lg
}

// fakeAcuity serves /calendars, /appointment-types and, per calendar, a
// scripted list of appointment pages. Pages past the script are empty.
type fakeAcuity struct {
	mu        sync.Mutex
	calendars string
	pages     map[string][]string
	failCal   map[string]int
	hits      map[string]int
}

func (f *fakeAcuity) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch req.URL.Path {
	case "/calendars":
		if f.calendars == "" {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, f.calendars)
	case "/appointment-types":
		fmt.Fprint(w, `[{"id": 3, "name": "Consult", "duration": 120, "price": "150.00"}]`)
	case "/appointments":
		cal := req.URL.Query().Get("calendarID")
		f.hits[cal]++
		if code, ok := f.failCal[cal]; ok {
			http.Error(w, "upstream broke", code)
			return
		}
		var page int
		fmt.Sscanf(req.URL.Query().Get("page"), "%d", &page)
		script := f.pages[cal]
		if page < 1 || page > len(script) {
			fmt.Fprint(w, `[]`)
			return
		}
		fmt.Fprint(w, script[page-1])
	default:
		http.NotFound(w, req)
	}
}

func appt(id string, cal string) string {
	return fmt.Sprintf(`{"id": %q, "firstName": "Client", "lastName": %q,
		"datetime": "2025-09-13T18:00:00-0400", "endTime": "2025-09-13T20:00:00-0400",
		"calendarID": %q, "appointmentTypeID": "3",
		"forms": [{"values": [{"name": "Fee:", "value": "0.04"}]}]}`, id, id, cal)
}

func page(items ...string) string {
	out := "["
	for i, it := range items {
		if i > 0 {
			out += ","
		}
		out += it
	}
	return out + "]"
}

const twoCalendars = `[{"id": 9, "name": "Front Desk", "timezone": "America/New_York"}, {"id": 10, "name": "Studio"}]`

type recordingPublisher struct {
	mu      sync.Mutex
	runs    []*Summary
	ctxErrs []error
}

func (p *recordingPublisher) Publish(ctx context.Context, s *Summary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = append(p.runs, s)
	p.ctxErrs = append(p.ctxErrs, ctx.Err())
	return nil
}

func newTestRunner(t *testing.T, fake *fakeAcuity) (*Runner, *gorm.DB) {
	t.Helper()
	if fake.hits == nil {
		fake.hits = map[string]int{}
	}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		AcuityBaseURL: srv.URL,
		AcuityUserID:  "user",
		AcuityAPIKey:  "key",
		PageSize:      100,
		MaxPages:      1000,
		HTTPTimeout:   5 * time.Second,
		MaxRetries:    1,
		Workers:       2,
		DaysBack:      30,
		DaysForward:   30,
		FeeThreshold:  2.0,
		FeeDefault:    1.0,
	}
	db := newTestDB(t)
	r := NewRunner(db, cfg, quietLogger())
	r.Client.RetryInitial = time.Millisecond
	r.Client.RetryMax = 5 * time.Millisecond
	return r, db
}

func calendarSummary(t *testing.T, s *Summary, id string) CalendarSummary {
	t.Helper()
	for _, c := range s.PerCalendar {
		if c.CalendarID == id {
			return c
		}
	}
	t.Fatalf("no summary for calendar %s in %+v", id, s.PerCalendar)
	return CalendarSummary{}
}

func TestRunFullSyncHaltsOnRepeatedPage(t *testing.T) {
	first := page(appt("501", "9"), appt("502", "9"))
	fake := &fakeAcuity{
		calendars: twoCalendars,
		pages: map[string][]string{
			"9":  {first, first, page(appt("503", "9"))},
			"10": {page(appt("601", "10"))},
		},
	}
	r, db := newTestRunner(t, fake)
	pub := &recordingPublisher{}
	r.Publisher = pub

	sum, err := r.RunFullSync(context.Background())
	if err != nil {
		t.Fatalf("RunFullSync: %v", err)
	}

	if sum.CalendarsUpserted != 2 || sum.ServiceTypesUpserted != 1 {
		t.Fatalf("catalog = %d calendars %d types, want 2 and 1", sum.CalendarsUpserted, sum.ServiceTypesUpserted)
	}
	if sum.Created != 3 || sum.Updated != 0 || sum.Skipped != 0 {
		t.Fatalf("counts = %d/%d/%d, want 3/0/0", sum.Created, sum.Updated, sum.Skipped)
	}

	cal9 := calendarSummary(t, sum, "9")
	if cal9.Halt != HaltLoopDetected || cal9.Pages != 1 {
		t.Fatalf("calendar 9 = %+v, want loop halt after 1 page", cal9)
	}
	// the guard fired on page 2, so page 3 was never requested
	if fake.hits["9"] != 2 {
		t.Fatalf("calendar 9 fetched %d pages, want 2", fake.hits["9"])
	}

	cal10 := calendarSummary(t, sum, "10")
	if cal10.Halt != HaltEmptyPage || cal10.Created != 1 {
		t.Fatalf("calendar 10 = %+v, want 1 created then empty page", cal10)
	}

	if sum.Status != models.SyncRunStatusSuccess {
		t.Fatalf("status = %s, want success", sum.Status)
	}
	if r.Phase() != PhaseDone {
		t.Fatalf("phase = %s, want done", r.Phase())
	}

	var stored int64
	db.Model(&models.Appointment{}).Count(&stored)
	if stored != 3 {
		t.Fatalf("stored = %d, want 3", stored)
	}

	var run models.SyncRun
	if err := db.First(&run, "id = ?", sum.RunID).Error; err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if run.Status != models.SyncRunStatusSuccess || run.Created != 3 || run.FinishedAt == nil {
		t.Fatalf("ledger row = %+v", run)
	}

	if len(pub.runs) != 1 || pub.runs[0].RunID != sum.RunID {
		t.Fatalf("published %d summaries, want this run", len(pub.runs))
	}
	if cal9.Appointments != 2 || cal10.Appointments != 1 {
		t.Fatalf("distinct appointments = %d/%d, want 2/1", cal9.Appointments, cal10.Appointments)
	}
}

func TestRunSyncIsolatesCalendarFailures(t *testing.T) {
	fake := &fakeAcuity{
		calendars: twoCalendars,
		pages: map[string][]string{
			"9": {page(appt("501", "9"))},
		},
		failCal: map[string]int{"10": http.StatusBadGateway},
	}
	r, _ := newTestRunner(t, fake)

	sum, err := r.RunFullSync(context.Background())
	if err != nil {
		t.Fatalf("RunFullSync: %v", err)
	}
	if sum.Created != 1 {
		t.Fatalf("created = %d, want 1 from calendar 9", sum.Created)
	}

	cal10 := calendarSummary(t, sum, "10")
	var terr *TransportError
	if !errors.As(cal10.Err, &terr) || terr.StatusCode != http.StatusBadGateway {
		t.Fatalf("calendar 10 err = %v, want 502 TransportError", cal10.Err)
	}
	// one try plus MaxRetries
	if fake.hits["10"] != 2 {
		t.Fatalf("calendar 10 requests = %d, want 2", fake.hits["10"])
	}
	if sum.Status != models.SyncRunStatusPartial || sum.CalendarErrors() != 1 {
		t.Fatalf("status = %s errors = %d, want partial with 1", sum.Status, sum.CalendarErrors())
	}
}

func TestRunSyncPageCeiling(t *testing.T) {
	fake := &fakeAcuity{
		calendars: `[{"id": 9, "name": "Front Desk"}]`,
		pages: map[string][]string{
			"9": {page(appt("1", "9")), page(appt("2", "9")), page(appt("3", "9"))},
		},
	}
	r, _ := newTestRunner(t, fake)
	r.Cfg.MaxPages = 2

	sum, err := r.RunFullSync(context.Background())
	if err != nil {
		t.Fatalf("RunFullSync: %v", err)
	}
	cal := calendarSummary(t, sum, "9")
	if cal.Halt != HaltCeiling || cal.Pages != 2 || cal.Created != 2 {
		t.Fatalf("calendar = %+v, want ceiling after 2 pages", cal)
	}
	if sum.Status != models.SyncRunStatusPartial || len(sum.Warnings) == 0 {
		t.Fatalf("status = %s warnings = %v, want partial with a warning", sum.Status, sum.Warnings)
	}
}

func TestRunSyncEndingAtCeilingIsComplete(t *testing.T) {
	fake := &fakeAcuity{
		calendars: `[{"id": 9, "name": "Front Desk"}]`,
		pages: map[string][]string{
			"9": {page(appt("1", "9")), page(appt("2", "9"))},
		},
	}
	r, _ := newTestRunner(t, fake)
	r.Cfg.MaxPages = 2

	sum, err := r.RunFullSync(context.Background())
	if err != nil {
		t.Fatalf("RunFullSync: %v", err)
	}
	cal := calendarSummary(t, sum, "9")
	if cal.Halt != HaltEmptyPage || cal.Pages != 2 || cal.Created != 2 {
		t.Fatalf("calendar = %+v, want 2 pages then empty page", cal)
	}
	// page 3 is requested only to confirm the calendar ended
	if fake.hits["9"] != 3 {
		t.Fatalf("calendar 9 requests = %d, want 3", fake.hits["9"])
	}
	if sum.Status != models.SyncRunStatusSuccess || len(sum.Warnings) != 0 {
		t.Fatalf("status = %s warnings = %v, want success without warnings", sum.Status, sum.Warnings)
	}
}

func TestRunSyncPublishesAfterCancellation(t *testing.T) {
	r, _ := newTestRunner(t, &fakeAcuity{calendars: twoCalendars})
	pub := &recordingPublisher{}
	r.Publisher = pub

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := r.RunFullSync(ctx)
	if err != nil {
		t.Fatalf("RunFullSync: %v", err)
	}
	if len(pub.runs) != 1 || pub.runs[0].RunID != sum.RunID {
		t.Fatalf("published %d summaries, want this run", len(pub.runs))
	}
	if pub.ctxErrs[0] != nil {
		t.Fatalf("publish context already done: %v", pub.ctxErrs[0])
	}
}

func TestRunSyncTwiceUpdatesInsteadOfCreating(t *testing.T) {
	fake := &fakeAcuity{
		calendars: `[{"id": 9, "name": "Front Desk"}]`,
		pages: map[string][]string{
			"9": {page(appt("501", "9"), appt("502", "9"))},
		},
	}
	r, _ := newTestRunner(t, fake)

	if _, err := r.RunFullSync(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	sum, err := r.RunSync(context.Background(), ScopeAppointments)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum.Created != 0 || sum.Updated != 2 {
		t.Fatalf("second run = %d created %d updated, want 0 and 2", sum.Created, sum.Updated)
	}
	if sum.CalendarsUpserted != 0 {
		t.Fatalf("appointments scope refreshed calendars")
	}
}

func TestRunSyncCalendarsScopeSkipsAppointments(t *testing.T) {
	fake := &fakeAcuity{
		calendars: twoCalendars,
		pages:     map[string][]string{"9": {page(appt("501", "9"))}},
	}
	r, _ := newTestRunner(t, fake)

	sum, err := r.RunSync(context.Background(), ScopeCalendars)
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}
	if sum.CalendarsUpserted != 2 || sum.ServiceTypesUpserted != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if fake.hits["9"] != 0 || len(sum.PerCalendar) != 0 {
		t.Fatalf("appointments fetched in calendars scope")
	}
}

func TestRunSyncCalendarFetchFailureUsesStoredCalendars(t *testing.T) {
	fake := &fakeAcuity{
		pages: map[string][]string{"9": {page(appt("501", "9"))}},
	}
	r, db := newTestRunner(t, fake)
	if err := db.Create(&models.Calendar{AcuityCalendarID: "9", Name: "Front Desk", IsActive: true}).Error; err != nil {
		t.Fatalf("seed calendar: %v", err)
	}

	sum, err := r.RunFullSync(context.Background())
	if err != nil {
		t.Fatalf("RunFullSync: %v", err)
	}
	if sum.CalendarsUpserted != 0 || len(sum.Warnings) == 0 {
		t.Fatalf("summary = %+v, want a calendar fetch warning", sum)
	}
	if sum.Created != 1 {
		t.Fatalf("created = %d, want 1 via the stored calendar", sum.Created)
	}
}

func TestRunSyncRejectsOverlap(t *testing.T) {
	r, _ := newTestRunner(t, &fakeAcuity{})
	r.mu.Lock()
	defer r.mu.Unlock()

	sum, err := r.RunFullSync(context.Background())
	if !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("err = %v, want ErrSyncInProgress", err)
	}
	if sum != nil {
		t.Fatalf("summary = %+v, want nil for a refused run", sum)
	}
}

func TestClientRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if user, key, ok := req.BasicAuth(); !ok || user != "user" || key != "key" {
			t.Errorf("missing basic auth")
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `[{"id": 1, "datetime": "2025-09-13T18:00:00-0400"}, {"id": 2, "forms": "not a list"}]`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "user", "key", time.Second, 3, quietLogger())
	c.RetryInitial = time.Millisecond

	rows, err := c.FetchAppointmentsPage(context.Background(), Filters{CalendarID: "9"}, 1)
	if err != nil {
		t.Fatalf("FetchAppointmentsPage: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].DecodeErr != nil {
		t.Fatalf("row 1 decode error: %v", rows[0].DecodeErr)
	}
	if rows[1].DecodeErr == nil || rows[1].ID != "2" {
		t.Fatalf("row 2 = %+v, want decode error with salvaged id", rows[1])
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "user", "key", time.Second, 3, quietLogger())
	c.RetryInitial = time.Millisecond

	_, err := c.FetchCalendars(context.Background())
	var terr *TransportError
	if !errors.As(err, &terr) || terr.StatusCode != http.StatusNotFound {
		t.Fatalf("err = %v, want 404 TransportError", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestParseScope(t *testing.T) {
	for in, want := range map[string]Scope{"": ScopeAll, "ALL": ScopeAll, "calendars": ScopeCalendars, " appointments ": ScopeAppointments} {
		got, err := ParseScope(in)
		if err != nil || got != want {
			t.Fatalf("ParseScope(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseScope("clients"); err == nil {
		t.Fatalf("expected error for unknown scope")
	}
}
