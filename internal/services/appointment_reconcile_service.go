package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/araquach/acuity-datahub/internal/models"
	"github.com/araquach/acuity-datahub/internal/normalize"
	"github.com/araquach/acuity-datahub/internal/repos"
)

var (
	FeeCandidates      = []string{"processing fee", "fee:"}
	ColorTagCandidates = []string{"color tag", "color"}
)

// ReferenceError means a record points at a calendar or appointment type
// that is not stored locally.
type ReferenceError struct {
	Kind       string // "calendar" or "appointment type"
	UpstreamID string
}

func (e *ReferenceError) Error() string {
	if e.UpstreamID == "" {
		return fmt.Sprintf("%s reference missing", e.Kind)
	}
	return fmt.Sprintf("unknown %s %q", e.Kind, e.UpstreamID)
}

type ReconcileResult struct {
	Created  int
	Updated  int
	Skipped  int
	Warnings []string
}

func (r *ReconcileResult) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// AppointmentReconcileService turns raw appointment pages into stored rows.
type AppointmentReconcileService struct {
	DB           *gorm.DB
	Calendars    *repos.CalendarsRepo
	ServiceTypes *repos.ServiceTypesRepo
	Appointments *repos.AppointmentsRepo
	Normalizer   *normalize.Normalizer

	Logger *logrus.Logger

	// Fee values below FeeThreshold are surcharges (0.04 => 1.04); absent
	// fees become FeeDefault.
	FeeThreshold float64
	FeeDefault   float64

	RejectInvertedTimes bool
	BatchSize           int

	Now func() time.Time
}

func (s *AppointmentReconcileService) lg() *logrus.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logrus.StandardLogger()
}

func (s *AppointmentReconcileService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Reconcile upserts one page of raw appointments. fallbackCalendarID is used
// for records that omit calendarID (the page was fetched for that calendar).
// Bad records are skipped and counted; only a storage failure is returned,
// in which case nothing from this batch was written.
func (s *AppointmentReconcileService) Reconcile(ctx context.Context, fallbackCalendarID string, rows []models.AcuityAppointment) (ReconcileResult, error) {
	var res ReconcileResult
	if len(rows) == 0 {
		return res, nil
	}

	calIDs, typeIDs := referencedIDs(rows, fallbackCalendarID)
	calendars, err := s.Calendars.IDsByAcuityID(calIDs)
	if err != nil {
		return res, err
	}
	types, err := s.ServiceTypes.IDsByAcuityID(typeIDs)
	if err != nil {
		return res, err
	}

	syncedAt := s.now()
	byID := make(map[string]int, len(rows))
	var built []models.Appointment

	for i := range rows {
		rec := &rows[i]
		id := strings.TrimSpace(rec.ID.String())
		log := s.lg().WithFields(logrus.Fields{"appointment": id, "calendar": fallbackCalendarID})

		row, warns, err := s.build(rec, fallbackCalendarID, calendars, types, syncedAt)
		for _, w := range warns {
			res.warnf("appointment %s: %s", id, w)
			log.Warn(w)
		}
		if err != nil {
			res.Skipped++
			res.warnf("appointment %s skipped: %v", id, err)
			log.WithError(err).Warn("skipping appointment")
			continue
		}

		// a page listing the same id twice keeps the later copy
		if at, dup := byID[row.AcuityAppointmentID]; dup {
			built[at] = row
			res.warnf("appointment %s listed twice in one page; kept the later copy", id)
			continue
		}
		byID[row.AcuityAppointmentID] = len(built)
		built = append(built, row)
	}

	if len(built) == 0 {
		return res, nil
	}

	created, updated, err := s.write(ctx, built)
	if err != nil {
		return ReconcileResult{Skipped: res.Skipped, Warnings: res.Warnings}, err
	}
	res.Created = created
	res.Updated = updated
	return res, nil
}

func (s *AppointmentReconcileService) write(ctx context.Context, built []models.Appointment) (int, int, error) {
	tx := s.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return 0, 0, tx.Error
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	repo := s.Appointments.WithTx(tx)

	ids := make([]string, len(built))
	for i, a := range built {
		ids[i] = a.AcuityAppointmentID
	}
	existing, err := repo.ExistingIDs(ids)
	if err != nil {
		_ = tx.Rollback()
		return 0, 0, err
	}

	var inserts, updates []models.Appointment
	for _, a := range built {
		if existing[a.AcuityAppointmentID] {
			updates = append(updates, a)
		} else {
			inserts = append(inserts, a)
		}
	}

	if err := repo.InsertBatch(inserts, s.BatchSize); err != nil {
		_ = tx.Rollback()
		return 0, 0, err
	}
	if err := repo.UpdateBatch(updates, s.BatchSize); err != nil {
		_ = tx.Rollback()
		return 0, 0, err
	}
	if err := tx.Commit().Error; err != nil {
		return 0, 0, fmt.Errorf("commit appointments: %w", err)
	}
	return len(inserts), len(updates), nil
}

func (s *AppointmentReconcileService) build(
	rec *models.AcuityAppointment,
	fallbackCalendarID string,
	calendars, types map[string]uint,
	syncedAt time.Time,
) (models.Appointment, []string, error) {
	var warns []string

	if rec.DecodeErr != nil {
		return models.Appointment{}, nil, &normalize.ParseError{Field: "record", Reason: "undecodable JSON", Err: rec.DecodeErr}
	}
	id := strings.TrimSpace(rec.ID.String())
	if id == "" {
		return models.Appointment{}, nil, &normalize.ParseError{Field: "id", Reason: "missing field", Err: normalize.ErrMissingField}
	}
	if utf8.RuneCountInString(id) > models.AcuityIDWidth {
		return models.Appointment{}, nil, &normalize.ParseError{Field: "id", Value: id, Reason: fmt.Sprintf("longer than %d characters", models.AcuityIDWidth)}
	}

	calRef := calendarRef(rec, fallbackCalendarID)
	calID, ok := calendars[calRef]
	if !ok {
		return models.Appointment{}, nil, &ReferenceError{Kind: "calendar", UpstreamID: calRef}
	}
	typeRef := strings.TrimSpace(rec.AppointmentTypeID.String())
	typeID, ok := types[typeRef]
	if !ok {
		return models.Appointment{}, nil, &ReferenceError{Kind: "appointment type", UpstreamID: typeRef}
	}

	startField := "datetime"
	if strings.TrimSpace(rec.Datetime) == "" && strings.TrimSpace(rec.Time) != "" {
		startField = "time"
	}
	start, err := s.Normalizer.Normalize(rec, startField)
	if err != nil {
		return models.Appointment{}, nil, err
	}
	end, err := s.Normalizer.Normalize(rec, "endTime")
	if err != nil {
		return models.Appointment{}, nil, err
	}
	for _, r := range []normalize.Result{start, end} {
		if r.Warning != "" {
			warns = append(warns, r.Warning)
		}
	}

	if end.Instant.Before(start.Instant) {
		if s.RejectInvertedTimes {
			return models.Appointment{}, warns, fmt.Errorf("end %s before start %s",
				end.Instant.Format(time.RFC3339), start.Instant.Format(time.RFC3339))
		}
		warns = append(warns, "end time before start time")
	}

	price, err := parsePrice(rec.Price.String())
	if err != nil {
		return models.Appointment{}, warns, err
	}

	fee, feeWarn := s.processingFee(rec.Forms)
	if feeWarn != "" {
		warns = append(warns, feeWarn)
	}

	status, known := mapStatus(rec)
	if !known {
		warns = append(warns, fmt.Sprintf("unknown status %q treated as scheduled", rec.Status))
	}

	row := models.Appointment{
		AcuityAppointmentID: id,
		CalendarID:          calID,
		ServiceTypeID:       typeID,
		ClientName:          fitColumn("client name", clientName(rec), models.NameWidth, &warns),
		ClientEmail:         fitColumn("client email", strings.TrimSpace(rec.Email), models.ClientEmailWidth, &warns),
		ClientPhone:         fitColumn("client phone", strings.TrimSpace(rec.Phone.String()), models.ClientPhoneWidth, &warns),
		StartTime:           start.Instant,
		EndTime:             end.Instant,
		OriginalTimezone:    fitColumn("timezone label", start.Label, models.TimezoneLabelWidth, &warns),
		Status:              status,
		Price:               price,
		Notes:               rec.Notes,
		FormData:            datatypes.NewJSONType(rec.Forms),
		ProcessingFee:       fee,
		ColorTag:            fitColumn("color tag", colorTag(rec), models.ColorTagWidth, &warns),
		LastSynced:          syncedAt,
	}
	return row, warns, nil
}

// processingFee reads the fee field. Unparseable values fall back to the
// default with a warning rather than dropping the appointment.
func (s *AppointmentReconcileService) processingFee(forms []models.FormSubmission) (float64, string) {
	raw, ok := normalize.ExtractFormField(forms, FeeCandidates)
	raw = strings.NewReplacer("%", "", "$", "", " ", "").Replace(strings.TrimSpace(raw))
	if !ok || raw == "" {
		return s.FeeDefault, ""
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return s.FeeDefault, fmt.Sprintf("processing fee %q unparseable, using %.2f", raw, s.FeeDefault)
	}
	return FeeMultiplier(v, s.FeeThreshold), ""
}

// FeeMultiplier converts a form fee value to a multiplier: values below
// threshold are fractional surcharges, anything else already is one.
func FeeMultiplier(v, threshold float64) float64 {
	if v < threshold {
		return 1.0 + v
	}
	return v
}

// maxPrice is the first value a decimal(10,2) column cannot hold.
var maxPrice = decimal.New(1, 8)

func parsePrice(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &normalize.ParseError{Field: "price", Value: raw, Reason: "invalid decimal", Err: err}
	}
	if d.Round(2).Abs().GreaterThanOrEqual(maxPrice) {
		return decimal.Zero, &normalize.ParseError{Field: "price", Value: raw, Reason: "out of range"}
	}
	return d, nil
}

// fitColumn cuts v to at most width characters and records a warning when
// it had to.
func fitColumn(name, v string, width int, warns *[]string) string {
	if utf8.RuneCountInString(v) <= width {
		return v
	}
	*warns = append(*warns, fmt.Sprintf("%s longer than %d characters; truncated", name, width))
	return string([]rune(v)[:width])
}

func mapStatus(rec *models.AcuityAppointment) (models.AppointmentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(rec.Status)) {
	case "scheduled":
		return models.StatusScheduled, true
	case "confirmed":
		return models.StatusConfirmed, true
	case "cancelled", "canceled":
		return models.StatusCancelled, true
	case "completed":
		return models.StatusCompleted, true
	case "":
		if rec.Canceled {
			return models.StatusCancelled, true
		}
		return models.StatusScheduled, true
	default:
		if rec.Canceled {
			return models.StatusCancelled, true
		}
		return models.StatusScheduled, false
	}
}

func clientName(rec *models.AcuityAppointment) string {
	name := strings.TrimSpace(strings.TrimSpace(rec.FirstName) + " " + strings.TrimSpace(rec.LastName))
	if name == "" {
		name = strings.TrimSpace(rec.Name)
	}
	return name
}

func colorTag(rec *models.AcuityAppointment) string {
	if len(rec.Labels) > 0 && strings.TrimSpace(rec.Labels[0].Color) != "" {
		return strings.TrimSpace(rec.Labels[0].Color)
	}
	if v, ok := normalize.ExtractFormField(rec.Forms, ColorTagCandidates); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func calendarRef(rec *models.AcuityAppointment, fallback string) string {
	if ref := strings.TrimSpace(rec.CalendarID.String()); ref != "" {
		return ref
	}
	return strings.TrimSpace(fallback)
}

func referencedIDs(rows []models.AcuityAppointment, fallbackCalendarID string) ([]string, []string) {
	calSeen := map[string]bool{}
	typeSeen := map[string]bool{}
	var cals, types []string
	for i := range rows {
		if c := calendarRef(&rows[i], fallbackCalendarID); c != "" && !calSeen[c] {
			calSeen[c] = true
			cals = append(cals, c)
		}
		if t := strings.TrimSpace(rows[i].AppointmentTypeID.String()); t != "" && !typeSeen[t] {
			typeSeen[t] = true
			types = append(types, t)
		}
	}
	return cals, types
}
