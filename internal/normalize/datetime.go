package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/araquach/acuity-datahub/internal/models"
)

// Result is one normalised timestamp.
type Result struct {
	// Instant is UTC unless Converted is false, in which case it holds the
	// upstream wall-clock value as-is.
	Instant   time.Time
	Label     string
	Converted bool
	Warning   string
}

// Normalizer parses the datetime encodings Acuity emits. It is safe for
// concurrent use.
type Normalizer struct {
	offsetZones map[string][]string

	mu   sync.Mutex
	locs map[string]*time.Location
}

// NewNormalizer uses offsetZones to label timestamps that carry a numeric
// offset but no zone name; nil means DefaultOffsetZones.
func NewNormalizer(offsetZones map[string][]string) *Normalizer {
	if offsetZones == nil {
		offsetZones = DefaultOffsetZones()
	}
	zones := make(map[string][]string, len(offsetZones))
	for k, v := range offsetZones {
		zones[k] = append([]string(nil), v...)
	}
	return &Normalizer{
		offsetZones: zones,
		locs:        map[string]*time.Location{},
	}
}

var (
	offsetSuffix = regexp.MustCompile(`([+-])(\d{2}):?(\d{2})$`)

	wallLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04",
	}
	offsetLayouts = []string{
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02T15:04-07:00",
	}
	dateLayouts = []string{
		"2006-01-02",
		"January 2, 2006",
		"Jan 2, 2006",
	}
	clockLayouts = []string{
		"3:04pm",
		"3:04:05pm",
		"3pm",
	}
)

// Normalize reads field from rec and returns its UTC instant and display
// label. Full timestamps (containing "T") are tried first, then time-only
// values with an am/pm marker combined with the record's date field.
func (n *Normalizer) Normalize(rec *models.AcuityAppointment, field string) (Result, error) {
	raw := strings.TrimSpace(rec.Field(field))
	if raw == "" {
		return Result{}, &ParseError{Field: field, Reason: "missing field", Err: ErrMissingField}
	}

	if strings.Contains(raw, "T") {
		return n.parseTimestamp(field, raw, rec.Timezone)
	}

	lower := strings.ToLower(raw)
	if strings.Contains(lower, "am") || strings.Contains(lower, "pm") {
		return n.parseTimeOfDay(rec, field, raw)
	}

	return Result{}, &ParseError{Field: field, Value: raw, Reason: "unrecognized datetime format"}
}

func (n *Normalizer) parseTimestamp(field, raw, zoneHint string) (Result, error) {
	s := raw
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
	}

	sep := strings.Index(s, "T")
	m := offsetSuffix.FindStringSubmatchIndex(s[sep+1:])
	if m == nil {
		wall, err := parseWall(s)
		if err != nil {
			return Result{}, &ParseError{Field: field, Value: raw, Reason: "invalid timestamp", Err: err}
		}
		return Result{Instant: wall, Label: "UTC", Converted: true}, nil
	}

	// indexes relative to s
	for i := range m {
		m[i] += sep + 1
	}
	wallPart := s[:m[0]]
	sign, hh, mm := s[m[2]:m[3]], s[m[4]:m[5]], s[m[6]:m[7]]
	canonical := wallPart + sign + hh + ":" + mm

	for _, layout := range offsetLayouts {
		t, err := time.Parse(layout, canonical)
		if err != nil {
			continue
		}
		return Result{Instant: t.UTC(), Label: n.label(t, zoneHint), Converted: true}, nil
	}

	// time.Parse rejects some offsets (e.g. hours above 24); subtract by hand
	wall, err := parseWall(wallPart)
	if err != nil {
		return Result{}, &ParseError{Field: field, Value: raw, Reason: "invalid timestamp", Err: err}
	}
	h, herr := strconv.Atoi(hh)
	mins, merr := strconv.Atoi(mm)
	if herr != nil || merr != nil || mins > 59 {
		return Result{
			Instant:   wall,
			Label:     "UTC",
			Converted: false,
			Warning:   fmt.Sprintf("%s: offset %s%s:%s not convertible; kept wall-clock time", field, sign, hh, mm),
		}, nil
	}

	offset := h*3600 + mins*60
	if sign == "-" {
		offset = -offset
	}
	instant := wall.Add(-time.Duration(offset) * time.Second)
	return Result{
		Instant:   instant,
		Label:     n.label(instant.In(time.FixedZone("", offset)), zoneHint),
		Converted: true,
	}, nil
}

func (n *Normalizer) parseTimeOfDay(rec *models.AcuityAppointment, field, raw string) (Result, error) {
	dateRaw := strings.TrimSpace(rec.Date)
	if dateRaw == "" {
		return Result{}, &ParseError{Field: "date", Reason: "missing date for time-only " + field, Err: ErrMissingField}
	}

	day, err := parseFirst(dateLayouts, dateRaw)
	if err != nil {
		return Result{}, &ParseError{Field: "date", Value: dateRaw, Reason: "invalid date", Err: err}
	}
	clock, err := parseFirst(clockLayouts, strings.ToLower(strings.ReplaceAll(raw, " ", "")))
	if err != nil {
		return Result{}, &ParseError{Field: field, Value: raw, Reason: "invalid time of day", Err: err}
	}

	y, mo, d := day.Date()
	naive := time.Date(y, mo, d, clock.Hour(), clock.Minute(), clock.Second(), 0, time.UTC)

	zone := strings.TrimSpace(rec.Timezone)
	if zone == "" {
		return Result{Instant: naive, Label: "UTC", Converted: true}, nil
	}

	loc, err := n.location(zone)
	if err != nil {
		return Result{
			Instant:   naive,
			Label:     "UTC",
			Converted: false,
			Warning:   fmt.Sprintf("%s: unknown timezone %q; kept naive time", field, zone),
		}, nil
	}

	local := time.Date(y, mo, d, clock.Hour(), clock.Minute(), clock.Second(), 0, loc)
	return Result{Instant: local.UTC(), Label: zone, Converted: true}, nil
}

// label prefers the record's own zone name, as long as that zone agrees
// with the offset the timestamp was written in.
func (n *Normalizer) label(t time.Time, hint string) string {
	hint = strings.TrimSpace(hint)
	if hint != "" {
		if _, off := t.Zone(); n.observes(hint, t, off) {
			return hint
		}
	}
	return n.labelForOffset(t)
}

func (n *Normalizer) location(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("timezone %q is not a zone name", name)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if loc, ok := n.locs[name]; ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	n.locs[name] = loc
	return loc, nil
}

func parseWall(s string) (time.Time, error) {
	return parseFirst(wallLayouts, s)
}

func parseFirst(layouts []string, s string) (time.Time, error) {
	var firstErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
