package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/araquach/acuity-datahub/internal/models"
	"github.com/araquach/acuity-datahub/internal/repos"
)

// CatalogService mirrors calendars and appointment types. Both must be
// current before appointments are reconciled against them.
type CatalogService struct {
	Calendars    *repos.CalendarsRepo
	ServiceTypes *repos.ServiceTypesRepo
	Logger       *logrus.Logger
	BatchSize    int
}

func (s *CatalogService) lg() *logrus.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logrus.StandardLogger()
}

// SyncCalendars upserts every calendar the account lists. Calendars are
// never deleted here.
func (s *CatalogService) SyncCalendars(raw []models.AcuityCalendar) (int, []string, error) {
	var warns []string
	rows := make([]models.Calendar, 0, len(raw))
	seen := map[string]bool{}

	for _, c := range raw {
		id := strings.TrimSpace(c.ID.String())
		if id == "" {
			warns = append(warns, fmt.Sprintf("calendar %q has no id; skipped", c.Name))
			continue
		}
		if utf8.RuneCountInString(id) > models.AcuityIDWidth {
			warns = append(warns, fmt.Sprintf("calendar id %q longer than %d characters; skipped", id, models.AcuityIDWidth))
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		var rowWarns []string
		rows = append(rows, models.Calendar{
			AcuityCalendarID: id,
			Name:             fitColumn("name", strings.TrimSpace(c.Name), models.NameWidth, &rowWarns),
			Description:      c.Description,
			Timezone:         fitColumn("timezone", strings.TrimSpace(c.Timezone), models.TimezoneLabelWidth, &rowWarns),
			IsActive:         true,
		})
		for _, w := range rowWarns {
			warns = append(warns, fmt.Sprintf("calendar %s: %s", id, w))
		}
	}

	if err := s.Calendars.UpsertBatch(rows, s.BatchSize); err != nil {
		return 0, warns, err
	}
	s.lg().Printf("📅 calendars upserted: %d", len(rows))
	return len(rows), warns, nil
}

func (s *CatalogService) SyncServiceTypes(raw []models.AcuityAppointmentType) (int, []string, error) {
	var warns []string
	rows := make([]models.ServiceType, 0, len(raw))
	seen := map[string]bool{}

	for _, t := range raw {
		id := strings.TrimSpace(t.ID.String())
		if id == "" {
			warns = append(warns, fmt.Sprintf("appointment type %q has no id; skipped", t.Name))
			continue
		}
		if utf8.RuneCountInString(id) > models.AcuityIDWidth {
			warns = append(warns, fmt.Sprintf("appointment type id %q longer than %d characters; skipped", id, models.AcuityIDWidth))
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		price, err := parsePrice(t.Price.String())
		if err != nil {
			warns = append(warns, fmt.Sprintf("appointment type %s: %v; price stored as 0", id, err))
		}
		active := true
		if t.Active != nil {
			active = *t.Active
		}

		var rowWarns []string
		rows = append(rows, models.ServiceType{
			AcuityTypeID:    id,
			Name:            fitColumn("name", strings.TrimSpace(t.Name), models.NameWidth, &rowWarns),
			DurationMinutes: t.Duration,
			Price:           price,
			Description:     t.Description,
			Category:        fitColumn("category", strings.TrimSpace(t.Category), models.NameWidth, &rowWarns),
			IsActive:        active,
		})
		for _, w := range rowWarns {
			warns = append(warns, fmt.Sprintf("appointment type %s: %s", id, w))
		}
	}

	if err := s.ServiceTypes.UpsertBatch(rows, s.BatchSize); err != nil {
		return 0, warns, err
	}
	s.lg().Printf("🧾 appointment types upserted: %d", len(rows))
	return len(rows), warns, nil
}
