package services

import (
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/araquach/acuity-datahub/internal/models"
	"github.com/araquach/acuity-datahub/internal/repos"
)

func newCatalog(t *testing.T) *CatalogService {
	t.Helper()
	db := newTestDB(t)
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	return &CatalogService{
		Calendars:    repos.NewCalendarsRepo(db, lg),
		ServiceTypes: repos.NewServiceTypesRepo(db, lg),
		Logger:       lg,
	}
}

func TestSyncCalendarsFitsColumns(t *testing.T) {
	svc := newCatalog(t)

	n, warns, err := svc.SyncCalendars([]models.AcuityCalendar{
		{ID: "9", Name: strings.Repeat("Ω", 240), Timezone: "America/New_York"},
		{ID: models.FlexString(strings.Repeat("1", 51)), Name: "Too long id"},
		{ID: "", Name: "No id"},
	})
	if err != nil {
		t.Fatalf("SyncCalendars: %v", err)
	}
	if n != 1 || len(warns) != 3 {
		t.Fatalf("upserted = %d warnings = %v, want 1 row and 3 warnings", n, warns)
	}

	rows, err := svc.Calendars.ListActive()
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(rows) != 1 || utf8.RuneCountInString(rows[0].Name) != models.NameWidth {
		t.Fatalf("rows = %+v, want one calendar with a %d-character name", rows, models.NameWidth)
	}
}

func TestSyncServiceTypesDefaults(t *testing.T) {
	svc := newCatalog(t)
	inactive := false

	n, warns, err := svc.SyncServiceTypes([]models.AcuityAppointmentType{
		{ID: "3", Name: "Consult", Price: "abc"},
		{ID: "4", Name: "Retired", Price: "20.00", Active: &inactive, Category: strings.Repeat("c", 210)},
		{ID: "3", Name: "Consult again"},
	})
	if err != nil {
		t.Fatalf("SyncServiceTypes: %v", err)
	}
	if n != 2 {
		t.Fatalf("upserted = %d, want 2", n)
	}
	if len(warns) != 2 {
		t.Fatalf("warnings = %v, want price and category warnings", warns)
	}

	ids, err := svc.ServiceTypes.IDsByAcuityID([]string{"3", "4"})
	if err != nil {
		t.Fatalf("IDsByAcuityID: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ids = %v, want both types stored", ids)
	}
}
