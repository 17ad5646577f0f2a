package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/araquach/acuity-datahub/internal/models"
)

// ExportByCalendar writes appointments_<calendar>.csv and .ics into dir for
// every calendar that has rows, and returns the files written.
func ExportByCalendar(dir string, rows []models.Appointment, stamp time.Time, lg *logrus.Logger) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir %q: %w", dir, err)
	}

	groups := map[string][]models.Appointment{}
	for _, a := range rows {
		key := fmt.Sprintf("cal%d", a.CalendarID)
		if a.Calendar != nil && a.Calendar.AcuityCalendarID != "" {
			key = a.Calendar.AcuityCalendarID
		}
		groups[key] = append(groups[key], a)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var written []string
	for _, k := range keys {
		base := filepath.Join(dir, "appointments_"+k)

		if err := writeAppointmentsCSVFile(base+".csv", groups[k]); err != nil {
			return written, fmt.Errorf("write %s.csv: %w", base, err)
		}
		written = append(written, base+".csv")

		if err := writeAppointmentsICSFile(base+".ics", groups[k], stamp); err != nil {
			return written, fmt.Errorf("write %s.ics: %w", base, err)
		}
		written = append(written, base+".ics")

		lg.Printf("📝 calendar %s: %d appointments exported", k, len(groups[k]))
	}
	return written, nil
}
