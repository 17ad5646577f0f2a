package export

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/araquach/acuity-datahub/internal/models"
	"github.com/araquach/acuity-datahub/internal/normalize"
)

const productID = "-//araquach//acuity-datahub//EN"

func writeAppointmentsICSFile(path string, rows []models.Appointment, stamp time.Time) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return WriteAppointmentsICS(f, rows, stamp)
}

// WriteAppointmentsICS encodes rows as VEVENTs. Times are written in UTC;
// the description carries the original local time and label.
func WriteAppointmentsICS(w io.Writer, rows []models.Appointment, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	for _, a := range rows {
		ev := ical.NewEvent()
		ev.Props.SetText(ical.PropUID, fmt.Sprintf("acuity-%s@acuity-datahub", a.AcuityAppointmentID))
		ev.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
		ev.Props.SetDateTime(ical.PropDateTimeStart, a.StartTime.UTC())
		ev.Props.SetDateTime(ical.PropDateTimeEnd, a.EndTime.UTC())
		ev.Props.SetText(ical.PropSummary, eventSummary(a))
		ev.Props.SetText(ical.PropDescription, eventDescription(a))
		ev.Props.SetText(ical.PropStatus, icsStatus(a.Status))
		if a.ColorTag != "" {
			ev.Props.SetText(ical.PropCategories, a.ColorTag)
		}
		cal.Children = append(cal.Children, ev.Component)
	}

	return ical.NewEncoder(w).Encode(cal)
}

func eventSummary(a models.Appointment) string {
	parts := make([]string, 0, 2)
	if a.ServiceType != nil && a.ServiceType.Name != "" {
		parts = append(parts, a.ServiceType.Name)
	}
	if a.ClientName != "" {
		parts = append(parts, a.ClientName)
	}
	if len(parts) == 0 {
		return "Appointment " + a.AcuityAppointmentID
	}
	return strings.Join(parts, ": ")
}

func eventDescription(a models.Appointment) string {
	start := normalize.LocalTime(a.StartTime, a.OriginalTimezone)
	end := normalize.LocalTime(a.EndTime, a.OriginalTimezone)
	lines := []string{
		fmt.Sprintf("Local time: %s - %s (%s)", start.Format(localLayout), end.Format("15:04"), a.OriginalTimezone),
		fmt.Sprintf("Price: %s (fee x%v, total %s)",
			a.Price.StringFixed(2), a.ProcessingFee, TotalWithFee(a.Price, a.ProcessingFee).StringFixed(2)),
	}
	if a.ClientEmail != "" {
		lines = append(lines, "Email: "+a.ClientEmail)
	}
	if a.ClientPhone != "" {
		lines = append(lines, "Phone: "+a.ClientPhone)
	}
	return strings.Join(lines, "\n")
}

func icsStatus(s models.AppointmentStatus) string {
	if s == models.StatusCancelled {
		return "CANCELLED"
	}
	return "CONFIRMED"
}
