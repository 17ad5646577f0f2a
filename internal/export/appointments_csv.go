package export

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/araquach/acuity-datahub/internal/models"
	"github.com/araquach/acuity-datahub/internal/normalize"
)

const localLayout = "2006-01-02 15:04"

var csvHeader = []string{
	"acuity_appointment_id",
	"calendar",
	"appointment_type",
	"client_name",
	"client_email",
	"client_phone",
	"start_local",
	"end_local",
	"timezone",
	"start_utc",
	"end_utc",
	"status",
	"price",
	"processing_fee",
	"total_with_fee",
	"color_tag",
	"last_synced",
}

func writeAppointmentsCSVFile(path string, rows []models.Appointment) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return WriteAppointmentsCSV(f, rows)
}

// WriteAppointmentsCSV writes one row per appointment. Local columns are
// rendered in the appointment's original timezone label.
func WriteAppointmentsCSV(out io.Writer, rows []models.Appointment) error {
	w := csv.NewWriter(out)

	if err := w.Write(csvHeader); err != nil {
		return err
	}

	for _, a := range rows {
		var calName, typeName string
		if a.Calendar != nil {
			calName = a.Calendar.Name
		}
		if a.ServiceType != nil {
			typeName = a.ServiceType.Name
		}

		rec := []string{
			a.AcuityAppointmentID,
			calName,
			typeName,
			a.ClientName,
			a.ClientEmail,
			a.ClientPhone,
			normalize.LocalTime(a.StartTime, a.OriginalTimezone).Format(localLayout),
			normalize.LocalTime(a.EndTime, a.OriginalTimezone).Format(localLayout),
			a.OriginalTimezone,
			a.StartTime.UTC().Format(time.RFC3339),
			a.EndTime.UTC().Format(time.RFC3339),
			string(a.Status),
			a.Price.StringFixed(2),
			strconv.FormatFloat(a.ProcessingFee, 'f', -1, 64),
			TotalWithFee(a.Price, a.ProcessingFee).StringFixed(2),
			a.ColorTag,
			a.LastSynced.UTC().Format(time.RFC3339),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// TotalWithFee applies the processing-fee multiplier to price, rounded to
// cents. A zero or non-finite multiplier is treated as no fee.
func TotalWithFee(price decimal.Decimal, fee float64) decimal.Decimal {
	if fee == 0 || math.IsNaN(fee) || math.IsInf(fee, 0) {
		return price.Round(2)
	}
	return price.Mul(decimal.NewFromFloat(fee)).Round(2)
}
