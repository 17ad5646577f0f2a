package repos

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/araquach/acuity-datahub/internal/models"
)

// appointmentColumns are replaced wholesale on every sync; upstream wins.
var appointmentColumns = []string{
	"calendar_id",
	"appointment_type_id",
	"client_name",
	"client_email",
	"client_phone",
	"start_time",
	"end_time",
	"original_timezone",
	"status",
	"price",
	"notes",
	"form_data",
	"processing_fee",
	"color_tag",
	"last_synced",
	"updated_at",
}

type AppointmentsRepo struct {
	db *gorm.DB
	lg *logrus.Logger
}

func NewAppointmentsRepo(db *gorm.DB, lg *logrus.Logger) *AppointmentsRepo {
	return &AppointmentsRepo{
		db: db,
		lg: lg,
	}
}

// WithTx returns a repo bound to tx.
func (r *AppointmentsRepo) WithTx(tx *gorm.DB) *AppointmentsRepo {
	return &AppointmentsRepo{db: tx, lg: r.lg}
}

func (r *AppointmentsRepo) Count() (int64, error) {
	var n int64
	err := r.db.Model(&models.Appointment{}).Count(&n).Error
	return n, err
}

// ExistingIDs reports which of ids are already stored.
func (r *AppointmentsRepo) ExistingIDs(ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var found []string
	if err := r.db.Model(&models.Appointment{}).
		Where("acuity_appointment_id IN ?", ids).
		Pluck("acuity_appointment_id", &found).Error; err != nil {
		return nil, fmt.Errorf("lookup appointments: %w", err)
	}
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}

// InsertBatch writes rows not yet stored. It still upserts, so a row that a
// concurrent run inserted first is overwritten rather than failing the batch.
func (r *AppointmentsRepo) InsertBatch(rows []models.Appointment, batchSize int) error {
	return r.upsert("insert", rows, batchSize)
}

// UpdateBatch overwrites every mutable column of rows already stored.
func (r *AppointmentsRepo) UpdateBatch(rows []models.Appointment, batchSize int) error {
	return r.upsert("update", rows, batchSize)
}

func (r *AppointmentsRepo) upsert(op string, rows []models.Appointment, batchSize int) error {
	if len(rows) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	for i := 0; i < len(rows); i += batchSize {
		end := i + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[i:end]

		res := r.db.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "acuity_appointment_id"}},
			DoUpdates: clause.AssignmentColumns(appointmentColumns),
		}).Create(&chunk)
		if res.Error != nil {
			return fmt.Errorf("%s appointments chunk %d-%d: %w", op, i, end, res.Error)
		}
		r.lg.Debugf("appointments %s chunk %d-%d (%d rows)", op, i, end, res.RowsAffected)
	}
	return nil
}

// FindByAcuityID loads one appointment with its calendar and appointment type.
func (r *AppointmentsRepo) FindByAcuityID(id string) (*models.Appointment, error) {
	var a models.Appointment
	if err := r.db.Preload("Calendar").Preload("ServiceType").Where("acuity_appointment_id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// ListBetween returns appointments starting in [from, to) with their
// calendar and appointment type loaded, ordered by start time.
func (r *AppointmentsRepo) ListBetween(from, to time.Time) ([]models.Appointment, error) {
	var rows []models.Appointment
	err := r.db.Preload("Calendar").Preload("ServiceType").
		Where("start_time >= ? AND start_time < ?", from.UTC(), to.UTC()).
		Order("start_time, acuity_appointment_id").
		Find(&rows).Error
	return rows, err
}
