package repos

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/araquach/acuity-datahub/internal/models"
)

type CalendarsRepo struct {
	db *gorm.DB
	lg *logrus.Logger
}

func NewCalendarsRepo(db *gorm.DB, lg *logrus.Logger) *CalendarsRepo {
	return &CalendarsRepo{
		db: db,
		lg: lg,
	}
}

func (r *CalendarsRepo) Count() (int64, error) {
	var n int64
	err := r.db.Model(&models.Calendar{}).Count(&n).Error
	return n, err
}

// UpsertBatch inserts or refreshes calendars keyed by acuity_calendar_id.
func (r *CalendarsRepo) UpsertBatch(rows []models.Calendar, batchSize int) error {
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

		res := r.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "acuity_calendar_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name",
				"description",
				"timezone",
				"is_active",
				"updated_at",
			}),
		}).Create(&chunk)
		if res.Error != nil {
			return fmt.Errorf("upsert calendars chunk %d-%d: %w", i, end, res.Error)
		}
		r.lg.Debugf("calendars chunk %d-%d upserted (%d rows)", i, end, res.RowsAffected)
	}
	return nil
}

// IDsByAcuityID maps upstream calendar ids to local primary keys. Unknown
// ids are simply absent from the result.
func (r *CalendarsRepo) IDsByAcuityID(ids []string) (map[string]uint, error) {
	out := make(map[string]uint, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []models.Calendar
	if err := r.db.Select("id", "acuity_calendar_id").
		Where("acuity_calendar_id IN ?", ids).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("lookup calendars: %w", err)
	}
	for _, c := range rows {
		out[c.AcuityCalendarID] = c.ID
	}
	return out, nil
}

// ListActive returns active calendars ordered by upstream id.
func (r *CalendarsRepo) ListActive() ([]models.Calendar, error) {
	var rows []models.Calendar
	err := r.db.Where("is_active = ?", true).
		Order("acuity_calendar_id").
		Find(&rows).Error
	return rows, err
}
