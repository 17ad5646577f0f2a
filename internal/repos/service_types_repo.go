package repos

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/araquach/acuity-datahub/internal/models"
)

type ServiceTypesRepo struct {
	db *gorm.DB
	lg *logrus.Logger
}

func NewServiceTypesRepo(db *gorm.DB, lg *logrus.Logger) *ServiceTypesRepo {
	return &ServiceTypesRepo{
		db: db,
		lg: lg,
	}
}

func (r *ServiceTypesRepo) Count() (int64, error) {
	var n int64
	err := r.db.Model(&models.ServiceType{}).Count(&n).Error
	return n, err
}

func (r *ServiceTypesRepo) UpsertBatch(rows []models.ServiceType, batchSize int) error {
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
			Columns: []clause.Column{{Name: "acuity_type_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name",
				"duration",
				"price",
				"description",
				"category",
				"is_active",
				"updated_at",
			}),
		}).Create(&chunk)
		if res.Error != nil {
			return fmt.Errorf("upsert appointment types chunk %d-%d: %w", i, end, res.Error)
		}
		r.lg.Debugf("appointment types chunk %d-%d upserted (%d rows)", i, end, res.RowsAffected)
	}
	return nil
}

func (r *ServiceTypesRepo) IDsByAcuityID(ids []string) (map[string]uint, error) {
	out := make(map[string]uint, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []models.ServiceType
	if err := r.db.Select("id", "acuity_type_id").
		Where("acuity_type_id IN ?", ids).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("lookup appointment types: %w", err)
	}
	for _, s := range rows {
		out[s.AcuityTypeID] = s.ID
	}
	return out, nil
}
