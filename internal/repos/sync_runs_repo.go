package repos

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/araquach/acuity-datahub/internal/models"
)

// SyncRunsRepo keeps the run ledger.
type SyncRunsRepo struct {
	DB *gorm.DB
}

func (r *SyncRunsRepo) Start(run *models.SyncRun) error {
	if err := r.DB.Create(run).Error; err != nil {
		return fmt.Errorf("insert sync run %s: %w", run.ID, err)
	}
	return nil
}

func (r *SyncRunsRepo) Finish(run *models.SyncRun) error {
	if err := r.DB.Save(run).Error; err != nil {
		return fmt.Errorf("update sync run %s: %w", run.ID, err)
	}
	return nil
}

// Recent returns the newest runs first.
func (r *SyncRunsRepo) Recent(limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []models.SyncRun
	err := r.DB.Order("started_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
