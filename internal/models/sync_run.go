package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusPartial = "partial"
	SyncRunStatusFailed  = "failed"
)

// SyncRun is the ledger row written for every orchestrator run.
type SyncRun struct {
	ID     string `gorm:"primaryKey;column:id;size:36"`
	Scope  string `gorm:"column:scope;size:20;not null"`
	Status string `gorm:"column:status;size:20;not null;index"`

	CalendarsUpserted    int `gorm:"column:calendars_upserted"`
	ServiceTypesUpserted int `gorm:"column:service_types_upserted"`
	Created              int `gorm:"column:created"`
	Updated              int `gorm:"column:updated"`
	Skipped              int `gorm:"column:skipped"`
	CalendarErrors       int `gorm:"column:calendar_errors"`

	Warnings datatypes.JSON `gorm:"column:warnings"`

	StartedAt  time.Time  `gorm:"column:started_at;not null"`
	FinishedAt *time.Time `gorm:"column:finished_at"`
	DurationMs int64      `gorm:"column:duration_ms"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (SyncRun) TableName() string { return "sync_runs" }
