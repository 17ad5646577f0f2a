package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Calendar is the local mirror of an Acuity calendar. Rows are refreshed on
// every sync and never deleted by it.
type Calendar struct {
	ID uint `gorm:"primaryKey;column:id"`

	AcuityCalendarID string `gorm:"column:acuity_calendar_id;size:50;uniqueIndex;not null"`
	Name             string `gorm:"column:name;size:200"`
	Description      string `gorm:"column:description;type:text"`
	Timezone         string `gorm:"column:timezone;size:64"`
	IsActive         bool   `gorm:"column:is_active;not null"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Calendar) TableName() string { return "calendars" }

// ServiceType is an Acuity appointment type.
type ServiceType struct {
	ID uint `gorm:"primaryKey;column:id"`

	AcuityTypeID    string          `gorm:"column:acuity_type_id;size:50;uniqueIndex;not null"`
	Name            string          `gorm:"column:name;size:200"`
	DurationMinutes int             `gorm:"column:duration"`
	Price           decimal.Decimal `gorm:"column:price;type:decimal(10,2)"`
	Description     string          `gorm:"column:description;type:text"`
	Category        string          `gorm:"column:category;size:200"`
	IsActive        bool            `gorm:"column:is_active;not null"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (ServiceType) TableName() string { return "appointment_types" }
