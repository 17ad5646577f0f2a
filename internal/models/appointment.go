package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// Widths of the bounded text columns. Values longer than these are cut
// before they reach the database.
const (
	AcuityIDWidth      = 50
	NameWidth          = 200
	ClientEmailWidth   = 254
	ClientPhoneWidth   = 32
	TimezoneLabelWidth = 64
	ColorTagWidth      = 32
)

// Appointment mirrors one upstream appointment. AcuityAppointmentID is the
// idempotency key; every other column is replaced on each successful sync.
type Appointment struct {
	ID uint `gorm:"primaryKey;column:id"`

	AcuityAppointmentID string `gorm:"column:acuity_appointment_id;size:50;uniqueIndex;not null"`

	CalendarID    uint `gorm:"column:calendar_id;not null;index"`
	ServiceTypeID uint `gorm:"column:appointment_type_id;not null;index"`

	ClientName  string `gorm:"column:client_name;size:200"`
	ClientEmail string `gorm:"column:client_email;size:254"`
	ClientPhone string `gorm:"column:client_phone;size:32"`

	// UTC instants; OriginalTimezone is a display label only.
	StartTime        time.Time `gorm:"column:start_time;not null;index"`
	EndTime          time.Time `gorm:"column:end_time;not null"`
	OriginalTimezone string    `gorm:"column:original_timezone;size:64"`

	Status AppointmentStatus `gorm:"column:status;size:20;not null"`
	Price  decimal.Decimal   `gorm:"column:price;type:decimal(10,2)"`
	Notes  string            `gorm:"column:notes;type:text"`

	FormData datatypes.JSONType[[]FormSubmission] `gorm:"column:form_data"`

	// Multiplier, e.g. 1.04 for a 4% surcharge.
	ProcessingFee float64 `gorm:"column:processing_fee;not null"`
	ColorTag      string  `gorm:"column:color_tag;size:32"`

	LastSynced time.Time `gorm:"column:last_synced"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`

	Calendar    *Calendar    `gorm:"foreignKey:CalendarID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	ServiceType *ServiceType `gorm:"foreignKey:ServiceTypeID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (Appointment) TableName() string { return "appointments" }

// Forms returns the stored form payload.
func (a Appointment) Forms() []FormSubmission {
	return a.FormData.Data()
}
