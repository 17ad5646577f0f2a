package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FlexString decodes a JSON string, number, bool or null into a string.
// Acuity is inconsistent about quoting ids, prices and form values.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	case '{', '[':
		return fmt.Errorf("flexstring: unexpected JSON %s", string(b))
	default:
		// numbers and booleans keep their literal text
		*f = FlexString(b)
		return nil
	}
}

func (f FlexString) String() string { return string(f) }

// FormValue is one answered intake question.
type FormValue struct {
	FieldID FlexString `json:"fieldID,omitempty"`
	Name    string     `json:"name"`
	Value   FlexString `json:"value"`
}

// FormSubmission is one custom form attached to an appointment. Values keep
// upstream order.
type FormSubmission struct {
	ID     FlexString  `json:"id,omitempty"`
	Name   string      `json:"name,omitempty"`
	Values []FormValue `json:"values"`
}

type Label struct {
	ID    FlexString `json:"id,omitempty"`
	Name  string     `json:"name,omitempty"`
	Color string     `json:"color"`
}

type AcuityCalendar struct {
	ID          FlexString `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Description string     `json:"description"`
	Timezone    string     `json:"timezone"`
}

type AcuityAppointmentType struct {
	ID          FlexString `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Duration    int        `json:"duration"`
	Price       FlexString `json:"price"`
	Active      *bool      `json:"active"`
}

// AcuityAppointment is one raw record of the /appointments endpoint.
type AcuityAppointment struct {
	ID FlexString `json:"id"`

	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Phone     FlexString `json:"phone"`

	Datetime string `json:"datetime"`
	EndTime  string `json:"endTime"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Timezone string `json:"timezone"`

	Status   string     `json:"status"`
	Canceled bool       `json:"canceled"`
	Price    FlexString `json:"price"`
	Notes    string     `json:"notes"`

	AppointmentTypeID FlexString `json:"appointmentTypeID"`
	CalendarID        FlexString `json:"calendarID"`

	Forms  []FormSubmission `json:"forms"`
	Labels []Label          `json:"labels"`

	// DecodeErr is set when the record JSON could not be decoded; only ID
	// is then meaningful.
	DecodeErr error `json:"-"`
}

// Field returns the raw value of a time-bearing field by its upstream name.
func (a *AcuityAppointment) Field(name string) string {
	switch name {
	case "datetime":
		return a.Datetime
	case "endTime":
		return a.EndTime
	case "date":
		return a.Date
	case "time":
		return a.Time
	case "timezone":
		return a.Timezone
	default:
		return ""
	}
}
