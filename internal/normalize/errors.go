package normalize

import (
	"errors"
	"fmt"
)

// ErrMissingField reports that a required time or date field was empty.
var ErrMissingField = errors.New("missing field")

// ParseError is returned when a record field cannot be normalised. The
// owning record is skipped; the batch carries on.
type ParseError struct {
	Field  string
	Value  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: %s (%q)", e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }
