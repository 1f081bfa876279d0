package model

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned when a send is attempted outside the Ready phase.
var ErrNotReady = errors.New("session is not ready")

// ErrSendInFlight is returned when a second submission is made while the
// previous one has not completed.
var ErrSendInFlight = errors.New("a message is already being sent")

// ValidationError reports a blank or malformed command field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// SendFailedError reports that the engine rejected or could not complete
// a send. Detail is shown to the operator verbatim.
type SendFailedError struct {
	Detail string
}

func (e *SendFailedError) Error() string {
	return "send failed: " + e.Detail
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
