package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound           = errors.New("domain: not found")
	ErrInvalidEvent       = errors.New("domain: invalid event")
	ErrStorageUnavailable = errors.New("domain: storage unavailable")
	ErrUnauthorized       = errors.New("domain: unauthorized")
	ErrForbidden          = errors.New("domain: forbidden")
)

// ValidationError reports a schema violation on a candidate event. It is
// rejected at capture time and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid event: " + e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrInvalidEvent }
