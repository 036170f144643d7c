package coc

import (
	"errors"
	"fmt"
)

// Sentinel errors for the transfer workflow. The API layer maps these to
// HTTP statuses; everything else surfaces as a 500.
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrSampleNotFound = errors.New("sample not found")
	ErrSamplePassed   = errors.New("cannot modify a passed sample")
	ErrConflict       = errors.New("sample was modified concurrently")
)

// ValidationError marks missing or malformed caller input. Detected before
// any persistence and never retried.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// Validationf creates a ValidationError.
func Validationf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PersistenceError marks a data-store failure during a transfer write. Its
// message carries enough detail for operational debugging and is safe to
// surface (sample ids and step, never internals like file paths).
type PersistenceError struct {
	msg string
}

func (e *PersistenceError) Error() string { return e.msg }

// Persistencef creates a PersistenceError.
func Persistencef(format string, args ...any) error {
	return &PersistenceError{msg: fmt.Sprintf(format, args...)}
}

// IsPersistence reports whether err is a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
