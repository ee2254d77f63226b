package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input that failed ingestion checks.
	ErrValidation = errors.New("validation failed")

	// ErrConfiguration marks invalid analysis thresholds.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrDetectorFailed marks a detector that could not complete.
	ErrDetectorFailed = errors.New("detector failed")
)

// ValidationError describes a missing or malformed transaction field.
// Row is 1-based over data rows; zero means the error is not row specific.
type ValidationError struct {
	Row    int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Reason)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConfigurationError names the offending option.
type ConfigurationError struct {
	Option string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Option, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

func configError(option, reason string) error {
	return &ConfigurationError{Option: option, Reason: reason}
}

// DetectorFailure records why a detector contributed nothing.
type DetectorFailure struct {
	Detector string
	Err      error
}

func (e *DetectorFailure) Error() string {
	return fmt.Sprintf("detector %s: %v", e.Detector, e.Err)
}

// Is lets errors.Is match both ErrDetectorFailed and the wrapped cause.
func (e *DetectorFailure) Is(target error) bool {
	return target == ErrDetectorFailed
}

func (e *DetectorFailure) Unwrap() error { return e.Err }
