package core

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField signals that a mandatory field is absent or unusable.
	ErrMissingField = errors.New("missing field")
	// ErrInvalidTolerance signals a negative or malformed tolerance parameter.
	ErrInvalidTolerance = errors.New("invalid tolerance")
	// ErrUnsupportedMode signals an ionization mode other than positive or negative.
	ErrUnsupportedMode = errors.New("unsupported mode")
	// ErrIndexUnavailable signals that no reference index has been built.
	ErrIndexUnavailable = errors.New("index unavailable")
)

// MissingFieldError reports a mandatory field absent from a query.
// Index is the offending query position, or -1 when the whole column is missing.
type MissingFieldError struct {
	Field Field
	Index int
}

func (e *MissingFieldError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s values are required", ErrMissingField, e.Field)
	}
	return fmt.Sprintf("%s: query %d has no usable %s value", ErrMissingField, e.Index, e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// InvalidToleranceError reports a tolerance parameter outside its domain.
type InvalidToleranceError struct {
	Param string
	Value float64
}

func (e *InvalidToleranceError) Error() string {
	return fmt.Sprintf("%s: %s must be a finite non-negative number, got %v", ErrInvalidTolerance, e.Param, e.Value)
}

func (e *InvalidToleranceError) Unwrap() error { return ErrInvalidTolerance }

// UnsupportedModeError reports an ionization mode the adjuster cannot handle.
type UnsupportedModeError struct {
	Mode string
}

func (e *UnsupportedModeError) Error() string {
	return fmt.Sprintf("%s: %q (expected positive or negative)", ErrUnsupportedMode, e.Mode)
}

func (e *UnsupportedModeError) Unwrap() error { return ErrUnsupportedMode }

// IndexUnavailableError reports a search attempted without a reference index.
type IndexUnavailableError struct {
	Reason string
}

func (e *IndexUnavailableError) Error() string {
	return fmt.Sprintf("%s: %s", ErrIndexUnavailable, e.Reason)
}

func (e *IndexUnavailableError) Unwrap() error { return ErrIndexUnavailable }
