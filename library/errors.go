package library

import (
	"errors"
	"fmt"
)

// Error kinds. Validation kinds always match ErrValidation as well, so callers can
// either prompt for a specific field or treat every bad input the same way.
var (
	ErrValidation = errors.New("library: validation error")

	ErrInvalidID                 = errors.New("invalid id")
	ErrInvalidName               = errors.New("invalid name")
	ErrInvalidPassword           = errors.New("invalid password")
	ErrInvalidEmail              = errors.New("invalid email")
	ErrInvalidType               = errors.New("invalid type")
	ErrInvalidRentalCount        = errors.New("invalid rental count")
	ErrInvalidLateFee            = errors.New("invalid late fee")
	ErrInvalidRentalStatusChange = errors.New("invalid rental status change")
	ErrInvalidDate               = errors.New("invalid date")
	ErrInvalidTitle              = errors.New("invalid title")
	ErrInvalidBarcode            = errors.New("invalid barcode")
	ErrInvalidISBN               = errors.New("invalid isbn")
	ErrInvalidReceipt            = errors.New("invalid receipt")
	ErrInvalidRentalDays         = errors.New("invalid rental days")
	ErrInvalidAgeRating          = errors.New("invalid age rating")
	ErrInvalidDescription        = errors.New("invalid description")
	ErrNotUnique                 = errors.New("value already taken")

	// ErrEntityNotFound is returned when a lookup finds nothing in the requested
	// lookup mode, or when no copy of an item is available to rent.
	ErrEntityNotFound = errors.New("library: entity not found")

	// ErrRentalNotAllowed is returned when the user may not rent right now.
	ErrRentalNotAllowed = errors.New("library: rental not allowed")

	// ErrDeleteNotAllowed is returned when a hard delete would orphan live state.
	ErrDeleteNotAllowed = errors.New("library: delete not allowed")

	// ErrInfrastructure marks persistence failures.
	ErrInfrastructure = errors.New("library: infrastructure failure")
)

// ValidationError describes one rejected field value.
type ValidationError struct {
	Kind  error
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Field, e.Kind, e.Msg)
}

func (e *ValidationError) Unwrap() []error { return []error{ErrValidation, e.Kind} }

func invalid(kind error, field, format string, args ...any) error {
	return &ValidationError{Kind: kind, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// InfrastructureError wraps a failure of the underlying database.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() []error { return []error{ErrInfrastructure, e.Err} }

func dbErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ie *InfrastructureError
	if errors.As(err, &ie) {
		return err
	}
	return &InfrastructureError{Op: op, Err: err}
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrEntityNotFound, fmt.Sprintf(format, args...))
}

// IsValidation reports whether err is a recoverable input error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
