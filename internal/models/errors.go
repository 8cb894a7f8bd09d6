package models

import "errors"

// ErrValidation matches every ValidationError through errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError is a client-correctable rejection of a booking request.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

var (
	ErrDateRequired         = invalid("date is required")
	ErrPastDate             = invalid("date must not be in the past")
	ErrTimeSlotRequired     = invalid("time slot is required")
	ErrMunicipalityRequired = invalid("municipality is required")
	ErrWeekendDate          = invalid("bookings cannot be made on weekends")
	ErrOutsideHours         = invalid("invalid time slot, must be between 08:00 and 18:00")
	ErrTooManyItems         = invalid("too many items")
	ErrItemsRequired        = invalid("at least one item is required")
	ErrItemNameRequired     = invalid("item name is required")
	ErrMunicipalityDenied   = invalid("municipality is not served")
	ErrUnknownMunicipality  = invalid("invalid municipality")
)
