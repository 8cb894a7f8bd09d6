package domain

import "errors"

var (
	// ErrCapacityExceeded means the (date, time, municipality) slot is full.
	ErrCapacityExceeded = errors.New("maximum capacity reached for this slot")
	// ErrConcurrentModification is returned by stores when the booking
	// version changed between read and write.
	ErrConcurrentModification = errors.New("booking was modified concurrently")
	// ErrServiceUnavailable wraps storage failures.
	ErrServiceUnavailable = errors.New("booking storage unavailable")
	// ErrDuplicateToken is returned when inserting a token that already exists.
	ErrDuplicateToken = errors.New("booking token already exists")
)
