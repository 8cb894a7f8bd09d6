package models

import (
	"fmt"
	"strings"
)

// BookingStatus is the lifecycle state of a collection booking.
type BookingStatus string

const (
	StatusReceived   BookingStatus = "RECEIVED"
	StatusAssigned   BookingStatus = "ASSIGNED"
	StatusInProgress BookingStatus = "IN_PROGRESS"
	StatusFinished   BookingStatus = "FINISHED"
	StatusCancelled  BookingStatus = "CANCELLED"
	StatusRemoved    BookingStatus = "REMOVED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []BookingStatus{
	StatusReceived,
	StatusAssigned,
	StatusInProgress,
	StatusFinished,
	StatusCancelled,
	StatusRemoved,
}

// IsValid reports whether s is one of the known statuses.
func (s BookingStatus) IsValid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition may leave s.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusCancelled, StatusRemoved:
		return true
	default:
		return false
	}
}

func (s BookingStatus) String() string {
	return string(s)
}

// ParseBookingStatus accepts any casing and surrounding whitespace.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	status := BookingStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %q", raw)
	}
	return status, nil
}
