package models

import (
	"sync"
	"time"
)

// StatusRecord captures a status occupied from a point in time.
type StatusRecord struct {
	status    BookingStatus
	timestamp time.Time
}

// NewStatusRecord stamps status with the current time. Records built one after
// another in the same process never go back in time, even if the wall clock does.
func NewStatusRecord(status BookingStatus) StatusRecord {
	return StatusRecord{status: status, timestamp: stamps.next()}
}

// RestoreStatusRecord rebuilds a record loaded from storage.
func RestoreStatusRecord(status BookingStatus, timestamp time.Time) StatusRecord {
	return StatusRecord{status: status, timestamp: timestamp}
}

func (r StatusRecord) Status() BookingStatus { return r.status }

func (r StatusRecord) Timestamp() time.Time { return r.timestamp }

type stampClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

var stamps = &stampClock{now: time.Now}

func (c *stampClock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC()
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}
