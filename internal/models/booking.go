package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Booking is a reserved collection slot and its lifecycle. The token never
// changes once issued and the status history only grows.
type Booking struct {
	token          string
	date           time.Time
	approxTimeSlot TimeOfDay
	municipality   string
	items          []Item
	current        StatusRecord
	history        []StatusRecord
	version        int64
	createdAt      time.Time
}

// NewBooking builds a RECEIVED booking with a fresh token. today is the
// calendar date against which past dates are rejected.
func NewBooking(date time.Time, slot TimeOfDay, items []Item, municipality string, today time.Time) (*Booking, error) {
	if date.IsZero() {
		return nil, ErrDateRequired
	}
	if DateOf(date).Before(DateOf(today)) {
		return nil, ErrPastDate
	}
	if len(items) == 0 {
		return nil, ErrItemsRequired
	}
	for _, item := range items {
		if strings.TrimSpace(item.Name) == "" {
			return nil, ErrItemNameRequired
		}
	}
	if strings.TrimSpace(municipality) == "" {
		return nil, ErrMunicipalityRequired
	}

	return &Booking{
		token:          uuid.NewString(),
		date:           DateOf(date),
		approxTimeSlot: slot,
		municipality:   municipality,
		items:          append([]Item(nil), items...),
		current:        NewStatusRecord(StatusReceived),
		createdAt:      time.Now().UTC(),
	}, nil
}

// AttemptTransition moves the booking to status and reports whether it did.
// It refuses a no-op move, any move out of a terminal status and any return
// to RECEIVED. Every other move is accepted.
func (b *Booking) AttemptTransition(status BookingStatus) bool {
	from := b.current.Status()
	if status == from {
		return false
	}
	if from.IsTerminal() {
		return false
	}
	if status == StatusReceived && from != StatusReceived {
		return false
	}

	b.history = append(b.history, b.current)
	b.current = NewStatusRecord(status)
	return true
}

func (b *Booking) Token() string { return b.token }

// Date is the collection date at midnight UTC.
func (b *Booking) Date() time.Time { return b.date }

func (b *Booking) ApproxTimeSlot() TimeOfDay { return b.approxTimeSlot }

func (b *Booking) Municipality() string { return b.municipality }

// Items returns a copy; the booking's own list is never modified.
func (b *Booking) Items() []Item { return append([]Item(nil), b.items...) }

func (b *Booking) CurrentStatus() StatusRecord { return b.current }

// Status is shorthand for CurrentStatus().Status().
func (b *Booking) Status() BookingStatus { return b.current.Status() }

// StatusHistory returns the previous statuses, oldest first.
func (b *Booking) StatusHistory() []StatusRecord {
	return append([]StatusRecord(nil), b.history...)
}

// Version is the persisted revision; zero until the first save.
func (b *Booking) Version() int64 { return b.version }

// SetVersion is called by stores after a successful write.
func (b *Booking) SetVersion(v int64) { b.version = v }

func (b *Booking) CreatedAt() time.Time { return b.createdAt }

// Clone returns a deep copy so stores can hand out bookings without sharing state.
func (b *Booking) Clone() *Booking {
	c := *b
	c.items = b.Items()
	c.history = b.StatusHistory()
	return &c
}

// BookingSnapshot is the flat form of a Booking used for persistence and JSON.
type BookingSnapshot struct {
	Token          string                 `json:"token"`
	Date           string                 `json:"date"`
	ApproxTimeSlot TimeOfDay              `json:"approxTimeSlot"`
	Municipality   string                 `json:"municipality"`
	Items          []Item                 `json:"items"`
	CurrentStatus  StatusRecordSnapshot   `json:"currentStatus"`
	StatusHistory  []StatusRecordSnapshot `json:"statusHistory"`
	Version        int64                  `json:"version"`
	CreatedAt      time.Time              `json:"createdAt"`
}

type StatusRecordSnapshot struct {
	Status    BookingStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
}

func (r StatusRecord) Snapshot() StatusRecordSnapshot {
	return StatusRecordSnapshot{Status: r.status, Timestamp: r.timestamp}
}

func (b *Booking) Snapshot() BookingSnapshot {
	history := make([]StatusRecordSnapshot, 0, len(b.history))
	for _, rec := range b.history {
		history = append(history, rec.Snapshot())
	}
	return BookingSnapshot{
		Token:          b.token,
		Date:           b.date.Format(DateLayout),
		ApproxTimeSlot: b.approxTimeSlot,
		Municipality:   b.municipality,
		Items:          b.Items(),
		CurrentStatus:  b.current.Snapshot(),
		StatusHistory:  history,
		Version:        b.version,
		CreatedAt:      b.createdAt,
	}
}

// RestoreBooking rebuilds a booking from storage without re-validating it;
// persisted bookings may legitimately have dates in the past.
func RestoreBooking(s BookingSnapshot) (*Booking, error) {
	date, err := ParseDate(s.Date)
	if err != nil {
		return nil, err
	}
	history := make([]StatusRecord, 0, len(s.StatusHistory))
	for _, rec := range s.StatusHistory {
		history = append(history, RestoreStatusRecord(rec.Status, rec.Timestamp))
	}
	return &Booking{
		token:          s.Token,
		date:           date,
		approxTimeSlot: s.ApproxTimeSlot,
		municipality:   s.Municipality,
		items:          append([]Item(nil), s.Items...),
		current:        RestoreStatusRecord(s.CurrentStatus.Status, s.CurrentStatus.Timestamp),
		history:        history,
		version:        s.Version,
		createdAt:      s.CreatedAt,
	}, nil
}
