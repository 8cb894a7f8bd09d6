package repository

import (
	"context"
	"sync"
	"time"

	"recolha/internal/domain"
	"recolha/internal/models"
)

// MemoryBookingStore keeps bookings in process memory. It copies bookings on
// the way in and out, so callers never share state with the store.
type MemoryBookingStore struct {
	mu       sync.RWMutex
	bookings map[string]*models.Booking
	order    []string
}

func NewMemoryBookingStore() *MemoryBookingStore {
	return &MemoryBookingStore{bookings: make(map[string]*models.Booking)}
}

// Save inserts a booking with version zero, or updates one whose version
// matches the stored version. On success booking's version is advanced.
func (s *MemoryBookingStore) Save(ctx context.Context, booking *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(booking)
}

func (s *MemoryBookingStore) saveLocked(booking *models.Booking) error {
	stored, exists := s.bookings[booking.Token()]
	switch {
	case !exists && booking.Version() == 0:
		s.order = append(s.order, booking.Token())
	case !exists:
		return domain.ErrConcurrentModification
	case booking.Version() == 0:
		return domain.ErrDuplicateToken
	case stored.Version() != booking.Version():
		return domain.ErrConcurrentModification
	}

	booking.SetVersion(booking.Version() + 1)
	s.bookings[booking.Token()] = booking.Clone()
	return nil
}

// CreateWithinCapacity counts and inserts under one lock.
func (s *MemoryBookingStore) CreateWithinCapacity(ctx context.Context, booking *models.Booking, capacity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.filterLocked(func(b *models.Booking) bool {
		return sameSlot(b, booking.Date(), booking.ApproxTimeSlot(), booking.Municipality())
	}))
	if count >= capacity {
		return domain.ErrCapacityExceeded
	}
	return s.saveLocked(booking)
}

func (s *MemoryBookingStore) FindByToken(ctx context.Context, token string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[token]
	if !ok {
		return nil, nil
	}
	return b.Clone(), nil
}

func (s *MemoryBookingStore) FindAll(ctx context.Context) ([]*models.Booking, error) {
	return s.filter(func(*models.Booking) bool { return true }), nil
}

func (s *MemoryBookingStore) FindByStatus(ctx context.Context, status models.BookingStatus) ([]*models.Booking, error) {
	return s.filter(func(b *models.Booking) bool { return b.Status() == status }), nil
}

func (s *MemoryBookingStore) FindByMunicipality(ctx context.Context, municipality string) ([]*models.Booking, error) {
	return s.filter(func(b *models.Booking) bool { return b.Municipality() == municipality }), nil
}

func (s *MemoryBookingStore) FindByDateTimeSlotMunicipality(
	ctx context.Context,
	date time.Time,
	slot models.TimeOfDay,
	municipality string,
) ([]*models.Booking, error) {
	return s.filter(func(b *models.Booking) bool {
		return sameSlot(b, date, slot, municipality)
	}), nil
}

func (s *MemoryBookingStore) filter(keep func(*models.Booking) bool) []*models.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterLocked(keep)
}

func (s *MemoryBookingStore) filterLocked(keep func(*models.Booking) bool) []*models.Booking {
	result := make([]*models.Booking, 0)
	for _, token := range s.order {
		b := s.bookings[token]
		if keep(b) {
			result = append(result, b.Clone())
		}
	}
	return result
}

func sameSlot(b *models.Booking, date time.Time, slot models.TimeOfDay, municipality string) bool {
	return b.Date().Equal(models.DateOf(date)) &&
		b.ApproxTimeSlot() == slot &&
		b.Municipality() == municipality
}
