package domain

import (
	"context"
	"time"

	"recolha/internal/models"
)

// BookingStore persists bookings. Find methods return copies; FindByToken
// returns (nil, nil) when the token is unknown.
type BookingStore interface {
	Save(ctx context.Context, booking *models.Booking) error
	FindByToken(ctx context.Context, token string) (*models.Booking, error)
	FindAll(ctx context.Context) ([]*models.Booking, error)
	FindByStatus(ctx context.Context, status models.BookingStatus) ([]*models.Booking, error)
	FindByMunicipality(ctx context.Context, municipality string) ([]*models.Booking, error)
	FindByDateTimeSlotMunicipality(
		ctx context.Context,
		date time.Time,
		slot models.TimeOfDay,
		municipality string,
	) ([]*models.Booking, error)
}

// SlotReserver is implemented by stores that can count and insert in one
// atomic step. CreateWithinCapacity returns ErrCapacityExceeded when the
// slot already holds capacity bookings.
type SlotReserver interface {
	CreateWithinCapacity(ctx context.Context, booking *models.Booking, capacity int) error
}

// MunicipalityDirectory answers whether a municipality is served. Both
// methods fail closed: an unreachable source yields false / empty.
type MunicipalityDirectory interface {
	IsValid(ctx context.Context, name string) bool
	ListAll(ctx context.Context) []string
}

// ListCache stores string lists with a TTL.
type ListCache interface {
	GetList(ctx context.Context, key string) ([]string, error)
	SetList(ctx context.Context, key string, values []string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type BookingService interface {
	Book(ctx context.Context, date time.Time, slot *models.TimeOfDay, items []models.Item, municipality string) (string, error)
	Cancel(ctx context.Context, token string) (bool, error)
	Remove(ctx context.Context, token string) (bool, error)
	Check(ctx context.Context, token string) (*models.Booking, error)
	ChangeState(ctx context.Context, token string, status models.BookingStatus) (bool, error)
	GetAllBookings(ctx context.Context) ([]*models.Booking, error)
	GetBookingsByStatus(ctx context.Context, status models.BookingStatus) ([]*models.Booking, error)
	GetBookingsByMunicipality(ctx context.Context, municipality string) ([]*models.Booking, error)
}
