package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"recolha/internal/domain"
	"recolha/internal/events"
	"recolha/internal/metrics"
	"recolha/internal/models"

	"github.com/rs/zerolog"
)

// Options tunes admission. Zero values mean UTC, time.Now and no denylist.
type Options struct {
	Denylist []string
	Location *time.Location
	Now      func() time.Time
}

// BookingService admits bookings and drives their lifecycle.
type BookingService struct {
	store     domain.BookingStore
	directory domain.MunicipalityDirectory
	eventBus  domain.EventPublisher
	denylist  map[string]struct{}
	location  *time.Location
	now       func() time.Time
	slots     *keyedLock
	tokens    *keyedLock
	logger    *zerolog.Logger
}

func NewBookingService(
	store domain.BookingStore,
	directory domain.MunicipalityDirectory,
	eventBus domain.EventPublisher,
	opts Options,
	logger *zerolog.Logger,
) *BookingService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	denylist := make(map[string]struct{}, len(opts.Denylist))
	for _, name := range opts.Denylist {
		if name = normalizeName(name); name != "" {
			denylist[name] = struct{}{}
		}
	}

	return &BookingService{
		store:     store,
		directory: directory,
		eventBus:  eventBus,
		denylist:  denylist,
		location:  opts.Location,
		now:       opts.Now,
		slots:     newKeyedLock(),
		tokens:    newKeyedLock(),
		logger:    logger,
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// today is the current calendar date in the service location.
func (s *BookingService) today() time.Time {
	return models.DateOf(s.now().In(s.location))
}

// Book validates a request, enforces slot capacity and persists a new
// RECEIVED booking. It returns the booking token.
func (s *BookingService) Book(
	ctx context.Context,
	date time.Time,
	slot *models.TimeOfDay,
	items []models.Item,
	municipality string,
) (string, error) {
	municipality = strings.TrimSpace(municipality)

	if err := s.validate(ctx, date, slot, items, municipality); err != nil {
		s.reject("validation", err, municipality)
		return "", err
	}

	day := models.DateOf(date)
	booking, err := s.admit(ctx, day, *slot, items, municipality)
	if err != nil {
		return "", err
	}

	metrics.IncAdmitted()
	s.logger.Info().
		Str("token", booking.Token()).
		Str("municipality", municipality).
		Str("date", day.Format(models.DateLayout)).
		Str("slot", slot.String()).
		Msg("Booking admitted")
	s.publish(events.EventBookingCreated, booking, "")

	return booking.Token(), nil
}

// admit counts, builds and stores the booking under the slot lock. The lock
// covers only the store round trip.
func (s *BookingService) admit(
	ctx context.Context,
	day time.Time,
	slot models.TimeOfDay,
	items []models.Item,
	municipality string,
) (*models.Booking, error) {
	unlock := s.slots.Lock(slotKey(day, slot, municipality))
	defer unlock()

	existing, err := s.store.FindByDateTimeSlotMunicipality(ctx, day, slot, municipality)
	if err != nil {
		metrics.IncRejected("unavailable")
		return nil, s.unavailable("count slot bookings", err)
	}
	if len(existing) >= models.SlotCapacity {
		s.reject("capacity", domain.ErrCapacityExceeded, municipality)
		return nil, domain.ErrCapacityExceeded
	}

	booking, err := models.NewBooking(day, slot, items, municipality, s.today())
	if err != nil {
		s.reject("validation", err, municipality)
		return nil, err
	}

	if reserver, ok := s.store.(domain.SlotReserver); ok {
		err = reserver.CreateWithinCapacity(ctx, booking, models.SlotCapacity)
	} else {
		err = s.store.Save(ctx, booking)
	}
	switch {
	case errors.Is(err, domain.ErrCapacityExceeded):
		s.reject("capacity", err, municipality)
		return nil, err
	case err != nil:
		metrics.IncRejected("unavailable")
		return nil, s.unavailable("save booking", err)
	}
	return booking, nil
}

// validate applies the admission rules in order and returns the first failure.
func (s *BookingService) validate(
	ctx context.Context,
	date time.Time,
	slot *models.TimeOfDay,
	items []models.Item,
	municipality string,
) error {
	if date.IsZero() {
		return models.ErrDateRequired
	}
	day := models.DateOf(date)
	if day.Before(s.today()) {
		return models.ErrPastDate
	}
	if slot == nil {
		return models.ErrTimeSlotRequired
	}
	if municipality == "" {
		return models.ErrMunicipalityRequired
	}
	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return models.ErrWeekendDate
	}
	if slot.Hour < models.FirstCollectionHour || slot.Hour >= models.LastCollectionHour {
		return models.ErrOutsideHours
	}
	if len(items) > models.MaxItemsPerBooking {
		return models.ErrTooManyItems
	}
	if _, denied := s.denylist[normalizeName(municipality)]; denied {
		return models.ErrMunicipalityDenied
	}
	if !s.directory.IsValid(ctx, municipality) {
		return models.ErrUnknownMunicipality
	}
	return nil
}

// Cancel moves a booking to CANCELLED. It reports false when the token is
// unknown or the booking can no longer be cancelled.
func (s *BookingService) Cancel(ctx context.Context, token string) (bool, error) {
	return s.transition(ctx, token, models.StatusCancelled)
}

// Remove moves a booking to REMOVED; the staff counterpart of Cancel.
func (s *BookingService) Remove(ctx context.Context, token string) (bool, error) {
	return s.transition(ctx, token, models.StatusRemoved)
}

// ChangeState applies any transition the booking accepts.
func (s *BookingService) ChangeState(ctx context.Context, token string, status models.BookingStatus) (bool, error) {
	if !status.IsValid() {
		return false, nil
	}
	return s.transition(ctx, token, status)
}

// Check returns the booking for token, or nil when there is none.
func (s *BookingService) Check(ctx context.Context, token string) (*models.Booking, error) {
	booking, err := s.store.FindByToken(ctx, token)
	if err != nil {
		return nil, s.unavailable("find booking", err)
	}
	return booking, nil
}

func (s *BookingService) GetAllBookings(ctx context.Context) ([]*models.Booking, error) {
	bookings, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, s.unavailable("list bookings", err)
	}
	return bookings, nil
}

func (s *BookingService) GetBookingsByStatus(ctx context.Context, status models.BookingStatus) ([]*models.Booking, error) {
	bookings, err := s.store.FindByStatus(ctx, status)
	if err != nil {
		return nil, s.unavailable("list bookings by status", err)
	}
	return bookings, nil
}

func (s *BookingService) GetBookingsByMunicipality(ctx context.Context, municipality string) ([]*models.Booking, error) {
	bookings, err := s.store.FindByMunicipality(ctx, municipality)
	if err != nil {
		return nil, s.unavailable("list bookings by municipality", err)
	}
	return bookings, nil
}

// transition applies a status change and publishes it once the token lock
// is released.
func (s *BookingService) transition(ctx context.Context, token string, status models.BookingStatus) (bool, error) {
	booking, previous, err := s.applyTransition(ctx, token, status)
	if booking == nil || err != nil {
		return false, err
	}

	metrics.IncTransition(string(status), true)
	s.logger.Info().Str("token", token).Str("from", string(previous)).Str("to", string(status)).Msg("Booking status changed")
	s.publish(events.EventBookingStatusChanged, booking, previous)
	return true, nil
}

// applyTransition is a read-modify-write on one booking. Writers in this
// process are serialised per token; writers elsewhere lose on the version
// check. A nil booking means nothing was applied.
func (s *BookingService) applyTransition(
	ctx context.Context,
	token string,
	status models.BookingStatus,
) (*models.Booking, models.BookingStatus, error) {
	unlock := s.tokens.Lock(token)
	defer unlock()

	booking, err := s.store.FindByToken(ctx, token)
	if err != nil {
		return nil, "", s.unavailable("find booking", err)
	}
	if booking == nil {
		return nil, "", nil
	}

	previous := booking.Status()
	if !booking.AttemptTransition(status) {
		metrics.IncTransition(string(status), false)
		s.logger.Debug().Str("token", token).Str("from", string(previous)).Str("to", string(status)).Msg("Transition refused")
		return nil, "", nil
	}

	if err := s.store.Save(ctx, booking); err != nil {
		if errors.Is(err, domain.ErrConcurrentModification) {
			metrics.IncTransition(string(status), false)
			s.logger.Warn().Str("token", token).Str("to", string(status)).Msg("Transition lost to a concurrent update")
			return nil, "", nil
		}
		return nil, "", s.unavailable("save transition", err)
	}
	return booking, previous, nil
}

func (s *BookingService) reject(reason string, err error, municipality string) {
	metrics.IncRejected(reason)
	s.logger.Warn().Err(err).Str("reason", reason).Str("municipality", municipality).Msg("Booking rejected")
}

func (s *BookingService) unavailable(op string, err error) error {
	s.logger.Error().Err(err).Str("op", op).Msg("Booking store failure")
	return fmt.Errorf("%w: %s: %w", domain.ErrServiceUnavailable, op, err)
}

func (s *BookingService) publish(eventType string, booking *models.Booking, previous models.BookingStatus) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, events.NewBookingPayload(booking, previous)); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("token", booking.Token()).Msg("publish event error")
	}
}

func slotKey(day time.Time, slot models.TimeOfDay, municipality string) string {
	return day.Format(models.DateLayout) + "|" + slot.String() + "|" + municipality
}
