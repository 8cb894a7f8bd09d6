package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"recolha/internal/domain"
	"recolha/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentBookingRespectsCapacity(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	const numGoroutines = models.SlotCapacity + 10
	bookings := make([]*models.Booking, numGoroutines)
	for i := range bookings {
		bookings[i] = newTestBooking(t, "Aveiro", "14:00")
	}

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(b *models.Booking) {
			defer wg.Done()
			results <- db.CreateWithinCapacity(ctx, b, models.SlotCapacity)
		}(bookings[i])
	}

	wg.Wait()
	close(results)

	successCount, fullCount := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, domain.ErrCapacityExceeded):
			fullCount++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, models.SlotCapacity, successCount)
	assert.Equal(t, numGoroutines-models.SlotCapacity, fullCount)

	slot, err := db.FindByDateTimeSlotMunicipality(ctx, bookings[0].Date(), models.MustTimeOfDay("14:00"), "Aveiro")
	require.NoError(t, err)
	assert.Len(t, slot, models.SlotCapacity)
}

func TestConcurrentTransitionsApplyOnce(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "transitions.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	b := newTestBooking(t, "Porto", "10:00")
	require.NoError(t, db.Save(ctx, b))

	const writers = 8
	copies := make([]*models.Booking, writers)
	for i := range copies {
		copies[i], err = db.FindByToken(ctx, b.Token())
		require.NoError(t, err)
		require.True(t, copies[i].AttemptTransition(models.StatusCancelled))
	}

	var wg sync.WaitGroup
	results := make(chan error, writers)
	for _, c := range copies {
		wg.Add(1)
		go func(c *models.Booking) {
			defer wg.Done()
			results <- db.Save(ctx, c)
		}(c)
	}
	wg.Wait()
	close(results)

	applied := 0
	for err := range results {
		if err == nil {
			applied++
		} else {
			assert.ErrorIs(t, err, domain.ErrConcurrentModification)
		}
	}
	assert.Equal(t, 1, applied)

	got, err := db.FindByToken(ctx, b.Token())
	require.NoError(t, err)
	assert.Len(t, got.StatusHistory(), 1)
	assert.Equal(t, models.StatusCancelled, got.Status())
}
