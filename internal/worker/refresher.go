package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Refreshable is anything that can reload itself from an upstream source.
type Refreshable interface {
	Refresh(ctx context.Context) error
}

// Refresher reloads a target on a fixed interval, retrying failed attempts
// with exponential backoff before waiting for the next tick.
type Refresher struct {
	target      Refreshable
	interval    time.Duration
	retryPolicy RetryPolicy
	logger      *zerolog.Logger
	sleep       func(ctx context.Context, d time.Duration) bool
}

// NewRefresher builds a refresher; zero retry fields take DefaultRetryPolicy values.
func NewRefresher(target Refreshable, interval time.Duration, retry RetryPolicy, logger *zerolog.Logger) *Refresher {
	return &Refresher{
		target:      target,
		interval:    interval,
		retryPolicy: retry.withDefaults(),
		logger:      logger,
		sleep:       sleepCtx,
	}
}

// Start refreshes once immediately and then on every tick until ctx is done.
func (r *Refresher) Start(ctx context.Context) {
	r.logger.Info().Dur("interval", r.interval).Msg("Refresher started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Refresher stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs one refresh with retries and reports whether it succeeded.
func (r *Refresher) RunOnce(ctx context.Context) bool {
	for attempt := 1; ; attempt++ {
		err := r.target.Refresh(ctx)
		if err == nil {
			return true
		}

		if r.retryPolicy.Exhausted(attempt) {
			r.logger.Error().Err(err).Int("attempts", attempt).Msg("Refresh failed, giving up until next tick")
			return false
		}

		delay := r.retryPolicy.NextDelay(attempt)
		r.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("Refresh failed")
		if !r.sleep(ctx, delay) {
			return false
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
