package repository

import (
	"context"
	"sync/atomic"
	"time"

	"recolha/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverListCache prefers primary and switches to fallback when primary
// errors. While down, primary is retried once per recoveryInterval.
type FailoverListCache struct {
	primary   domain.ListCache
	fallback  domain.ListCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverListCache(primary, fallback domain.ListCache, logger *zerolog.Logger) *FailoverListCache {
	return &FailoverListCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverListCache) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary cache failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverListCache) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverListCache) recovered() {
	if r.isDown.CompareAndSwap(true, false) {
		r.logger.Info().Msg("Primary cache recovered")
	}
}

func (r *FailoverListCache) GetList(ctx context.Context, key string) ([]string, error) {
	if r.usePrimary() {
		values, err := r.primary.GetList(ctx, key)
		if err == nil {
			r.recovered()
			return values, nil
		}
		r.markDown(err)
	}

	return r.fallback.GetList(ctx, key)
}

// SetList always writes the fallback too, so a later failover still has data.
func (r *FailoverListCache) SetList(ctx context.Context, key string, values []string, ttl time.Duration) error {
	if r.usePrimary() {
		if err := r.primary.SetList(ctx, key, values, ttl); err == nil {
			r.recovered()
		} else {
			r.markDown(err)
		}
	}

	return r.fallback.SetList(ctx, key, values, ttl)
}

func (r *FailoverListCache) Delete(ctx context.Context, key string) error {
	if r.usePrimary() {
		if err := r.primary.Delete(ctx, key); err != nil {
			r.markDown(err)
		}
	}

	return r.fallback.Delete(ctx, key)
}
