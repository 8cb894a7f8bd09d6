package municipality

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"recolha/internal/domain"
	"recolha/internal/metrics"

	"github.com/rs/zerolog"
)

const (
	cacheKey = "municipalities"

	// failureBackoff is how long lookups answer from memory after a failed
	// fetch before the admission path tries the source again.
	failureBackoff = 5 * time.Second
)

var ErrEmptyDirectory = errors.New("municipality source returned no names")

// Directory is the municipality directory consulted during admission. It
// keeps the last good list in memory, shares it through a ListCache and
// falls back to an empty list, so lookups fail closed.
type Directory struct {
	source Source
	cache  domain.ListCache
	ttl    time.Duration
	logger *zerolog.Logger

	mu    sync.RWMutex
	names []string
	index map[string]struct{}

	refreshMu sync.Mutex
	failedAt  time.Time
	backoff   time.Duration
}

func NewDirectory(source Source, cache domain.ListCache, ttl time.Duration, logger *zerolog.Logger) *Directory {
	return &Directory{
		source:  source,
		cache:   cache,
		ttl:     ttl,
		logger:  logger,
		backoff: failureBackoff,
	}
}

// Refresh reloads the list from the source. On failure the previous list is kept.
func (d *Directory) Refresh(ctx context.Context) error {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()
	return d.refreshLocked(ctx)
}

// refreshLocked fetches from the source. The caller holds refreshMu.
func (d *Directory) refreshLocked(ctx context.Context) error {
	names, err := d.source.Fetch(ctx)
	if err == nil {
		names = normalize(names)
		if len(names) == 0 {
			err = ErrEmptyDirectory
		}
	}
	if err != nil {
		d.failedAt = time.Now()
		metrics.IncMunicipalityRefresh(false)
		d.logger.Warn().Err(err).Msg("Failed to refresh municipalities")
		return err
	}

	d.failedAt = time.Time{}
	d.store(names)
	if d.cache != nil {
		if err := d.cache.SetList(ctx, cacheKey, names, d.ttl); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to cache municipalities")
		}
	}

	metrics.IncMunicipalityRefresh(true)
	d.logger.Info().Int("count", len(names)).Msg("Municipalities refreshed")
	return nil
}

// IsValid reports whether name is a known municipality. Unknown or
// unreachable directories answer false.
func (d *Directory) IsValid(ctx context.Context, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	if !d.ensureLoaded(ctx) {
		return false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.index[name]
	return ok
}

// ListAll returns the known municipalities, or an empty list when none are available.
func (d *Directory) ListAll(ctx context.Context) []string {
	if !d.ensureLoaded(ctx) {
		return []string{}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string{}, d.names...)
}

func (d *Directory) ensureLoaded(ctx context.Context) bool {
	if d.loaded() {
		return true
	}

	if d.cache != nil {
		names, err := d.cache.GetList(ctx, cacheKey)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Failed to read cached municipalities")
		} else if names = normalize(names); len(names) > 0 {
			d.store(names)
			return true
		}
	}

	return d.loadOnce(ctx)
}

// loadOnce fetches on behalf of every caller waiting for a first list.
// Callers queued behind a fetch reuse its outcome, and a recent failure
// answers false without touching the source.
func (d *Directory) loadOnce(ctx context.Context) bool {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()

	if d.loaded() {
		return true
	}
	if !d.failedAt.IsZero() && time.Since(d.failedAt) < d.backoff {
		return false
	}
	return d.refreshLocked(ctx) == nil
}

func (d *Directory) loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.names) > 0
}

func (d *Directory) store(names []string) {
	index := make(map[string]struct{}, len(names))
	for _, n := range names {
		index[n] = struct{}{}
	}

	d.mu.Lock()
	d.names = names
	d.index = index
	d.mu.Unlock()
}

// normalize trims names, drops blanks and duplicates and keeps source order.
func normalize(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
