package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/tenant-session-service/internal/core/domain"
	"github.com/arklim/tenant-session-service/internal/core/port"
	"github.com/arklim/tenant-session-service/internal/infra/telemetry"
)

const defaultReapInterval = 24 * time.Hour

// SweepStats tallies one reaper pass.
type SweepStats struct {
	Deleted       int
	CacheEvicted  int
	CacheFailures int
}

// ExpirationReaper deletes session rows whose expiration has passed and
// evicts the matching cache entries on a fixed schedule. The durable delete
// runs in one transaction; cache eviction is best-effort afterwards, since a
// dangling cache entry is harmless behind the validator's fencing check.
type ExpirationReaper struct {
	sessions port.SessionRepository
	cache    port.SessionCache
	events   port.EventPublisher
	logger   *zap.Logger
	metrics  *telemetry.SessionMetrics
	interval time.Duration
	now      func() time.Time
}

// NewExpirationReaper constructs a reaper with the default daily schedule.
func NewExpirationReaper(
	sessions port.SessionRepository,
	cache port.SessionCache,
	events port.EventPublisher,
	logger *zap.Logger,
) *ExpirationReaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpirationReaper{
		sessions: sessions,
		cache:    cache,
		events:   events,
		logger:   logger,
		interval: defaultReapInterval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithInterval overrides the sweep schedule.
func (r *ExpirationReaper) WithInterval(interval time.Duration) *ExpirationReaper {
	if interval > 0 {
		r.interval = interval
	}
	return r
}

// WithClock overrides the internal clock for deterministic tests.
func (r *ExpirationReaper) WithClock(clock func() time.Time) *ExpirationReaper {
	if clock != nil {
		r.now = clock
	}
	return r
}

// WithMetrics attaches lifecycle counters.
func (r *ExpirationReaper) WithMetrics(metrics *telemetry.SessionMetrics) *ExpirationReaper {
	r.metrics = metrics
	return r
}

// Run executes sweeps on the configured schedule until the context is
// cancelled. A failed sweep is logged and retried on the next tick, never
// immediately: stale rows are self-healing.
func (r *ExpirationReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("expiration reaper started", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("expiration reaper stopped")
			return
		case <-ticker.C:
			stats, err := r.Sweep(ctx)
			if err != nil {
				r.logger.Error("expiration sweep failed", zap.Error(err))
				continue
			}
			if stats.Deleted > 0 {
				r.logger.Info("expiration sweep completed",
					zap.Int("deleted", stats.Deleted),
					zap.Int("cache_evicted", stats.CacheEvicted),
					zap.Int("cache_failures", stats.CacheFailures),
				)
			}
		}
	}
}

// Sweep performs one pass: delete every expired row transactionally, then
// evict the corresponding cache entries, tolerating entries already gone.
func (r *ExpirationReaper) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	tokens, err := r.sessions.DeleteExpired(ctx, r.now())
	if err != nil {
		return stats, err
	}
	stats.Deleted = len(tokens)

	for _, token := range tokens {
		if err := r.cache.Delete(ctx, token); err != nil {
			stats.CacheFailures++
			if r.metrics != nil {
				r.metrics.CacheEvictionFailures.Inc()
			}
			r.logger.Warn("evict reaped token from cache failed", zap.Error(err))
			continue
		}
		stats.CacheEvicted++
	}

	if r.metrics != nil && stats.Deleted > 0 {
		r.metrics.Reaped.Add(float64(stats.Deleted))
	}

	if r.events != nil && stats.Deleted > 0 {
		event := domain.SessionsReapedEvent{
			EventID:       uuid.NewString(),
			Deleted:       stats.Deleted,
			CacheEvicted:  stats.CacheEvicted,
			CacheFailures: stats.CacheFailures,
			SweptAt:       r.now(),
		}
		if err := r.events.PublishSessionsReaped(ctx, event); err != nil {
			r.logger.Warn("publish sessions reaped failed", zap.Error(err))
		}
	}

	return stats, nil
}
