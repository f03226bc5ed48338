package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/tenant-session-service/internal/core/port"
)

const (
	defaultCleanInterval = time.Hour
	defaultIdleThreshold = 24 * time.Hour
	defaultCleanBatch    = 500
)

// IdleSessionCleaner complements the reaper with two lighter sweeps: it
// drops in-memory activity records for identities idle past a threshold, and
// it pages through expired session rows in small batches so a large backlog
// never runs as one giant delete. Both sweeps are idempotent and safe to run
// alongside the reaper.
type IdleSessionCleaner struct {
	sessions      port.SessionRepository
	cache         port.SessionCache
	activity      *ActivityTracker
	logger        *zap.Logger
	interval      time.Duration
	idleThreshold time.Duration
	batchSize     int
	now           func() time.Time
}

// NewIdleSessionCleaner constructs a cleaner with hourly sweeps, a 24h idle
// threshold, and 500-row delete batches.
func NewIdleSessionCleaner(
	sessions port.SessionRepository,
	cache port.SessionCache,
	activity *ActivityTracker,
	logger *zap.Logger,
) *IdleSessionCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdleSessionCleaner{
		sessions:      sessions,
		cache:         cache,
		activity:      activity,
		logger:        logger,
		interval:      defaultCleanInterval,
		idleThreshold: defaultIdleThreshold,
		batchSize:     defaultCleanBatch,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithInterval overrides the sweep schedule.
func (c *IdleSessionCleaner) WithInterval(interval time.Duration) *IdleSessionCleaner {
	if interval > 0 {
		c.interval = interval
	}
	return c
}

// WithIdleThreshold overrides how long an identity may stay quiet before its
// activity record is dropped.
func (c *IdleSessionCleaner) WithIdleThreshold(threshold time.Duration) *IdleSessionCleaner {
	if threshold > 0 {
		c.idleThreshold = threshold
	}
	return c
}

// WithBatchSize overrides the expired-row page size.
func (c *IdleSessionCleaner) WithBatchSize(size int) *IdleSessionCleaner {
	if size > 0 {
		c.batchSize = size
	}
	return c
}

// WithClock overrides the internal clock for deterministic tests.
func (c *IdleSessionCleaner) WithClock(clock func() time.Time) *IdleSessionCleaner {
	if clock != nil {
		c.now = clock
	}
	return c
}

// Run executes both sweeps on the configured schedule until the context is
// cancelled.
func (c *IdleSessionCleaner) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("idle session cleaner started",
		zap.Duration("interval", c.interval),
		zap.Duration("idle_threshold", c.idleThreshold),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("idle session cleaner stopped")
			return
		case <-ticker.C:
			c.SweepIdle()
			if err := c.SweepExpiredBatches(ctx); err != nil {
				c.logger.Error("expired batch sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepIdle drops activity records untouched since the idle threshold. It
// only trims bookkeeping: session rows and cache entries are untouched, so a
// returning identity simply starts a fresh activity record.
func (c *IdleSessionCleaner) SweepIdle() {
	if c.activity == nil {
		return
	}
	cutoff := c.now().Add(-c.idleThreshold)
	removed := c.activity.Sweep(cutoff)
	if len(removed) > 0 {
		c.logger.Info("idle activity records dropped", zap.Int("count", len(removed)))
	}
}

// SweepExpiredBatches deletes expired session rows one page at a time until
// the backlog is drained. Rows the reaper already removed simply vanish from
// the next page, so the two sweepers never conflict.
func (c *IdleSessionCleaner) SweepExpiredBatches(ctx context.Context) error {
	now := c.now()
	for {
		tokens, err := c.sessions.ListExpiredTokens(ctx, now, c.batchSize)
		if err != nil {
			return err
		}
		if len(tokens) == 0 {
			return nil
		}

		deleted, err := c.sessions.DeleteByTokens(ctx, tokens)
		if err != nil {
			return err
		}
		for _, token := range tokens {
			if err := c.cache.Delete(ctx, token); err != nil {
				c.logger.Warn("evict expired token from cache failed", zap.Error(err))
			}
		}
		c.logger.Debug("expired batch removed",
			zap.Int("listed", len(tokens)),
			zap.Int64("deleted", deleted),
		)

		if len(tokens) < c.batchSize {
			return nil
		}
	}
}
