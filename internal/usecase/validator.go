package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/tenant-session-service/internal/core/domain"
	"github.com/arklim/tenant-session-service/internal/core/port"
	appLogger "github.com/arklim/tenant-session-service/internal/infra/logger"
	"github.com/arklim/tenant-session-service/internal/infra/telemetry"
	"github.com/arklim/tenant-session-service/internal/repository"
)

const (
	defaultRenewWindow  = 7 * 24 * time.Hour
	defaultRenewTimeout = 5 * time.Second
)

// SessionContext is the validated view of a session handed to protected
// handlers.
type SessionContext struct {
	Token             string
	TenantID          int64
	Identity          domain.Identity
	DeviceFingerprint string
	DeviceLabel       *string
	ExpiresAt         time.Time
}

// SessionValidator checks bearer credentials on every authenticated request:
// signature first, then the cache mirror, then the durable record, sliding
// the expiration window as a post-accept side effect.
type SessionValidator struct {
	sessions port.SessionRepository
	cache    port.SessionCache
	signer   port.TokenSigner
	events   port.EventPublisher
	activity *ActivityTracker
	logger   *zap.Logger
	metrics  *telemetry.SessionMetrics

	lifetime     time.Duration
	renewWindow  time.Duration
	renewTimeout time.Duration
	now          func() time.Time

	// renewals tracks in-flight detached maintenance goroutines so tests
	// and shutdown can wait for them.
	renewals sync.WaitGroup
}

// NewSessionValidator constructs a SessionValidator with the default 30-day
// lifetime and 7-day renewal window.
func NewSessionValidator(
	sessions port.SessionRepository,
	cache port.SessionCache,
	signer port.TokenSigner,
	events port.EventPublisher,
	activity *ActivityTracker,
	logger *zap.Logger,
) *SessionValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionValidator{
		sessions:     sessions,
		cache:        cache,
		signer:       signer,
		events:       events,
		activity:     activity,
		logger:       logger,
		lifetime:     defaultSessionLifetime,
		renewWindow:  defaultRenewWindow,
		renewTimeout: defaultRenewTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithLifetimes overrides the session lifetime and renewal window.
func (v *SessionValidator) WithLifetimes(lifetime, renewWindow time.Duration) *SessionValidator {
	if lifetime > 0 {
		v.lifetime = lifetime
	}
	if renewWindow > 0 {
		v.renewWindow = renewWindow
	}
	return v
}

// WithClock overrides the internal clock for deterministic tests.
func (v *SessionValidator) WithClock(clock func() time.Time) *SessionValidator {
	if clock != nil {
		v.now = clock
	}
	return v
}

// WithMetrics attaches lifecycle counters.
func (v *SessionValidator) WithMetrics(metrics *telemetry.SessionMetrics) *SessionValidator {
	v.metrics = metrics
	return v
}

// Validate resolves a bearer token to its session context.
//
// The cache check strictly precedes the durable check: a cache miss is an
// authoritative rejection and never falls back to the durable store for the
// liveness decision, which bounds the hot-path latency and makes cache
// eviction an immediately effective logout. A cache hit without a durable
// backing row is equally rejected (fencing) and the dangling entry evicted.
func (v *SessionValidator) Validate(ctx context.Context, token string) (*SessionContext, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		v.countValidation("unauthenticated")
		return nil, ErrUnauthenticated
	}

	if _, err := v.signer.Verify(token); err != nil {
		v.countValidation("unauthenticated")
		return nil, ErrUnauthenticated
	}

	if _, err := v.cache.Get(ctx, token); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			// Degraded cache counts as a miss: fail closed.
			v.logger.Warn("session cache lookup failed, treating as miss",
				zap.String("token", appLogger.MaskString(token)),
				zap.Error(err),
			)
		}
		v.countValidation("expired")
		return nil, ErrSessionExpired
	}

	session, err := v.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Fencing: the cache entry has outlived its durable backing.
			if evictErr := v.cache.Delete(ctx, token); evictErr != nil {
				v.logger.Warn("evict dangling cache entry failed",
					zap.String("token", appLogger.MaskString(token)),
					zap.Error(evictErr),
				)
			}
			v.countValidation("expired")
			return nil, ErrSessionExpired
		}
		v.logger.Error("session lookup failed", zap.Error(err))
		v.countValidation("store_unavailable")
		return nil, ErrStoreUnavailable
	}

	now := v.now()
	if session.Expired(now) {
		v.evictAsync(session.Token)
		v.countValidation("expired")
		return nil, ErrSessionExpired
	}

	if v.activity != nil {
		v.activity.Touch(activityKey(session.TenantID, session.Identity), now)
	}

	expiresAt := now.Add(v.lifetime)
	if session.ExpiresAt != nil {
		expiresAt = *session.ExpiresAt
	}
	if remaining, ok := session.Remaining(now); !ok || remaining < v.renewWindow {
		// Renewal happens after the accept decision so its failure can
		// never turn a valid session into a rejection.
		v.renewAsync(*session, now)
		expiresAt = now.Add(v.lifetime)
	}

	v.countValidation("accepted")

	return &SessionContext{
		Token:             session.Token,
		TenantID:          session.TenantID,
		Identity:          session.Identity,
		DeviceFingerprint: session.DeviceFingerprint,
		DeviceLabel:       session.DeviceLabel,
		ExpiresAt:         expiresAt,
	}, nil
}

// Revoke is explicit logout: the one deletion path that is synchronous in
// both stores rather than deferred to a reaper.
func (v *SessionValidator) Revoke(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrUnauthenticated
	}

	session, err := v.sessions.GetByToken(ctx, token)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		v.logger.Error("session lookup for revoke failed", zap.Error(err))
		return ErrStoreUnavailable
	}

	if err := v.sessions.DeleteByToken(ctx, token); err != nil {
		v.logger.Error("delete session failed", zap.Error(err))
		return ErrStoreUnavailable
	}
	if err := v.cache.Delete(ctx, token); err != nil {
		v.logger.Warn("evict revoked token from cache failed", zap.Error(err))
	}

	if session != nil {
		if v.activity != nil {
			v.activity.Remove(activityKey(session.TenantID, session.Identity))
		}
		v.publishRevoked(ctx, session)
	}

	return nil
}

// WaitMaintenance blocks until detached renewal and eviction goroutines have
// finished. Used by tests and graceful shutdown.
func (v *SessionValidator) WaitMaintenance() {
	v.renewals.Wait()
}

// renewAsync slides the durable expiration and refreshes the cache TTL on a
// detached goroutine so the accepting request never waits on renewal writes.
func (v *SessionValidator) renewAsync(session domain.Session, now time.Time) {
	v.renewals.Add(1)
	go func() {
		defer v.renewals.Done()

		ctx, cancel := context.WithTimeout(context.Background(), v.renewTimeout)
		defer cancel()

		expiresAt := now.Add(v.lifetime)
		if err := v.sessions.ExtendExpiry(ctx, session.Token, expiresAt); err != nil {
			v.logger.Warn("sliding renewal failed",
				zap.Int64("tenant_id", session.TenantID),
				zap.Error(err),
			)
			return
		}

		amount, unit := cacheSpan(v.lifetime)
		if err := v.cache.Set(ctx, session.Token, session.DeviceFingerprint, amount, unit); err != nil {
			v.logger.Warn("refresh cache ttl failed", zap.Error(err))
		}

		if v.events != nil {
			event := domain.SessionRenewedEvent{
				EventID:   uuid.NewString(),
				TenantID:  session.TenantID,
				Identity:  session.Identity,
				RenewedAt: now,
				ExpiresAt: expiresAt,
			}
			if err := v.events.PublishSessionRenewed(ctx, event); err != nil {
				v.logger.Warn("publish session renewed failed", zap.Error(err))
			}
		}
	}()
}

// evictAsync lazily cleans up a session observed to be past its expiration.
func (v *SessionValidator) evictAsync(token string) {
	v.renewals.Add(1)
	go func() {
		defer v.renewals.Done()

		ctx, cancel := context.WithTimeout(context.Background(), v.renewTimeout)
		defer cancel()

		if err := v.sessions.DeleteByToken(ctx, token); err != nil {
			v.logger.Warn("lazy delete expired session failed", zap.Error(err))
		}
		if err := v.cache.Delete(ctx, token); err != nil {
			v.logger.Warn("lazy evict expired token failed", zap.Error(err))
		}
	}()
}

func (v *SessionValidator) publishRevoked(ctx context.Context, session *domain.Session) {
	if v.events == nil {
		return
	}
	event := domain.SessionRevokedEvent{
		EventID:           uuid.NewString(),
		TenantID:          session.TenantID,
		Identity:          session.Identity,
		DeviceFingerprint: session.DeviceFingerprint,
		RevokedAt:         v.now(),
	}
	if err := v.events.PublishSessionRevoked(ctx, event); err != nil {
		v.logger.Warn("publish session revoked failed", zap.Error(err))
	}
}

func (v *SessionValidator) countValidation(outcome string) {
	if v.metrics != nil {
		v.metrics.Validations.WithLabelValues(outcome).Inc()
	}
}

func activityKey(tenantID int64, identity domain.Identity) string {
	return fmt.Sprintf("%d/%s", tenantID, identity.Key())
}
