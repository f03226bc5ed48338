package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/tenant-session-service/internal/core/domain"
	"github.com/arklim/tenant-session-service/internal/core/port"
	appLogger "github.com/arklim/tenant-session-service/internal/infra/logger"
	"github.com/arklim/tenant-session-service/internal/infra/telemetry"
	"github.com/arklim/tenant-session-service/internal/repository"
)

const defaultSessionLifetime = 30 * 24 * time.Hour

// IssuedSession is the caller-visible result of a successful issuance.
type IssuedSession struct {
	Token     string
	ExpiresAt time.Time
}

// TokenIssuer creates device-bound sessions on successful identity proof,
// enforcing the tenant's device-count admission policy.
type TokenIssuer struct {
	sessions port.SessionRepository
	cache    port.SessionCache
	signer   port.TokenSigner
	policies port.TenantPolicyProvider
	events   port.EventPublisher
	logger   *zap.Logger
	metrics  *telemetry.SessionMetrics
	lifetime time.Duration
	now      func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer with the default 30-day lifetime.
func NewTokenIssuer(
	sessions port.SessionRepository,
	cache port.SessionCache,
	signer port.TokenSigner,
	policies port.TenantPolicyProvider,
	events port.EventPublisher,
	logger *zap.Logger,
) *TokenIssuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenIssuer{
		sessions: sessions,
		cache:    cache,
		signer:   signer,
		policies: policies,
		events:   events,
		logger:   logger,
		lifetime: defaultSessionLifetime,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithLifetime overrides the fixed session lifetime.
func (i *TokenIssuer) WithLifetime(lifetime time.Duration) *TokenIssuer {
	if lifetime > 0 {
		i.lifetime = lifetime
	}
	return i
}

// WithClock overrides the internal clock for deterministic tests.
func (i *TokenIssuer) WithClock(clock func() time.Time) *TokenIssuer {
	if clock != nil {
		i.now = clock
	}
	return i
}

// WithMetrics attaches lifecycle counters.
func (i *TokenIssuer) WithMetrics(metrics *telemetry.SessionMetrics) *TokenIssuer {
	i.metrics = metrics
	return i
}

// IssueSession mints a credential for the identity on the supplied device.
//
// A device already bound to a different identity within the tenant is
// rejected with ErrDeviceConflict. A device already bound to the same
// identity is renewed in place: the row keeps its primary key cardinality
// and only the token and expiration change. New devices pass device-count
// admission control before anything is written.
func (i *TokenIssuer) IssueSession(ctx context.Context, tenantID int64, identity domain.Identity, deviceFingerprint string, deviceLabel *string) (*IssuedSession, error) {
	if err := identity.Validate(); err != nil {
		return nil, fmt.Errorf("invalid identity: %w", err)
	}
	deviceFingerprint = strings.TrimSpace(deviceFingerprint)
	if deviceFingerprint == "" {
		return nil, fmt.Errorf("device fingerprint is required")
	}

	existing, err := i.sessions.FindByDevice(ctx, tenantID, deviceFingerprint)
	switch {
	case err == nil:
		if !existing.Identity.Equal(identity) {
			return nil, ErrDeviceConflict
		}
		return i.renewDeviceBinding(ctx, existing, deviceLabel)
	case errors.Is(err, repository.ErrNotFound):
		// New device; fall through to admission control.
	default:
		i.logger.Error("device lookup failed",
			zap.Int64("tenant_id", tenantID),
			zap.String("device_fingerprint", appLogger.MaskString(deviceFingerprint)),
			zap.Error(err),
		)
		return nil, ErrStoreUnavailable
	}

	if err := i.checkDeviceLimit(ctx, tenantID, identity); err != nil {
		return nil, err
	}

	now := i.now()
	expiresAt := now.Add(i.lifetime)
	token, err := i.mint(tenantID, identity, deviceFingerprint, now, expiresAt)
	if err != nil {
		return nil, err
	}

	session := domain.Session{
		Token:             token,
		TenantID:          tenantID,
		Identity:          identity,
		DeviceFingerprint: deviceFingerprint,
		DeviceLabel:       deviceLabel,
		IssuedAt:          now,
		ExpiresAt:         &expiresAt,
	}

	if err := i.sessions.Insert(ctx, session); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// A concurrent login bound this device first; resolve against
			// the row that won the race.
			return i.resolveInsertRace(ctx, tenantID, identity, deviceFingerprint, deviceLabel)
		}
		i.logger.Error("insert session failed",
			zap.Int64("tenant_id", tenantID),
			zap.String("device_fingerprint", appLogger.MaskString(deviceFingerprint)),
			zap.Error(err),
		)
		return nil, ErrStoreUnavailable
	}

	i.mirror(ctx, token, deviceFingerprint)
	i.countIssued("new")
	i.publishIssued(ctx, session, false)

	return &IssuedSession{Token: token, ExpiresAt: expiresAt}, nil
}

// renewDeviceBinding replaces the token of an existing same-identity device
// row. This is an update, not an insert, so repeated logins from one device
// never grow the session table.
func (i *TokenIssuer) renewDeviceBinding(ctx context.Context, existing *domain.Session, deviceLabel *string) (*IssuedSession, error) {
	now := i.now()
	expiresAt := now.Add(i.lifetime)
	token, err := i.mint(existing.TenantID, existing.Identity, existing.DeviceFingerprint, now, expiresAt)
	if err != nil {
		return nil, err
	}

	if err := i.sessions.Rebind(ctx, existing.Token, token, expiresAt, deviceLabel); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// The row vanished between lookup and rebind (reaper or logout);
			// treat the attempt as a fresh issuance.
			return i.IssueSession(ctx, existing.TenantID, existing.Identity, existing.DeviceFingerprint, deviceLabel)
		}
		i.logger.Error("rebind session failed",
			zap.Int64("tenant_id", existing.TenantID),
			zap.Error(err),
		)
		return nil, ErrStoreUnavailable
	}

	if err := i.cache.Delete(ctx, existing.Token); err != nil {
		i.logger.Warn("evict superseded token from cache failed", zap.Error(err))
	}
	i.mirror(ctx, token, existing.DeviceFingerprint)
	i.countIssued("renewal")

	renewed := *existing
	renewed.Token = token
	renewed.ExpiresAt = &expiresAt
	if deviceLabel != nil {
		renewed.DeviceLabel = deviceLabel
	}
	i.publishIssued(ctx, renewed, true)

	return &IssuedSession{Token: token, ExpiresAt: expiresAt}, nil
}

func (i *TokenIssuer) resolveInsertRace(ctx context.Context, tenantID int64, identity domain.Identity, deviceFingerprint string, deviceLabel *string) (*IssuedSession, error) {
	winner, err := i.sessions.FindByDevice(ctx, tenantID, deviceFingerprint)
	if err != nil {
		i.logger.Error("device lookup after insert conflict failed", zap.Error(err))
		return nil, ErrStoreUnavailable
	}
	if !winner.Identity.Equal(identity) {
		return nil, ErrDeviceConflict
	}
	return i.renewDeviceBinding(ctx, winner, deviceLabel)
}

func (i *TokenIssuer) checkDeviceLimit(ctx context.Context, tenantID int64, identity domain.Identity) error {
	policy, err := i.policies.GetTenantPolicy(ctx, tenantID)
	if err != nil {
		i.logger.Error("tenant policy lookup failed",
			zap.Int64("tenant_id", tenantID),
			zap.Error(err),
		)
		return ErrStoreUnavailable
	}

	count, err := i.sessions.CountActive(ctx, tenantID, identity, i.now())
	if err != nil {
		i.logger.Error("count active sessions failed",
			zap.Int64("tenant_id", tenantID),
			zap.Error(err),
		)
		return ErrStoreUnavailable
	}

	if count >= policy.DeviceLimit() {
		return ErrDeviceLimitExceeded
	}

	return nil
}

func (i *TokenIssuer) mint(tenantID int64, identity domain.Identity, deviceFingerprint string, issuedAt, expiresAt time.Time) (string, error) {
	token, err := i.signer.Sign(domain.TokenClaims{
		TokenID:           uuid.NewString(),
		TenantID:          tenantID,
		Identity:          identity,
		DeviceFingerprint: deviceFingerprint,
		IssuedAt:          issuedAt,
		ExpiresAt:         expiresAt,
	})
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

// mirror writes the cache entry for a freshly minted token. Failures are
// logged only: the durable row exists, and a missing mirror entry simply
// forces re-authentication (fail-closed).
func (i *TokenIssuer) mirror(ctx context.Context, token, deviceFingerprint string) {
	amount, unit := cacheSpan(i.lifetime)
	if err := i.cache.Set(ctx, token, deviceFingerprint, amount, unit); err != nil {
		i.logger.Warn("write session cache mirror failed", zap.Error(err))
	}
}

func (i *TokenIssuer) countIssued(kind string) {
	if i.metrics != nil {
		i.metrics.Issued.WithLabelValues(kind).Inc()
	}
}

func (i *TokenIssuer) publishIssued(ctx context.Context, session domain.Session, renewal bool) {
	if i.events == nil {
		return
	}
	event := domain.SessionIssuedEvent{
		EventID:           uuid.NewString(),
		TenantID:          session.TenantID,
		Identity:          session.Identity,
		DeviceFingerprint: session.DeviceFingerprint,
		DeviceLabel:       session.DeviceLabel,
		Renewal:           renewal,
		IssuedAt:          session.IssuedAt,
	}
	if session.ExpiresAt != nil {
		event.ExpiresAt = *session.ExpiresAt
	}
	if err := i.events.PublishSessionIssued(ctx, event); err != nil {
		i.logger.Warn("publish session issued failed", zap.Error(err))
	}
}

// cacheSpan expresses a lifetime in the coarsest calendar unit that divides
// it evenly, so cache TTLs read in the units operators reason in.
func cacheSpan(lifetime time.Duration) (int64, port.DurationUnit) {
	day := 24 * time.Hour
	switch {
	case lifetime%day == 0:
		return int64(lifetime / day), port.UnitDays
	case lifetime%time.Hour == 0:
		return int64(lifetime / time.Hour), port.UnitHours
	case lifetime%time.Minute == 0:
		return int64(lifetime / time.Minute), port.UnitMinutes
	default:
		return int64(lifetime / time.Second), port.UnitSeconds
	}
}
