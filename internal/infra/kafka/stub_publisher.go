package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/tenant-session-service/internal/core/domain"
	"github.com/arklim/tenant-session-service/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType string, tenantID int64, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.Int64("tenant_id", tenantID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishSessionIssued logs session.issued events.
func (p *StubPublisher) PublishSessionIssued(_ context.Context, event domain.SessionIssuedEvent) error {
	payload := map[string]any{
		"identity":           event.Identity.Key(),
		"device_fingerprint": event.DeviceFingerprint,
		"renewal":            event.Renewal,
		"issued_at":          event.IssuedAt,
		"expires_at":         event.ExpiresAt,
	}
	p.logEvent("session.issued", event.TenantID, event.IssuedAt, payload)
	return nil
}

// PublishSessionRenewed logs session.renewed events.
func (p *StubPublisher) PublishSessionRenewed(_ context.Context, event domain.SessionRenewedEvent) error {
	payload := map[string]any{
		"identity":   event.Identity.Key(),
		"renewed_at": event.RenewedAt,
		"expires_at": event.ExpiresAt,
	}
	p.logEvent("session.renewed", event.TenantID, event.RenewedAt, payload)
	return nil
}

// PublishSessionRevoked logs session.revoked events.
func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	payload := map[string]any{
		"identity":           event.Identity.Key(),
		"device_fingerprint": event.DeviceFingerprint,
		"revoked_at":         event.RevokedAt,
	}
	p.logEvent("session.revoked", event.TenantID, event.RevokedAt, payload)
	return nil
}

// PublishSessionsReaped logs sessions.reaped events.
func (p *StubPublisher) PublishSessionsReaped(_ context.Context, event domain.SessionsReapedEvent) error {
	payload := map[string]any{
		"deleted":        event.Deleted,
		"cache_evicted":  event.CacheEvicted,
		"cache_failures": event.CacheFailures,
		"swept_at":       event.SweptAt,
	}
	p.logEvent("sessions.reaped", 0, event.SweptAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
