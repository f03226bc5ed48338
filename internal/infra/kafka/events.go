package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/tenant-session-service/internal/core/domain"
	"github.com/arklim/tenant-session-service/internal/core/port"
	"github.com/arklim/tenant-session-service/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	TenantID  int64            `json:"tenant_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

type identityPayload struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

func identityJSON(identity domain.Identity) identityPayload {
	return identityPayload{Kind: string(identity.Kind), Value: identity.Value}
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType string, tenantID int64, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		TenantID:  tenantID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishSessionIssued publishes sessions.session.issued events.
func (p *EventPublisher) PublishSessionIssued(ctx context.Context, event domain.SessionIssuedEvent) error {
	payload := struct {
		TenantID          int64           `json:"tenant_id"`
		Identity          identityPayload `json:"identity"`
		DeviceFingerprint string          `json:"device_fingerprint"`
		DeviceLabel       *string         `json:"device_label,omitempty"`
		Renewal           bool            `json:"renewal"`
		IssuedAt          time.Time       `json:"issued_at"`
		ExpiresAt         time.Time       `json:"expires_at"`
	}{
		TenantID:          event.TenantID,
		Identity:          identityJSON(event.Identity),
		DeviceFingerprint: event.DeviceFingerprint,
		DeviceLabel:       event.DeviceLabel,
		Renewal:           event.Renewal,
		IssuedAt:          event.IssuedAt.UTC(),
		ExpiresAt:         event.ExpiresAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "session.issued", event.TenantID, event.IssuedAt, payload)
}

// PublishSessionRenewed publishes sessions.session.renewed events.
func (p *EventPublisher) PublishSessionRenewed(ctx context.Context, event domain.SessionRenewedEvent) error {
	payload := struct {
		TenantID  int64           `json:"tenant_id"`
		Identity  identityPayload `json:"identity"`
		RenewedAt time.Time       `json:"renewed_at"`
		ExpiresAt time.Time       `json:"expires_at"`
	}{
		TenantID:  event.TenantID,
		Identity:  identityJSON(event.Identity),
		RenewedAt: event.RenewedAt.UTC(),
		ExpiresAt: event.ExpiresAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "session.renewed", event.TenantID, event.RenewedAt, payload)
}

// PublishSessionRevoked publishes sessions.session.revoked events.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	payload := struct {
		TenantID          int64           `json:"tenant_id"`
		Identity          identityPayload `json:"identity"`
		DeviceFingerprint string          `json:"device_fingerprint"`
		RevokedAt         time.Time       `json:"revoked_at"`
	}{
		TenantID:          event.TenantID,
		Identity:          identityJSON(event.Identity),
		DeviceFingerprint: event.DeviceFingerprint,
		RevokedAt:         event.RevokedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "session.revoked", event.TenantID, event.RevokedAt, payload)
}

// PublishSessionsReaped publishes sessions.sessions.reaped events.
func (p *EventPublisher) PublishSessionsReaped(ctx context.Context, event domain.SessionsReapedEvent) error {
	payload := struct {
		Deleted       int       `json:"deleted"`
		CacheEvicted  int       `json:"cache_evicted"`
		CacheFailures int       `json:"cache_failures"`
		SweptAt       time.Time `json:"swept_at"`
	}{
		Deleted:       event.Deleted,
		CacheEvicted:  event.CacheEvicted,
		CacheFailures: event.CacheFailures,
		SweptAt:       event.SweptAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "sessions.reaped", 0, event.SweptAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
