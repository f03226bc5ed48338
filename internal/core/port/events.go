package port

import (
	"context"

	"github.com/arklim/tenant-session-service/internal/core/domain"
)

// EventPublisher fans session lifecycle changes out to interested consumers.
type EventPublisher interface {
	PublishSessionIssued(ctx context.Context, event domain.SessionIssuedEvent) error
	PublishSessionRenewed(ctx context.Context, event domain.SessionRenewedEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
	PublishSessionsReaped(ctx context.Context, event domain.SessionsReapedEvent) error
}
