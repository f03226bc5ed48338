package port

import (
	"context"
	"time"

	"github.com/arklim/tenant-session-service/internal/core/domain"
)

// SessionRepository deals with durable session storage.
type SessionRepository interface {
	// Insert persists a new session row. A unique-key violation on
	// (tenant_id, device_fingerprint) surfaces as repository.ErrConflict.
	Insert(ctx context.Context, session domain.Session) error
	// FindByDevice looks up the session bound to a device within a tenant,
	// returning repository.ErrNotFound when no binding exists.
	FindByDevice(ctx context.Context, tenantID int64, deviceFingerprint string) (*domain.Session, error)
	// GetByToken fetches the session identified by the supplied token.
	GetByToken(ctx context.Context, token string) (*domain.Session, error)
	// CountActive counts non-expired sessions held by an identity within a tenant.
	CountActive(ctx context.Context, tenantID int64, identity domain.Identity, at time.Time) (int, error)
	// Rebind replaces the token and expiration of an existing device row in place.
	Rebind(ctx context.Context, oldToken, newToken string, expiresAt time.Time, deviceLabel *string) error
	// ExtendExpiry slides a session's expiration forward. The expiration is
	// monotonically non-decreasing: an earlier target is a no-op.
	ExtendExpiry(ctx context.Context, token string, expiresAt time.Time) error
	// DeleteByToken removes a session row if present. Absent rows are not an error.
	DeleteByToken(ctx context.Context, token string) error
	// DeleteExpired removes every session whose expiration precedes the cutoff
	// inside a single transaction, returning the deleted tokens.
	DeleteExpired(ctx context.Context, before time.Time) ([]string, error)
	// ListExpiredTokens returns up to limit tokens whose expiration precedes the cutoff.
	ListExpiredTokens(ctx context.Context, before time.Time, limit int) ([]string, error)
	// DeleteByTokens removes the supplied tokens, skipping rows already gone.
	DeleteByTokens(ctx context.Context, tokens []string) (int64, error)
}
