package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/tenant-session-service/internal/core/domain"
)

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Sessions       *SessionRepository
	TenantPolicies *TenantPolicyRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool, defaultPolicy domain.TenantPolicy) *Repositories {
	return &Repositories{
		Sessions:       NewSessionRepository(pool),
		TenantPolicies: NewTenantPolicyRepository(pool, defaultPolicy),
	}
}
