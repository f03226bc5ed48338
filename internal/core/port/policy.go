package port

import (
	"context"

	"github.com/arklim/tenant-session-service/internal/core/domain"
)

// TenantPolicyProvider resolves the session admission policy for a tenant.
// Unknown tenants resolve to the configured default policy, not an error.
type TenantPolicyProvider interface {
	GetTenantPolicy(ctx context.Context, tenantID int64) (domain.TenantPolicy, error)
}
