package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/tenant-session-service/internal/core/domain"
	"github.com/arklim/tenant-session-service/internal/core/port"
)

// TenantPolicyRepository resolves per-tenant session policies from the
// tenant configuration table. Tenants without a row fall back to the
// default policy supplied at construction.
type TenantPolicyRepository struct {
	exec          pgExecutor
	builder       squirrel.StatementBuilderType
	defaultPolicy domain.TenantPolicy
}

// NewTenantPolicyRepository constructs a policy provider with the supplied fallback.
func NewTenantPolicyRepository(exec pgExecutor, defaultPolicy domain.TenantPolicy) *TenantPolicyRepository {
	return &TenantPolicyRepository{
		exec:          exec,
		builder:       squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		defaultPolicy: defaultPolicy,
	}
}

// GetTenantPolicy returns the admission policy for a tenant.
func (r *TenantPolicyRepository) GetTenantPolicy(ctx context.Context, tenantID int64) (domain.TenantPolicy, error) {
	stmt, args, err := r.builder.
		Select("multi_device_login", "multi_device_login_num").
		From("tenant_session_policies").
		Where(squirrel.Eq{"tenant_id": tenantID}).
		Limit(1).
		ToSql()
	if err != nil {
		return domain.TenantPolicy{}, fmt.Errorf("build select tenant policy sql: %w", err)
	}

	var policy domain.TenantPolicy
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&policy.MultiDeviceLogin, &policy.MultiDeviceLoginNum); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return r.defaultPolicy, nil
		}
		return domain.TenantPolicy{}, fmt.Errorf("select tenant policy: %w", err)
	}

	return policy, nil
}

var _ port.TenantPolicyProvider = (*TenantPolicyRepository)(nil)
