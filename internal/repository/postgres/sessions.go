package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arklim/tenant-session-service/internal/core/domain"
	"github.com/arklim/tenant-session-service/internal/core/port"
	"github.com/arklim/tenant-session-service/internal/repository"
)

const sessionsTable = "sessions"

var sessionColumns = []string{
	"token",
	"tenant_id",
	"identity_kind",
	"identity_value",
	"device_fingerprint",
	"device_label",
	"issued_at",
	"expires_at",
}

// SessionRepository implements port.SessionRepository backed by PostgreSQL.
type SessionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewSessionRepository(exec pgExecutor) *SessionRepository {
	return &SessionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Insert persists a new session row. Duplicate device bindings surface as
// repository.ErrConflict so the issuer can resolve the race.
func (r *SessionRepository) Insert(ctx context.Context, session domain.Session) error {
	sqlStmt, args, err := r.builder.Insert(sessionsTable).
		Columns(sessionColumns...).
		Values(
			session.Token,
			session.TenantID,
			string(session.Identity.Kind),
			session.Identity.Value,
			session.DeviceFingerprint,
			optionalString(session.DeviceLabel),
			session.IssuedAt.UTC(),
			optionalTime(session.ExpiresAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sqlStmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// FindByDevice looks up the session bound to a device within a tenant.
func (r *SessionRepository) FindByDevice(ctx context.Context, tenantID int64, deviceFingerprint string) (*domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From(sessionsTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "device_fingerprint": deviceFingerprint}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session by device sql: %w", err)
	}

	session, err := scanSession(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return session, nil
}

// GetByToken fetches the session identified by the supplied token.
func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From(sessionsTable).
		Where(squirrel.Eq{"token": token}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session by token sql: %w", err)
	}

	session, err := scanSession(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return session, nil
}

// CountActive counts non-expired sessions held by an identity within a tenant.
// Legacy rows without an expiration count as active.
func (r *SessionRepository) CountActive(ctx context.Context, tenantID int64, identity domain.Identity, at time.Time) (int, error) {
	stmt, args, err := r.builder.
		Select("COUNT(*)").
		From(sessionsTable).
		Where(squirrel.Eq{
			"tenant_id":      tenantID,
			"identity_kind":  string(identity.Kind),
			"identity_value": identity.Value,
		}).
		Where(squirrel.Or{
			squirrel.Eq{"expires_at": nil},
			squirrel.Gt{"expires_at": at.UTC()},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count active sessions sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}

	return count, nil
}

// Rebind replaces the token and expiration of an existing device row in place,
// so repeated logins from the same device never grow the table.
func (r *SessionRepository) Rebind(ctx context.Context, oldToken, newToken string, expiresAt time.Time, deviceLabel *string) error {
	stmt := `
        UPDATE sessions
           SET token = $2,
               expires_at = $3,
               device_label = COALESCE($4::text, device_label)
         WHERE token = $1
    `

	tag, err := r.exec.Exec(ctx, stmt, oldToken, newToken, expiresAt.UTC(), optionalString(deviceLabel))
	if err != nil {
		return fmt.Errorf("rebind session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ExtendExpiry slides a session's expiration forward. Targets earlier than the
// stored expiration leave the row untouched, keeping expirations monotonic.
func (r *SessionRepository) ExtendExpiry(ctx context.Context, token string, expiresAt time.Time) error {
	stmt := `
        UPDATE sessions
           SET expires_at = $2
         WHERE token = $1
           AND (expires_at IS NULL OR expires_at < $2)
    `

	if _, err := r.exec.Exec(ctx, stmt, token, expiresAt.UTC()); err != nil {
		return fmt.Errorf("extend session expiry: %w", err)
	}

	return nil
}

// DeleteByToken removes a session row if present.
func (r *SessionRepository) DeleteByToken(ctx context.Context, token string) error {
	stmt, args, err := r.builder.Delete(sessionsTable).Where(squirrel.Eq{"token": token}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	return nil
}

// DeleteExpired removes every session whose expiration precedes the cutoff
// inside a single transaction and returns the deleted tokens.
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) ([]string, error) {
	beginner, ok := r.exec.(txBeginner)
	if !ok {
		return r.deleteExpired(ctx, r.exec, before)
	}

	tx, err := beginner.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reap transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tokens, err := r.deleteExpired(ctx, tx, before)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reap transaction: %w", err)
	}

	return tokens, nil
}

func (r *SessionRepository) deleteExpired(ctx context.Context, exec pgExecutor, before time.Time) ([]string, error) {
	rows, err := exec.Query(ctx,
		"DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at < $1 RETURNING token",
		before.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("delete expired sessions: %w", err)
	}
	defer rows.Close()

	tokens := make([]string, 0)
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scan reaped token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reaped tokens: %w", err)
	}

	return tokens, nil
}

// ListExpiredTokens returns up to limit tokens whose expiration precedes the
// cutoff, oldest first, for the batched cleaner sweep.
func (r *SessionRepository) ListExpiredTokens(ctx context.Context, before time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	stmt, args, err := r.builder.
		Select("token").
		From(sessionsTable).
		Where(squirrel.And{
			squirrel.NotEq{"expires_at": nil},
			squirrel.Lt{"expires_at": before.UTC()},
		}).
		OrderBy("expires_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list expired tokens sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list expired tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]string, 0, limit)
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scan expired token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired tokens: %w", err)
	}

	return tokens, nil
}

// DeleteByTokens removes the supplied tokens, skipping rows already gone.
func (r *SessionRepository) DeleteByTokens(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}

	stmt, args, err := r.builder.Delete(sessionsTable).Where(squirrel.Eq{"token": tokens}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete sessions sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		session      domain.Session
		identityKind string
		deviceLabel  sql.NullString
		expiresAt    sql.NullTime
	)

	if err := row.Scan(
		&session.Token,
		&session.TenantID,
		&identityKind,
		&session.Identity.Value,
		&session.DeviceFingerprint,
		&deviceLabel,
		&session.IssuedAt,
		&expiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	session.Identity.Kind = domain.IdentityKind(identityKind)
	if deviceLabel.Valid {
		label := strings.TrimSpace(deviceLabel.String)
		if label != "" {
			session.DeviceLabel = &label
		}
	}
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		session.ExpiresAt = &t
	}

	return &session, nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
