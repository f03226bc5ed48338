package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/tenant-session-service/internal/core/port"
	"github.com/arklim/tenant-session-service/internal/repository"
)

const defaultSessionKeyPrefix = "sessions:token"

// SessionCacheRepository mirrors session liveness in Redis with per-key TTLs.
// Callers express lifetimes in calendar units; the conversion to seconds
// happens in exactly one place so unit confusion cannot creep into call sites.
type SessionCacheRepository struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

// NewSessionCacheRepository constructs the cache mirror helper.
func NewSessionCacheRepository(client *red.Client, keyPrefix string) *SessionCacheRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultSessionKeyPrefix
	}

	return &SessionCacheRepository{
		client: client,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (r *SessionCacheRepository) WithClock(clock func() time.Time) *SessionCacheRepository {
	if clock != nil {
		r.now = clock
	}
	return r
}

// Set stores the device fingerprint under the token. The TTL is derived by
// adding the unit duration to now and taking the whole-second delta.
func (r *SessionCacheRepository) Set(ctx context.Context, token, deviceFingerprint string, amount int64, unit port.DurationUnit) error {
	key := r.key(token)
	if key == "" {
		return fmt.Errorf("token is required")
	}

	span, err := unit.Span(amount)
	if err != nil {
		return fmt.Errorf("resolve cache ttl: %w", err)
	}

	now := r.now()
	ttl := now.Add(span).Sub(now).Truncate(time.Second)
	if ttl <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}

	if err := r.client.Set(ctx, key, deviceFingerprint, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}

	return nil
}

// Get returns the stored fingerprint, or repository.ErrNotFound on a miss.
func (r *SessionCacheRepository) Get(ctx context.Context, token string) (string, error) {
	key := r.key(token)
	if key == "" {
		return "", fmt.Errorf("token is required")
	}

	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("redis get session: %w", err)
	}

	return value, nil
}

// Delete evicts the token's mirror entry. Absent keys are not an error.
func (r *SessionCacheRepository) Delete(ctx context.Context, token string) error {
	key := r.key(token)
	if key == "" {
		return fmt.Errorf("token is required")
	}

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}

	return nil
}

// TTL reports the remaining lifetime in the supplied unit, rounding down, or
// repository.ErrNotFound when the key is absent.
func (r *SessionCacheRepository) TTL(ctx context.Context, token string, unit port.DurationUnit) (int64, error) {
	key := r.key(token)
	if key == "" {
		return 0, fmt.Errorf("token is required")
	}

	remaining, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl session: %w", err)
	}
	if remaining < 0 {
		// -2 key missing, -1 no expiry; the mirror always sets one.
		return 0, repository.ErrNotFound
	}

	unitSpan, err := unit.Span(1)
	if err != nil {
		return 0, fmt.Errorf("resolve ttl unit: %w", err)
	}

	return int64(remaining / unitSpan), nil
}

func (r *SessionCacheRepository) key(token string) string {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.prefix, trimmed)
}

var _ port.SessionCache = (*SessionCacheRepository)(nil)
