package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/tenant-session-service/internal/core/domain"
	"github.com/arklim/tenant-session-service/internal/core/port"
	"github.com/arklim/tenant-session-service/internal/infra/config"
	"github.com/arklim/tenant-session-service/internal/repository"
	httproutes "github.com/arklim/tenant-session-service/internal/transport/http/routes"
	"github.com/arklim/tenant-session-service/internal/usecase"
)

type memorySessionRepo struct {
	mu      sync.Mutex
	byToken map[string]domain.Session
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{byToken: make(map[string]domain.Session)}
}

func (r *memorySessionRepo) Insert(_ context.Context, session domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byToken {
		if s.TenantID == session.TenantID && s.DeviceFingerprint == session.DeviceFingerprint {
			return repository.ErrConflict
		}
	}
	r.byToken[session.Token] = session
	return nil
}

func (r *memorySessionRepo) FindByDevice(_ context.Context, tenantID int64, deviceFingerprint string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byToken {
		if s.TenantID == tenantID && s.DeviceFingerprint == deviceFingerprint {
			found := s
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memorySessionRepo) GetByToken(_ context.Context, token string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byToken[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	found := s
	return &found, nil
}

func (r *memorySessionRepo) CountActive(_ context.Context, tenantID int64, identity domain.Identity, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, s := range r.byToken {
		if s.TenantID == tenantID && s.Identity.Equal(identity) && !s.Expired(at) {
			count++
		}
	}
	return count, nil
}

func (r *memorySessionRepo) Rebind(_ context.Context, oldToken, newToken string, expiresAt time.Time, deviceLabel *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byToken[oldToken]
	if !ok {
		return repository.ErrNotFound
	}
	delete(r.byToken, oldToken)
	s.Token = newToken
	s.ExpiresAt = &expiresAt
	if deviceLabel != nil {
		s.DeviceLabel = deviceLabel
	}
	r.byToken[newToken] = s
	return nil
}

func (r *memorySessionRepo) ExtendExpiry(_ context.Context, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byToken[token]; ok {
		if s.ExpiresAt == nil || s.ExpiresAt.Before(expiresAt) {
			s.ExpiresAt = &expiresAt
			r.byToken[token] = s
		}
	}
	return nil
}

func (r *memorySessionRepo) DeleteByToken(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byToken, token)
	return nil
}

func (r *memorySessionRepo) DeleteExpired(_ context.Context, before time.Time) ([]string, error) {
	return nil, nil
}

func (r *memorySessionRepo) ListExpiredTokens(_ context.Context, before time.Time, limit int) ([]string, error) {
	return nil, nil
}

func (r *memorySessionRepo) DeleteByTokens(_ context.Context, tokens []string) (int64, error) {
	return 0, nil
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]string)}
}

func (c *memoryCache) Set(_ context.Context, token, deviceFingerprint string, amount int64, unit port.DurationUnit) error {
	if _, err := unit.Span(amount); err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[token] = deviceFingerprint
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Get(_ context.Context, token string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.entries[token]
	if !ok {
		return "", repository.ErrNotFound
	}
	return value, nil
}

func (c *memoryCache) Delete(_ context.Context, token string) error {
	c.mu.Lock()
	delete(c.entries, token)
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) TTL(_ context.Context, token string, unit port.DurationUnit) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[token]; !ok {
		return 0, repository.ErrNotFound
	}
	return 1, nil
}

type staticSigner struct {
	mu  sync.Mutex
	seq int
}

func (s *staticSigner) Sign(domain.TokenClaims) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("signed-%04d", s.seq), nil
}

func (s *staticSigner) Verify(string) (*domain.TokenClaims, error) {
	return &domain.TokenClaims{}, nil
}

type defaultPolicies struct{}

func (defaultPolicies) GetTenantPolicy(context.Context, int64) (domain.TenantPolicy, error) {
	return domain.TenantPolicy{}, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	cfg := &config.AppConfig{App: config.AppSettings{
		Env:                "test",
		CORSAllowedOrigins: []string{"*"},
	}}

	repo := newMemorySessionRepo()
	cache := newMemoryCache()
	signer := &staticSigner{}

	issuer := usecase.NewTokenIssuer(repo, cache, signer, defaultPolicies{}, nil, logger)
	validator := usecase.NewSessionValidator(repo, cache, signer, nil, usecase.NewActivityTracker(), logger)

	credentials := port.CredentialVerifierFunc(func(_ context.Context, tenantID int64, account, secret string) (domain.Identity, error) {
		if secret != "correct-horse" {
			return domain.Identity{}, port.ErrCredentialsRejected
		}
		return domain.AccountIdentity(account), nil
	})

	return httproutes.Register(httproutes.Dependencies{
		Config: cfg,
		Logger: logger,
		Services: httproutes.ServiceSet{
			Issuer:      issuer,
			Validator:   validator,
			Credentials: credentials,
		},
	})
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestReadinessWithoutDependencies(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/readyz", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestLoginPreflight(t *testing.T) {
	r := newTestRouter(t)

	req, _ := http.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard allow-origin, got %q", got)
	}
}

func login(t *testing.T, r *gin.Engine, tenant, account, secret, device string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"account":            account,
		"secret":             secret,
		"device_fingerprint": device,
	})
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenant)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLoginSessionLogoutFlow(t *testing.T) {
	r := newTestRouter(t)

	w := login(t, r, "7", "acct-1", "correct-horse", "device-a")
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", w.Code, w.Body.String())
	}

	var loginResp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &loginResp); err != nil {
		t.Fatalf("unmarshal login response: %v", err)
	}
	if loginResp.Token == "" || loginResp.ExpiresAt.IsZero() {
		t.Fatalf("incomplete login response: %+v", loginResp)
	}

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("session status = %d, body %s", w.Code, w.Body.String())
	}

	var sessionResp struct {
		TenantID          int64  `json:"tenant_id"`
		IdentityValue     string `json:"identity_value"`
		DeviceFingerprint string `json:"device_fingerprint"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &sessionResp); err != nil {
		t.Fatalf("unmarshal session response: %v", err)
	}
	if sessionResp.TenantID != 7 || sessionResp.IdentityValue != "acct-1" || sessionResp.DeviceFingerprint != "device-a" {
		t.Fatalf("unexpected session response: %+v", sessionResp)
	}

	req, _ = http.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d, body %s", w.Code, w.Body.String())
	}

	// The revoked token no longer grants access.
	req, _ = http.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("revoked session status = %d, want 401", w.Code)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	r := newTestRouter(t)

	if w := login(t, r, "7", "acct-1", "wrong", "device-a"); w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestLoginRequiresTenantHeader(t *testing.T) {
	r := newTestRouter(t)

	if w := login(t, r, "", "acct-1", "correct-horse", "device-a"); w.Code != http.StatusBadRequest {
		t.Fatalf("missing header status = %d, want 400", w.Code)
	}
	if w := login(t, r, "abc", "acct-1", "correct-horse", "device-a"); w.Code != http.StatusBadRequest {
		t.Fatalf("garbage header status = %d, want 400", w.Code)
	}
}

func TestLoginDeviceConflict(t *testing.T) {
	r := newTestRouter(t)

	if w := login(t, r, "7", "acct-1", "correct-horse", "device-a"); w.Code != http.StatusOK {
		t.Fatalf("first login status = %d", w.Code)
	}
	if w := login(t, r, "7", "acct-2", "correct-horse", "device-a"); w.Code != http.StatusConflict {
		t.Fatalf("conflicting login status = %d, want 409", w.Code)
	}
}

func TestLoginDeviceLimit(t *testing.T) {
	r := newTestRouter(t)

	if w := login(t, r, "7", "acct-1", "correct-horse", "device-a"); w.Code != http.StatusOK {
		t.Fatalf("first login status = %d", w.Code)
	}
	if w := login(t, r, "7", "acct-1", "correct-horse", "device-b"); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("second device status = %d, want 422", w.Code)
	}
}
