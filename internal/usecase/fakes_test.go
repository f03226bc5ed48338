package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arklim/tenant-session-service/internal/core/domain"
	"github.com/arklim/tenant-session-service/internal/core/port"
	"github.com/arklim/tenant-session-service/internal/repository"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(at time.Time) *testClock {
	return &testClock{now: at}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeSessionRepo struct {
	mu      sync.Mutex
	byToken map[string]domain.Session

	findErr          error
	insertErr        error
	getErr           error
	countErr         error
	rebindErr        error
	extendErr        error
	deleteErr        error
	deleteExpiredErr error
	listErr          error
	deleteManyErr    error

	// one-shot hooks, cleared after firing
	onInsert func(domain.Session) error
	onRebind func(oldToken string) error

	getCalls    int
	extendCalls int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{byToken: make(map[string]domain.Session)}
}

func (r *fakeSessionRepo) put(s domain.Session) {
	r.mu.Lock()
	r.byToken[s.Token] = s
	r.mu.Unlock()
}

func (r *fakeSessionRepo) get(token string) (domain.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byToken[token]
	return s, ok
}

func (r *fakeSessionRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byToken)
}

func (r *fakeSessionRepo) Insert(_ context.Context, session domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.onInsert != nil {
		hook := r.onInsert
		r.onInsert = nil
		if err := hook(session); err != nil {
			return err
		}
	}
	if r.insertErr != nil {
		return r.insertErr
	}
	for _, s := range r.byToken {
		if s.TenantID == session.TenantID && s.DeviceFingerprint == session.DeviceFingerprint {
			return repository.ErrConflict
		}
	}
	r.byToken[session.Token] = session
	return nil
}

func (r *fakeSessionRepo) FindByDevice(_ context.Context, tenantID int64, deviceFingerprint string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, s := range r.byToken {
		if s.TenantID == tenantID && s.DeviceFingerprint == deviceFingerprint {
			found := s
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeSessionRepo) GetByToken(_ context.Context, token string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	if r.getErr != nil {
		return nil, r.getErr
	}
	s, ok := r.byToken[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	found := s
	return &found, nil
}

func (r *fakeSessionRepo) CountActive(_ context.Context, tenantID int64, identity domain.Identity, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countErr != nil {
		return 0, r.countErr
	}
	count := 0
	for _, s := range r.byToken {
		if s.TenantID == tenantID && s.Identity.Equal(identity) && !s.Expired(at) {
			count++
		}
	}
	return count, nil
}

func (r *fakeSessionRepo) Rebind(_ context.Context, oldToken, newToken string, expiresAt time.Time, deviceLabel *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.onRebind != nil {
		hook := r.onRebind
		r.onRebind = nil
		if err := hook(oldToken); err != nil {
			return err
		}
	}
	if r.rebindErr != nil {
		return r.rebindErr
	}
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

func (r *fakeSessionRepo) ExtendExpiry(_ context.Context, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extendCalls++
	if r.extendErr != nil {
		return r.extendErr
	}
	s, ok := r.byToken[token]
	if !ok {
		return nil
	}
	if s.ExpiresAt == nil || s.ExpiresAt.Before(expiresAt) {
		s.ExpiresAt = &expiresAt
		r.byToken[token] = s
	}
	return nil
}

func (r *fakeSessionRepo) DeleteByToken(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	delete(r.byToken, token)
	return nil
}

func (r *fakeSessionRepo) DeleteExpired(_ context.Context, before time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteExpiredErr != nil {
		return nil, r.deleteExpiredErr
	}
	var tokens []string
	for token, s := range r.byToken {
		if s.ExpiresAt != nil && s.ExpiresAt.Before(before) {
			tokens = append(tokens, token)
		}
	}
	for _, token := range tokens {
		delete(r.byToken, token)
	}
	sort.Strings(tokens)
	return tokens, nil
}

func (r *fakeSessionRepo) ListExpiredTokens(_ context.Context, before time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var expired []domain.Session
	for _, s := range r.byToken {
		if s.ExpiresAt != nil && s.ExpiresAt.Before(before) {
			expired = append(expired, s)
		}
	}
	sort.Slice(expired, func(a, b int) bool {
		return expired[a].ExpiresAt.Before(*expired[b].ExpiresAt)
	})
	if len(expired) > limit {
		expired = expired[:limit]
	}
	tokens := make([]string, 0, len(expired))
	for _, s := range expired {
		tokens = append(tokens, s.Token)
	}
	return tokens, nil
}

func (r *fakeSessionRepo) DeleteByTokens(_ context.Context, tokens []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteManyErr != nil {
		return 0, r.deleteManyErr
	}
	var deleted int64
	for _, token := range tokens {
		if _, ok := r.byToken[token]; ok {
			delete(r.byToken, token)
			deleted++
		}
	}
	return deleted, nil
}

var _ port.SessionRepository = (*fakeSessionRepo)(nil)

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	clock   *testClock

	setErr error
	getErr error
	delErr error
}

func newFakeCache(clock *testClock) *fakeCache {
	return &fakeCache{entries: make(map[string]cacheEntry), clock: clock}
}

func (c *fakeCache) Set(_ context.Context, token, deviceFingerprint string, amount int64, unit port.DurationUnit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	span, err := unit.Span(amount)
	if err != nil {
		return err
	}
	c.entries[token] = cacheEntry{value: deviceFingerprint, expiresAt: c.clock.Now().Add(span)}
	return nil
}

func (c *fakeCache) Get(_ context.Context, token string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", c.getErr
	}
	entry, ok := c.entries[token]
	if !ok || !entry.expiresAt.After(c.clock.Now()) {
		return "", repository.ErrNotFound
	}
	return entry.value, nil
}

func (c *fakeCache) Delete(_ context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.delErr != nil {
		return c.delErr
	}
	delete(c.entries, token)
	return nil
}

func (c *fakeCache) TTL(_ context.Context, token string, unit port.DurationUnit) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[token]
	if !ok || !entry.expiresAt.After(c.clock.Now()) {
		return 0, repository.ErrNotFound
	}
	span, err := unit.Span(1)
	if err != nil {
		return 0, err
	}
	return int64(entry.expiresAt.Sub(c.clock.Now()) / span), nil
}

func (c *fakeCache) has(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[token]
	return ok && entry.expiresAt.After(c.clock.Now())
}

func (c *fakeCache) expiry(token string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[token]
	return entry.expiresAt, ok
}

var _ port.SessionCache = (*fakeCache)(nil)

type fakeSigner struct {
	mu      sync.Mutex
	seq     int
	claims  map[string]domain.TokenClaims
	reject  map[string]bool
	signErr error
}

func newFakeSigner() *fakeSigner {
	return &fakeSigner{
		claims: make(map[string]domain.TokenClaims),
		reject: make(map[string]bool),
	}
}

func (s *fakeSigner) Sign(claims domain.TokenClaims) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signErr != nil {
		return "", s.signErr
	}
	s.seq++
	token := fmt.Sprintf("tok-%04d", s.seq)
	s.claims[token] = claims
	return token, nil
}

func (s *fakeSigner) Verify(token string) (*domain.TokenClaims, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject[token] {
		return nil, fmt.Errorf("signature mismatch")
	}
	if claims, ok := s.claims[token]; ok {
		return &claims, nil
	}
	return &domain.TokenClaims{}, nil
}

var _ port.TokenSigner = (*fakeSigner)(nil)

type fakePolicies struct {
	mu       sync.Mutex
	byTenant map[int64]domain.TenantPolicy
	err      error
}

func newFakePolicies() *fakePolicies {
	return &fakePolicies{byTenant: make(map[int64]domain.TenantPolicy)}
}

func (p *fakePolicies) set(tenantID int64, policy domain.TenantPolicy) {
	p.mu.Lock()
	p.byTenant[tenantID] = policy
	p.mu.Unlock()
}

func (p *fakePolicies) GetTenantPolicy(_ context.Context, tenantID int64) (domain.TenantPolicy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return domain.TenantPolicy{}, p.err
	}
	if policy, ok := p.byTenant[tenantID]; ok {
		return policy, nil
	}
	return domain.TenantPolicy{}, nil
}

var _ port.TenantPolicyProvider = (*fakePolicies)(nil)

type fakePublisher struct {
	mu      sync.Mutex
	issued  []domain.SessionIssuedEvent
	renewed []domain.SessionRenewedEvent
	revoked []domain.SessionRevokedEvent
	reaped  []domain.SessionsReapedEvent
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{}
}

func (p *fakePublisher) PublishSessionIssued(_ context.Context, event domain.SessionIssuedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.issued = append(p.issued, event)
	return nil
}

func (p *fakePublisher) PublishSessionRenewed(_ context.Context, event domain.SessionRenewedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.renewed = append(p.renewed, event)
	return nil
}

func (p *fakePublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = append(p.revoked, event)
	return nil
}

func (p *fakePublisher) PublishSessionsReaped(_ context.Context, event domain.SessionsReapedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reaped = append(p.reaped, event)
	return nil
}

func (p *fakePublisher) issuedEvents() []domain.SessionIssuedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.SessionIssuedEvent(nil), p.issued...)
}

func (p *fakePublisher) renewedEvents() []domain.SessionRenewedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.SessionRenewedEvent(nil), p.renewed...)
}

func (p *fakePublisher) revokedEvents() []domain.SessionRevokedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.SessionRevokedEvent(nil), p.revoked...)
}

func (p *fakePublisher) reapedEvents() []domain.SessionsReapedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.SessionsReapedEvent(nil), p.reaped...)
}

var _ port.EventPublisher = (*fakePublisher)(nil)
