package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arklim/tenant-session-service/internal/core/domain"
	"github.com/arklim/tenant-session-service/internal/core/port"
)

// ErrTokenInvalid indicates a token that fails signature or structural checks.
var ErrTokenInvalid = errors.New("jwt: token invalid")

// ErrTokenExpired indicates a token whose embedded expiration has passed.
var ErrTokenExpired = errors.New("jwt: token expired")

// sessionClaims is the wire form of a session credential. The custom fields
// carry the identity binding and device fingerprint alongside the registered
// claim set.
type sessionClaims struct {
	TenantID          int64  `json:"tid"`
	IdentityKind      string `json:"idk"`
	IdentityValue     string `json:"idv"`
	DeviceFingerprint string `json:"dfp"`
	jwt.RegisteredClaims
}

// JWTSigner mints and verifies HS256 session tokens.
type JWTSigner struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTSigner constructs a signer over the supplied shared secret.
func NewJWTSigner(secret, issuer string) (*JWTSigner, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt: signing secret is required")
	}
	return &JWTSigner{
		secret: []byte(secret),
		issuer: issuer,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the verification clock for deterministic tests.
func (s *JWTSigner) WithClock(clock func() time.Time) *JWTSigner {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Sign serialises the claims into a compact signed token.
func (s *JWTSigner) Sign(claims domain.TokenClaims) (string, error) {
	wire := sessionClaims{
		TenantID:          claims.TenantID,
		IdentityKind:      string(claims.Identity.Kind),
		IdentityValue:     claims.Identity.Value,
		DeviceFingerprint: claims.DeviceFingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        claims.TokenID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, wire)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and embedded expiration, returning the decoded
// claims on success.
func (s *JWTSigner) Verify(tokenString string) (*domain.TokenClaims, error) {
	var wire sessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &wire, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	claims := &domain.TokenClaims{
		TokenID:           wire.ID,
		TenantID:          wire.TenantID,
		Identity:          domain.Identity{Kind: domain.IdentityKind(wire.IdentityKind), Value: wire.IdentityValue},
		DeviceFingerprint: wire.DeviceFingerprint,
	}
	if wire.IssuedAt != nil {
		claims.IssuedAt = wire.IssuedAt.Time
	}
	if wire.ExpiresAt != nil {
		claims.ExpiresAt = wire.ExpiresAt.Time
	}
	return claims, nil
}

var _ port.TokenSigner = (*JWTSigner)(nil)
