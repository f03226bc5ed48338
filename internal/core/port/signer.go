package port

import "github.com/arklim/tenant-session-service/internal/core/domain"

// TokenSigner mints and checks signed session credentials. The token format
// is opaque to every other component.
type TokenSigner interface {
	Sign(claims domain.TokenClaims) (string, error)
	Verify(token string) (*domain.TokenClaims, error)
}
