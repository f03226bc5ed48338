package domain

import "time"

// TokenClaims is the signed payload carried inside a session credential.
// The wire encoding is owned by the signer; everything else treats the
// token as an opaque bearer string.
type TokenClaims struct {
	TokenID           string
	TenantID          int64
	Identity          Identity
	DeviceFingerprint string
	IssuedAt          time.Time
	ExpiresAt         time.Time
}
