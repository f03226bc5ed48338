package domain

import (
	"fmt"
	"time"
)

// IdentityKind discriminates the binding forms a session may attach to.
type IdentityKind string

const (
	// IdentityAccount binds a session to a primary local account id.
	IdentityAccount IdentityKind = "account"
	// IdentityProviderSubject binds a session to a per-application federated subject.
	IdentityProviderSubject IdentityKind = "provider_subject"
	// IdentityProviderUnion binds a session to a cross-application federated subject.
	IdentityProviderUnion IdentityKind = "provider_union"
)

// Identity is the authenticated principal a session is bound to.
// Exactly one binding form applies per session; the tagged (Kind, Value)
// pair is the canonical matching key throughout the subsystem.
type Identity struct {
	Kind  IdentityKind
	Value string
}

// AccountIdentity builds an identity for a local account id.
func AccountIdentity(accountID string) Identity {
	return Identity{Kind: IdentityAccount, Value: accountID}
}

// ProviderIdentity builds an identity for a federated-provider subject.
func ProviderIdentity(subject string) Identity {
	return Identity{Kind: IdentityProviderSubject, Value: subject}
}

// IsZero reports whether the identity carries no binding.
func (i Identity) IsZero() bool {
	return i.Kind == "" || i.Value == ""
}

// Equal reports whether two identities reference the same principal.
func (i Identity) Equal(other Identity) bool {
	return i.Kind == other.Kind && i.Value == other.Value
}

// Key returns a stable string form suitable for map keys and log fields.
func (i Identity) Key() string {
	return fmt.Sprintf("%s:%s", i.Kind, i.Value)
}

// Validate ensures the identity uses a known kind and a non-empty value.
func (i Identity) Validate() error {
	switch i.Kind {
	case IdentityAccount, IdentityProviderSubject, IdentityProviderUnion:
	default:
		return fmt.Errorf("unknown identity kind %q", i.Kind)
	}
	if i.Value == "" {
		return fmt.Errorf("identity value is required")
	}
	return nil
}

// Session is the durable record of an issued device-bound credential.
type Session struct {
	Token             string
	TenantID          int64
	Identity          Identity
	DeviceFingerprint string
	DeviceLabel       *string
	IssuedAt          time.Time
	// ExpiresAt is nil only for legacy rows created before absolute
	// expirations were introduced; such rows receive an expiry on their
	// next successful validation.
	ExpiresAt *time.Time
}

// Expired reports whether the session's absolute expiration has passed.
// Legacy rows without an expiration are not considered expired.
func (s Session) Expired(at time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(at)
}

// Remaining returns the lifetime left at the supplied moment, zero when
// expired, and ok=false for legacy rows without an expiration.
func (s Session) Remaining(at time.Time) (time.Duration, bool) {
	if s.ExpiresAt == nil {
		return 0, false
	}
	remaining := s.ExpiresAt.Sub(at)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}
