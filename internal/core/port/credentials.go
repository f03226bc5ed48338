package port

import (
	"context"
	"errors"

	"github.com/arklim/tenant-session-service/internal/core/domain"
)

// ErrCredentialsRejected indicates the supplied account/secret pair failed
// identity proof.
var ErrCredentialsRejected = errors.New("credentials rejected")

// CredentialVerifier performs identity proof (password check, federated
// exchange). It is supplied by the business layer; this subsystem only
// consumes the validated identity it produces.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, tenantID int64, account, secret string) (domain.Identity, error)
}

// CredentialVerifierFunc adapts a function to the CredentialVerifier interface.
type CredentialVerifierFunc func(ctx context.Context, tenantID int64, account, secret string) (domain.Identity, error)

// VerifyCredentials implements CredentialVerifier.
func (f CredentialVerifierFunc) VerifyCredentials(ctx context.Context, tenantID int64, account, secret string) (domain.Identity, error) {
	return f(ctx, tenantID, account, secret)
}
