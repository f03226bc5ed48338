package usecase

import "errors"

var (
	// ErrUnauthenticated indicates a missing, malformed, or forged credential.
	// Terminal: the caller must not retry with the same token.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrSessionExpired indicates a well-signed credential that is no longer
	// live; the client must re-authenticate.
	ErrSessionExpired = errors.New("session expired")
	// ErrDeviceConflict indicates issuance was blocked because the device is
	// bound to another account.
	ErrDeviceConflict = errors.New("device is bound to another account")
	// ErrDeviceLimitExceeded indicates issuance was blocked by the tenant's
	// device-count policy.
	ErrDeviceLimitExceeded = errors.New("device limit exceeded")
	// ErrStoreUnavailable indicates infrastructure degradation distinct from
	// "not logged in"; safe to retry.
	ErrStoreUnavailable = errors.New("session store unavailable")
)
