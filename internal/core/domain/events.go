package domain

import "time"

// SessionIssuedEvent is published when a new credential is minted for a device.
// Renewal is true when an existing device binding was refreshed in place.
type SessionIssuedEvent struct {
	EventID           string
	TenantID          int64
	Identity          Identity
	DeviceFingerprint string
	DeviceLabel       *string
	Renewal           bool
	IssuedAt          time.Time
	ExpiresAt         time.Time
}

// SessionRenewedEvent is published when a validation slides a session's
// expiration window forward.
type SessionRenewedEvent struct {
	EventID   string
	TenantID  int64
	Identity  Identity
	RenewedAt time.Time
	ExpiresAt time.Time
}

// SessionRevokedEvent is published on explicit logout.
type SessionRevokedEvent struct {
	EventID           string
	TenantID          int64
	Identity          Identity
	DeviceFingerprint string
	RevokedAt         time.Time
}

// SessionsReapedEvent summarises one background sweep over expired sessions.
type SessionsReapedEvent struct {
	EventID       string
	Deleted       int
	CacheEvicted  int
	CacheFailures int
	SweptAt       time.Time
}
