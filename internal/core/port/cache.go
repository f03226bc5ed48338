package port

import (
	"context"
	"fmt"
	"time"
)

// DurationUnit expresses a cache lifetime in calendar units so that callers
// never compute raw seconds by hand.
type DurationUnit string

const (
	UnitSeconds DurationUnit = "seconds"
	UnitMinutes DurationUnit = "minutes"
	UnitHours   DurationUnit = "hours"
	UnitDays    DurationUnit = "days"
	UnitWeeks   DurationUnit = "weeks"
)

// Span converts an amount of this unit into a time.Duration.
func (u DurationUnit) Span(amount int64) (time.Duration, error) {
	if amount < 0 {
		return 0, fmt.Errorf("duration amount must not be negative")
	}
	switch u {
	case UnitSeconds:
		return time.Duration(amount) * time.Second, nil
	case UnitMinutes:
		return time.Duration(amount) * time.Minute, nil
	case UnitHours:
		return time.Duration(amount) * time.Hour, nil
	case UnitDays:
		return time.Duration(amount) * 24 * time.Hour, nil
	case UnitWeeks:
		return time.Duration(amount) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration unit %q", u)
	}
}

// SessionCache mirrors session liveness in a TTL key/value store. The mirror
// is advisory: absence of a key means the session is not currently valid,
// regardless of the durable record.
type SessionCache interface {
	// Set stores the device fingerprint under the token with a TTL of the
	// supplied amount of units from now.
	Set(ctx context.Context, token, deviceFingerprint string, amount int64, unit DurationUnit) error
	// Get returns the stored fingerprint, or repository.ErrNotFound on a miss.
	Get(ctx context.Context, token string) (string, error)
	// Delete evicts the token's mirror entry. Absent keys are not an error.
	Delete(ctx context.Context, token string) error
	// TTL reports the remaining lifetime expressed in the supplied unit,
	// never longer than the duration originally requested.
	TTL(ctx context.Context, token string, unit DurationUnit) (int64, error)
}
