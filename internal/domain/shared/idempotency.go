package shared

import (
	"context"
	"time"
)

// DispatchGuard hands out short-lived exclusive claims on a key.
// It narrows the window in which two workers can act on the same item;
// the durable idempotency record is still owned by the caller's store.
type DispatchGuard interface {
	// Claim tries to take the key for ttl
	// Returns true if the claim was acquired, false if someone else holds it
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release gives the key back before its ttl expires
	Release(ctx context.Context, key string) error

	// Close closes the guard and releases resources
	Close() error
}

// DispatchGuardConfig holds configuration for dispatch claims
type DispatchGuardConfig struct {
	// TTL bounds how long a crashed worker can block a key
	// Default: 10 minutes
	TTL time.Duration

	// Enabled determines whether claims are taken at all
	// Default: true
	Enabled bool
}

// DefaultDispatchGuardConfig returns the default dispatch guard configuration
func DefaultDispatchGuardConfig() DispatchGuardConfig {
	return DispatchGuardConfig{
		TTL:     10 * time.Minute,
		Enabled: true,
	}
}
