// Package challenge provides the TTL key-value store that holds OTP codes,
// attempt counters, lockout markers and rate-limit counters.
package challenge

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("challenge key not found")

// Store is a key-value store with per-key expiry. Incr must be atomic.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX writes value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Incr increments key and applies ttl when the increment created it.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// CompareAndDel deletes key only while it still holds value and reports
	// whether it did. At most one concurrent caller wins.
	CompareAndDel(ctx context.Context, key, value string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	// TTL returns the remaining lifetime of key, or zero when it is absent.
	TTL(ctx context.Context, key string) (time.Duration, error)
	Del(ctx context.Context, keys ...string) error
}
