// Package cache provides a TTL-bound key/value store used for session
// checkpoints. Values expire on their own; nothing here is a source of truth.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrExpired is returned when a key is absent or its TTL has elapsed.
var ErrExpired = errors.New("cache: key missing or expired")

// TTLStore stores JSON-serializable values under string keys with a
// per-entry time to live.
type TTLStore interface {
	Put(ctx context.Context, key string, value any, ttl time.Duration) error
	// Get unmarshals the stored value into dest. Returns ErrExpired when
	// the key is missing or past its TTL.
	Get(ctx context.Context, key string, dest any) error
	Delete(ctx context.Context, key string) error
	Close() error
}
