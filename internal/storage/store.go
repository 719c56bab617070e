// Package storage persists encoded TC strings across page loads. Two
// redundant backends are written on every save: a short-lived local store
// and a durable store with a one-year expiry. Reads prefer the local store
// and fall back to the durable one.
package storage

import (
	"context"
	"errors"
	"time"
)

// ConsentKey is the fixed key every TC string is stored under.
const ConsentKey = "euconsent-v2"

// DurableTTL is the retention period of the durable store.
const DurableTTL = 365 * 24 * time.Hour

// ErrNotFound is returned when no value is stored for a scope and key, or
// the stored value has expired.
var ErrNotFound = errors.New("consent record not found")

// Store persists string values per client scope.
type Store interface {
	// Save writes value under (scope, key) with the given expiry.
	Save(ctx context.Context, scope, key, value string, expiresAt time.Time) error

	// Load reads the value under (scope, key); ErrNotFound when absent or
	// expired.
	Load(ctx context.Context, scope, key string) (string, error)

	// Delete removes the value under (scope, key). Deleting an absent
	// value is not an error.
	Delete(ctx context.Context, scope, key string) error
}
