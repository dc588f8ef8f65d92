// Package storage defines the persistence contract consumed by the rest of
// the core: the durable components — identity, tenancy, workflow state —
// go through this interface rather than a concrete database driver (quota
// counters and sessions are kept in memory by their own packages). The
// core never assumes cross-key transactions; compare-and-set on a single
// key is the only atomicity primitive it relies on (notably the identity
// and tenancy stores' create-if-absent reservations of ids and unique
// indexes).
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("storage: key not found")

// ErrCASMismatch is returned by CompareAndSet when the stored value does not
// match the expected value (or the key is absent and expected was non-nil).
var ErrCASMismatch = errors.New("storage: compare-and-set mismatch")

// Store is the minimal key/value contract the core requires from a
// persistence engine. Keys are opaque strings, conventionally prefixed by
// entity kind (e.g. "user:", "org:", "quota:", "workflow:") so Scan can
// enumerate one entity kind at a time.
type Store interface {
	// Get returns the raw value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put unconditionally writes value at key, creating or overwriting it.
	Put(ctx context.Context, key string, value []byte) error

	// CompareAndSet writes value at key only if the current stored value
	// equals expected byte-for-byte. A nil expected means "key must not
	// exist yet". Returns ErrCASMismatch on a failed compare.
	CompareAndSet(ctx context.Context, key string, expected, value []byte) error

	// Scan returns every key/value pair whose key starts with prefix. The
	// order is unspecified; callers that need ordering sort client-side.
	Scan(ctx context.Context, prefix string) (map[string][]byte, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
