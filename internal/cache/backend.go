// Package cache implements the Config Cache: a read-through,
// write-invalidated, TTL-bounded store of configuration entities with
// negative caching, backed by either an in-process map or an external KV
// store.
package cache

import (
	"context"
	"time"
)

// Kind distinguishes a positive hit, a negative (tombstone) hit, and a
// plain miss. Readers should prefer GetEntry over Get so they can tell a
// negative hit apart from an absence.
type Kind int

const (
	KindAbsent Kind = iota
	KindPositive
	KindNegative
)

// Entry is the result of a GetEntry lookup.
type Entry struct {
	Kind  Kind
	Value []byte
}

// Backend is the capability set a Config Cache storage tier must provide.
// Implementations: MapBackend (in-process) and KVBackend (external,
// Redis-compatible).
type Backend interface {
	// Get is a convenience wrapper returning the value only on a positive
	// hit; ok is false for both negative hits and misses.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// MGet batches several Get calls; the returned map only contains keys
	// that were positive hits.
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	// GetEntry distinguishes positive/negative/absent.
	GetEntry(ctx context.Context, key string) (Entry, error)
	SetPositive(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNegative must never overwrite an existing, unexpired positive
	// entry for the same key.
	SetNegative(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
