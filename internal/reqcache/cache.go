// Package reqcache deduplicates identical upstream requests by content hash
// and coalesces concurrent duplicates: the first caller for a key becomes the
// leader and computes the value, later callers attach to the same in-flight
// entry and wait for it instead of issuing their own call. Completed entries
// stay for the life of the process (or until Clear).
package reqcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// Key returns the cache key for a piece of input text: the hex sha256 of the
// whitespace-trimmed text.
func Key(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// Cache is a per-key in-flight registry plus result store.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*Flight[V]
}

func New[V any]() *Cache[V] {
	return &Cache[V]{entries: make(map[string]*Flight[V])}
}

// Flight is one computation for one key. Exactly one caller (the leader)
// completes or abandons it; everyone else waits.
type Flight[V any] struct {
	cache *Cache[V]
	key   string
	ready chan struct{}
	once  sync.Once
	val   V
	err   error
}

// Begin returns the flight for key and whether the caller is its leader.
// The leader must eventually call Complete or Abandon, otherwise followers
// block until their context expires.
func (c *Cache[V]) Begin(key string) (*Flight[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.entries[key]; ok {
		return f, false
	}
	f := &Flight[V]{cache: c, key: key, ready: make(chan struct{})}
	c.entries[key] = f
	return f, true
}

// Lookup returns the value for key if a flight has already completed.
func (c *Cache[V]) Lookup(key string) (V, bool) {
	c.mu.Lock()
	f, ok := c.entries[key]
	c.mu.Unlock()
	var zero V
	if !ok {
		return zero, false
	}
	select {
	case <-f.ready:
		if f.err != nil {
			return zero, false
		}
		return f.val, true
	default:
		return zero, false
	}
}

// Clear drops all entries, completed and in-flight alike. In-flight leaders
// still resolve their waiters, but the results land in the discarded
// generation and are never served again.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*Flight[V])
	c.mu.Unlock()
}

// Len reports the number of entries, including in-flight ones.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Complete publishes the value and wakes all waiters. The entry remains
// cached until Clear.
func (f *Flight[V]) Complete(v V) {
	f.once.Do(func() {
		f.val = v
		close(f.ready)
	})
}

// Abandon wakes waiters with err and removes the entry so a later caller can
// retry the key.
func (f *Flight[V]) Abandon(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.ready)
		f.cache.mu.Lock()
		if f.cache.entries[f.key] == f {
			delete(f.cache.entries, f.key)
		}
		f.cache.mu.Unlock()
	})
}

// Wait blocks until the leader resolves the flight or ctx expires.
func (f *Flight[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-f.ready:
		return f.val, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}
