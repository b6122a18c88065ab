// Package cache implements the short-lived, TTL-bounded response cache
// that collapses repeated (backend, selector, operation, payload) queries.
// All mutation is serialized by a single mutex; nothing here ever blocks
// on I/O while holding it, matching the concurrency model in the design
// notes.
package cache

import (
	"sync"
	"time"
)

// Key is the 5-tuple identifying a cacheable query. Equality is
// componentwise; no field has ordering semantics, so Key is a plain
// comparable struct rather than something implementing a Less method.
type Key struct {
	BackendHost    string
	Community      string
	CommunityIndex string
	PDUType        byte
	Data           string // raw PDU-suffix bytes, as a map-friendly string
}

// Value is a cached response body plus its insertion time.
type Value struct {
	ResponseData []byte
	InsertedAt   time.Time
}

// Cache is a mapping from Key to Value with TTL-based freshness. The zero
// value is not usable; construct with New.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]Value
	ttl     time.Duration
	now     func() time.Time
}

// New creates an empty cache with the given entry TTL. now defaults to
// time.Now; tests may override it to control freshness deterministically.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[Key]Value),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock overrides the cache's time source. Intended for tests only.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Lookup returns the cached value for key if present and fresh. A stale
// entry is removed and reported as a miss.
func (c *Cache) Lookup(key Key) (Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries[key]
	if !ok {
		return Value{}, false
	}
	if c.now().Sub(v.InsertedAt) > c.ttl {
		delete(c.entries, key)
		return Value{}, false
	}
	return v, true
}

// Insert stores response under key, stamped with the current time,
// overwriting any prior entry for the same key.
func (c *Cache) Insert(key Key, response []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = Value{
		ResponseData: append([]byte(nil), response...),
		InsertedAt:   c.now(),
	}
}

// Sweep drops every stale entry and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	now := c.now()
	for k, v := range c.entries {
		if now.Sub(v.InsertedAt) > c.ttl {
			delete(c.entries, k)
			evicted++
		}
	}
	return evicted
}

// Len returns the current entry count, including any not-yet-swept stale
// entries. Used for the operator status snapshot and the cache-entries
// gauge.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TTL returns the cache's configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}
