// Package cache implements the shared TTL result cache read through by
// every provider adapter.
package cache

import (
	"container/list"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var foldCaser = cases.Fold()

// Key returns the deterministic cache key for a provider call: sha256 of
// the provider id and the normalized query parameters. Normalization is
// Unicode NFC + case folding + whitespace collapse so that visually
// identical Korean and Latin queries key identically.
func Key(providerID string, params ...string) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, providerID)
	for _, p := range params {
		parts = append(parts, Normalize(p))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%x", sum)
}

// Normalize canonicalizes one query parameter.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = foldCaser.String(s)
	return strings.Join(strings.Fields(s), " ")
}

type entry struct {
	key        string
	payload    any
	insertedAt time.Time
	expiresAt  time.Time
	elem       *list.Element
}

// Cache is a process-wide TTL cache with lazy eviction on read, an
// optional insertion-order capacity cap, and an optional periodic sweep.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // oldest insertion at front
	cap     int

	hits   uint64
	misses uint64

	nowFunc func() time.Time
	done    chan struct{}
	stopped sync.Once
}

// Option configures the cache.
type Option func(*Cache)

// WithCapacity bounds the number of entries; the oldest insertion is
// evicted when the cap is exceeded. Zero means unbounded.
func WithCapacity(n int) Option {
	return func(c *Cache) { c.cap = n }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		order:   list.New(),
		nowFunc: time.Now,
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the payload for key, or ok=false on a miss. An entry read
// at or past its expiry counts as a miss and is evicted.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if !c.nowFunc().Before(e.expiresAt) {
		c.removeLocked(e)
		c.misses++
		return nil, false
	}
	c.hits++
	return e.payload, true
}

// Put stores payload under key for ttl. A non-positive ttl means the
// payload must not be cached (language generation is always
// query-specific) and is a no-op.
func (c *Cache) Put(key string, payload any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	if old, ok := c.entries[key]; ok {
		c.removeLocked(old)
	}
	e := &entry{
		key:        key,
		payload:    payload,
		insertedAt: now,
		expiresAt:  now.Add(ttl),
	}
	e.elem = c.order.PushBack(e)
	c.entries[key] = e

	for c.cap > 0 && len(c.entries) > c.cap {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(*entry))
	}
}

// Len returns the current entry count, expired entries included until
// they are read or swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cumulative hit/miss counters.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// StartSweeper evicts expired entries every interval until Stop is
// called. Lazy read-side eviction makes this optional; it only bounds
// memory for keys that are never read again.
func (c *Cache) StartSweeper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
				if n := c.sweep(); n > 0 {
					zap.L().Debug("cache sweep", zap.Int("evicted", n))
				}
			}
		}
	}()
}

// Stop terminates the sweeper goroutine.
func (c *Cache) Stop() {
	c.stopped.Do(func() { close(c.done) })
}

func (c *Cache) sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	evicted := 0
	for e := c.order.Front(); e != nil; {
		next := e.Next()
		ent := e.Value.(*entry)
		if !now.Before(ent.expiresAt) {
			c.removeLocked(ent)
			evicted++
		}
		e = next
	}
	return evicted
}

func (c *Cache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	c.order.Remove(e.elem)
}
