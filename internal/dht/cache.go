package dht

import (
	"container/list"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// cacheEntry holds a cached value with expiration and LRU tracking.
type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
	elem      *list.Element // position in the LRU list
}

// TTLCache is a thread-safe, TTL-aware LRU cache. The lookup engine keys
// it by the z-base-32 identity of a public key and stores the verified
// signed packet with an expiration derived from the packet's own TTL.
//
// Entries are never proactively evicted on expiry; staleness is detected
// lazily on Get. LRU eviction only applies when capacity is exceeded.
type TTLCache[K comparable, V any] struct {
	mu sync.Mutex

	clk        clock.Clock
	maxEntries int

	lru  *list.List           // front = oldest, back = newest
	data map[K]*cacheEntry[V] // key -> entry mapping

	hits   int
	misses int
}

// NewTTLCache creates a cache bounded to maxEntries. A nil clk uses the
// real clock.
func NewTTLCache[K comparable, V any](maxEntries int, clk clock.Clock) *TTLCache[K, V] {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	if clk == nil {
		clk = clock.New()
	}
	return &TTLCache[K, V]{
		clk:        clk,
		maxEntries: maxEntries,
		lru:        list.New(),
		data:       map[K]*cacheEntry[V]{},
	}
}

// Get retrieves a value. Expired entries are removed and count as misses.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V
	now := c.clk.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.data[key]
	if e == nil {
		c.misses++
		return zero, false
	}
	if !e.expiresAt.After(now) {
		c.lru.Remove(e.elem)
		delete(c.data, key)
		c.misses++
		return zero, false
	}

	c.lru.MoveToBack(e.elem)
	c.hits++
	return e.value, true
}

// Set stores a value with the given TTL, overwriting any previous entry.
// Entries with ttl <= 0 are not stored.
func (c *TTLCache[K, V]) Set(key K, val V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	expires := c.clk.Now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing := c.data[key]; existing != nil {
		existing.value = val
		existing.expiresAt = expires
		c.lru.MoveToBack(existing.elem)
		return
	}

	e := &cacheEntry[V]{value: val, expiresAt: expires}
	e.elem = c.lru.PushBack(key)
	c.data[key] = e

	for len(c.data) > c.maxEntries {
		front := c.lru.Front()
		if front == nil {
			break
		}
		k := front.Value.(K)
		c.lru.Remove(front)
		delete(c.data, k)
	}
}

// Len returns the number of stored entries, including not-yet-collected
// expired ones.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Stats returns cumulative hit and miss counts.
func (c *TTLCache[K, V]) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
