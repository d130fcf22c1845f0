package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU is a bounded in-memory cache with per-entry TTL. Expired entries are
// dropped lazily on Get. Safe for concurrent use.
type LRU[V any] struct {
	mu      sync.Mutex
	max     int
	order   *list.List
	entries map[string]*list.Element

	// now is swappable for tests.
	now func() time.Time
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// NewLRU creates a cache holding at most max entries. max must be positive.
func NewLRU[V any](max int) *LRU[V] {
	if max <= 0 {
		max = 1
	}
	return &LRU[V]{
		max:     max,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Get returns the cached value for key, if present and unexpired.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	ent := el.Value.(*entry[V])
	if c.now().After(ent.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		return zero, false
	}
	c.order.MoveToFront(el)
	return ent.value, true
}

// Put stores value under key for ttl, evicting the least recently used
// entry when the cache is full.
func (c *LRU[V]) Put(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(ttl)
	if el, ok := c.entries[key]; ok {
		ent := el.Value.(*entry[V])
		ent.value = value
		ent.expiresAt = expires
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.max {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*entry[V]).key)
		}
	}
	c.entries[key] = c.order.PushFront(&entry[V]{key: key, value: value, expiresAt: expires})
}

// Len returns the number of entries currently held, including any expired
// entries not yet evicted.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
