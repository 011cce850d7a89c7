// Package cache provides the bounded expiring key-value store backing the
// beatmap, leaderboard and stats caches.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// Cache is a map with per-entry expiry and a global size cap. Eviction order
// is insertion order, not access order: a Get never refreshes an entry, so
// despite the informal "LRU" naming this is FIFO-with-TTL.
//
// All operations are total: there is no error path.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	items    map[K]*list.Element
	order    *list.List // front = newest insert, back = oldest
	ttl      time.Duration
	capacity int
}

func New[K comparable, V any](ttl time.Duration, capacity int) *Cache[K, V] {
	return &Cache[K, V]{
		items:    make(map[K]*list.Element),
		order:    list.New(),
		ttl:      ttl,
		capacity: capacity,
	}
}

// Put inserts or overwrites the value under key, resetting its expiry, then
// runs the maintenance pass (expiry sweep + capacity eviction).
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.Remove(elem)
		delete(c.items, key)
	}

	e := &entry[K, V]{key: key, value: value, expiresAt: time.Now().Add(c.ttl)}
	c.items[key] = c.order.PushFront(e)

	c.maintain()
}

// Get returns the value if present and unexpired. It never mutates the cache:
// expired entries are only reaped by the maintenance pass.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}

	e := elem.Value.(*entry[K, V])
	if time.Now().After(e.expiresAt) {
		return zero, false
	}
	return e.value, true
}

// Remove drops the entry if present. Removing an absent key is a no-op.
func (c *Cache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.Remove(elem)
		delete(c.items, key)
	}
}

// RemoveMatching drops every entry whose key satisfies match and returns how
// many were removed. Callers use it to drop a whole key namespace, e.g. every
// leaderboard of one beatmap.
func (c *Cache[K, V]) RemoveMatching(match func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		e := elem.Value.(*entry[K, V])
		if match(e.key) {
			c.order.Remove(elem)
			delete(c.items, e.key)
			removed++
		}
		elem = next
	}
	return removed
}

// Len reports the number of entries currently held, expired or not.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns a snapshot of all cached keys, newest insert first.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, len(c.items))
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*entry[K, V]).key)
	}
	return keys
}

// Values returns a snapshot of all unexpired cached values.
func (c *Cache[K, V]) Values() []V {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	values := make([]V, 0, len(c.items))
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*entry[K, V])
		if now.After(e.expiresAt) {
			continue
		}
		values = append(values, e.value)
	}
	return values
}

// maintain sweeps expired entries, then evicts oldest-inserted entries until
// the size cap holds. Caller must hold c.mu.
func (c *Cache[K, V]) maintain() {
	now := time.Now()
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		e := elem.Value.(*entry[K, V])
		if now.After(e.expiresAt) {
			c.order.Remove(elem)
			delete(c.items, e.key)
		}
		elem = next
	}

	for len(c.items) > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			return
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*entry[K, V]).key)
	}
}
