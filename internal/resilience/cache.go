package resilience

import (
	"container/list"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// cacheEntry is one cached result with its expiry time for TTL eviction.
type cacheEntry struct {
	key       string
	value     any
	expiresAt time.Time
}

// ttlLRU is a fixed-capacity, TTL-expiring LRU cache, grounded on the
// teacher's hand-rolled geocode result cache (a container/list-backed LRU
// keyed by normalized query string, used to avoid re-paying for Mapbox
// lookups of the same location within a run).
type ttlLRU struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	clock    clockwork.Clock
	ll       *list.List
	items    map[string]*list.Element
}

func newTTLLRU(capacity int, ttl time.Duration, clock clockwork.Clock) *ttlLRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &ttlLRU{
		capacity: capacity,
		ttl:      ttl,
		clock:    clock,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns the cached value for key, or (nil, false) if absent or
// expired. A hit moves the entry to the front (most-recently-used).
func (c *ttlLRU) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.clock.Now().After(entry.expiresAt) {
		c.ll.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return entry.value, true
}

// Put inserts or updates key, evicting the least-recently-used entry if the
// cache is at capacity.
func (c *ttlLRU) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).value = value
		el.Value.(*cacheEntry).expiresAt = c.clock.Now().Add(c.ttl)
		c.ll.MoveToFront(el)
		return
	}

	entry := &cacheEntry{key: key, value: value, expiresAt: c.clock.Now().Add(c.ttl)}
	el := c.ll.PushFront(entry)
	c.items[key] = el

	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len reports the number of live (possibly stale) entries.
func (c *ttlLRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
