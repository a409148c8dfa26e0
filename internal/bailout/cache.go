package bailout

import (
	"container/list"
	"sync"
	"time"
)

// entry is a cached bailout resolution for one processId: either a resolved
// origin sequence, or explicitly "no override" (Hosts == nil && Negative).
type entry struct {
	Hosts     []string
	Owner     string
	Negative  bool
	ExpiresAt time.Time
}

// cacheItem pairs a key with its entry for storage in the LRU list. Adapted
// from the teacher's internal/proxy/cache.go lruCache, which cached
// CachedResponse (HTTP bodies) keyed by request; here it caches resolved
// origin sequences keyed by processId. Same container/list-backed LRU
// mechanism, same TTL-on-read staleness check.
type cacheItem struct {
	key string
	val *entry
}

// ttlLRU is a small thread-safe LRU cache with a TTL per item, sized and
// timed per spec §4.3/§9's open question ("choose an LRU with TTL e.g. 5
// min" — documented decision in SPEC_FULL.md).
type ttlLRU struct {
	mu         sync.Mutex
	order      *list.List
	items      map[string]*list.Element
	maxEntries int
	ttl        time.Duration
}

func newTTLLRU(maxEntries int, ttl time.Duration) *ttlLRU {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ttlLRU{
		order:      list.New(),
		items:      make(map[string]*list.Element),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// get returns the cached entry and whether it is still fresh. A stale (but
// present) entry is evicted and reported as a miss so the caller re-resolves.
func (c *ttlLRU) get(key string) (*entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	it := elem.Value.(*cacheItem)
	if time.Now().After(it.val.ExpiresAt) {
		c.removeElement(elem)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return it.val, true
}

// set stores or refreshes an entry, evicting the least-recently-used item
// when the cache is over capacity.
func (c *ttlLRU) set(key string, val *entry) {
	val.ExpiresAt = time.Now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*cacheItem).val = val
		c.order.MoveToFront(elem)
		return
	}
	elem := c.order.PushFront(&cacheItem{key: key, val: val})
	c.items[key] = elem
	if c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		if oldest != nil {
			c.removeElement(oldest)
		}
	}
}

func (c *ttlLRU) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*cacheItem).key)
}
