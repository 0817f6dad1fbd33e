package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/termdex/internal/resource"
)

// LRUBlockCache is a size-bounded least recently used BlockCache.
type LRUBlockCache struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	items    map[CacheKey]*list.Element
	order    *list.List
	rc       *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	key   CacheKey
	value []byte
}

// NewLRUBlockCache creates a cache holding up to capacity bytes. When rc is
// non-nil every cached byte is also charged to it; a denied charge skips
// caching rather than blocking.
func NewLRUBlockCache(capacity int64, rc *resource.Controller) *LRUBlockCache {
	return &LRUBlockCache{
		capacity: capacity,
		items:    make(map[CacheKey]*list.Element),
		order:    list.New(),
		rc:       rc,
	}
}

func (c *LRUBlockCache) Get(_ context.Context, key CacheKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.order.MoveToFront(e)
		return e.Value.(*entry).value, true
	}
	c.misses.Add(1)
	return nil, false
}

func (c *LRUBlockCache) Set(_ context.Context, key CacheKey, b []byte) {
	n := int64(len(b))
	if n > c.capacity {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		c.removeElement(e)
	}
	for c.size+n > c.capacity {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.removeElement(back)
	}
	if c.rc.AcquireMemory(n) != nil {
		return
	}

	c.items[key] = c.order.PushFront(&entry{key: key, value: b})
	c.size += n
}

func (c *LRUBlockCache) Invalidate(predicate func(key CacheKey) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var victims []*list.Element
	for key, e := range c.items {
		if predicate(key) {
			victims = append(victims, e)
		}
	}
	for _, e := range victims {
		c.removeElement(e)
	}
}

func (c *LRUBlockCache) removeElement(e *list.Element) {
	c.order.Remove(e)
	ent := e.Value.(*entry)
	delete(c.items, ent.key)
	n := int64(len(ent.value))
	c.size -= n
	c.rc.ReleaseMemory(n)
}

// Close drops every entry.
func (c *LRUBlockCache) Close() error {
	c.Invalidate(func(CacheKey) bool { return true })
	return nil
}

func (c *LRUBlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the cached bytes.
func (c *LRUBlockCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of cached blocks.
func (c *LRUBlockCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
