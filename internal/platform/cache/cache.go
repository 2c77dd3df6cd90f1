package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Policy combines a hard deadline measured from population with an optional
// idle timeout measured from the last hit. A zero duration disables that part.
type Policy struct {
	Absolute time.Duration
	Sliding  time.Duration
}

type entry[V any] struct {
	value       V
	policy      Policy
	generation  uint64
	populatedAt time.Time
	lastAccess  time.Time
}

func (p Policy) expired(populatedAt, lastAccess, now time.Time) bool {
	if p.Absolute > 0 && !now.Before(populatedAt.Add(p.Absolute)) {
		return true
	}
	if p.Sliding > 0 && !now.Before(lastAccess.Add(p.Sliding)) {
		return true
	}
	return false
}

// Cache is a process-local, size-bounded map with per-entry expiry policies.
// Every key also carries a generation that Remove advances, so a value computed
// before an invalidation can be refused by SetIfGeneration.
type Cache[V any] struct {
	mu          sync.Mutex
	items       *lru.Cache[string, *entry[V]]
	generations map[string]uint64
	now         func() time.Time
}

func New[V any](size int, now func() time.Time) (*Cache[V], error) {
	items, err := lru.New[string, *entry[V]](size)
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{items: items, generations: make(map[string]uint64), now: now}, nil
}

// Get returns the live value for key. An expired entry is dropped on access.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items.Get(key)
	if !ok {
		return zero, false
	}
	now := c.now()
	if e.generation != c.generations[key] || e.policy.expired(e.populatedAt, e.lastAccess, now) {
		c.items.Remove(key)
		return zero, false
	}
	e.lastAccess = now
	return e.value, true
}

func (c *Cache[V]) Generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[key]
}

func (c *Cache[V]) Set(key string, value V, policy Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(key, value, policy)
}

// SetIfGeneration stores value only if key has not been removed since gen was read.
func (c *Cache[V]) SetIfGeneration(key string, gen uint64, value V, policy Policy) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[key] != gen {
		return false
	}
	c.store(key, value, policy)
	return true
}

func (c *Cache[V]) store(key string, value V, policy Policy) {
	now := c.now()
	c.items.Add(key, &entry[V]{
		value:       value,
		policy:      policy,
		generation:  c.generations[key],
		populatedAt: now,
		lastAccess:  now,
	})
}

// Remove evicts key immediately and advances its generation.
func (c *Cache[V]) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[key]++
	c.items.Remove(key)
}

func (c *Cache[V]) Len() int {
	return c.items.Len()
}
