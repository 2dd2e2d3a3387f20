package cache

import "sync"

// Cache is a cost-bounded LRU cache.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[K, V]
	// root is the sentinel of the recency ring: root.next is the most
	// recently used entry, root.prev the least.
	root   entry[K, V]
	budget int
	cost   int

	hits, misses, evictions uint64
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	cost       int
	prev, next *entry[K, V]
}

// New creates a cache holding at most budget cost units.
// A budget of 0 or less means unlimited.
func New[K comparable, V any](budget int) *Cache[K, V] {
	c := &Cache[K, V]{
		entries: make(map[K]*entry[K, V]),
		budget:  budget,
	}
	c.root.prev, c.root.next = &c.root, &c.root
	return c
}

func (c *Cache[K, V]) unlink(e *entry[K, V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
}

func (c *Cache[K, V]) pushFront(e *entry[K, V]) {
	e.prev = &c.root
	e.next = c.root.next
	c.root.next.prev = e
	c.root.next = e
}

func (c *Cache[K, V]) touch(e *entry[K, V]) {
	if c.root.next == e {
		return
	}
	c.unlink(e)
	c.pushFront(e)
}

// Get returns the value for key and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.touch(e)
	return e.value, true
}

// Set stores value under key with the given cost, replacing any previous
// entry, then evicts until the budget holds.
func (c *Cache[K, V]) Set(key K, value V, cost int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cost = max(cost, 0)
	if e, ok := c.entries[key]; ok {
		c.cost += cost - e.cost
		e.value, e.cost = value, cost
		c.touch(e)
	} else {
		e := &entry[K, V]{key: key, value: value, cost: cost}
		c.entries[key] = e
		c.pushFront(e)
		c.cost += cost
	}
	c.evict()
}

// Delete removes key. It reports whether the key was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.remove(e)
	return true
}

// Clear removes every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*entry[K, V])
	c.root.prev, c.root.next = &c.root, &c.root
	c.cost = 0
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Len:       len(c.entries),
		Cost:      c.cost,
		Budget:    c.budget,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *Cache[K, V]) remove(e *entry[K, V]) {
	c.unlink(e)
	c.cost -= e.cost
	delete(c.entries, e.key)
}

// evict drops least recently used entries until the total cost fits the
// budget. The most recent entry is never evicted. Caller must hold c.mu.
func (c *Cache[K, V]) evict() {
	if c.budget <= 0 {
		return
	}
	for c.cost > c.budget {
		oldest := c.root.prev
		if oldest == &c.root || oldest == c.root.next {
			return
		}
		c.remove(oldest)
		c.evictions++
	}
}

// Stats contains cache statistics.
type Stats struct {
	Len       int
	Cost      int
	Budget    int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}
