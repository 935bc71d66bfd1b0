// Package querycache provides the LRU of computed issue orderings. Entries are
// keyed by store generation, so a write to the store makes every older entry
// unreachable; they are dropped as soon as a newer generation is seen.
package querycache

import (
	"sync"
	"sync/atomic"
)

// Key identifies one cached ordering.
type Key struct {
	Generation uint64
	Sort       string
}

type entry[V any] struct {
	key  Key
	val  V
	prev *entry[V]
	next *entry[V]
}

// Cache is a thread-safe LRU bounded by entry count.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    map[Key]*entry[V]
	head       *entry[V] // Most recently used.
	tail       *entry[V] // Least recently used.
	maxEntries int
	generation uint64

	hits   atomic.Int64
	misses atomic.Int64
	purges atomic.Int64
}

// New creates a cache holding at most maxEntries orderings. It returns nil
// when maxEntries is not positive; a nil cache misses on every lookup.
func New[V any](maxEntries int) *Cache[V] {
	if maxEntries <= 0 {
		return nil
	}

	return &Cache[V]{
		entries:    make(map[Key]*entry[V]),
		maxEntries: maxEntries,
	}
}

// Get returns the ordering for key.
func (c *Cache[V]) Get(key Key) (V, bool) {
	var zero V

	if c == nil {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.advance(key.Generation)

	ent, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)

		return zero, false
	}

	c.hits.Add(1)
	c.moveToFront(ent)

	return ent.val, true
}

// Put stores val under key. Values for generations older than the newest
// seen are ignored.
func (c *Cache[V]) Put(key Key, val V) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.advance(key.Generation)

	if key.Generation < c.generation {
		return
	}

	if ent, ok := c.entries[key]; ok {
		ent.val = val
		c.moveToFront(ent)

		return
	}

	for len(c.entries) >= c.maxEntries && c.tail != nil {
		victim := c.tail
		c.unlink(victim)
		delete(c.entries, victim.key)
	}

	ent := &entry[V]{key: key, val: val}
	c.entries[key] = ent
	c.pushFront(ent)
}

// Len returns the number of cached orderings.
func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Stats holds cache counters.
type Stats struct {
	Hits    int64
	Misses  int64
	Purges  int64
	Entries int
}

// HitRate returns hits over lookups, 0 without lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}

// Stats returns the current counters.
func (c *Cache[V]) Stats() Stats {
	if c == nil {
		return Stats{}
	}

	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Purges:  c.purges.Load(),
		Entries: c.Len(),
	}
}

// advance drops every entry when gen is newer than the current generation.
func (c *Cache[V]) advance(gen uint64) {
	if gen <= c.generation {
		return
	}

	c.generation = gen

	if len(c.entries) > 0 {
		c.entries = make(map[Key]*entry[V])
		c.head = nil
		c.tail = nil
		c.purges.Add(1)
	}
}

func (c *Cache[V]) moveToFront(ent *entry[V]) {
	if ent == c.head {
		return
	}

	c.unlink(ent)
	c.pushFront(ent)
}

func (c *Cache[V]) pushFront(ent *entry[V]) {
	ent.prev = nil
	ent.next = c.head

	if c.head != nil {
		c.head.prev = ent
	}

	c.head = ent

	if c.tail == nil {
		c.tail = ent
	}
}

func (c *Cache[V]) unlink(ent *entry[V]) {
	if ent.prev != nil {
		ent.prev.next = ent.next
	} else {
		c.head = ent.next
	}

	if ent.next != nil {
		ent.next.prev = ent.prev
	} else {
		c.tail = ent.prev
	}

	ent.prev = nil
	ent.next = nil
}
