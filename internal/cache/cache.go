// Package cache holds query results keyed by query fingerprint.
//
// Entries are evicted in insertion order (FIFO) once the capacity is
// reached. Every entry remembers the tables its query read; a write to
// any of them invalidates it.
//
// Writers bracket their backend work with BeginWrite and EndWrite. While
// a table is fenced, lookups touching it miss and stores touching it are
// dropped, so the commit and the invalidation that follows it look like
// one step to readers. Readers that fill the cache take a Ticket before
// reading the backend; StoreIfCurrent rejects the result if any of its
// tables was written in between.
package cache

import (
	"container/list"
	"sync"

	"github.com/jchia/selda/internal/ir"
	"github.com/jchia/selda/internal/queryir"
)

// Entry is a cached query result.
type Entry struct {
	Rows    []ir.Row
	Columns []queryir.OutputColumn

	// Tables is the sorted read set of the query.
	Tables []string
}

func (e Entry) clone() Entry {
	return Entry{
		Rows:    ir.CloneRows(e.Rows),
		Columns: append([]queryir.OutputColumn(nil), e.Columns...),
		Tables:  append([]string(nil), e.Tables...),
	}
}

// Ticket records the write generation of a set of tables.
type Ticket struct {
	gens map[string]uint64
}

// Stats counts cache activity since creation.
type Stats struct {
	Hits          uint64
	Misses        uint64
	Stores        uint64
	Dropped       uint64 // stores refused by a fence or a stale ticket
	Evictions     uint64
	Invalidations uint64 // entries removed by writes
	Size          int
	Capacity      int
}

type item struct {
	key   ir.Fingerprint
	entry Entry
}

// Cache is a bounded FIFO result cache. Safe for concurrent use; the
// lock is only held for map and list operations.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front is oldest
	entries  map[ir.Fingerprint]*list.Element
	byTable  map[string]map[ir.Fingerprint]struct{}
	gens     map[string]uint64
	fences   map[string]int
	stats    Stats
}

// New creates a cache holding at most capacity entries.
// Capacity 0 disables caching.
func New(capacity int) *Cache {
	return &Cache{
		capacity: max(capacity, 0),
		order:    list.New(),
		entries:  make(map[ir.Fingerprint]*list.Element),
		byTable:  make(map[string]map[ir.Fingerprint]struct{}),
		gens:     make(map[string]uint64),
		fences:   make(map[string]int),
	}
}

// Lookup returns a copy of the entry stored under key.
func (c *Cache) Lookup(key ir.Fingerprint) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok || c.fencedLocked(el.Value.(*item).entry.Tables) {
		c.stats.Misses++
		return Entry{}, false
	}
	c.stats.Hits++
	return el.Value.(*item).entry.clone(), true
}

// Ticket snapshots the write generation of tables. Take it before
// reading the backend and hand it to StoreIfCurrent afterwards.
func (c *Cache) Ticket(tables []string) Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := Ticket{gens: make(map[string]uint64, len(tables))}
	for _, name := range tables {
		t.gens[name] = c.gens[name]
	}
	return t
}

// Store inserts entry under key unless one of its tables is fenced.
// Returns whether the entry was stored.
func (c *Cache) Store(key ir.Fingerprint, entry Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storeLocked(key, entry)
}

// StoreIfCurrent is Store that also refuses the entry when any table in
// the ticket was written since the ticket was taken.
func (c *Cache) StoreIfCurrent(ticket Ticket, key ir.Fingerprint, entry Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, gen := range ticket.gens {
		if c.gens[name] != gen {
			c.stats.Dropped++
			return false
		}
	}
	return c.storeLocked(key, entry)
}

func (c *Cache) storeLocked(key ir.Fingerprint, entry Entry) bool {
	if c.capacity == 0 {
		return false
	}
	if c.fencedLocked(entry.Tables) {
		c.stats.Dropped++
		return false
	}
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}

	entry = entry.clone()
	el := c.order.PushBack(&item{key: key, entry: entry})
	c.entries[key] = el
	for _, name := range entry.Tables {
		keys := c.byTable[name]
		if keys == nil {
			keys = make(map[ir.Fingerprint]struct{})
			c.byTable[name] = keys
		}
		keys[key] = struct{}{}
	}
	c.stats.Stores++
	c.evictLocked()
	return true
}

// Invalidate removes every entry that read one of tables and bumps
// their write generation.
func (c *Cache) Invalidate(tables []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked(tables)
}

func (c *Cache) invalidateLocked(tables []string) {
	for _, name := range tables {
		c.gens[name]++
		for key := range c.byTable[name] {
			if el, ok := c.entries[key]; ok {
				c.removeLocked(el)
				c.stats.Invalidations++
			}
		}
	}
}

// BeginWrite fences tables. Fences nest; each BeginWrite needs one
// EndWrite.
func (c *Cache) BeginWrite(tables []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, name := range tables {
		c.fences[name]++
		c.gens[name]++
	}
}

// EndWrite invalidates tables when the write took effect, then lifts
// the fence.
func (c *Cache) EndWrite(tables []string, invalidate bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if invalidate {
		c.invalidateLocked(tables)
	}
	for _, name := range tables {
		if c.fences[name] <= 1 {
			delete(c.fences, name)
		} else {
			c.fences[name]--
		}
	}
}

// SetCapacity changes the capacity. Shrinking evicts the oldest entries
// immediately; 0 empties and disables the cache.
func (c *Cache) SetCapacity(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.capacity = max(n, 0)
	c.evictLocked()
}

// Capacity returns the current capacity.
func (c *Cache) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry. Counters and generations are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.entries = make(map[ir.Fingerprint]*list.Element)
	c.byTable = make(map[string]map[ir.Fingerprint]struct{})
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Size = len(c.entries)
	s.Capacity = c.capacity
	return s
}

func (c *Cache) evictLocked() {
	for c.order.Len() > c.capacity {
		c.removeLocked(c.order.Front())
		c.stats.Evictions++
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	it := el.Value.(*item)
	c.order.Remove(el)
	delete(c.entries, it.key)
	for _, name := range it.entry.Tables {
		if keys := c.byTable[name]; keys != nil {
			delete(keys, it.key)
			if len(keys) == 0 {
				delete(c.byTable, name)
			}
		}
	}
}

func (c *Cache) fencedLocked(tables []string) bool {
	for _, name := range tables {
		if c.fences[name] > 0 {
			return true
		}
	}
	return false
}
