// Package cache implements the bounded-memory chunk buffer cache. Resident
// bytes (clean plus dirty) never exceed the configured ceiling: clean
// entries are reclaimed in least-recently-used order, dirty entries are
// pinned and bounded by blocking the writer until uploads complete.
package cache

import (
	"container/list"
	"context"
	"sync"

	"github.com/mwantia/chunkfs/data"
	"github.com/mwantia/chunkfs/log"
)

// EvictFunc is notified after clean buffers have been dropped. It runs on
// its own goroutine without the cache lock held, so it may call back into
// the cache or take inode locks.
type EvictFunc func(ids []data.VirtualChunkID)

type entry struct {
	id    data.VirtualChunkID
	buf   []byte
	dirty bool

	// elem is the entry's position in the LRU list; nil while dirty,
	// since dirty entries are not eligible for eviction.
	elem *list.Element
}

// Cache is the bounded-memory buffer store for chunk payloads. Buffers are
// exclusively owned by their entry: eviction and removal are the only
// paths that release them, making reclamation deterministic.
type Cache struct {
	mu   sync.Mutex
	cond *sync.Cond
	log  *log.Logger

	ceiling  int64
	resident int64
	dirty    int64

	entries map[data.VirtualChunkID]*entry
	lru     *list.List // clean entries only, front = most recently used

	onEvict EvictFunc
}

type CacheOption func(*Cache)

// WithEvictFunc registers a callback for dropped clean buffers.
func WithEvictFunc(fn EvictFunc) CacheOption {
	return func(c *Cache) {
		c.onEvict = fn
	}
}

// NewCache creates a cache bounded to ceiling bytes.
func NewCache(ceiling int64, logger *log.Logger, opts ...CacheOption) *Cache {
	if logger == nil {
		logger = log.Discard()
	}

	c := &Cache{
		log:     logger,
		ceiling: ceiling,
		entries: make(map[data.VirtualChunkID]*entry),
		lru:     list.New(),
	}
	c.cond = sync.NewCond(&c.mu)

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get returns the buffer cached under id, or nil when absent. A hit on a
// clean entry refreshes its LRU position. The returned slice is the cache's
// buffer; callers writing into it must hold the chunk dirty.
func (c *Cache) Get(id data.VirtualChunkID) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, exists := c.entries[id]
	if !exists {
		return nil, false
	}

	if ent.elem != nil {
		c.lru.MoveToFront(ent.elem)
	}

	return ent.buf, true
}

// Contains reports whether a buffer is cached under id.
func (c *Cache) Contains(id data.VirtualChunkID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, exists := c.entries[id]
	return exists
}

// Put inserts or replaces the buffer cached under id. Admission evicts
// clean entries in LRU order until the new total fits the ceiling; if
// dirty entries alone still exceed it, Put blocks until uploads complete
// (backpressure) or ctx is cancelled. The cache takes ownership of buf.
func (c *Cache) Put(ctx context.Context, id data.VirtualChunkID, buf []byte, dirty bool) error {
	c.mu.Lock()

	// Wake the admission loop if the caller gives up.
	stop := context.AfterFunc(ctx, c.cond.Broadcast)
	defer stop()

	need := int64(len(buf))
	for {
		if err := ctx.Err(); err != nil {
			c.mu.Unlock()
			return err
		}

		// The entry being replaced may itself get evicted while waiting,
		// so its current size is re-read every pass.
		var replaced int64
		if ent, exists := c.entries[id]; exists {
			replaced = int64(len(ent.buf))
		}

		if c.resident-replaced+need <= c.ceiling {
			break
		}

		if c.evictOne() {
			continue
		}

		// Nothing left to evict: the remaining residency is pinned dirty
		// memory. Suspend until an upload completes or an entry is
		// removed.
		c.log.Debug("Put: backpressure for %s (resident=%d dirty=%d need=%d ceiling=%d)",
			id, c.resident, c.dirty, need, c.ceiling)
		c.cond.Wait()
	}

	if ent, exists := c.entries[id]; exists {
		replaced := int64(len(ent.buf))
		c.resident += need - replaced
		if ent.dirty {
			c.dirty += need - replaced
		}
		ent.buf = buf
		c.setDirtyLocked(ent, dirty)
	} else {
		ent := &entry{id: id, buf: buf, dirty: dirty}
		c.entries[id] = ent
		c.resident += need
		if dirty {
			c.dirty += need
		} else {
			ent.elem = c.lru.PushFront(ent)
		}
	}

	c.mu.Unlock()
	return nil
}

// MarkClean flips the entry under id to clean after its upload confirmed,
// making it evictable and releasing writers blocked on the ceiling.
func (c *Cache) MarkClean(id data.VirtualChunkID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, exists := c.entries[id]
	if !exists || !ent.dirty {
		return
	}

	c.setDirtyLocked(ent, false)
	c.cond.Broadcast()
}

// MarkDirty pins the entry under id, for example when a durable chunk is
// re-opened for an overwrite.
func (c *Cache) MarkDirty(id data.VirtualChunkID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, exists := c.entries[id]
	if !exists || ent.dirty {
		return
	}

	c.setDirtyLocked(ent, true)
}

// Remove drops the entry under id unconditionally, dirty or not. Used when
// a chunk transitions to Deleted.
func (c *Cache) Remove(id data.VirtualChunkID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, exists := c.entries[id]
	if !exists {
		return
	}

	c.dropLocked(ent)
	c.cond.Broadcast()
}

// Resident returns the total buffer bytes currently held, clean plus
// dirty.
func (c *Cache) Resident() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.resident
}

// DirtyBytes returns the bytes held by pinned entries.
func (c *Cache) DirtyBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.dirty
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// evictOne drops the least recently used clean entry. Returns false when
// no clean entry remains. Must be called with the lock held.
func (c *Cache) evictOne() bool {
	back := c.lru.Back()
	if back == nil {
		return false
	}

	ent := back.Value.(*entry)
	c.log.Debug("evict: dropping %s (%d bytes)", ent.id, len(ent.buf))
	c.dropLocked(ent)

	if c.onEvict != nil {
		ids := []data.VirtualChunkID{ent.id}
		go c.onEvict(ids)
	}

	return true
}

// dropLocked removes an entry and releases its buffer. Must be called with
// the lock held.
func (c *Cache) dropLocked(ent *entry) {
	if ent.elem != nil {
		c.lru.Remove(ent.elem)
		ent.elem = nil
	}

	c.resident -= int64(len(ent.buf))
	if ent.dirty {
		c.dirty -= int64(len(ent.buf))
	}

	ent.buf = nil
	delete(c.entries, ent.id)
}

// setDirtyLocked moves an entry between the pinned set and the LRU. Must
// be called with the lock held.
func (c *Cache) setDirtyLocked(ent *entry, dirty bool) {
	if ent.dirty == dirty {
		if !dirty && ent.elem != nil {
			c.lru.MoveToFront(ent.elem)
		}
		return
	}

	ent.dirty = dirty
	if dirty {
		c.dirty += int64(len(ent.buf))
		if ent.elem != nil {
			c.lru.Remove(ent.elem)
			ent.elem = nil
		}
	} else {
		c.dirty -= int64(len(ent.buf))
		ent.elem = c.lru.PushFront(ent)
	}
}
