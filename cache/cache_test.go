package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mwantia/chunkfs/cache"
	"github.com/mwantia/chunkfs/data"
)

func chunkID(index int) data.VirtualChunkID {
	return data.VirtualChunkID{Inode: "inode-test", Index: index}
}

func TestCache_PutGet(t *testing.T) {
	ctx := t.Context()
	c := cache.NewCache(64, nil)

	id := chunkID(0)
	if err := c.Put(ctx, id, []byte("hello"), false); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	buf, exists := c.Get(id)
	if !exists {
		t.Fatal("Expected cache hit")
	}
	if string(buf) != "hello" {
		t.Errorf("Expected %q, got %q", "hello", buf)
	}

	if _, exists := c.Get(chunkID(99)); exists {
		t.Error("Expected cache miss for unknown id")
	}

	if c.Resident() != 5 {
		t.Errorf("Expected 5 resident bytes, got %d", c.Resident())
	}
}

func TestCache_ReplaceAdjustsAccounting(t *testing.T) {
	ctx := t.Context()
	c := cache.NewCache(64, nil)

	id := chunkID(0)
	if err := c.Put(ctx, id, []byte("short"), true); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := c.Put(ctx, id, []byte("a longer buffer"), true); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	if c.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", c.Len())
	}
	if c.Resident() != 15 {
		t.Errorf("Expected 15 resident bytes, got %d", c.Resident())
	}
	if c.DirtyBytes() != 15 {
		t.Errorf("Expected 15 dirty bytes, got %d", c.DirtyBytes())
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := t.Context()

	evicted := make(chan data.VirtualChunkID, 8)
	c := cache.NewCache(3, nil, cache.WithEvictFunc(func(ids []data.VirtualChunkID) {
		for _, id := range ids {
			evicted <- id
		}
	}))

	for i := 0; i < 3; i++ {
		if err := c.Put(ctx, chunkID(i), []byte{byte(i)}, false); err != nil {
			t.Fatalf("Put %d failed: %v", i, err)
		}
	}

	// Touch chunk 0 so chunk 1 becomes the eviction candidate.
	if _, exists := c.Get(chunkID(0)); !exists {
		t.Fatal("Expected hit on chunk 0")
	}

	if err := c.Put(ctx, chunkID(3), []byte{3}, false); err != nil {
		t.Fatalf("Put 3 failed: %v", err)
	}

	select {
	case id := <-evicted:
		if id != chunkID(1) {
			t.Errorf("Expected chunk 1 evicted, got %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("Eviction callback never fired")
	}

	if c.Contains(chunkID(1)) {
		t.Error("Evicted chunk still cached")
	}
	if !c.Contains(chunkID(0)) || !c.Contains(chunkID(2)) || !c.Contains(chunkID(3)) {
		t.Error("Expected chunks 0, 2, 3 to remain cached")
	}
}

func TestCache_DirtyNeverEvicted(t *testing.T) {
	ctx := t.Context()
	c := cache.NewCache(2, nil)

	if err := c.Put(ctx, chunkID(0), []byte{0}, true); err != nil {
		t.Fatalf("Put dirty failed: %v", err)
	}
	if err := c.Put(ctx, chunkID(1), []byte{1}, false); err != nil {
		t.Fatalf("Put clean failed: %v", err)
	}

	// Admitting another byte can only evict the clean entry.
	if err := c.Put(ctx, chunkID(2), []byte{2}, false); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if !c.Contains(chunkID(0)) {
		t.Error("Dirty chunk was evicted")
	}
	if c.Contains(chunkID(1)) {
		t.Error("Expected clean chunk to be evicted instead")
	}
}

func TestCache_BackpressureReleasedByMarkClean(t *testing.T) {
	ctx := t.Context()
	c := cache.NewCache(2, nil)

	if err := c.Put(ctx, chunkID(0), []byte{0, 1}, true); err != nil {
		t.Fatalf("Put dirty failed: %v", err)
	}

	admitted := make(chan error, 1)
	go func() {
		admitted <- c.Put(ctx, chunkID(1), []byte{2, 3}, true)
	}()

	select {
	case err := <-admitted:
		t.Fatalf("Put admitted despite pinned ceiling: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	// Upload completion unpins chunk 0, making room.
	c.MarkClean(chunkID(0))

	select {
	case err := <-admitted:
		if err != nil {
			t.Fatalf("Put failed after MarkClean: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Put still blocked after MarkClean")
	}

	if !c.Contains(chunkID(1)) {
		t.Error("Admitted chunk missing from cache")
	}
}

func TestCache_BackpressureReleasedByRemove(t *testing.T) {
	ctx := t.Context()
	c := cache.NewCache(1, nil)

	if err := c.Put(ctx, chunkID(0), []byte{0}, true); err != nil {
		t.Fatalf("Put dirty failed: %v", err)
	}

	admitted := make(chan error, 1)
	go func() {
		admitted <- c.Put(ctx, chunkID(1), []byte{1}, false)
	}()

	time.Sleep(50 * time.Millisecond)
	c.Remove(chunkID(0))

	select {
	case err := <-admitted:
		if err != nil {
			t.Fatalf("Put failed after Remove: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Put still blocked after Remove")
	}
}

func TestCache_BackpressureCancellation(t *testing.T) {
	c := cache.NewCache(1, nil)

	if err := c.Put(t.Context(), chunkID(0), []byte{0}, true); err != nil {
		t.Fatalf("Put dirty failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	err := c.Put(ctx, chunkID(1), []byte{1}, false)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected DeadlineExceeded, got %v", err)
	}

	if c.Contains(chunkID(1)) {
		t.Error("Cancelled Put left an entry behind")
	}
}

func TestCache_MarkDirtyPins(t *testing.T) {
	ctx := t.Context()
	c := cache.NewCache(1, nil)

	if err := c.Put(ctx, chunkID(0), []byte{0}, false); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	c.MarkDirty(chunkID(0))
	if c.DirtyBytes() != 1 {
		t.Errorf("Expected 1 dirty byte, got %d", c.DirtyBytes())
	}

	// The pinned entry cannot be evicted, so a second Put must not be
	// admitted.
	ctx2, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	if err := c.Put(ctx2, chunkID(1), []byte{1}, false); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected DeadlineExceeded, got %v", err)
	}
}
