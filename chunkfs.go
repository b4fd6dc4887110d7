package chunkfs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mwantia/chunkfs/cache"
	"github.com/mwantia/chunkfs/chunk"
	"github.com/mwantia/chunkfs/data"
	"github.com/mwantia/chunkfs/log"
	"github.com/mwantia/chunkfs/meta"
	"github.com/mwantia/chunkfs/store"
	"github.com/mwantia/chunkfs/transfer"
)

// VirtualFileSystem presents a POSIX-like namespace whose file contents
// live as fixed-size chunks in an append-only object store. Metadata is
// kept in memory and persisted through periodic snapshots; chunk buffers
// pass through a bounded cache on their way to and from the store.
type VirtualFileSystem struct {
	mu   sync.RWMutex
	log  *log.Logger
	opts *VirtualFileSystemOptions

	store  store.VirtualObjectStore
	cache  *cache.Cache
	orch   *transfer.Orchestrator
	chunks *chunk.Manager
	tree   *meta.Tree

	mounted bool
	stop    chan struct{}
	bg      sync.WaitGroup

	snapMu   sync.Mutex
	snapshot []string
}

// NewVirtualFileSystem validates the configuration against the store's
// payload ceiling. Returns ErrChunkTooLarge if a chunk would not fit in
// a single store payload, and ErrCapacityExceeded if the cache cannot
// hold even one chunk.
func NewVirtualFileSystem(st store.VirtualObjectStore, opts ...VirtualFileSystemOption) (*VirtualFileSystem, error) {
	options := newDefaultVirtualFileSystemOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	if options.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d", data.ErrInvalid, options.ChunkSize)
	}
	if options.Workers <= 0 || options.QueueDepth <= 0 {
		return nil, fmt.Errorf("%w: workers %d, queue depth %d", data.ErrInvalid, options.Workers, options.QueueDepth)
	}
	if max := st.MaxPayloadSize(); options.ChunkSize > max {
		return nil, fmt.Errorf("%w: chunk size %d exceeds %s payload ceiling %d",
			data.ErrChunkTooLarge, options.ChunkSize, st.Name(), max)
	}
	if options.CacheCeiling < options.ChunkSize {
		return nil, fmt.Errorf("%w: cache ceiling %d below chunk size %d",
			data.ErrCapacityExceeded, options.CacheCeiling, options.ChunkSize)
	}

	logger := options.Logger
	if logger == nil {
		logger = log.NewLogger("chunkfs", options.LogLevel, options.LogFile, options.NoTerminalLog)
		logger.JSON = options.LogJSON
	}

	return &VirtualFileSystem{
		log:   logger,
		opts:  options,
		store: st,
	}, nil
}

// Mount opens the store, recovers the metadata tree from the latest
// snapshot and starts the transfer workers. Recovery failure aborts the
// mount; a missing snapshot yields an empty filesystem.
func (v *VirtualFileSystem) Mount(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.mounted {
		return data.ErrAlreadyMounted
	}

	if err := v.store.Open(ctx); err != nil {
		return fmt.Errorf("opening store %s: %w", v.store.Name(), err)
	}

	tree, orphans, err := meta.Recover(ctx, v.store, v.log.Named("meta"))
	if err != nil {
		v.store.Close(ctx)
		return err
	}

	v.tree = tree
	v.cache = cache.NewCache(v.opts.CacheCeiling, v.log.Named("cache"), cache.WithEvictFunc(v.onEvict))
	v.orch = transfer.NewOrchestrator(v.store, v.log.Named("transfer"), v.opts.Workers, v.opts.QueueDepth, v.opts.Retry)
	v.chunks = chunk.NewManager(v.cache, v.orch, v.log.Named("chunk"), v.opts.ChunkSize)

	v.orch.RestoreOrphans(orphans)
	v.orch.Start()

	v.mounted = true
	v.stop = make(chan struct{})

	if v.opts.SnapshotInterval > 0 {
		v.bg.Add(1)
		go v.background(v.opts.SnapshotInterval)
	}

	v.log.Info("mounted %s store: %d entries, %d orphans", v.store.Name(), tree.Len(), len(orphans))
	return nil
}

// Unmount drains pending transfers, takes a final snapshot and closes the
// store. Transfers still queued when ctx expires are abandoned; their
// chunks simply stay unreferenced in the store.
func (v *VirtualFileSystem) Unmount(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.mounted {
		return data.ErrNotMounted
	}

	close(v.stop)
	v.bg.Wait()

	if abandoned := v.orch.Drain(ctx); abandoned > 0 {
		v.log.Warn("unmount abandoned %d pending transfers", abandoned)
	}

	snapErr := v.persist(ctx, false)
	if snapErr != nil {
		v.log.Error("final snapshot failed: %v", snapErr)
	}

	if err := v.store.Close(ctx); err != nil {
		v.log.Warn("closing store %s: %v", v.store.Name(), err)
	}

	v.mounted = false
	v.log.Info("unmounted %s store", v.store.Name())
	return snapErr
}

// components returns the live subsystems, failing with ErrNotMounted when
// the filesystem is down. Operations hold no filesystem-wide lock beyond
// this check.
func (v *VirtualFileSystem) components() (*meta.Tree, *chunk.Manager, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if !v.mounted {
		return nil, nil, data.ErrNotMounted
	}
	return v.tree, v.chunks, nil
}

// onEvict runs after the cache dropped clean buffers. The chunk descriptors
// are downgraded to Evicted so future reads know to refetch.
func (v *VirtualFileSystem) onEvict(ids []data.VirtualChunkID) {
	v.mu.RLock()
	tree, chunks := v.tree, v.chunks
	v.mu.RUnlock()

	if tree == nil {
		return
	}

	for _, id := range ids {
		node, exists := tree.LookupID(id.Inode)
		if !exists {
			continue
		}

		node.Lock()
		chunks.MarkEvicted(node.Inode(), id.Index)
		node.Unlock()
	}
}

func (v *VirtualFileSystem) background(interval time.Duration) {
	defer v.bg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-v.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			v.orch.RetryOrphans(ctx)
			if err := v.persist(ctx, true); err != nil {
				v.log.Warn("periodic snapshot failed: %v", err)
			}
			cancel()
		}
	}
}

// persist writes a snapshot and retires the objects of the previous one.
// Retirement is deferred to the orchestrator when it is still running;
// during unmount the pool is drained, so deletes go straight to the store.
func (v *VirtualFileSystem) persist(ctx context.Context, viaPool bool) error {
	v.snapMu.Lock()
	defer v.snapMu.Unlock()

	handles, err := v.tree.Snapshot(ctx, v.store, v.orch.Orphans())
	if err != nil {
		return err
	}

	for _, handle := range v.snapshot {
		if viaPool {
			v.orch.ScheduleDelete(handle)
			continue
		}
		if err := v.store.Delete(ctx, handle); err != nil {
			v.log.Debug("retiring snapshot object %s: %v", handle, err)
		}
	}

	v.snapshot = handles
	return nil
}

// Stat returns file information for the given path.
func (v *VirtualFileSystem) Stat(ctx context.Context, path string) (*data.VirtualFileInfo, error) {
	tree, _, err := v.components()
	if err != nil {
		return nil, err
	}

	node, err := tree.Lookup(path)
	if err != nil {
		return nil, err
	}

	node.Lock()
	defer node.Unlock()

	return node.Inode().ToFileInfo(node.Path()), nil
}

// ReadDir lists the committed entries of a directory.
func (v *VirtualFileSystem) ReadDir(ctx context.Context, path string) ([]*data.VirtualFileInfo, error) {
	tree, _, err := v.components()
	if err != nil {
		return nil, err
	}
	return tree.Readdir(path)
}

// Mkdir creates a directory. The parent must already exist.
func (v *VirtualFileSystem) Mkdir(ctx context.Context, path string, mode data.VirtualFileMode) error {
	tree, _, err := v.components()
	if err != nil {
		return err
	}

	_, err = tree.Create(path, data.FileTypeDirectory, mode.Perm()|data.ModeDir)
	return err
}

// Remove unlinks a file. Its chunks are dropped from the cache, in-flight
// uploads are left to settle into scheduled deletes, and durable objects
// are queued for removal from the store.
func (v *VirtualFileSystem) Remove(ctx context.Context, path string) error {
	tree, chunks, err := v.components()
	if err != nil {
		return err
	}

	node, err := tree.Unlink(path)
	if err != nil {
		return err
	}

	node.Lock()
	chunks.Discard(node.Inode())
	node.Unlock()

	return nil
}

// Rmdir removes an empty directory.
func (v *VirtualFileSystem) Rmdir(ctx context.Context, path string) error {
	tree, _, err := v.components()
	if err != nil {
		return err
	}
	return tree.Rmdir(path)
}

// Rename moves a file or directory subtree. Chunk data is untouched: the
// store keys content by chunk identity, not by path, so no transfer
// traffic results.
func (v *VirtualFileSystem) Rename(ctx context.Context, src, dst string) error {
	tree, _, err := v.components()
	if err != nil {
		return err
	}
	return tree.Rename(src, dst)
}

// Truncate resizes a file. Shrinking discards or trims chunks past the new
// size; growing extends the file with a sparse zero-filled tail.
func (v *VirtualFileSystem) Truncate(ctx context.Context, path string, size int64) error {
	tree, chunks, err := v.components()
	if err != nil {
		return err
	}

	if size < 0 {
		return data.ErrInvalid
	}

	node, err := tree.Lookup(path)
	if err != nil {
		return err
	}

	node.Lock()
	defer node.Unlock()

	if node.Inode().IsDir() {
		return data.ErrIsDirectory
	}

	return chunks.Truncate(ctx, node.Inode(), size)
}
