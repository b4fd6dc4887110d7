// Package chunk translates between the flat byte-offset space of a file
// and the bounded-size objects stored remotely. It owns the write and read
// assembly paths and tracks in-flight uploads per file.
package chunk

import (
	"context"
	"io"
	"sync"

	"github.com/mwantia/chunkfs/cache"
	"github.com/mwantia/chunkfs/data"
	"github.com/mwantia/chunkfs/log"
	"github.com/mwantia/chunkfs/transfer"
)

// Manager coordinates chunk buffers between the cache, the transfer
// orchestrator and inode chunk descriptors. Callers must hold the owning
// inode's lock across every call that takes an inode.
type Manager struct {
	mu  sync.Mutex
	log *log.Logger

	cache     *cache.Cache
	orch      *transfer.Orchestrator
	chunkSize int64

	// pendings tracks queued uploads per inode ID, in enqueue order.
	pendings map[string][]*pendingChunk
}

// pendingChunk follows one queued upload until it settles. A chunk whose
// buffer is modified or dropped while its upload is in flight is marked
// stale; its upload result is discarded and the landed object deleted.
type pendingChunk struct {
	id      data.VirtualChunkID
	index   int
	length  int64
	pending *transfer.Pending

	settled bool
	stale   bool
	handle  string
	err     error
}

func NewManager(c *cache.Cache, orch *transfer.Orchestrator, logger *log.Logger, chunkSize int64) *Manager {
	if logger == nil {
		logger = log.Discard()
	}

	return &Manager{
		log:       logger,
		cache:     c,
		orch:      orch,
		chunkSize: chunkSize,
		pendings:  make(map[string][]*pendingChunk),
	}
}

// ChunkSize returns the configured maximum chunk size.
func (m *Manager) ChunkSize() int64 {
	return m.chunkSize
}

// Split partitions a payload into chunk-sized slices. A nil or empty
// payload yields a single empty part. Used by the metadata snapshot path.
func Split(payload []byte, max int64) [][]byte {
	if len(payload) == 0 {
		return [][]byte{{}}
	}

	parts := make([][]byte, 0, (int64(len(payload))+max-1)/max)
	for start := int64(0); start < int64(len(payload)); start += max {
		end := min(start+max, int64(len(payload)))
		parts = append(parts, payload[start:end])
	}

	return parts
}

// WriteAt copies p into the file at off, creating, dirtying or re-fetching
// the touched chunks as their lifecycle state requires. Full chunks are
// queued for upload immediately.
func (m *Manager) WriteAt(ctx context.Context, ino *data.VirtualInode, off int64, p []byte) (int, error) {
	if off < 0 {
		return 0, data.ErrInvalid
	}
	if len(p) == 0 {
		return 0, nil
	}

	// Writes into a sparse tail materialize every chunk up to the first
	// touched index, so descriptors stay gapless.
	first := int(off / m.chunkSize)
	for idx := len(ino.Chunks); idx <= first; idx++ {
		if err := m.materialize(ctx, ino, idx); err != nil {
			return 0, err
		}
	}

	written := 0
	for written < len(p) {
		pos := off + int64(written)
		idx := int(pos / m.chunkSize)
		chunkOff := pos - int64(idx)*m.chunkSize
		span := int(min(m.chunkSize-chunkOff, int64(len(p)-written)))

		if err := m.writeChunk(ctx, ino, idx, chunkOff, p[written:written+span]); err != nil {
			return written, err
		}

		written += span
	}

	if end := off + int64(len(p)); end > ino.Size {
		ino.Size = end
	}

	return written, nil
}

// ReadAt assembles the byte span [off, off+len(p)) from cached buffers,
// in-flight dirty buffers and remote downloads, in chunk index order.
// Sparse regions past the last descriptor read as zeros.
func (m *Manager) ReadAt(ctx context.Context, ino *data.VirtualInode, off int64, p []byte) (int, error) {
	if off < 0 {
		return 0, data.ErrInvalid
	}
	if off >= ino.Size {
		return 0, io.EOF
	}

	total := int(min(int64(len(p)), ino.Size-off))
	read := 0
	for read < total {
		pos := off + int64(read)
		idx := int(pos / m.chunkSize)
		chunkOff := pos - int64(idx)*m.chunkSize
		span := int(min(m.chunkSize-chunkOff, int64(total-read)))

		dst := p[read : read+span]
		desc := ino.Chunk(idx)
		if desc == nil || desc.State == data.ChunkDeleted {
			// Sparse region, reads as zeros.
			clear(dst)
			read += span
			continue
		}

		buf, err := m.loadChunk(ctx, ino, desc)
		if err != nil {
			return read, err
		}

		// Zero-fill anything the buffer does not cover; the tail of the
		// last chunk can be shorter than the span after a sparse grow.
		n := 0
		if chunkOff < int64(len(buf)) {
			n = copy(dst, buf[chunkOff:])
		}
		clear(dst[n:])

		read += span
	}

	if read < len(p) {
		return read, io.EOF
	}

	return read, nil
}

// Flush queues every still-writing chunk, waits for all in-flight uploads
// of the file to settle, and finalizes descriptors with their remote
// handles. Upload failures are collected and returned joined; failed
// chunks keep their buffers and are not finalized.
func (m *Manager) Flush(ctx context.Context, ino *data.VirtualInode) error {
	// A file that was created and never written still needs one empty
	// chunk so it has a durable representation.
	if len(ino.Chunks) == 0 {
		if err := m.materialize(ctx, ino, 0); err != nil {
			return err
		}
	}

	for _, desc := range ino.Chunks {
		if desc.State == data.ChunkWriting || desc.State == data.ChunkFailed {
			if err := m.enqueue(ctx, ino, desc); err != nil {
				return err
			}
		}
	}

	m.mu.Lock()
	pcs := m.pendings[ino.ID]
	delete(m.pendings, ino.ID)
	m.mu.Unlock()

	var errs data.Errors
	for _, pc := range pcs {
		if _, waitErr := pc.pending.Wait(ctx); !pc.pending.Settled() {
			// Context expired while waiting; put the tracker back so a
			// later flush can settle it.
			m.mu.Lock()
			m.pendings[ino.ID] = append(m.pendings[ino.ID], pc)
			m.mu.Unlock()
			errs.Add(waitErr)
			continue
		}

		// Settled, possibly racing the deadline above; this Wait returns
		// immediately with the authoritative upload result.
		handle, err := pc.pending.Wait(context.Background())

		if err != nil {
			if desc := ino.Chunk(pc.index); desc != nil && desc.State == data.ChunkPendingUpload {
				desc.State = data.ChunkFailed
			}
			errs.Add(err)
			continue
		}

		m.mu.Lock()
		stale := pc.stale
		m.mu.Unlock()

		if stale {
			// The buffer changed after this upload was queued; the
			// landed object is already scheduled for deletion.
			continue
		}

		m.finalize(ino, pc.index, pc.length, handle)
	}

	return errs.Errors()
}

// Truncate adjusts the file's chunk descriptors to the new size. Trailing
// chunks are dropped and their remote objects scheduled for deletion; a
// partially cut chunk is re-fetched if needed, trimmed and re-queued under
// a new handle. Growing leaves a sparse tail.
func (m *Manager) Truncate(ctx context.Context, ino *data.VirtualInode, size int64) error {
	if size < 0 {
		return data.ErrInvalid
	}

	if size >= ino.Size {
		ino.Size = size
		return nil
	}

	keep := 0
	if size > 0 {
		keep = int((size-1)/m.chunkSize) + 1
	}

	for _, desc := range ino.Chunks[min(keep, len(ino.Chunks)):] {
		m.dropChunk(ino, desc)
	}
	if keep < len(ino.Chunks) {
		ino.Chunks = ino.Chunks[:keep]
	}

	// Trim the last surviving chunk if the new size cuts through it.
	if keep > 0 && keep <= len(ino.Chunks) {
		desc := ino.Chunks[keep-1]
		cut := size - int64(keep-1)*m.chunkSize
		if cut < desc.Length {
			if err := m.trimChunk(ctx, ino, desc, cut); err != nil {
				return err
			}
		}
	}

	ino.Size = size
	return nil
}

// Discard releases every chunk of a detached inode: buffers are removed
// from the cache regardless of dirtiness, in-flight uploads are marked
// stale, and remote objects are scheduled for deletion.
func (m *Manager) Discard(ino *data.VirtualInode) {
	for _, desc := range ino.Chunks {
		m.dropChunk(ino, desc)
	}

	m.mu.Lock()
	delete(m.pendings, ino.ID)
	m.mu.Unlock()
}

// materialize appends a zero-length Writing chunk at idx and registers its
// buffer with the cache.
func (m *Manager) materialize(ctx context.Context, ino *data.VirtualInode, idx int) error {
	desc := &data.VirtualChunk{Index: idx, State: data.ChunkWriting}
	id := data.VirtualChunkID{Inode: ino.ID, Index: idx}

	// Interior chunks of a sparse write are full-size zero runs.
	var buf []byte
	if int64(idx+1)*m.chunkSize <= ino.Size {
		buf = make([]byte, m.chunkSize)
		desc.Length = m.chunkSize
	} else {
		buf = []byte{}
	}

	if err := m.cache.Put(ctx, id, buf, true); err != nil {
		return err
	}

	ino.Chunks = append(ino.Chunks, desc)

	if desc.Length == m.chunkSize {
		return m.enqueue(ctx, ino, desc)
	}

	return nil
}

// writeChunk applies a byte span to a single chunk, transitioning its
// state as required before mutating the buffer.
func (m *Manager) writeChunk(ctx context.Context, ino *data.VirtualInode, idx int, chunkOff int64, p []byte) error {
	id := data.VirtualChunkID{Inode: ino.ID, Index: idx}

	desc := ino.Chunk(idx)
	if desc == nil {
		if err := m.materialize(ctx, ino, idx); err != nil {
			return err
		}
		desc = ino.Chunk(idx)
	}

	buf, resident := m.cache.Get(id)

	switch desc.State {
	case data.ChunkWriting, data.ChunkFailed:
		desc.State = data.ChunkWriting

	case data.ChunkPendingUpload:
		// Overwrite raced the queued upload; its result is stale now.
		m.markStale(id)
		desc.State = data.ChunkWriting

	case data.ChunkUploaded, data.ChunkEvicted:
		// Partial overwrite of a durable chunk: the remote payload is
		// only partially replaced, so the full buffer is needed before
		// the modification. The rewrite lands under a new handle and the
		// old one is deleted at finalize.
		if !resident {
			fetched, err := m.fetchChunk(ctx, ino, desc)
			if err != nil {
				return err
			}
			buf, resident = fetched, true
		}
		m.cache.MarkDirty(id)
		desc.State = data.ChunkWriting

	case data.ChunkDeleted:
		return data.ErrInvalid
	}

	if !resident {
		// A Writing chunk always has its buffer pinned; reaching this
		// point means the descriptor was never materialized properly.
		buf = []byte{}
	}

	// Grow the buffer to cover the span, then apply the write.
	need := chunkOff + int64(len(p))
	if need > int64(len(buf)) {
		grown := make([]byte, need)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[chunkOff:], p)

	if err := m.cache.Put(ctx, id, buf, true); err != nil {
		return err
	}

	if int64(len(buf)) > desc.Length {
		desc.Length = int64(len(buf))
	}

	if desc.Length >= m.chunkSize {
		return m.enqueue(ctx, ino, desc)
	}

	return nil
}

// loadChunk returns a chunk's payload for reading, from the cache when
// resident (including still-dirty buffers of in-flight uploads) or from
// the remote store otherwise.
func (m *Manager) loadChunk(ctx context.Context, ino *data.VirtualInode, desc *data.VirtualChunk) ([]byte, error) {
	id := data.VirtualChunkID{Inode: ino.ID, Index: desc.Index}

	if buf, ok := m.cache.Get(id); ok {
		return buf, nil
	}

	return m.fetchChunk(ctx, ino, desc)
}

// fetchChunk downloads a chunk's payload and re-admits it as a clean
// cache entry. The handle of a settled but unfinalized upload wins over
// the descriptor's previous handle.
func (m *Manager) fetchChunk(ctx context.Context, ino *data.VirtualInode, desc *data.VirtualChunk) ([]byte, error) {
	id := data.VirtualChunkID{Inode: ino.ID, Index: desc.Index}

	handle := m.settledHandle(id)
	if handle == "" {
		handle = desc.Handle
	}
	if handle == "" {
		return nil, data.ErrInvalid
	}

	payload, err := m.orch.Download(ctx, id, handle)
	if err != nil {
		return nil, err
	}

	if err := m.cache.Put(ctx, id, payload, false); err != nil {
		return nil, err
	}

	if desc.State == data.ChunkEvicted {
		desc.State = data.ChunkUploaded
	}

	return payload, nil
}

// enqueue snapshots a chunk's buffer and hands it to the orchestrator.
// The cached buffer stays canonical; a write landing after this point
// marks the upload stale.
func (m *Manager) enqueue(ctx context.Context, ino *data.VirtualInode, desc *data.VirtualChunk) error {
	id := data.VirtualChunkID{Inode: ino.ID, Index: desc.Index}

	buf, ok := m.cache.Get(id)
	if !ok {
		return data.ErrInvalid
	}

	payload := make([]byte, desc.Length)
	copy(payload, buf)

	pending, err := m.orch.EnqueueUpload(ctx, id, payload)
	if err != nil {
		return err
	}

	desc.State = data.ChunkPendingUpload

	pc := &pendingChunk{
		id:      id,
		index:   desc.Index,
		length:  desc.Length,
		pending: pending,
	}

	m.mu.Lock()
	m.pendings[ino.ID] = append(m.pendings[ino.ID], pc)
	m.mu.Unlock()

	go m.track(pc)

	return nil
}

// track settles one upload: on success the buffer becomes clean and
// evictable right away, without waiting for flush, so blocked writers can
// make progress. Descriptor finalization stays with Flush, under the
// inode lock.
func (m *Manager) track(pc *pendingChunk) {
	handle, err := pc.pending.Wait(context.Background())

	m.mu.Lock()
	pc.settled = true
	pc.handle = handle
	pc.err = err
	stale := pc.stale
	m.mu.Unlock()

	if err != nil {
		return
	}

	if stale {
		m.orch.ScheduleDelete(handle)
		return
	}

	m.cache.MarkClean(pc.id)
}

// markStale invalidates any unsettled upload for the chunk; a settled one
// has its landed object scheduled for deletion instead.
func (m *Manager) markStale(id data.VirtualChunkID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, pc := range m.pendings[id.Inode] {
		if pc.index != id.Index || pc.stale {
			continue
		}

		pc.stale = true
		if pc.settled && pc.err == nil {
			m.orch.ScheduleDelete(pc.handle)
		}
	}
}

// settledHandle returns the handle of the latest settled, non-stale
// upload for the chunk, or empty.
func (m *Manager) settledHandle(id data.VirtualChunkID) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	handle := ""
	for _, pc := range m.pendings[id.Inode] {
		if pc.index == id.Index && pc.settled && !pc.stale && pc.err == nil {
			handle = pc.handle
		}
	}

	return handle
}

// finalize replaces the descriptor at idx with its durable form. Handles
// are immutable on a descriptor, so a re-upload swaps the whole
// descriptor and retires the previous handle.
func (m *Manager) finalize(ino *data.VirtualInode, idx int, length int64, handle string) {
	old := ino.Chunk(idx)
	if old == nil || old.State == data.ChunkDeleted {
		// The chunk was truncated away while its upload settled.
		m.orch.ScheduleDelete(handle)
		return
	}

	ino.Chunks[idx] = &data.VirtualChunk{
		Index:  idx,
		Length: length,
		State:  data.ChunkUploaded,
		Handle: handle,
	}

	if old.Handle != "" && old.Handle != handle {
		m.orch.ScheduleDelete(old.Handle)
	}
}

// dropChunk releases one chunk entirely: cache entry removed dirty or
// not, in-flight upload marked stale, remote object scheduled for
// deletion.
func (m *Manager) dropChunk(ino *data.VirtualInode, desc *data.VirtualChunk) {
	id := data.VirtualChunkID{Inode: ino.ID, Index: desc.Index}

	m.markStale(id)
	m.cache.Remove(id)

	if desc.Handle != "" {
		m.orch.ScheduleDelete(desc.Handle)
	}

	desc.State = data.ChunkDeleted
}

// trimChunk cuts a chunk's buffer down to length bytes and marks it for
// re-upload.
func (m *Manager) trimChunk(ctx context.Context, ino *data.VirtualInode, desc *data.VirtualChunk, length int64) error {
	id := data.VirtualChunkID{Inode: ino.ID, Index: desc.Index}

	buf, resident := m.cache.Get(id)
	if !resident {
		fetched, err := m.fetchChunk(ctx, ino, desc)
		if err != nil {
			return err
		}
		buf = fetched
	}

	if desc.State == data.ChunkPendingUpload {
		m.markStale(id)
	}

	trimmed := make([]byte, length)
	copy(trimmed, buf)

	if err := m.cache.Put(ctx, id, trimmed, true); err != nil {
		return err
	}

	desc.Length = length
	desc.State = data.ChunkWriting

	return nil
}

// MarkEvicted flips durable descriptors whose buffers were dropped by the
// cache from Uploaded to Evicted. Invoked from the cache's eviction
// callback.
func (m *Manager) MarkEvicted(ino *data.VirtualInode, idx int) {
	desc := ino.Chunk(idx)
	if desc == nil {
		return
	}

	id := data.VirtualChunkID{Inode: ino.ID, Index: idx}
	if desc.State == data.ChunkUploaded && !m.cache.Contains(id) {
		desc.State = data.ChunkEvicted
	}
}
