package chunkfs

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/mwantia/chunkfs/chunk"
	"github.com/mwantia/chunkfs/data"
	"github.com/mwantia/chunkfs/meta"
)

// VirtualFile is an open handle on a file. The available operations depend
// on the access mode flags used when opening.
type VirtualFile interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
	io.ReaderAt
	io.WriterAt

	// Sync flushes buffered writes to the store without closing the
	// handle. It returns once every dirty chunk is durable.
	Sync() error

	// CanRead returns true if the virtual file can be read, otherwise false.
	CanRead() bool

	// CanWrite returns true if the virtual file can be written, otherwise false.
	CanWrite() bool
}

// OpenFile opens a file for the given access mode. A file created here is
// invisible to ReadDir until the handle is closed and its contents are
// durable; a failed flush on Close leaves it invisible.
func (v *VirtualFileSystem) OpenFile(ctx context.Context, path string, flags data.VirtualAccessMode, mode data.VirtualFileMode) (VirtualFile, error) {
	tree, chunks, err := v.components()
	if err != nil {
		return nil, err
	}

	node, err := tree.Lookup(path)
	switch {
	case errors.Is(err, data.ErrNotExist) && flags.HasCreate():
		node, err = tree.Create(path, data.FileTypeFile, mode.Perm())
		if errors.Is(err, data.ErrExist) {
			if flags.HasExcl() {
				return nil, data.ErrExist
			}
			// Lost the race against another creator; fall back to theirs.
			node, err = tree.Lookup(path)
		}
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case flags.HasCreate() && flags.HasExcl():
		return nil, data.ErrExist
	}

	node.Lock()
	defer node.Unlock()

	if node.Inode().IsDir() {
		return nil, data.ErrIsDirectory
	}

	if flags.HasTrunc() && flags.CanWrite() {
		if err := chunks.Truncate(ctx, node.Inode(), 0); err != nil {
			return nil, err
		}
	}

	return &virtualFileImpl{
		tree:   tree,
		chunks: chunks,
		node:   node,
		path:   node.Path(),
		flags:  flags,
		ctx:    ctx,
	}, nil
}

// virtualFileImpl is the unified implementation for open file handles.
type virtualFileImpl struct {
	mu     sync.Mutex
	tree   *meta.Tree
	chunks *chunk.Manager
	node   *meta.Node
	path   string
	offset int64
	flags  data.VirtualAccessMode
	closed bool
	ctx    context.Context
}

// Read reads up to len(p) bytes at the current offset and advances it.
// Returns ErrPermission if the file was not opened with read access.
func (vf *virtualFileImpl) Read(p []byte) (int, error) {
	vf.mu.Lock()
	defer vf.mu.Unlock()

	n, err := vf.readAt(p, vf.offset)
	vf.offset += int64(n)
	return n, err
}

// ReadAt reads len(p) bytes at off without touching the handle offset.
func (vf *virtualFileImpl) ReadAt(p []byte, off int64) (int, error) {
	vf.mu.Lock()
	defer vf.mu.Unlock()

	return vf.readAt(p, off)
}

func (vf *virtualFileImpl) readAt(p []byte, off int64) (int, error) {
	if vf.closed {
		return 0, data.ErrClosed
	}
	if !vf.flags.CanRead() {
		return 0, data.ErrPermission
	}
	if off < 0 {
		return 0, data.ErrInvalid
	}

	vf.node.Lock()
	defer vf.node.Unlock()

	return vf.chunks.ReadAt(vf.ctx, vf.node.Inode(), off, p)
}

// Write writes len(p) bytes at the current offset and advances it.
// Returns ErrPermission if the file was not opened with write access.
func (vf *virtualFileImpl) Write(p []byte) (int, error) {
	vf.mu.Lock()
	defer vf.mu.Unlock()

	n, err := vf.writeAt(p, vf.offset)
	vf.offset += int64(n)
	return n, err
}

// WriteAt writes len(p) bytes at off without touching the handle offset.
func (vf *virtualFileImpl) WriteAt(p []byte, off int64) (int, error) {
	vf.mu.Lock()
	defer vf.mu.Unlock()

	return vf.writeAt(p, off)
}

func (vf *virtualFileImpl) writeAt(p []byte, off int64) (int, error) {
	if vf.closed {
		return 0, data.ErrClosed
	}
	if !vf.flags.CanWrite() {
		return 0, data.ErrPermission
	}
	if off < 0 {
		return 0, data.ErrInvalid
	}

	vf.node.Lock()
	defer vf.node.Unlock()

	return vf.chunks.WriteAt(vf.ctx, vf.node.Inode(), off, p)
}

// Seek sets the offset for the next Read or Write.
func (vf *virtualFileImpl) Seek(offset int64, whence int) (int64, error) {
	vf.mu.Lock()
	defer vf.mu.Unlock()

	if vf.closed {
		return 0, data.ErrClosed
	}

	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = vf.offset
	case io.SeekEnd:
		vf.node.Lock()
		base = vf.node.Inode().Size
		vf.node.Unlock()
	default:
		return 0, data.ErrInvalid
	}

	next := base + offset
	if next < 0 {
		return 0, data.ErrInvalid
	}

	vf.offset = next
	return next, nil
}

// Sync flushes buffered writes and blocks until they are durable in the
// store. The file becomes visible to ReadDir on first success.
func (vf *virtualFileImpl) Sync() error {
	vf.mu.Lock()
	defer vf.mu.Unlock()

	if vf.closed {
		return data.ErrClosed
	}
	if !vf.flags.CanWrite() {
		return nil
	}

	return vf.flush()
}

// Close flushes outstanding writes and releases the handle. A flush
// failure is returned and leaves a newly created file uncommitted.
func (vf *virtualFileImpl) Close() error {
	vf.mu.Lock()
	defer vf.mu.Unlock()

	if vf.closed {
		return data.ErrClosed
	}
	vf.closed = true

	if !vf.flags.CanWrite() {
		return nil
	}

	return vf.flush()
}

func (vf *virtualFileImpl) flush() error {
	vf.node.Lock()
	err := vf.chunks.Flush(vf.ctx, vf.node.Inode())
	vf.node.Unlock()

	if err != nil {
		return err
	}

	vf.tree.Commit(vf.node)
	return nil
}

func (vf *virtualFileImpl) CanRead() bool {
	return vf.flags.CanRead()
}

func (vf *virtualFileImpl) CanWrite() bool {
	return vf.flags.CanWrite()
}
