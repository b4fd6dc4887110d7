// Package meta owns the path→inode mapping: a single-owner directory tree
// with per-inode locks, commit-based visibility, and snapshot persistence
// through the chunked store path.
package meta

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mwantia/chunkfs/data"
	"github.com/mwantia/chunkfs/log"
	"github.com/tidwall/btree"
)

// Node binds an inode to its position in the tree. Content operations on
// the same file serialize on the node's lock; the tree's structural lock
// covers the namespace, so disjoint paths never contend on content.
type Node struct {
	mu   sync.Mutex
	ino  *data.VirtualInode
	path string

	parent   *Node
	children map[string]*Node
}

// Lock acquires the node's content lock.
func (n *Node) Lock() {
	n.mu.Lock()
}

// Unlock releases the node's content lock.
func (n *Node) Unlock() {
	n.mu.Unlock()
}

// Inode returns the live inode record. Callers must hold the node lock
// while touching mutable fields.
func (n *Node) Inode() *data.VirtualInode {
	return n.ino
}

// Path returns the node's current path under the tree's structural lock.
func (n *Node) Path() string {
	return n.path
}

// Tree is the single source of truth for the namespace. All structural
// mutations (create, rename, unlink) happen under the tree lock and touch
// no remote state; chunk deletion is scheduled as decoupled follow-up
// work by the caller.
type Tree struct {
	mu  sync.RWMutex
	log *log.Logger

	paths *btree.Map[string, *Node]
	byID  map[string]*Node
	root  *Node
}

func NewTree(logger *log.Logger) *Tree {
	if logger == nil {
		logger = log.Discard()
	}

	t := &Tree{
		log:   logger,
		paths: btree.NewMap[string, *Node](0),
		byID:  make(map[string]*Node),
	}

	now := time.Now()
	t.root = &Node{
		ino: &data.VirtualInode{
			ID:         uuid.NewString(),
			Name:       "/",
			Type:       data.FileTypeDirectory,
			Mode:       data.ModeDir | 0755,
			Committed:  true,
			CreateTime: now,
			ModifyTime: now,
			AccessTime: now,
		},
		path:     "/",
		children: make(map[string]*Node),
	}
	t.paths.Set("/", t.root)
	t.byID[t.root.ino.ID] = t.root

	return t
}

// Lookup resolves a path to its node.
func (t *Tree) Lookup(path string) (*Node, error) {
	cleaned, err := data.CleanPath(path)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	node, exists := t.paths.Get(cleaned)
	if !exists {
		return nil, data.ErrNotExist
	}

	return node, nil
}

// LookupID resolves an inode ID to its node, used by the cache eviction
// callback which only knows chunk identities.
func (t *Tree) LookupID(id string) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	node, exists := t.byID[id]
	return node, exists
}

// Create inserts a new file or directory inode at path. The parent must
// exist and be a directory. Files start uncommitted and stay invisible to
// Readdir until committed.
func (t *Tree) Create(path string, typ data.VirtualFileType, mode data.VirtualFileMode) (*Node, error) {
	cleaned, err := data.CleanPath(path)
	if err != nil {
		return nil, err
	}
	if cleaned == "/" {
		return nil, data.ErrExist
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.paths.Get(cleaned); exists {
		return nil, data.ErrExist
	}

	parentPath, name := data.SplitPath(cleaned)
	parent, exists := t.paths.Get(parentPath)
	if !exists {
		return nil, data.ErrNotExist
	}
	if !parent.ino.IsDir() {
		return nil, data.ErrNotDirectory
	}

	now := time.Now()
	node := &Node{
		ino: &data.VirtualInode{
			ID:         uuid.NewString(),
			Name:       name,
			Type:       typ,
			Mode:       mode,
			Committed:  typ == data.FileTypeDirectory,
			CreateTime: now,
			ModifyTime: now,
			AccessTime: now,
		},
		path:   cleaned,
		parent: parent,
	}
	if typ == data.FileTypeDirectory {
		node.ino.Mode |= data.ModeDir
		node.children = make(map[string]*Node)
	}

	parent.children[name] = node
	parent.ino.ModifyTime = now
	t.paths.Set(cleaned, node)
	t.byID[node.ino.ID] = node

	t.log.Debug("created %s %s (inode %s)", typ, cleaned, node.ino.ID)
	return node, nil
}

// Readdir lists the committed children of a directory. Files still under
// construction are absent: a listing never shows a partially uploaded
// file.
func (t *Tree) Readdir(path string) ([]*data.VirtualFileInfo, error) {
	cleaned, err := data.CleanPath(path)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	node, exists := t.paths.Get(cleaned)
	if !exists {
		return nil, data.ErrNotExist
	}
	if !node.ino.IsDir() {
		return nil, data.ErrNotDirectory
	}

	infos := make([]*data.VirtualFileInfo, 0, len(node.children))
	for name, child := range node.children {
		if !child.ino.Committed {
			continue
		}
		infos = append(infos, child.ino.ToFileInfo(data.JoinPath(cleaned, name)))
	}

	return infos, nil
}

// Rename moves src to dst, re-keying the whole subtree. Pure metadata:
// inode IDs are path-independent, so no chunk is touched and no remote
// I/O happens.
func (t *Tree) Rename(src, dst string) error {
	srcClean, err := data.CleanPath(src)
	if err != nil {
		return err
	}
	dstClean, err := data.CleanPath(dst)
	if err != nil {
		return err
	}
	if srcClean == "/" || dstClean == "/" {
		return data.ErrInvalid
	}
	if data.IsPathPrefix(dstClean, srcClean) {
		return data.ErrInvalid
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	node, exists := t.paths.Get(srcClean)
	if !exists {
		return data.ErrNotExist
	}
	if _, exists := t.paths.Get(dstClean); exists {
		return data.ErrExist
	}

	dstParentPath, dstName := data.SplitPath(dstClean)
	dstParent, exists := t.paths.Get(dstParentPath)
	if !exists {
		return data.ErrNotExist
	}
	if !dstParent.ino.IsDir() {
		return data.ErrNotDirectory
	}

	// Detach from the old parent, attach under the new one.
	delete(node.parent.children, node.ino.Name)
	now := time.Now()
	node.parent.ino.ModifyTime = now
	node.parent = dstParent
	node.ino.Name = dstName
	dstParent.children[dstName] = node
	dstParent.ino.ModifyTime = now

	// Re-key the node and every descendant in the path index.
	t.rekeyLocked(node, srcClean, dstClean)

	t.log.Debug("renamed %s -> %s", srcClean, dstClean)
	return nil
}

func (t *Tree) rekeyLocked(node *Node, src, dst string) {
	t.paths.Delete(node.path)
	node.path = data.RebasePath(node.path, src, dst)
	t.paths.Set(node.path, node)

	for _, child := range node.children {
		t.rekeyLocked(child, src, dst)
	}
}

// Unlink detaches a file from the tree and returns its node so the caller
// can schedule chunk deletion as decoupled follow-up work. Unlinking the
// same path twice yields ErrNotExist on the second call.
func (t *Tree) Unlink(path string) (*Node, error) {
	cleaned, err := data.CleanPath(path)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	node, exists := t.paths.Get(cleaned)
	if !exists {
		return nil, data.ErrNotExist
	}
	if node.ino.IsDir() {
		return nil, data.ErrIsDirectory
	}

	t.detachLocked(node)

	t.log.Debug("unlinked %s (inode %s)", cleaned, node.ino.ID)
	return node, nil
}

// Rmdir removes an empty directory. Uncommitted children still count: a
// directory holding a file under construction is not empty.
func (t *Tree) Rmdir(path string) error {
	cleaned, err := data.CleanPath(path)
	if err != nil {
		return err
	}
	if cleaned == "/" {
		return data.ErrInvalid
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	node, exists := t.paths.Get(cleaned)
	if !exists {
		return data.ErrNotExist
	}
	if !node.ino.IsDir() {
		return data.ErrNotDirectory
	}
	if len(node.children) > 0 {
		return data.ErrDirectoryNotEmpty
	}

	t.detachLocked(node)

	t.log.Debug("removed directory %s", cleaned)
	return nil
}

func (t *Tree) detachLocked(node *Node) {
	delete(node.parent.children, node.ino.Name)
	node.parent.ino.ModifyTime = time.Now()
	node.parent = nil
	t.paths.Delete(node.path)
	delete(t.byID, node.ino.ID)
}

// Commit marks a file as fully durable, making it visible to Readdir.
// Must only be called once every chunk carries a confirmed handle.
func (t *Tree) Commit(node *Node) {
	t.mu.Lock()
	defer t.mu.Unlock()

	node.ino.Committed = true
}

// Walk visits every node in ascending path order under the structural
// read lock.
func (t *Tree) Walk(fn func(path string, ino *data.VirtualInode) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	t.paths.Scan(func(path string, node *Node) bool {
		return fn(path, node.ino)
	})
}

// Len returns the number of nodes in the tree, root included.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.paths.Len()
}
