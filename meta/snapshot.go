package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mwantia/chunkfs/chunk"
	"github.com/mwantia/chunkfs/data"
	"github.com/mwantia/chunkfs/log"
	"github.com/mwantia/chunkfs/store"
	"golang.org/x/sync/errgroup"
)

// RootPointerName is the well-known store location holding the handle of
// the current snapshot manifest. It is the only fixed name in the store;
// everything else is reachable from it.
const RootPointerName = "chunkfs/root"

const snapshotVersion = 1

type snapshotEntry struct {
	Path  string             `json:"path"`
	Inode *data.VirtualInode `json:"inode"`
}

type snapshotPayload struct {
	Version int             `json:"version"`
	TakenAt time.Time       `json:"taken_at"`
	Entries []snapshotEntry `json:"entries"`
	Orphans []string        `json:"orphans,omitempty"`
}

type snapshotManifest struct {
	Version int      `json:"version"`
	Parts   []string `json:"parts"`
}

// durableView clones an inode reduced to what survives a restart. Chunks
// mid-rewrite still reference their previous durable object through the
// descriptor handle; trailing chunks that never uploaded are cut and the
// size clamped, matching what a remount can actually serve.
func durableView(ino *data.VirtualInode) *data.VirtualInode {
	clone := ino.Clone()
	if !clone.IsFile() {
		return clone
	}

	keep := len(clone.Chunks)
	covered := int64(0)
	for i, vc := range clone.Chunks {
		if vc.Handle == "" {
			keep = i
			break
		}
		vc.State = data.ChunkEvicted
		covered += vc.Length
	}

	clone.Chunks = clone.Chunks[:keep]
	if clone.Size > covered {
		clone.Size = covered
	}

	return clone
}

// Snapshot serializes the committed tree plus the orphan-handle list and
// persists it through the same chunking path as file data: the JSON
// payload is split into store-sized parts, a manifest referencing the
// parts is stored, and the manifest handle lands under RootPointerName.
// Returns every handle written so the caller can retire the previous
// snapshot's objects.
func (t *Tree) Snapshot(ctx context.Context, st store.VirtualObjectStore, orphans []string) ([]string, error) {
	payload := snapshotPayload{
		Version: snapshotVersion,
		TakenAt: time.Now(),
		Orphans: orphans,
	}

	t.Walk(func(path string, ino *data.VirtualInode) bool {
		if path == "/" {
			return true
		}
		if ino.IsFile() && !ino.Committed {
			// Files under construction have no durable representation;
			// a remount must not resurrect them half-built.
			return true
		}
		payload.Entries = append(payload.Entries, snapshotEntry{Path: path, Inode: durableView(ino)})
		return true
	})

	raw, err := json.Marshal(&payload)
	if err != nil {
		return nil, err
	}

	parts := chunk.Split(raw, st.MaxPayloadSize())
	handles := make([]string, len(parts))

	group, gctx := errgroup.WithContext(ctx)
	for i, part := range parts {
		group.Go(func() error {
			handle, err := st.Put(gctx, part)
			if err != nil {
				return err
			}
			handles[i] = handle
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	manifest, err := json.Marshal(&snapshotManifest{Version: snapshotVersion, Parts: handles})
	if err != nil {
		return nil, err
	}

	manifestHandle, err := st.Put(ctx, manifest)
	if err != nil {
		return nil, err
	}

	if err := st.SetPointer(ctx, RootPointerName, manifestHandle); err != nil {
		return nil, err
	}

	t.log.Debug("snapshot persisted: %d entries, %d parts, manifest %s",
		len(payload.Entries), len(parts), manifestHandle)

	return append(handles, manifestHandle), nil
}

// Recover rebuilds a tree from the snapshot reachable via RootPointerName.
// An absent pointer yields a fresh tree; an unparseable snapshot is fatal
// and surfaces as ErrCorruptMetadata so the mount aborts instead of
// presenting an inconsistent namespace.
func Recover(ctx context.Context, st store.VirtualObjectStore, logger *log.Logger) (*Tree, []string, error) {
	tree := NewTree(logger)

	manifestHandle, err := st.GetPointer(ctx, RootPointerName)
	if errors.Is(err, data.ErrNotExist) {
		return tree, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	rawManifest, err := st.Get(ctx, manifestHandle)
	if err != nil {
		return nil, nil, err
	}

	var manifest snapshotManifest
	if err := json.Unmarshal(rawManifest, &manifest); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", data.ErrCorruptMetadata, err)
	}
	if manifest.Version != snapshotVersion {
		return nil, nil, fmt.Errorf("%w: unsupported snapshot version %d", data.ErrCorruptMetadata, manifest.Version)
	}

	var raw []byte
	for _, handle := range manifest.Parts {
		part, err := st.Get(ctx, handle)
		if err != nil {
			return nil, nil, err
		}
		raw = append(raw, part...)
	}

	var payload snapshotPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", data.ErrCorruptMetadata, err)
	}

	// Entries are path-sorted, so parents always precede children.
	for _, entry := range payload.Entries {
		if err := tree.attach(entry.Path, entry.Inode); err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", data.ErrCorruptMetadata, entry.Path, err)
		}
	}

	tree.log.Debug("recovered %d entries from snapshot %s", len(payload.Entries), manifestHandle)
	return tree, payload.Orphans, nil
}

// attach inserts a recovered inode at path. Chunk buffers did not survive
// the restart, so every durable chunk is normalized to Evicted.
func (t *Tree) attach(path string, ino *data.VirtualInode) error {
	cleaned, err := data.CleanPath(path)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.paths.Get(cleaned); exists {
		return data.ErrExist
	}

	parentPath, _ := data.SplitPath(cleaned)
	parent, exists := t.paths.Get(parentPath)
	if !exists {
		return data.ErrNotExist
	}
	if !parent.ino.IsDir() {
		return data.ErrNotDirectory
	}

	for _, vc := range ino.Chunks {
		if vc.Handle == "" {
			return fmt.Errorf("chunk %d missing remote handle", vc.Index)
		}
		vc.State = data.ChunkEvicted
	}

	node := &Node{
		ino:    ino,
		path:   cleaned,
		parent: parent,
	}
	if ino.IsDir() {
		node.children = make(map[string]*Node)
	}

	parent.children[ino.Name] = node
	t.paths.Set(cleaned, node)
	t.byID[ino.ID] = node

	return nil
}
