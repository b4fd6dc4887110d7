package data

import "fmt"

// VirtualChunkState tracks a chunk through its lifecycle, from the first
// byte written into its buffer until its remote object is deleted.
type VirtualChunkState int

const (
	ChunkWriting       VirtualChunkState = iota // Buffer accumulating, not yet full
	ChunkPendingUpload                          // Full buffer queued for upload
	ChunkUploaded                               // Remote handle assigned, buffer evictable
	ChunkEvicted                                // Buffer discarded, handle retained
	ChunkDeleted                                // Handle invalidated, descriptor detached
	ChunkFailed                                 // Upload failed, reported to the caller
)

func (s VirtualChunkState) String() string {
	switch s {
	case ChunkWriting:
		return "writing"
	case ChunkPendingUpload:
		return "pending-upload"
	case ChunkUploaded:
		return "uploaded"
	case ChunkEvicted:
		return "evicted"
	case ChunkDeleted:
		return "deleted"
	case ChunkFailed:
		return "failed"
	}
	return "unknown"
}

// VirtualChunk describes one bounded-size slice of a file's byte stream.
// Index is the chunk's position in the file; every chunk except the last
// spans the full configured chunk size.
type VirtualChunk struct {
	Index  int               `json:"index"`
	Length int64             `json:"length"`
	State  VirtualChunkState `json:"state"`

	// Handle is the remote store reference for this chunk's payload.
	// Empty until the upload is confirmed; immutable afterwards. A partial
	// overwrite replaces the whole descriptor under a new handle instead
	// of mutating this one.
	Handle string `json:"handle,omitempty"`
}

// Resident reports whether the chunk's payload is expected to be held in
// the cache rather than fetched from the remote store.
func (vc *VirtualChunk) Resident() bool {
	return vc.State == ChunkWriting || vc.State == ChunkPendingUpload
}

// Durable reports whether the chunk has a confirmed remote handle.
func (vc *VirtualChunk) Durable() bool {
	return vc.State == ChunkUploaded || vc.State == ChunkEvicted
}

// Clone creates a copy of the chunk descriptor.
func (vc *VirtualChunk) Clone() *VirtualChunk {
	clone := *vc
	return &clone
}

// VirtualChunkID uniquely identifies a chunk buffer in the cache.
// Inode IDs are stable across renames, so cached chunks survive metadata
// moves without invalidation.
type VirtualChunkID struct {
	Inode string
	Index int
}

func (id VirtualChunkID) String() string {
	return fmt.Sprintf("%s#%d", id.Inode, id.Index)
}
