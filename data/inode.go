package data

import (
	"encoding/json"
	"time"
)

// VirtualInode represents the complete inode information for a filesystem
// object. Files carry an ordered list of chunk descriptors mapping the flat
// byte-offset space onto bounded-size remote objects; directories carry
// their structure in the owning tree, not here.
type VirtualInode struct {
	// Identity - unique identifier, stable across renames
	ID string `json:"id"`

	// Base name of the inode
	Name string `json:"name"`

	// Type of object (file or directory)
	Type VirtualFileType `json:"type"`

	// Unix-style mode and permissions
	Mode VirtualFileMode `json:"mode"`

	// Size in bytes (0 for directories). Invariant for committed files:
	// the chunk lengths sum to Size.
	Size int64 `json:"size"`

	// Ordered chunk descriptors, files only. Sorted by Index with no gaps
	// or overlaps; a file truncated larger than its last chunk reads the
	// sparse tail as zeros.
	Chunks []*VirtualChunk `json:"chunks,omitempty"`

	// Committed marks a file as fully durable: every chunk holds a
	// confirmed remote handle. Uncommitted files are hidden from
	// directory listings.
	Committed bool `json:"committed"`

	AccessTime time.Time `json:"access_time"`
	ModifyTime time.Time `json:"modify_time"`
	CreateTime time.Time `json:"create_time"`

	// User ownership identity
	UID int64 `json:"uid,omitempty"`

	// Group ownership identity
	GID int64 `json:"gid,omitempty"`
}

// Marshal provides JSON serialization for VirtualInode.
func (vi *VirtualInode) Marshal() ([]byte, error) {
	return json.Marshal(vi)
}

// Unmarshal provides JSON deserialization for VirtualInode.
func (vi *VirtualInode) Unmarshal(data []byte) error {
	return json.Unmarshal(data, &vi)
}

// IsDir returns true if this object is a directory.
func (vi *VirtualInode) IsDir() bool {
	return vi.Type == FileTypeDirectory
}

// IsFile returns true if this object is a regular file.
func (vi *VirtualInode) IsFile() bool {
	return vi.Type == FileTypeFile
}

// Chunk returns the descriptor at the given chunk index, or nil when the
// index lies past the last descriptor (the sparse tail).
func (vi *VirtualInode) Chunk(index int) *VirtualChunk {
	if index < 0 || index >= len(vi.Chunks) {
		return nil
	}
	return vi.Chunks[index]
}

// Clone creates a deep copy of the inode, including chunk descriptors.
func (vi *VirtualInode) Clone() *VirtualInode {
	clone := *vi
	if vi.Chunks != nil {
		clone.Chunks = make([]*VirtualChunk, len(vi.Chunks))
		for i, vc := range vi.Chunks {
			clone.Chunks[i] = vc.Clone()
		}
	}
	return &clone
}

// ToFileInfo converts an inode to basic file info for stat results.
func (vi *VirtualInode) ToFileInfo(path string) *VirtualFileInfo {
	return &VirtualFileInfo{
		Path:       path,
		Name:       vi.Name,
		Type:       vi.Type,
		Size:       vi.Size,
		Mode:       vi.Mode,
		ModifyTime: vi.ModifyTime,
		Inode:      vi.ID,
	}
}
