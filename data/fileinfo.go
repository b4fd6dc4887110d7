package data

import "time"

// VirtualFileInfo describes a filesystem object as returned by stat and
// directory listing operations.
type VirtualFileInfo struct {
	// Full path of the object within the filesystem
	Path string `json:"path"`

	// Base name of the object
	Name string `json:"name"`

	// Type of object (file or directory)
	Type VirtualFileType `json:"type"`

	// Size in bytes (0 for directories)
	Size int64 `json:"size"`

	// Unix-style mode and permissions
	Mode VirtualFileMode `json:"mode"`

	// Last modification time
	ModifyTime time.Time `json:"modify_time"`

	// Identifier of the backing inode
	Inode string `json:"inode,omitempty"`
}

// IsDir returns true if this object is a directory.
func (fi *VirtualFileInfo) IsDir() bool {
	return fi.Type == FileTypeDirectory
}
