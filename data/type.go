package data

// VirtualFileType identifies the type of object in the filesystem.
type VirtualFileType int

const (
	FileTypeFile      VirtualFileType = iota // Regular file
	FileTypeDirectory                        // Directory
)

func (t VirtualFileType) String() string {
	switch t {
	case FileTypeFile:
		return "file"
	case FileTypeDirectory:
		return "directory"
	}
	return "unknown"
}
