package data

// VirtualFileMode represents file mode and permission bits, following Unix
// conventions. Only the directory type bit and the permission bits are
// meaningful here; ownership enforcement is left to the kernel adapter.
type VirtualFileMode uint32

const (
	// Type bits
	ModeDir VirtualFileMode = 1 << 31 // d: directory

	// Permission bits
	ModePerm VirtualFileMode = 0777 // Unix permission bits
)

// IsDir reports whether m describes a directory.
func (m VirtualFileMode) IsDir() bool {
	return m&ModeDir != 0
}

// Perm returns the Unix permission bits in m (the lower 9 bits).
func (m VirtualFileMode) Perm() VirtualFileMode {
	return m & ModePerm
}

// String returns a textual representation in ls -l format, for example
// "drwxr-xr-x" for a directory with 755 permissions.
func (m VirtualFileMode) String() string {
	var buf [10]byte
	if m.IsDir() {
		buf[0] = 'd'
	} else {
		buf[0] = '-'
	}

	const rwx = "rwxrwxrwx"
	for i, c := range rwx {
		if m&(1<<uint(9-1-i)) != 0 {
			buf[i+1] = byte(c)
		} else {
			buf[i+1] = '-'
		}
	}

	return string(buf[:])
}
