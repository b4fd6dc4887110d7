package data

// VirtualAccessMode represents file access modes for opening files.
// These can be combined using bitwise OR.
type VirtualAccessMode int

const (
	AccessModeRead   VirtualAccessMode = 1 << iota // Open for reading
	AccessModeWrite                                // Open for writing
	AccessModeCreate                               // Create if not exists
	AccessModeTrunc                                // Truncate on open
	AccessModeExcl                                 // Exclusive creation (with Create)
)

// CanRead checks if the mode allows reading.
func (m VirtualAccessMode) CanRead() bool {
	return m&AccessModeRead != 0
}

// CanWrite checks if the mode allows writing.
func (m VirtualAccessMode) CanWrite() bool {
	return m&AccessModeWrite != 0
}

// HasCreate checks if the mode includes create.
func (m VirtualAccessMode) HasCreate() bool {
	return m&AccessModeCreate != 0
}

// HasTrunc checks if the mode includes truncate.
func (m VirtualAccessMode) HasTrunc() bool {
	return m&AccessModeTrunc != 0
}

// HasExcl checks if the mode includes exclusive creation.
func (m VirtualAccessMode) HasExcl() bool {
	return m&AccessModeExcl != 0
}
