package data

import (
	"errors"
	"fmt"
	"sync"
)

// Standard chunkfs errors.
var (
	// Path resolution errors
	ErrInvalidPath = errors.New("chunkfs: invalid path detected")
	ErrNotExist    = errors.New("chunkfs: file does not exist")
	ErrExist       = errors.New("chunkfs: file already exists")

	// Structural errors
	ErrIsDirectory       = errors.New("chunkfs: is a directory")
	ErrNotDirectory      = errors.New("chunkfs: not a directory")
	ErrDirectoryNotEmpty = errors.New("chunkfs: directory not empty")

	// Mount lifecycle errors
	ErrNotMounted     = errors.New("chunkfs: filesystem not mounted")
	ErrAlreadyMounted = errors.New("chunkfs: filesystem already mounted")

	// Configuration errors, fatal at startup
	ErrChunkTooLarge    = errors.New("chunkfs: chunk size exceeds remote payload maximum")
	ErrCapacityExceeded = errors.New("chunkfs: cache ceiling smaller than one chunk")

	// Recovery errors
	ErrCorruptMetadata = errors.New("chunkfs: metadata snapshot failed to parse")

	// I/O errors
	ErrClosed     = errors.New("chunkfs: file already closed")
	ErrPermission = errors.New("chunkfs: permission denied")
	ErrInvalid    = errors.New("chunkfs: invalid argument")
)

// TransferOp identifies the remote store operation a TransferError belongs to.
type TransferOp string

const (
	TransferUpload   TransferOp = "upload"
	TransferDownload TransferOp = "download"
	TransferDelete   TransferOp = "delete"
)

// TransferError reports a failed remote store operation after the retry
// policy has been exhausted or a permanent failure was classified.
type TransferError struct {
	Op        TransferOp
	Chunk     VirtualChunkID
	Transient bool
	Attempts  int
	Err       error
}

func (e *TransferError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("chunkfs: %s failed (%s, %d attempts) for chunk %s: %v",
		e.Op, kind, e.Attempts, e.Chunk, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// UploadFailed wraps err as a failed chunk upload.
func UploadFailed(err error, chunk VirtualChunkID, transient bool, attempts int) error {
	return &TransferError{Op: TransferUpload, Chunk: chunk, Transient: transient, Attempts: attempts, Err: err}
}

// DownloadFailed wraps err as a failed chunk download.
func DownloadFailed(err error, chunk VirtualChunkID, transient bool, attempts int) error {
	return &TransferError{Op: TransferDownload, Chunk: chunk, Transient: transient, Attempts: attempts, Err: err}
}

// IsTransferError reports whether err is a TransferError and returns it.
func IsTransferError(err error) (*TransferError, bool) {
	var te *TransferError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

type Errors struct {
	mu     sync.RWMutex
	errors []error
}

func (e *Errors) Add(err error) {
	if err == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors = append(e.errors, err)
}

func (e *Errors) Errors() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.errors) == 0 {
		return nil
	}

	return errors.Join(e.errors...)
}
