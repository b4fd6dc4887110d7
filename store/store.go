// Package store defines the remote object store contract consumed by the
// chunk engine: an append-only service storing opaque payloads of bounded
// size under server-assigned handles.
package store

import "context"

// VirtualObjectStore is the remote backend every chunk payload is written
// to. Implementations assign an opaque handle on Put; handles are never
// reused and payloads are immutable once stored.
type VirtualObjectStore interface {
	// Returns the identifier name defined for this store
	Name() string

	// Open is part of the lifecycle behaviour and gets called when the
	// filesystem is mounted.
	Open(ctx context.Context) error

	// Close is part of the lifecycle behaviour and gets called when the
	// filesystem is unmounted.
	Close(ctx context.Context) error

	// Put stores a payload and returns its handle. The payload length
	// must not exceed MaxPayloadSize.
	Put(ctx context.Context, payload []byte) (string, error)

	// Get returns the payload stored under handle, or data.ErrNotExist.
	Get(ctx context.Context, handle string) ([]byte, error)

	// Delete removes the payload stored under handle. Deleting an unknown
	// handle returns data.ErrNotExist.
	Delete(ctx context.Context, handle string) error

	// SetPointer records a handle under a fixed, well-known name so it
	// can be recovered after a restart (used for the metadata snapshot
	// root).
	SetPointer(ctx context.Context, name, handle string) error

	// GetPointer returns the handle recorded under name, or
	// data.ErrNotExist when the pointer was never set.
	GetPointer(ctx context.Context, name string) (string, error)

	// MaxPayloadSize returns the documented maximum payload length in
	// bytes for a single Put.
	MaxPayloadSize() int64
}
