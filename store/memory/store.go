// Package memory provides an in-process object store, primarily for tests
// and the demo CLI. It supports fault and latency injection so transfer
// behaviour (retry, backpressure, drain) can be exercised deterministically.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mwantia/chunkfs/data"
	"github.com/mwantia/chunkfs/store"
	"github.com/tidwall/btree"
)

// DefaultMaxPayload mirrors a typical message-service payload ceiling.
const DefaultMaxPayload int64 = 8 << 20

// MemoryStore keeps payloads and pointers in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	objects  *btree.Map[string, []byte]
	pointers map[string]string

	maxPayload int64

	// Test hooks, all optional. FailPut/FailGet/FailDelete are consulted
	// before the operation; returning a non-nil error aborts it. PutDelay
	// is applied before every Put, inside the store's critical section so
	// concurrent uploads serialize the way a rate-limited service would.
	PutDelay   time.Duration
	FailPut    func(attempt int) error
	FailGet    func(handle string) error
	FailDelete func(handle string) error

	puts    int
	gets    int
	deletes int
}

type MemoryStoreOption func(*MemoryStore)

// WithMaxPayload overrides the store's payload ceiling.
func WithMaxPayload(max int64) MemoryStoreOption {
	return func(ms *MemoryStore) {
		ms.maxPayload = max
	}
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		objects:    btree.NewMap[string, []byte](0),
		pointers:   make(map[string]string),
		maxPayload: DefaultMaxPayload,
	}

	for _, opt := range opts {
		opt(ms)
	}

	return ms
}

// Returns the identifier name defined for this store
func (*MemoryStore) Name() string {
	return "memory"
}

// Open is part of the lifecycle behaviour and gets called on mount.
func (ms *MemoryStore) Open(ctx context.Context) error {
	return nil
}

// Close is part of the lifecycle behaviour and gets called on unmount.
func (ms *MemoryStore) Close(ctx context.Context) error {
	return nil
}

func (ms *MemoryStore) Put(ctx context.Context, payload []byte) (string, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.puts++

	if ms.FailPut != nil {
		if err := ms.FailPut(ms.puts); err != nil {
			return "", err
		}
	}

	if int64(len(payload)) > ms.maxPayload {
		return "", store.Permanent("put", store.ErrPayloadTooLarge)
	}

	if ms.PutDelay > 0 {
		select {
		case <-time.After(ms.PutDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	handle := uuid.NewString()
	buf := make([]byte, len(payload))
	copy(buf, payload)
	ms.objects.Set(handle, buf)

	return handle, nil
}

func (ms *MemoryStore) Get(ctx context.Context, handle string) ([]byte, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.gets++

	if ms.FailGet != nil {
		if err := ms.FailGet(handle); err != nil {
			return nil, err
		}
	}

	payload, exists := ms.objects.Get(handle)
	if !exists {
		return nil, data.ErrNotExist
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)

	return buf, nil
}

func (ms *MemoryStore) Delete(ctx context.Context, handle string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.deletes++

	if ms.FailDelete != nil {
		if err := ms.FailDelete(handle); err != nil {
			return err
		}
	}

	if _, deleted := ms.objects.Delete(handle); !deleted {
		return data.ErrNotExist
	}

	return nil
}

func (ms *MemoryStore) SetPointer(ctx context.Context, name, handle string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.pointers[name] = handle
	return nil
}

func (ms *MemoryStore) GetPointer(ctx context.Context, name string) (string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	handle, exists := ms.pointers[name]
	if !exists {
		return "", data.ErrNotExist
	}

	return handle, nil
}

func (ms *MemoryStore) MaxPayloadSize() int64 {
	return ms.maxPayload
}

// Len returns the number of stored objects.
func (ms *MemoryStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	return ms.objects.Len()
}

// Counters returns the number of Put, Get and Delete calls observed.
func (ms *MemoryStore) Counters() (puts, gets, deletes int) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	return ms.puts, ms.gets, ms.deletes
}
