package store_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mwantia/chunkfs/data"
	"github.com/mwantia/chunkfs/store"
	"github.com/mwantia/chunkfs/store/consul"
	"github.com/mwantia/chunkfs/store/memory"
	"github.com/mwantia/chunkfs/store/postgres"
	"github.com/mwantia/chunkfs/store/s3"
	"github.com/mwantia/chunkfs/store/sqlite"
)

// TestStoreFactory creates a store instance for testing. Factories for
// network-backed stores skip when their environment is not configured.
type TestStoreFactory func(t *testing.T) (store.VirtualObjectStore, error)

// GetTestStoreFactories returns all store implementations to test.
func GetTestStoreFactories() map[string]TestStoreFactory {
	return map[string]TestStoreFactory{
		"memory": func(t *testing.T) (store.VirtualObjectStore, error) {
			return memory.NewMemoryStore(), nil
		},
		"sqlite": func(t *testing.T) (store.VirtualObjectStore, error) {
			return sqlite.NewSQLiteStore(filepath.Join(t.TempDir(), "store.db"))
		},
		"consul": func(t *testing.T) (store.VirtualObjectStore, error) {
			addr := os.Getenv("CHUNKFS_TEST_CONSUL_ADDR")
			if addr == "" {
				t.Skip("CHUNKFS_TEST_CONSUL_ADDR not set")
			}
			return consul.NewConsulStore(&consul.ConsulStoreConfig{
				Address: addr,
				Prefix:  "chunkfs-test",
			})
		},
		"postgres": func(t *testing.T) (store.VirtualObjectStore, error) {
			dsn := os.Getenv("CHUNKFS_TEST_POSTGRES_DSN")
			if dsn == "" {
				t.Skip("CHUNKFS_TEST_POSTGRES_DSN not set")
			}
			return postgres.NewPostgresStore(dsn)
		},
		"s3": func(t *testing.T) (store.VirtualObjectStore, error) {
			endpoint := os.Getenv("CHUNKFS_TEST_S3_ENDPOINT")
			if endpoint == "" {
				t.Skip("CHUNKFS_TEST_S3_ENDPOINT not set")
			}
			return s3.NewS3Store(&s3.S3StoreConfig{
				Endpoint:  endpoint,
				AccessKey: os.Getenv("CHUNKFS_TEST_S3_ACCESS_KEY"),
				SecretKey: os.Getenv("CHUNKFS_TEST_S3_SECRET_KEY"),
				Bucket:    "chunkfs-test",
			})
		},
	}
}

// TestAllStores_PutGetDelete verifies the object round trip across all
// store implementations.
func TestAllStores_PutGetDelete(t *testing.T) {
	for name, factory := range GetTestStoreFactories() {
		t.Run(name, func(tst *testing.T) {
			ctx := tst.Context()

			st, err := factory(tst)
			if err != nil {
				tst.Fatalf("Store init failed: %v", err)
			}
			if err := st.Open(ctx); err != nil {
				tst.Fatalf("Open failed: %v", err)
			}
			defer st.Close(ctx)

			payload := []byte("hello chunkfs")
			handle, err := st.Put(ctx, payload)
			if err != nil {
				tst.Fatalf("Put failed: %v", err)
			}
			if handle == "" {
				tst.Fatal("Expected a non-empty handle")
			}

			got, err := st.Get(ctx, handle)
			if err != nil {
				tst.Fatalf("Get failed: %v", err)
			}
			if !bytes.Equal(got, payload) {
				tst.Errorf("Expected payload %q, got %q", payload, got)
			}

			if err := st.Delete(ctx, handle); err != nil {
				tst.Fatalf("Delete failed: %v", err)
			}

			if _, err := st.Get(ctx, handle); !errors.Is(err, data.ErrNotExist) {
				tst.Errorf("Expected ErrNotExist after delete, got %v", err)
			}
			if err := st.Delete(ctx, handle); !errors.Is(err, data.ErrNotExist) {
				tst.Errorf("Expected ErrNotExist on double delete, got %v", err)
			}
		})
	}
}

// TestAllStores_UniqueHandles verifies that identical payloads receive
// distinct handles: objects are immutable once stored.
func TestAllStores_UniqueHandles(t *testing.T) {
	for name, factory := range GetTestStoreFactories() {
		t.Run(name, func(tst *testing.T) {
			ctx := tst.Context()

			st, err := factory(tst)
			if err != nil {
				tst.Fatalf("Store init failed: %v", err)
			}
			if err := st.Open(ctx); err != nil {
				tst.Fatalf("Open failed: %v", err)
			}
			defer st.Close(ctx)

			payload := []byte("same bytes")
			first, err := st.Put(ctx, payload)
			if err != nil {
				tst.Fatalf("First put failed: %v", err)
			}
			second, err := st.Put(ctx, payload)
			if err != nil {
				tst.Fatalf("Second put failed: %v", err)
			}

			if first == second {
				tst.Errorf("Expected distinct handles, got %q twice", first)
			}

			st.Delete(ctx, first)
			st.Delete(ctx, second)
		})
	}
}

// TestAllStores_Pointers verifies the named pointer lifecycle used for the
// metadata snapshot root.
func TestAllStores_Pointers(t *testing.T) {
	for name, factory := range GetTestStoreFactories() {
		t.Run(name, func(tst *testing.T) {
			ctx := tst.Context()

			st, err := factory(tst)
			if err != nil {
				tst.Fatalf("Store init failed: %v", err)
			}
			if err := st.Open(ctx); err != nil {
				tst.Fatalf("Open failed: %v", err)
			}
			defer st.Close(ctx)

			if _, err := st.GetPointer(ctx, "test/unset"); !errors.Is(err, data.ErrNotExist) {
				tst.Fatalf("Expected ErrNotExist for unset pointer, got %v", err)
			}

			if err := st.SetPointer(ctx, "test/root", "handle-1"); err != nil {
				tst.Fatalf("SetPointer failed: %v", err)
			}
			if err := st.SetPointer(ctx, "test/root", "handle-2"); err != nil {
				tst.Fatalf("Pointer overwrite failed: %v", err)
			}

			handle, err := st.GetPointer(ctx, "test/root")
			if err != nil {
				tst.Fatalf("GetPointer failed: %v", err)
			}
			if handle != "handle-2" {
				tst.Errorf("Expected handle-2, got %q", handle)
			}
		})
	}
}

// TestAllStores_PayloadCeiling verifies that oversized payloads are
// rejected with a permanent error.
func TestAllStores_PayloadCeiling(t *testing.T) {
	for name, factory := range GetTestStoreFactories() {
		t.Run(name, func(tst *testing.T) {
			ctx := tst.Context()

			st, err := factory(tst)
			if err != nil {
				tst.Fatalf("Store init failed: %v", err)
			}
			if err := st.Open(ctx); err != nil {
				tst.Fatalf("Open failed: %v", err)
			}
			defer st.Close(ctx)

			oversized := make([]byte, st.MaxPayloadSize()+1)
			if _, err := st.Put(ctx, oversized); !errors.Is(err, store.ErrPayloadTooLarge) {
				tst.Fatalf("Expected ErrPayloadTooLarge, got %v", err)
			}
			if store.IsTransient(err) {
				tst.Error("Payload ceiling errors must not be retried")
			}
		})
	}
}
