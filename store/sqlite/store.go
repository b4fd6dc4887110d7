// Package sqlite provides an object store backed by a local SQLite
// database. It is the local operation mode: everything a remount needs
// lives in one file on disk, with no network service involved.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mwantia/chunkfs/data"
	"github.com/mwantia/chunkfs/store"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DefaultMaxPayload keeps blob rows small enough that a single chunk
// cannot dominate the database page cache.
const DefaultMaxPayload int64 = 16 << 20

type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB

	maxPayload int64
}

// NewSQLiteStore creates a SQLite-backed object store. The dbPath can be
// ":memory:" for an in-memory database or a file path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}

	ss := &SQLiteStore{
		db:         db,
		maxPayload: DefaultMaxPayload,
	}

	if err := ss.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return ss, nil
}

// initSchema creates the database schema.
func (ss *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunkfs_objects (
		handle TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunkfs_pointers (
		name TEXT PRIMARY KEY,
		handle TEXT NOT NULL
	);
	`

	_, err := ss.db.Exec(schema)
	return err
}

// Returns the identifier name defined for this store
func (*SQLiteStore) Name() string {
	return "sqlite"
}

// Open is part of the lifecycle behaviour and gets called on mount.
func (ss *SQLiteStore) Open(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close releases the database handle.
func (ss *SQLiteStore) Close(ctx context.Context) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	return ss.db.Close()
}

func (ss *SQLiteStore) Put(ctx context.Context, payload []byte) (string, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if int64(len(payload)) > ss.maxPayload {
		return "", store.Permanent("put", store.ErrPayloadTooLarge)
	}

	handle := uuid.NewString()

	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO chunkfs_objects (handle, payload, created_at) VALUES (?, ?, ?)`,
		handle, payload, time.Now().Unix())
	if err != nil {
		return "", store.Permanent("put", err)
	}

	return handle, nil
}

func (ss *SQLiteStore) Get(ctx context.Context, handle string) ([]byte, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	var payload []byte
	err := ss.db.QueryRowContext(ctx,
		`SELECT payload FROM chunkfs_objects WHERE handle = ?`, handle).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, data.ErrNotExist
	}
	if err != nil {
		return nil, store.Permanent("get", err)
	}

	return payload, nil
}

func (ss *SQLiteStore) Delete(ctx context.Context, handle string) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	result, err := ss.db.ExecContext(ctx,
		`DELETE FROM chunkfs_objects WHERE handle = ?`, handle)
	if err != nil {
		return store.Permanent("delete", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.Permanent("delete", err)
	}

	if affected == 0 {
		return data.ErrNotExist
	}

	return nil
}

func (ss *SQLiteStore) SetPointer(ctx context.Context, name, handle string) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO chunkfs_pointers (name, handle) VALUES (?, ?)
		 ON CONFLICT (name) DO UPDATE SET handle = excluded.handle`,
		name, handle)
	if err != nil {
		return store.Permanent("set-pointer", err)
	}

	return nil
}

func (ss *SQLiteStore) GetPointer(ctx context.Context, name string) (string, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	var handle string
	err := ss.db.QueryRowContext(ctx,
		`SELECT handle FROM chunkfs_pointers WHERE name = ?`, name).Scan(&handle)
	if errors.Is(err, sql.ErrNoRows) {
		return "", data.ErrNotExist
	}
	if err != nil {
		return "", store.Permanent("get-pointer", err)
	}

	return handle, nil
}

func (ss *SQLiteStore) MaxPayloadSize() int64 {
	return ss.maxPayload
}
