package chunkfs

import (
	"time"

	"github.com/mwantia/chunkfs/log"
	"github.com/mwantia/chunkfs/transfer"
)

type VirtualFileSystemOptions struct {
	ChunkSize        int64
	CacheCeiling     int64
	Workers          int
	QueueDepth       int
	Retry            transfer.RetryPolicy
	SnapshotInterval time.Duration

	LogLevel      log.LogLevel
	LogFile       string
	LogJSON       bool
	NoTerminalLog bool
	Logger        *log.Logger
}

type VirtualFileSystemOption func(*VirtualFileSystemOptions) error

func newDefaultVirtualFileSystemOptions() *VirtualFileSystemOptions {
	return &VirtualFileSystemOptions{
		ChunkSize:        4 << 20,
		CacheCeiling:     64 << 20,
		Workers:          4,
		QueueDepth:       32,
		Retry:            transfer.DefaultRetryPolicy(),
		SnapshotInterval: 30 * time.Second,
		LogLevel:         log.Info,
	}
}

// WithChunkSize sets the fixed chunk size files are split into. Must not
// exceed the payload ceiling of the backing store.
func WithChunkSize(size int64) VirtualFileSystemOption {
	return func(opts *VirtualFileSystemOptions) error {
		opts.ChunkSize = size
		return nil
	}
}

// WithCacheCeiling bounds the total bytes of chunk buffers held in memory.
// Must be at least one chunk.
func WithCacheCeiling(ceiling int64) VirtualFileSystemOption {
	return func(opts *VirtualFileSystemOptions) error {
		opts.CacheCeiling = ceiling
		return nil
	}
}

// WithWorkers sets the number of concurrent transfer workers.
func WithWorkers(workers int) VirtualFileSystemOption {
	return func(opts *VirtualFileSystemOptions) error {
		opts.Workers = workers
		return nil
	}
}

// WithQueueDepth sets the transfer queue capacity. Enqueues beyond this
// depth block the caller.
func WithQueueDepth(depth int) VirtualFileSystemOption {
	return func(opts *VirtualFileSystemOptions) error {
		opts.QueueDepth = depth
		return nil
	}
}

// WithRetry overrides the retry policy applied to transient store failures.
func WithRetry(retry transfer.RetryPolicy) VirtualFileSystemOption {
	return func(opts *VirtualFileSystemOptions) error {
		opts.Retry = retry
		return nil
	}
}

// WithSnapshotInterval sets how often the metadata tree is persisted to
// the store. Zero disables the background snapshotter; a final snapshot
// is still taken on unmount.
func WithSnapshotInterval(interval time.Duration) VirtualFileSystemOption {
	return func(opts *VirtualFileSystemOptions) error {
		opts.SnapshotInterval = interval
		return nil
	}
}

func WithLogLevel(logLevel log.LogLevel) VirtualFileSystemOption {
	return func(opts *VirtualFileSystemOptions) error {
		opts.LogLevel = logLevel
		return nil
	}
}

func WithLogFile(logFile string) VirtualFileSystemOption {
	return func(opts *VirtualFileSystemOptions) error {
		opts.LogFile = logFile
		return nil
	}
}

// WithJSONLog switches log output to one JSON object per entry.
func WithJSONLog() VirtualFileSystemOption {
	return func(opts *VirtualFileSystemOptions) error {
		opts.LogJSON = true
		return nil
	}
}

func WithoutTerminalLog() VirtualFileSystemOption {
	return func(opts *VirtualFileSystemOptions) error {
		opts.NoTerminalLog = true
		return nil
	}
}

// WithLogger supplies a prebuilt logger, overriding the level and file
// options.
func WithLogger(logger *log.Logger) VirtualFileSystemOption {
	return func(opts *VirtualFileSystemOptions) error {
		opts.Logger = logger
		return nil
	}
}
