package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mwantia/chunkfs"
	"github.com/mwantia/chunkfs/cmd"
	"github.com/mwantia/chunkfs/cmd/builtin"
	"github.com/mwantia/chunkfs/data"
	"github.com/mwantia/chunkfs/log"
	"github.com/mwantia/chunkfs/store"
	"github.com/mwantia/chunkfs/store/memory"
	"github.com/mwantia/chunkfs/store/postgres"
	"github.com/mwantia/chunkfs/store/sqlite"
)

// seedDemo populates a freshly mounted filesystem with sample content so
// there is something to explore.
func seedDemo(ctx context.Context, fs *chunkfs.VirtualFileSystem) error {
	dirs := []string{
		"/home",
		"/home/user",
		"/home/user/documents",
		"/var",
		"/var/log",
		"/tmp",
	}

	for _, dir := range dirs {
		if err := fs.Mkdir(ctx, dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	files := map[string]string{
		"/home/user/documents/readme.txt": "Welcome to the chunkfs demo!",
		"/home/user/documents/notes.txt":  "Files here are chunked into the object store.",
		"/var/log/system.log":             "System log entry 1\nSystem log entry 2",
		"/tmp/temp.txt":                   "Temporary file",
	}

	for path, content := range files {
		file, err := fs.OpenFile(ctx, path, data.AccessModeWrite|data.AccessModeCreate, 0644)
		if err != nil {
			return fmt.Errorf("failed to open file %s: %w", path, err)
		}

		if _, err := file.Write([]byte(content)); err != nil {
			file.Close()
			return fmt.Errorf("failed to write to file %s: %w", path, err)
		}

		if err := file.Close(); err != nil {
			return fmt.Errorf("failed to close file %s: %w", path, err)
		}
	}

	return nil
}

func openStore(kind, dsn string) (store.VirtualObjectStore, error) {
	switch kind {
	case "memory":
		return memory.NewMemoryStore(), nil
	case "sqlite":
		if dsn == "" {
			dsn = "chunkfs.db"
		}
		return sqlite.NewSQLiteStore(dsn)
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("postgres store requires -dsn")
		}
		return postgres.NewPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("unknown store: %s", kind)
	}
}

func main() {
	storeKind := flag.String("store", "memory", "object store backend (memory, sqlite, postgres)")
	dsn := flag.String("dsn", "", "store connection string or file path")
	chunkSize := flag.Int64("chunk-size", 1<<20, "chunk size in bytes")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	logJSON := flag.Bool("log-json", false, "emit log entries as JSON")
	demo := flag.Bool("demo", true, "seed the filesystem with sample content")
	flag.Parse()

	ctx := context.Background()

	st, err := openStore(*storeKind, *dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		os.Exit(1)
	}

	level := log.Warn
	if *verbose {
		level = log.Debug
	}

	options := []chunkfs.VirtualFileSystemOption{
		chunkfs.WithChunkSize(*chunkSize),
		chunkfs.WithLogLevel(level),
	}
	if *logJSON {
		options = append(options, chunkfs.WithJSONLog())
	}

	fs, err := chunkfs.NewVirtualFileSystem(st, options...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create filesystem: %v\n", err)
		os.Exit(1)
	}

	if err := fs.Mount(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to mount: %v\n", err)
		os.Exit(1)
	}

	if *demo {
		if err := seedDemo(ctx, fs); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to seed demo content: %v\n", err)
		}
	}

	registry := cmd.NewRegistry()
	if err := builtin.InitBuiltin(registry); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to register commands: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("chunkfs shell on %s store. Type 'help' for commands, 'exit' to quit.\n", st.Name())

	scanner := bufio.NewScanner(os.Stdin)
loop:
	for {
		fmt.Print("chunkfs> ")
		if !scanner.Scan() {
			break
		}

		line := scanner.Text()
		switch line {
		case "":
			continue
		case "exit", "quit":
			break loop
		case "help":
			for _, command := range registry.Commands() {
				fmt.Printf("  %-28s %s\n", command.Usage(), command.Description())
			}
			continue
		}

		if _, err := registry.Execute(ctx, fs, line, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}

	if err := fs.Unmount(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Unmount failed: %v\n", err)
		os.Exit(1)
	}
}
