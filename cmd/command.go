package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/mwantia/chunkfs"
)

// Command represents an executable command against the virtual filesystem.
type Command interface {
	// Name returns the command identifier
	Name() string

	// Description returns human-readable help text
	Description() string

	// Usage returns a usage string for help (e.g. "ls [-l] [path]")
	Usage() string

	// Execute runs the command with its arguments.
	// The writer parameter is where command output should be written.
	// Returns exit code (0 = success) and error message.
	Execute(ctx context.Context, fs *chunkfs.VirtualFileSystem, args []string, writer io.Writer) (int, error)
}

// Registry holds the available commands and dispatches input lines.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Command),
	}
}

func (r *Registry) Register(cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := cmd.Name()
	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("chunkfs: command already registered: %s", name)
	}

	r.commands[name] = cmd
	return nil
}

// Commands returns all registered commands sorted by name.
func (r *Registry) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := make([]Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool {
		return cmds[i].Name() < cmds[j].Name()
	})

	return cmds
}

// Execute parses a raw input line and runs the named command.
func (r *Registry) Execute(ctx context.Context, fs *chunkfs.VirtualFileSystem, line string, writer io.Writer) (int, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, nil
	}

	r.mu.RLock()
	cmd, exists := r.commands[fields[0]]
	r.mu.RUnlock()

	if !exists {
		return 1, fmt.Errorf("chunkfs: unknown command: %s", fields[0])
	}

	return cmd.Execute(ctx, fs, fields[1:], writer)
}
