package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/mwantia/chunkfs"
)

type RmCommand struct {
}

func (r *RmCommand) Name() string {
	return "rm"
}

func (r *RmCommand) Description() string {
	return "Remove a file"
}

func (r *RmCommand) Usage() string {
	return "rm <path>..."
}

func (r *RmCommand) Execute(ctx context.Context, fs *chunkfs.VirtualFileSystem, args []string, writer io.Writer) (int, error) {
	if len(args) == 0 {
		return 1, fmt.Errorf("usage: %s", r.Usage())
	}

	for _, path := range args {
		if err := fs.Remove(ctx, path); err != nil {
			return 1, err
		}
	}

	return 0, nil
}
