package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/mwantia/chunkfs"
)

type RmdirCommand struct {
}

func (r *RmdirCommand) Name() string {
	return "rmdir"
}

func (r *RmdirCommand) Description() string {
	return "Remove an empty directory"
}

func (r *RmdirCommand) Usage() string {
	return "rmdir <path>..."
}

func (r *RmdirCommand) Execute(ctx context.Context, fs *chunkfs.VirtualFileSystem, args []string, writer io.Writer) (int, error) {
	if len(args) == 0 {
		return 1, fmt.Errorf("usage: %s", r.Usage())
	}

	for _, path := range args {
		if err := fs.Rmdir(ctx, path); err != nil {
			return 1, err
		}
	}

	return 0, nil
}
