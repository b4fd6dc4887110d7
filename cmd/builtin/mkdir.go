package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/mwantia/chunkfs"
)

type MkdirCommand struct {
}

func (m *MkdirCommand) Name() string {
	return "mkdir"
}

func (m *MkdirCommand) Description() string {
	return "Create a directory"
}

func (m *MkdirCommand) Usage() string {
	return "mkdir <path>..."
}

func (m *MkdirCommand) Execute(ctx context.Context, fs *chunkfs.VirtualFileSystem, args []string, writer io.Writer) (int, error) {
	if len(args) == 0 {
		return 1, fmt.Errorf("usage: %s", m.Usage())
	}

	for _, path := range args {
		if err := fs.Mkdir(ctx, path, 0755); err != nil {
			return 1, err
		}
	}

	return 0, nil
}
