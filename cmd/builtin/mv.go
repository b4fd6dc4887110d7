package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/mwantia/chunkfs"
)

type MvCommand struct {
}

func (m *MvCommand) Name() string {
	return "mv"
}

func (m *MvCommand) Description() string {
	return "Move or rename a file or directory"
}

func (m *MvCommand) Usage() string {
	return "mv <src> <dst>"
}

func (m *MvCommand) Execute(ctx context.Context, fs *chunkfs.VirtualFileSystem, args []string, writer io.Writer) (int, error) {
	if len(args) != 2 {
		return 1, fmt.Errorf("usage: %s", m.Usage())
	}

	if err := fs.Rename(ctx, args[0], args[1]); err != nil {
		return 1, err
	}

	return 0, nil
}
