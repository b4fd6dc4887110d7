package builtin

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/mwantia/chunkfs"
)

type TruncateCommand struct {
}

func (t *TruncateCommand) Name() string {
	return "truncate"
}

func (t *TruncateCommand) Description() string {
	return "Resize a file"
}

func (t *TruncateCommand) Usage() string {
	return "truncate <path> <size>"
}

func (t *TruncateCommand) Execute(ctx context.Context, fs *chunkfs.VirtualFileSystem, args []string, writer io.Writer) (int, error) {
	if len(args) != 2 {
		return 1, fmt.Errorf("usage: %s", t.Usage())
	}

	size, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 1, fmt.Errorf("invalid size: %s", args[1])
	}

	if err := fs.Truncate(ctx, args[0], size); err != nil {
		return 1, err
	}

	return 0, nil
}
