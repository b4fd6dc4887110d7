package builtin

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mwantia/chunkfs"
	"github.com/mwantia/chunkfs/data"
)

type WriteCommand struct {
}

func (w *WriteCommand) Name() string {
	return "write"
}

func (w *WriteCommand) Description() string {
	return "Write text to a file, replacing its contents"
}

func (w *WriteCommand) Usage() string {
	return "write <path> <text>..."
}

func (w *WriteCommand) Execute(ctx context.Context, fs *chunkfs.VirtualFileSystem, args []string, writer io.Writer) (int, error) {
	if len(args) < 2 {
		return 1, fmt.Errorf("usage: %s", w.Usage())
	}

	flags := data.AccessModeWrite | data.AccessModeCreate | data.AccessModeTrunc
	file, err := fs.OpenFile(ctx, args[0], flags, 0644)
	if err != nil {
		return 1, err
	}

	content := strings.Join(args[1:], " ")
	if _, err := file.Write([]byte(content)); err != nil {
		file.Close()
		return 1, err
	}

	if err := file.Close(); err != nil {
		return 1, err
	}

	fmt.Fprintf(writer, "wrote %d bytes to %s\n", len(content), args[0])
	return 0, nil
}
