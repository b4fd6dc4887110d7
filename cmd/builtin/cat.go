package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/mwantia/chunkfs"
	"github.com/mwantia/chunkfs/data"
)

type CatCommand struct {
}

func (c *CatCommand) Name() string {
	return "cat"
}

func (c *CatCommand) Description() string {
	return "Print file contents"
}

func (c *CatCommand) Usage() string {
	return "cat <path>..."
}

func (c *CatCommand) Execute(ctx context.Context, fs *chunkfs.VirtualFileSystem, args []string, writer io.Writer) (int, error) {
	if len(args) == 0 {
		return 1, fmt.Errorf("usage: %s", c.Usage())
	}

	for _, path := range args {
		file, err := fs.OpenFile(ctx, path, data.AccessModeRead, 0)
		if err != nil {
			return 1, err
		}

		if _, err := io.Copy(writer, file); err != nil {
			file.Close()
			return 1, err
		}

		file.Close()
	}

	return 0, nil
}
