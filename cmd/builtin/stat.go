package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/mwantia/chunkfs"
)

type StatCommand struct {
}

func (s *StatCommand) Name() string {
	return "stat"
}

func (s *StatCommand) Description() string {
	return "Show file information"
}

func (s *StatCommand) Usage() string {
	return "stat <path>"
}

func (s *StatCommand) Execute(ctx context.Context, fs *chunkfs.VirtualFileSystem, args []string, writer io.Writer) (int, error) {
	if len(args) != 1 {
		return 1, fmt.Errorf("usage: %s", s.Usage())
	}

	info, err := fs.Stat(ctx, args[0])
	if err != nil {
		return 1, err
	}

	fmt.Fprintf(writer, "  Path: %s\n", info.Path)
	fmt.Fprintf(writer, "  Type: %s\n", info.Type)
	fmt.Fprintf(writer, "  Size: %d\n", info.Size)
	fmt.Fprintf(writer, "  Mode: %s\n", info.Mode)
	fmt.Fprintf(writer, "Modify: %s\n", info.ModifyTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(writer, " Inode: %s\n", info.Inode)

	return 0, nil
}
