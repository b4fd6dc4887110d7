package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/mwantia/chunkfs"
)

type LsCommand struct {
}

// Name returns the command identifier
func (ls *LsCommand) Name() string {
	return "ls"
}

// Description returns human-readable help text
func (ls *LsCommand) Description() string {
	return "List directory contents"
}

// Usage returns a usage string for help
func (ls *LsCommand) Usage() string {
	return "ls [-l] [path]"
}

// Execute runs the command with its arguments
func (ls *LsCommand) Execute(ctx context.Context, fs *chunkfs.VirtualFileSystem, args []string, writer io.Writer) (int, error) {
	long := false
	path := "/"

	for _, arg := range args {
		if arg == "-l" {
			long = true
			continue
		}
		path = arg
	}

	infos, err := fs.ReadDir(ctx, path)
	if err != nil {
		return 1, err
	}

	for _, info := range infos {
		if long {
			fmt.Fprintf(writer, "%s %10d %s %s\n",
				info.Mode.String(), info.Size, info.ModifyTime.Format("Jan 02 15:04"), info.Name)
			continue
		}
		fmt.Fprintln(writer, info.Name)
	}

	return 0, nil
}
