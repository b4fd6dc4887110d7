package builtin

import "github.com/mwantia/chunkfs/cmd"

// InitBuiltin registers every builtin command with the registry.
func InitBuiltin(registry *cmd.Registry) error {
	commands := []cmd.Command{
		&LsCommand{},
		&CatCommand{},
		&WriteCommand{},
		&MkdirCommand{},
		&RmCommand{},
		&RmdirCommand{},
		&MvCommand{},
		&StatCommand{},
		&TruncateCommand{},
	}

	for _, command := range commands {
		if err := registry.Register(command); err != nil {
			return err
		}
	}

	return nil
}
