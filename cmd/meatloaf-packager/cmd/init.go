package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meatloaf/meatloaf-packager/internal/config"
	"github.com/meatloaf/meatloaf-packager/internal/fsutil"
)

func newInitCommand() *cobra.Command {
	var force bool

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a settings file with default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultConfigFilename
			if len(args) > 0 {
				path = args[0]
			}

			if fsutil.Exists(path) && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite it", path)
			}

			if err := config.Save(path, config.Default()); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Settings written to %s\n", path)

			return err
		},
	}

	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing settings file")

	return initCmd
}
