package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

// AttachCobraVersionCommand adds a `version` subcommand to root and sets root.Version
// so that `--version` works as well.
func AttachCobraVersionCommand(root *cobra.Command) {
	info := Get()
	root.Version = info.Version
	root.SetVersionTemplate(info.String() + "\n")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print packager build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), Get().String())
		},
	})
}
