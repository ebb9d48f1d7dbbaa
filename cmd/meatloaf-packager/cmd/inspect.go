package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/meatloaf/meatloaf-packager/internal/service/inspector"
)

func newInspectCommand() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect application images and firmware archives",
	}

	inspectCmd.AddCommand(
		&cobra.Command{
			Use:   "image [path]",
			Short: "Decode chip and flash size from an application image header",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				_, err := inspector.InspectImage(context.Background(), args[0])

				return err
			},
		},
		&cobra.Command{
			Use:   "archive [path]",
			Short: "List the entries and manifest digest of a firmware archive",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				report, err := inspector.InspectArchive(context.Background(), args[0])
				if err != nil {
					return err
				}

				return report.Print(cmd.OutOrStdout())
			},
		},
	)

	return inspectCmd
}
