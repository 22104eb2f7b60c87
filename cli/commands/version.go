package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/prisma-go-client/cli/internal/ui"
	"github.com/satishbabariya/prisma-go-client/internal/version"
)

func newVersionCmd() *cobra.Command {
	var latest string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(ui.Out, version.Get().FullString())
			if latest == "" {
				return nil
			}
			newer, err := version.Newer(latest)
			if err != nil {
				return err
			}
			if newer {
				ui.ColorPrint(color.New(color.FgYellow, color.Bold), "\nA new version is available: %s -> %s\n", version.Version, latest)
				fmt.Fprintln(ui.Out, "Update with: go install github.com/satishbabariya/prisma-go-client/cli@latest")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&latest, "latest", "", "Compare against a released version")
	return cmd
}
