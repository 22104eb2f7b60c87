package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/prisma-go-client/cli/internal/ui"
	"github.com/satishbabariya/prisma-go-client/internal/version"
	"github.com/satishbabariya/prisma-go-client/runtime/engine/httpengine"
)

func newStatusCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the version and open transactions of a running engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = cfg.EngineURL
			}
			if url == "" {
				url = "http://" + cfg.Listen
			}
			return runStatus(cmd, url)
		},
	}
	cmd.Flags().StringVarP(&url, "url", "u", "", "Engine URL (defaults to engine_url, then the listen address)")
	return cmd
}

func runStatus(cmd *cobra.Command, url string) error {
	remote, err := httpengine.New(url)
	if err != nil {
		return err
	}
	info, err := remote.Version(cmd.Context())
	if err != nil {
		return err
	}

	compatible := "yes"
	if err := version.Compatible(info.Version); err != nil {
		compatible = err.Error()
	}
	ui.PrintKeyValues([][2]string{
		{"Engine", url},
		{"Version", info.Version},
		{"Commit", info.GitCommit},
		{"Compatible", compatible},
	})

	open := remote.OpenTransactions()
	if len(open) == 0 {
		ui.PrintInfo("no open transactions")
		return nil
	}
	rows := make([][]string, 0, len(open))
	for _, tx := range open {
		rows = append(rows, []string{
			tx.ID,
			tx.StartedAt.Format(time.RFC3339),
			time.Since(tx.StartedAt).Round(time.Millisecond).String(),
			tx.Timeout.String(),
		})
	}
	return ui.PrintTable([]string{"ID", "Started", "Age", "Timeout"}, rows)
}
