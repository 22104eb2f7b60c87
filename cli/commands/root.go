package commands

import (
	"github.com/spf13/cobra"

	"github.com/satishbabariya/prisma-go-client/cli/internal/ui"
	"github.com/satishbabariya/prisma-go-client/internal/config"
	"github.com/satishbabariya/prisma-go-client/internal/debug"
)

var (
	projectDir string
	debugNS    string
	cfg        *config.Config
)

// NewRootCommand builds the prisma-engine command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "prisma-engine",
		Short: "Run and inspect Prisma Go query engines",
		Long: `prisma-engine serves a query engine over HTTP for remote Prisma Go clients
and inspects running engines.

Configuration is read from prisma-go.yaml, .env, .env.local and PRISMA_GO_*
environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debugNS != "" {
				if err := debug.Init(debug.Config{Namespaces: debugNS}); err != nil {
					return err
				}
			} else if err := debug.InitFromEnv(); err != nil {
				return err
			}
			loaded, err := config.Load(projectDir)
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project directory")
	rootCmd.PersistentFlags().StringVar(&debugNS, "debug", "", "Debug namespaces, for example prisma:*")

	rootCmd.AddCommand(
		newServeCmd(),
		newStatusCmd(),
		newModelsCmd(),
		newValidateCmd(),
		newInitCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute is the main entry point for the CLI
func Execute() error {
	if err := NewRootCommand().Execute(); err != nil {
		ui.PrintError("%v", err)
		return err
	}
	return nil
}
