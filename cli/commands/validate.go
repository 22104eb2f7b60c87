package commands

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/prisma-go-client/cli/internal/ui"
	"github.com/satishbabariya/prisma-go-client/internal/config"
)

func newValidateCmd() *cobra.Command {
	var schemaPath string
	cmd := &cobra.Command{
		Use:   "validate [schema-path]",
		Short: "Validate the schema and configuration",
		Long: `Validate the schema and the engine configuration.

This command will:
- Parse the schema file
- Check that the configured engine can be built from it
- Display a summary of the schema`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(getSchemaPath(schemaPath, args))
		},
	}
	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "Path to schema file")
	return cmd
}

func runValidate(schemaPath string) error {
	if _, err := config.AppFs.Stat(schemaPath); err != nil {
		return errors.Errorf("schema file not found: %s", schemaPath)
	}
	dm, err := loadSchema(schemaPath)
	if err != nil {
		ui.PrintError("Schema parsing failed:")
		return err
	}
	if err := cfg.Validate(); err != nil {
		ui.PrintError("Configuration is invalid:")
		return err
	}

	absPath, _ := filepath.Abs(schemaPath)
	ui.PrintSuccess("Schema is valid: %s", absPath)

	ui.PrintSection("Schema Summary")
	ui.PrintList([]string{
		fmt.Sprintf("%d model(s)", len(dm.Models)),
		fmt.Sprintf("%d enum(s)", len(dm.Enums)),
		fmt.Sprintf("engine: %s", cfg.Engine),
	})
	for _, m := range dm.Models {
		ui.PrintInfo("%s (%d fields)", m.Name, len(m.Fields))
	}
	return nil
}
