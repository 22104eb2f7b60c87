package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/prisma-go-client/cli/internal/ui"
	"github.com/satishbabariya/prisma-go-client/runtime/schema"
	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

func newModelsCmd() *cobra.Command {
	var schemaPath string
	cmd := &cobra.Command{
		Use:   "models [schema-path]",
		Short: "List the models of the client dispatch table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dm, err := loadSchema(getSchemaPath(schemaPath, args))
			if err != nil {
				return err
			}
			return ui.PrintMarkdown(modelsMarkdown(dm))
		},
	}
	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "Path to schema file")
	return cmd
}

// modelsMarkdown renders one section per model with its fields and the
// actions its model client accepts.
func modelsMarkdown(dm *schema.Datamodel) string {
	var b strings.Builder
	b.WriteString("# Models\n\n")
	if len(dm.Models) == 0 {
		b.WriteString("_The schema declares no models._\n")
		return b.String()
	}

	actions := make([]string, len(types.ModelActions))
	for i, a := range types.ModelActions {
		actions[i] = "`" + a.String() + "`"
	}

	for _, m := range dm.Models {
		fmt.Fprintf(&b, "## %s\n\n", m.Name)
		b.WriteString("| Field | Type | Attributes |\n|---|---|---|\n")
		for _, f := range m.Fields {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", f.Name, fieldType(f), strings.Join(fieldAttributes(f), " "))
		}
		if len(m.UniqueGroups) > 0 {
			b.WriteString("\nCompound unique: ")
			groups := make([]string, len(m.UniqueGroups))
			for i, g := range m.UniqueGroups {
				groups[i] = "(" + strings.Join(g, ", ") + ")"
			}
			b.WriteString(strings.Join(groups, ", ") + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Every model client accepts: " + strings.Join(actions, ", ") + "\n")
	return b.String()
}

func fieldType(f *schema.Field) string {
	t := f.Type
	if f.List {
		t += "[]"
	}
	if f.Optional {
		t += "?"
	}
	return t
}

func fieldAttributes(f *schema.Field) []string {
	var attrs []string
	if f.ID {
		attrs = append(attrs, "@id")
	}
	if f.Unique {
		attrs = append(attrs, "@unique")
	}
	if f.UpdatedAt {
		attrs = append(attrs, "@updatedAt")
	}
	if f.Relation {
		attrs = append(attrs, "relation")
	}
	if d := f.Default; d != nil {
		if d.Function != "" {
			attrs = append(attrs, "@default("+d.Function+"())")
		} else {
			attrs = append(attrs, fmt.Sprintf("@default(%v)", d.Value))
		}
	}
	return attrs
}
