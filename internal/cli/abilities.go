package cli

import (
	"encoding/json"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/harun/abilityd/pkg/ability"
)

var (
	abilitiesJSON      bool
	abilitiesCategory  string
	abilitiesToolsOnly bool
)

var abilitiesCmd = &cobra.Command{
	Use:   "abilities",
	Short: "List registered abilities",
	Long: `List every ability registered during initialization, in registration
order, with its category, exposure and whether the tool server bound it.`,
	Args: cobra.NoArgs,
	RunE: runAbilities,
}

func init() {
	abilitiesCmd.Flags().BoolVar(&abilitiesJSON, "json", false, "print abilities as JSON including schemas")
	abilitiesCmd.Flags().StringVar(&abilitiesCategory, "category", "", "only list abilities in this category")
	abilitiesCmd.Flags().BoolVar(&abilitiesToolsOnly, "tools", false, "only list abilities exposed as public tools")
	rootCmd.AddCommand(abilitiesCmd)
}

type abilityView struct {
	ID           string                 `json:"id"`
	Label        string                 `json:"label"`
	Description  string                 `json:"description"`
	Category     string                 `json:"category"`
	Exposure     ability.Exposure       `json:"exposure"`
	Bound        bool                   `json:"bound"`
	InputSchema  map[string]interface{} `json:"input_schema"`
	OutputSchema map[string]interface{} `json:"output_schema"`
}

func runAbilities(cmd *cobra.Command, args []string) error {
	rt, closeRuntime, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer closeRuntime()

	filter := ability.Filter{Category: abilitiesCategory}
	if abilitiesToolsOnly {
		public := true
		filter.ExposedAs = ability.ExposeTool
		filter.Public = &public
	}

	bound := make(map[string]bool)
	for _, id := range rt.Server.BoundIDs() {
		bound[id] = true
	}

	abilities := rt.Registry.List(filter)
	views := make([]abilityView, 0, len(abilities))
	for _, a := range abilities {
		views = append(views, abilityView{
			ID:           a.ID,
			Label:        a.Label,
			Description:  a.Description,
			Category:     a.Category,
			Exposure:     a.Exposure,
			Bound:        bound[a.ID],
			InputSchema:  a.InputSchema.JSONSchema(),
			OutputSchema: a.OutputSchema.JSONSchema(),
		})
	}

	out := cmd.OutOrStdout()
	if abilitiesJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	if len(views) == 0 {
		fmt.Fprintln(out, "No abilities registered")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Label", "Category", "Exposure", "Bound"})
	for _, v := range views {
		exposure := string(v.Exposure.Type)
		if !v.Exposure.Public {
			exposure += " (private)"
		}
		t.AppendRow(table.Row{v.ID, v.Label, v.Category, exposure, v.Bound})
	}
	t.Render()

	return nil
}
