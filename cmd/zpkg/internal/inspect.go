package internal

import (
	"github.com/spf13/cobra"
)

var inspectFormat string

var inspectCmd = &cobra.Command{
	Use:   "inspect [recipe.hcl]",
	Short: "Print the declaration of a recipe",
	Long:  `Inspect prints the metadata, settings, options, requirements and source of a recipe. Without argument the built-in zombies recipe is shown.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", formatTable, "Output format: table, yaml or json")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	var file string
	if len(args) == 1 {
		file = args[0]
	}
	r, err := loadRecipe(file)
	if err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	return printView(cmd.OutOrStdout(), inspectFormat, newRecipeView(r))
}
