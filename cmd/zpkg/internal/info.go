package internal

import (
	"github.com/spf13/cobra"

	"github.com/adnn/zpkg/internal/build"
	"github.com/adnn/zpkg/recipe"
)

var (
	infoID     string
	infoFormat string
)

var infoCmd = &cobra.Command{
	Use:   "info name/version[@user/channel]",
	Short: "Print the package info of a cached package",
	Long:  `Info prints the libraries, folders and configuration of a package in the cache. Without --id the most recently built package of the reference is shown.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().StringVar(&infoID, "id", "", "Package ID")
	infoCmd.Flags().StringVarP(&infoFormat, "format", "f", formatTable, "Output format: table, yaml or json")
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	ref, err := recipe.ParseReference(args[0])
	if err != nil {
		return err
	}
	res, err := build.NewBuilder(build.Options{CacheDir: cfg.CacheDir}).Lookup(ref, infoID)
	if err != nil {
		return err
	}
	return printView(cmd.OutOrStdout(), infoFormat, newResultView(res))
}
