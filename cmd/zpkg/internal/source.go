package internal

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adnn/zpkg/internal/logx"
	"github.com/adnn/zpkg/pkgs/lockfile"
)

var (
	sourceFlags    recipeFlags
	sourceLockfile string
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Fetch the sources of a recipe",
	Long:  `Source checks out the recipe's repository at its revision, with submodules, and writes a lockfile pinning the resolved commit.`,
	Args:  cobra.NoArgs,
	RunE:  runSource,
}

func init() {
	sourceFlags.register(sourceCmd.Flags())
	sourceCmd.Flags().StringVar(&sourceLockfile, "lockfile", lockfile.Name, "Lockfile to write")
	rootCmd.AddCommand(sourceCmd)
}

func runSource(cmd *cobra.Command, args []string) error {
	r, err := sourceFlags.load()
	if err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	req, err := sourceFlags.request()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	lock, dir, err := newBuilder(cmd).Source(ctx, r, req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", r.Name, err)
	}
	if err := lock.Write(sourceLockfile); err != nil {
		return fmt.Errorf("failed to write lockfile: %w", err)
	}
	logx.FromContext(ctx).Info("sources ready",
		zap.String("dir", dir),
		zap.String("revision", lock.Source.Revision),
		zap.String("lockfile", sourceLockfile))
	fmt.Fprintln(cmd.OutOrStdout(), dir)
	return nil
}
