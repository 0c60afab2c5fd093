package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/adnn/zpkg/pkgs/lockfile"
	"github.com/adnn/zpkg/recipe"
)

// packageFlags are shared by build and create.
type packageFlags struct {
	recipeFlags
	lockfile string
	output   string
	format   string
}

func (f *packageFlags) register(cmd *cobra.Command) {
	f.recipeFlags.register(cmd.Flags())
	cmd.Flags().StringVar(&f.lockfile, "lockfile", lockfile.Name, "Lockfile pinning the source revision, used when present")
	cmd.Flags().StringVar(&f.output, "output", "", "Copy the package to a directory or .zip file")
	cmd.Flags().StringVarP(&f.format, "format", "f", formatTable, "Output format: table, yaml or json")
}

var (
	buildFlags  packageFlags
	createFlags packageFlags
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a package from sources",
	Long:  `Build fetches the sources and runs the build, package, package_info and deploy steps, regardless of the package cache.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPackage(cmd, &buildFlags, recipe.BuildAlways)
	},
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a package, honoring the build policy",
	Long:  `Create returns the cached package for the requested settings and options, building it when the recipe's build policy allows.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPackage(cmd, &createFlags, "")
	},
}

func init() {
	buildFlags.register(buildCmd)
	createFlags.register(createCmd)
	rootCmd.AddCommand(buildCmd, createCmd)
}

func runPackage(cmd *cobra.Command, f *packageFlags, policy recipe.BuildPolicy) error {
	r, err := f.load()
	if err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	req, err := f.request()
	if err != nil {
		return err
	}
	req.Policy = policy
	if req.Revision, err = pinnedRevision(f.lockfile, r); err != nil {
		return err
	}

	// Resolve output path before building.
	output := f.output
	if output != "" {
		if output, err = filepath.Abs(output); err != nil {
			return fmt.Errorf("failed to resolve output path: %w", err)
		}
	}

	res, err := newBuilder(cmd).Create(cmd.Context(), r, req)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", r.Name, err)
	}
	if output != "" {
		if err := outputResult(res.PackageDir, output); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return printView(cmd.OutOrStdout(), f.format, newResultView(res))
}

// pinnedRevision returns the revision recorded in the lockfile at file for
// the source of r. A missing lockfile pins nothing.
func pinnedRevision(file string, r *recipe.Recipe) (string, error) {
	if file == "" {
		return "", nil
	}
	lock, err := lockfile.Parse(file, nil)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if lock.Source.URL != r.SCM.URL {
		return "", fmt.Errorf("lockfile %s pins %s, recipe fetches %s", file, lock.Source.URL, r.SCM.URL)
	}
	return lock.Source.Revision, nil
}
