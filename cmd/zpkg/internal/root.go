package internal

import (
	"fmt"
	"io"
	"os"

	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/adnn/zpkg/internal/build"
	"github.com/adnn/zpkg/internal/env"
	"github.com/adnn/zpkg/internal/logx"
	"github.com/adnn/zpkg/internal/vcs"
	"github.com/adnn/zpkg/pkgs/buildsys"
)

var (
	cfgFile string
	cfg     *env.Config
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "zpkg",
	Short: "zpkg builds packages from recipes",
	Long: `zpkg fetches, configures, builds and packages C/C++ projects described by
recipes, caching one binary package per settings and options combination.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		if err := v.BindPFlag(env.KeyVerbose, cmd.Flags().Lookup("verbose")); err != nil {
			return err
		}
		c, err := env.Load(v, cfgFile)
		if err != nil {
			return err
		}
		cfg = c

		if logger, err = logx.New(cfg.Verbose); err != nil {
			return err
		}
		cmd.SetContext(logx.WithLogger(cmd.Context(), logger))
		logger.Debug("configuration loaded",
			zap.String("config", v.ConfigFileUsed()),
			zap.String("work_dir", cfg.WorkDir),
			zap.String("cache_dir", cfg.CacheDir))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./zpkg.yaml or $HOME/.config/zpkg.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "zpkg:", err)
		os.Exit(1)
	}
}

// newBuilder creates a builder from the loaded configuration. Tool output
// is only shown in verbose mode.
func newBuilder(cmd *cobra.Command) *build.Builder {
	out := io.Discard
	if cfg.Verbose {
		out = cmd.ErrOrStderr()
	}
	return build.NewBuilder(build.Options{
		WorkDir:  cfg.WorkDir,
		CacheDir: cfg.CacheDir,
		VCS:      vcs.NewGitVCS(gitOptions(cfg, out)...),
		Runner:   &buildsys.ExecRunner{Stdout: out, Stderr: cmd.ErrOrStderr()},
		CMake:    cfg.CMake,
		Jobs:     cfg.Jobs,
	})
}

// gitOptions maps the configuration to go-git options. A token without a
// username is sent with the "git" user, which hosting services ignore.
func gitOptions(c *env.Config, progress io.Writer) []vcs.GitOption {
	var opts []vcs.GitOption
	if c.Verbose {
		opts = append(opts, vcs.WithProgress(progress))
	}
	if c.GitToken != "" {
		user := c.GitUsername
		if user == "" {
			user = "git"
		}
		opts = append(opts, vcs.WithAuth(&githttp.BasicAuth{Username: user, Password: c.GitToken}))
	}
	return opts
}
