package env

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// Config keys, also usable as ZPKG_<KEY> environment variables.
const (
	KeyWorkDir  = "work_dir"
	KeyCacheDir = "cache_dir"
	KeyCMake    = "cmake"
	KeyJobs     = "jobs"
	KeyVerbose  = "verbose"

	KeyGitUsername = "git_username"
	KeyGitToken    = "git_token"
)

// Config holds the tool configuration.
type Config struct {
	WorkDir  string `mapstructure:"work_dir"`  // source and build folders
	CacheDir string `mapstructure:"cache_dir"` // package cache
	CMake    string `mapstructure:"cmake"`     // cmake executable
	Jobs     int    `mapstructure:"jobs"`      // parallel build jobs
	Verbose  bool   `mapstructure:"verbose"`

	// HTTP credentials for private source repositories.
	GitUsername string `mapstructure:"git_username"`
	GitToken    string `mapstructure:"git_token"`
}

func WorkDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".zpkg"), nil
}

// SetDefaults registers the defaults on v. Directories derive from WorkDir.
func SetDefaults(v *viper.Viper) error {
	root, err := WorkDir()
	if err != nil {
		return err
	}
	v.SetDefault(KeyWorkDir, filepath.Join(root, "work"))
	v.SetDefault(KeyCacheDir, filepath.Join(root, "data"))
	v.SetDefault(KeyCMake, "cmake")
	v.SetDefault(KeyJobs, runtime.NumCPU())
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyGitUsername, "")
	v.SetDefault(KeyGitToken, "")
	return nil
}

// Load reads the configuration into v and decodes it. A non-empty file is
// read as is; otherwise zpkg.yaml is searched in the current directory and
// $HOME/.config, and may be absent.
func Load(v *viper.Viper, file string) (*Config, error) {
	if err := SetDefaults(v); err != nil {
		return nil, err
	}
	v.SetEnvPrefix("ZPKG")
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("zpkg")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if c.Jobs < 0 {
		return nil, fmt.Errorf("jobs must not be negative, got %d", c.Jobs)
	}
	return &c, nil
}
