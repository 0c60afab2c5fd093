package cmake

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/adnn/zpkg/pkgs/buildsys"
	"github.com/adnn/zpkg/recipe"
)

type defineValue struct {
	value    string
	typeName string
}

// CMake wraps common CMake build steps with chainable configuration.
type CMake struct {
	ctx        context.Context
	runner     buildsys.Runner
	bin        string
	SourceDir  string
	buildDir   string
	installDir string
	generator  string
	buildType  string
	toolchain  string
	jobs       int
	Defines    map[string]defineValue
	env        map[string]string
}

var _ buildsys.BuildSystem = (*CMake)(nil)

// New creates a CMake helper from a recipe context. The context settings
// and options seed the usual definitions: build_type, cppstd and the
// shared option. Every resolved dependency is injected with Use.
func New(ctx *recipe.Context) *CMake {
	c := &CMake{
		ctx:     context.Background(),
		runner:  &buildsys.ExecRunner{},
		bin:     "cmake",
		Defines: map[string]defineValue{},
		env:     map[string]string{},
	}
	if ctx == nil {
		c.buildDir = "build"
		return c
	}
	c.ctx = ctx.Context()
	if ctx.Runner != nil {
		c.runner = ctx.Runner
	}
	if ctx.CMake != "" {
		c.bin = ctx.CMake
	}
	c.SourceDir = ctx.SourceDir
	c.buildDir = ctx.BuildDir
	if c.buildDir == "" {
		c.buildDir = filepath.Join(ctx.SourceDir, "build")
	}
	c.installDir = ctx.PackageDir
	c.jobs = ctx.Jobs

	if bt := ctx.Settings["build_type"]; bt != "" {
		c.BuildType(bt)
	}
	if std := ctx.Settings["cppstd"]; std != "" {
		c.Define("CMAKE_CXX_STANDARD", strings.TrimPrefix(std, "gnu"))
		if strings.HasPrefix(std, "gnu") {
			c.DefineBool("CMAKE_CXX_EXTENSIONS", true)
		}
	}
	if shared, ok := ctx.Options["shared"]; ok {
		c.DefineBool("BUILD_SHARED_LIBS", shared)
	}
	for _, dep := range ctx.Deps {
		c.Use(dep.Dir)
	}
	return c
}

func (c *CMake) Source(dir string) {
	c.SourceDir = dir
}

func (c *CMake) InstallDir(dir string) {
	c.installDir = dir
}

func (c *CMake) Generator(name string) *CMake {
	c.generator = name
	return c
}

func (c *CMake) BuildType(name string) *CMake {
	c.buildType = name
	return c
}

func (c *CMake) Toolchain(path string) *CMake {
	c.toolchain = path
	return c
}

// Jobs sets the --parallel level of the build step.
func (c *CMake) Jobs(n int) *CMake {
	c.jobs = n
	return c
}

func (c *CMake) Define(key, value string) *CMake {
	if c.Defines == nil {
		c.Defines = map[string]defineValue{}
	}
	c.Defines[key] = defineValue{value: value, typeName: "STRING"}
	return c
}

func (c *CMake) DefineBool(key string, value bool) *CMake {
	if c.Defines == nil {
		c.Defines = map[string]defineValue{}
	}
	if value {
		c.Defines[key] = defineValue{value: "ON", typeName: "BOOL"}
		return c
	}
	c.Defines[key] = defineValue{value: "OFF", typeName: "BOOL"}
	return c
}

// DefineBools forwards a definition name to value mapping.
func (c *CMake) DefineBools(defs map[string]bool) *CMake {
	for k, v := range defs {
		c.DefineBool(k, v)
	}
	return c
}

func (c *CMake) Env(key, value string) {
	if c.env == nil {
		c.env = map[string]string{}
	}
	c.env[key] = value
}

// Use configures the build environment so that CMake and compilers find
// headers, libraries and pkg-config files of a dependency installed at root.
func (c *CMake) Use(root string) {
	includeDir := filepath.Join(root, "include")
	libDir := filepath.Join(root, "lib")
	pkgconfigDir := filepath.Join(libDir, "pkgconfig")

	// PKG_CONFIG_PATH - pkg-config path (all platforms)
	if _, err := os.Stat(pkgconfigDir); err == nil {
		c.prependEnv("PKG_CONFIG_PATH", pkgconfigDir)
	}

	// CMAKE paths (all platforms)
	if _, err := os.Stat(root); err == nil {
		c.prependEnv("CMAKE_PREFIX_PATH", root)
	}
	if _, err := os.Stat(includeDir); err == nil {
		c.prependEnv("CMAKE_INCLUDE_PATH", includeDir)
	}
	if _, err := os.Stat(libDir); err == nil {
		c.prependEnv("CMAKE_LIBRARY_PATH", libDir)
	}

	// Platform-specific settings
	if runtime.GOOS == "windows" {
		if _, err := os.Stat(includeDir); err == nil {
			c.prependEnv("INCLUDE", includeDir)
		}
		if _, err := os.Stat(libDir); err == nil {
			c.prependEnv("LIB", libDir)
		}
	} else {
		if _, err := os.Stat(includeDir); err == nil {
			c.appendFlag("CPPFLAGS", "-I"+includeDir)
		}
		if _, err := os.Stat(libDir); err == nil {
			c.appendFlag("LDFLAGS", "-L"+libDir)
		}
	}
}

// Configure runs "cmake -S <source> -B <build>" with all configured options.
// Extra args are appended at the end.
func (c *CMake) Configure(args ...string) error {
	if err := os.MkdirAll(c.buildDir, 0o755); err != nil {
		return err
	}
	cmakeArgs := []string{"-S", c.SourceDir, "-B", c.buildDir}
	if c.generator != "" {
		cmakeArgs = append(cmakeArgs, "-G", c.generator)
	}
	if c.installDir != "" {
		c.Define("CMAKE_INSTALL_PREFIX", c.installDir)
	}
	if c.toolchain != "" {
		c.Define("CMAKE_TOOLCHAIN_FILE", c.toolchain)
	}
	if c.buildType != "" {
		c.Define("CMAKE_BUILD_TYPE", c.buildType)
	}
	cmakeArgs = append(cmakeArgs, c.definesArgs()...)
	cmakeArgs = append(cmakeArgs, args...)
	return c.run(cmakeArgs)
}

// Build runs "cmake --build <build>" with optional extra arguments.
func (c *CMake) Build(args ...string) error {
	cmdArgs := []string{"--build", c.buildDir}
	if c.buildType != "" {
		cmdArgs = append(cmdArgs, "--config", c.buildType)
	}
	if c.jobs > 0 {
		cmdArgs = append(cmdArgs, "--parallel", strconv.Itoa(c.jobs))
	}
	cmdArgs = append(cmdArgs, args...)
	return c.run(cmdArgs)
}

// Install runs "cmake --install <build>" with optional extra arguments.
func (c *CMake) Install(args ...string) error {
	cmdArgs := []string{"--install", c.buildDir}
	if c.buildType != "" {
		cmdArgs = append(cmdArgs, "--config", c.buildType)
	}
	if c.installDir != "" {
		cmdArgs = append(cmdArgs, "--prefix", c.installDir)
	}
	cmdArgs = append(cmdArgs, args...)
	return c.run(cmdArgs)
}

// OutputDir returns the install dir if set, otherwise the build dir.
func (c *CMake) OutputDir() string {
	if c.installDir != "" {
		return c.installDir
	}
	return c.buildDir
}

func (c *CMake) run(args []string) error {
	var env map[string]string
	if len(c.env) > 0 {
		env = make(map[string]string, len(c.env))
		for k, v := range c.env {
			env[k] = v
		}
	}
	return c.runner.Run(c.ctx, buildsys.Command{Name: c.bin, Args: args, Env: env})
}

func (c *CMake) definesArgs() []string {
	if len(c.Defines) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.Defines))
	for k := range c.Defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		def := c.Defines[k]
		if def.typeName != "" {
			args = append(args, "-D"+k+":"+def.typeName+"="+def.value)
			continue
		}
		args = append(args, "-D"+k+"="+def.value)
	}
	return args
}

// lookupEnv returns the value already set on c, falling back to the process.
func (c *CMake) lookupEnv(key string) string {
	if v, ok := c.env[key]; ok {
		return v
	}
	return os.Getenv(key)
}

// prependEnv prepends a value to an environment variable using the platform list separator.
func (c *CMake) prependEnv(key, value string) {
	if cur := c.lookupEnv(key); cur != "" {
		value += string(os.PathListSeparator) + cur
	}
	c.Env(key, value)
}

// appendFlag appends a flag to an environment variable (space-separated).
func (c *CMake) appendFlag(key, flag string) {
	if cur := c.lookupEnv(key); cur != "" {
		flag = strings.TrimSpace(cur + " " + flag)
	}
	c.Env(key, flag)
}
