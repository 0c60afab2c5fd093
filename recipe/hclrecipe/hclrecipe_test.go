package hclrecipe

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adnn/zpkg/pkgs/buildsys"
	"github.com/adnn/zpkg/recipe"
)

type recorder struct {
	cmds []buildsys.Command
}

func (r *recorder) Run(ctx context.Context, cmd buildsys.Command) error {
	r.cmds = append(r.cmds, cmd)
	return nil
}

func (r *recorder) Output(ctx context.Context, cmd buildsys.Command) ([]byte, error) {
	r.cmds = append(r.cmds, cmd)
	return nil, nil
}

const sample = `
name    = "hello"
version = "1.2.0"

settings = ["os", "build_type"]

option "shared" {}
option "with_ssl" { default = true }

default_options = ["shared=True", "fast=False"]

requires = ["zlib/1.2.11@conan/stable"]

scm {
  url       = "https://example.com/hello.git"
  subfolder = "src"
}

cmake {
  source_folder = "src"
  generator     = "Ninja"
  definitions = {
    HELLO_SHARED = options.shared
    HELLO_TYPE   = settings.build_type
    HELLO_LEVEL  = 3
  }
}
`

func TestParse(t *testing.T) {
	r, err := Parse([]byte(sample), "hello.hcl")
	require.NoError(t, err)

	assert.Equal(t, "hello", r.Name)
	assert.Equal(t, "1.2.0", r.Version)
	assert.Equal(t, recipe.Settings{"os", "build_type"}, r.Settings)
	assert.Equal(t, recipe.Options{
		{Name: "shared", Default: true},
		{Name: "with_ssl", Default: true},
		{Name: "fast", Default: false},
	}, r.Options)
	assert.Equal(t, []recipe.Reference{recipe.MustParseReference("zlib/1.2.11@conan/stable")}, r.Requires)
	assert.Equal(t, recipe.SCM{
		Type:      recipe.SCMGit,
		Subfolder: "src",
		URL:       "https://example.com/hello.git",
		Revision:  recipe.RevisionAuto,
	}, r.SCM)
	assert.Equal(t, recipe.BuildMissing, r.Policy())
}

func TestBuildEvaluatesDefinitions(t *testing.T) {
	r, err := Parse([]byte(sample), "hello.hcl")
	require.NoError(t, err)

	dir := t.TempDir()
	rec := &recorder{}
	ctx := &recipe.Context{
		Options:    recipe.Values{"shared": false, "with_ssl": true, "fast": false},
		Settings:   recipe.SettingValues{"os": "Linux", "build_type": "Debug"},
		SourceDir:  filepath.Join(dir, "source"),
		BuildDir:   filepath.Join(dir, "build"),
		PackageDir: filepath.Join(dir, "package"),
		Runner:     rec,
	}
	require.NoError(t, r.Build(ctx))
	require.Len(t, rec.cmds, 3)

	args := rec.cmds[0].Args
	assert.Equal(t, filepath.Join(dir, "source", "src"), args[1])
	for _, want := range []string{
		"-DHELLO_SHARED:BOOL=OFF",
		"-DHELLO_TYPE:STRING=Debug",
		"-DHELLO_LEVEL:STRING=3",
		"-DCMAKE_BUILD_TYPE:STRING=Debug",
	} {
		assert.True(t, slices.Contains(args, want), "configure args %v missing %s", args, want)
	}
	assert.True(t, slices.Contains(args, "Ninja"))
}

func TestBuildToolchainAndJobs(t *testing.T) {
	src := `
name = "cross"
cmake {
  source_folder = "src"
  toolchain     = "cmake/arm.cmake"
  jobs          = 2
}
`
	r, err := Parse([]byte(src), "cross.hcl")
	require.NoError(t, err)

	dir := t.TempDir()
	rec := &recorder{}
	ctx := &recipe.Context{
		SourceDir: filepath.Join(dir, "source"),
		BuildDir:  filepath.Join(dir, "build"),
		Runner:    rec,
		Jobs:      8,
	}
	require.NoError(t, r.Build(ctx))
	require.Len(t, rec.cmds, 3)

	want := "-DCMAKE_TOOLCHAIN_FILE:STRING=" + filepath.Join(dir, "source", "src", "cmake", "arm.cmake")
	assert.Contains(t, rec.cmds[0].Args, want)
	build := rec.cmds[1].Args
	i := slices.Index(build, "--parallel")
	require.GreaterOrEqual(t, i, 0, "build args %v", build)
	assert.Equal(t, "2", build[i+1])
}

func TestBuildWithoutCMakeBlockIsNoop(t *testing.T) {
	r, err := Parse([]byte(`name = "headers"`), "headers.hcl")
	require.NoError(t, err)
	rec := &recorder{}
	require.NoError(t, r.Build(&recipe.Context{Runner: rec}))
	assert.Empty(t, rec.cmds)
}

func TestPackageInfo(t *testing.T) {
	t.Run("explicit", func(t *testing.T) {
		r, err := Parse([]byte("name = \"x\"\npackage_info {\n  libs = [\"x\", \"y\"]\n}\n"), "x.hcl")
		require.NoError(t, err)
		info := recipe.NewCppInfo()
		require.NoError(t, r.PackageInfo(&recipe.Context{PackageDir: t.TempDir()}, info))
		assert.Equal(t, []string{"x", "y"}, info.Libs)
	})
	t.Run("collected", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "lib", "libfoo.a"), nil, 0o644))

		r, err := Parse([]byte(`name = "foo"`), "foo.hcl")
		require.NoError(t, err)
		info := recipe.NewCppInfo()
		require.NoError(t, r.PackageInfo(&recipe.Context{PackageDir: dir}, info))
		assert.Equal(t, []string{"foo"}, info.Libs)
	})
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"syntax":          `name = `,
		"missing name":    `version = "1.0"`,
		"bad reference":   "name = \"x\"\nrequires = [\"zlib\"]\n",
		"range require":   "name = \"x\"\nrequires = [\"zlib/[>1.0]\"]\n",
		"bad default":     "name = \"x\"\ndefault_options = [\"shared=Maybe\"]\n",
		"bad scm type":    "name = \"x\"\nscm {\n  type = \"svn\"\n  url = \"u\"\n}\n",
		"unknown attr":    "name = \"x\"\nflavour = \"vanilla\"\n",
		"bad policy":      "name = \"x\"\nbuild_policy = \"sometimes\"\n",
		"bad generator":   "name = \"x\"\ngenerators = [\"make\"]\n",
		"duplicate block": "name = \"x\"\noption \"a\" {}\noption \"a\" {}\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src), name+".hcl")
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.hcl")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", r.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}
