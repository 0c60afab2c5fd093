package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adnn/zpkg/internal/deps"
	"github.com/adnn/zpkg/pkgs/buildsys/cmake"
	"github.com/adnn/zpkg/recipe"
	"github.com/adnn/zpkg/recipes/zombies"
)

var linux = recipe.SettingValues{"os": "Linux", "arch": "x86_64", "build_type": "Release"}

type fixture struct {
	builder *Builder
	vcs     *mockVCS
	runner  *mockRunner
	cache   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		vcs:    newMockVCS(),
		runner: newMockRunner(),
		cache:  t.TempDir(),
	}
	f.builder = NewBuilder(Options{
		WorkDir:  t.TempDir(),
		CacheDir: f.cache,
		VCS:      f.vcs,
		Runner:   f.runner,
		Jobs:     4,
		Host:     linux,
	})
	return f
}

// install puts a prebuilt package of ref into the cache.
func (f *fixture) install(t *testing.T, ref string) string {
	t.Helper()
	root, err := deps.Cache{Dir: f.cache}.PackageRoot(recipe.MustParseReference(ref))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "include"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "lib"), 0o755))
	return root
}

func (f *fixture) installZombiesDeps(t *testing.T) {
	f.install(t, "boost/1.68.0@conan/stable")
	f.install(t, "libcurl/7.61.0@ag/stable")
}

func TestPackageID(t *testing.T) {
	requires := zombies.New().Requires
	opts := recipe.Values{"shared": false, "verbosebuild": false, "buildtests": false}
	base := PackageID(linux, opts, requires)

	assert.Len(t, base, 40)
	assert.Equal(t, base, PackageID(linux, opts, requires))

	reordered := recipe.Options{{Name: "buildtests"}, {Name: "shared"}, {Name: "verbosebuild"}}
	assert.Equal(t, base, PackageID(linux, reordered.Defaults(), requires))
	assert.Equal(t, base, PackageID(linux, opts, []recipe.Reference{requires[1], requires[0]}))

	changed := recipe.Values{"shared": false, "verbosebuild": false, "buildtests": true}
	assert.NotEqual(t, base, PackageID(linux, changed, requires))

	debug := recipe.SettingValues{"os": "Linux", "arch": "x86_64", "build_type": "Debug"}
	assert.NotEqual(t, base, PackageID(debug, opts, requires))

	assert.Equal(t, "[settings]\nos=Linux\n[options]\nshared=True\n[requires]\nzlib/1.2.11\n",
		canonicalInfo(recipe.SettingValues{"os": "Linux"}, recipe.Values{"shared": true},
			[]recipe.Reference{recipe.MustParseReference("zlib/1.2.11")}))
}

func TestReference(t *testing.T) {
	r := zombies.New()
	assert.Equal(t, "zombies/0123456789ab", Reference(r, testRev).String())
	assert.Equal(t, "zombies/v1.0", Reference(r, "v1.0").String())
	assert.Equal(t, "zombies/0.0.0", Reference(r, "").String())

	r.Version = "2.1.0"
	assert.Equal(t, "zombies/2.1.0", Reference(r, testRev).String())
}

func TestCreateZombies(t *testing.T) {
	f := newFixture(t)
	f.installZombiesDeps(t)
	ctx := context.Background()

	res, err := f.builder.Create(ctx, zombies.New(), Request{})
	require.NoError(t, err)

	assert.False(t, res.Cached)
	assert.Equal(t, "zombies/0123456789ab", res.Ref.String())
	assert.Equal(t, testRev, res.Revision)
	assert.Equal(t, []string{"zombies"}, res.Info.Libs)
	assert.NotEmpty(t, res.BuildID)
	assert.Equal(t, recipe.Values{"shared": false, "verbosebuild": false, "buildtests": false}, res.Options)

	// Source lands in the scm subfolder with recursive submodules.
	assert.Equal(t, 1, f.vcs.syncs)
	assert.Equal(t, testRev, f.vcs.lastRef)
	assert.Equal(t, recipe.SubmoduleRecursive, f.vcs.lastSub)
	assert.Equal(t, "cloned_repo", filepath.Base(f.vcs.lastDir))

	configure := f.runner.args("-S")
	require.Len(t, configure, 1)
	assert.Equal(t, f.vcs.lastDir, configure[0][1])
	assert.Contains(t, configure[0], "-DBUILD_Tests:BOOL=OFF")
	assert.Contains(t, configure[0], "-DOPTION_VERBOSE_ADD_SUBDIR:BOOL=OFF")
	assert.Contains(t, configure[0], "-DCMAKE_INSTALL_PREFIX:STRING="+res.PackageDir)
	require.Len(t, f.runner.args("--build"), 1)
	assert.Contains(t, f.runner.args("--build")[0], "4")
	require.Len(t, f.runner.args("--install"), 1)

	// Dependencies reach cmake through the environment and conan_paths.cmake.
	env := f.runner.cmds[0].Env
	assert.Contains(t, env["CMAKE_PREFIX_PATH"], filepath.Join("boost", "1.68.0", "conan", "stable", "package"))
	paths, err := os.ReadFile(filepath.Join(filepath.Dir(f.vcs.lastDir), "..", "build", cmake.PathsFile))
	require.NoError(t, err)
	assert.Contains(t, string(paths), "CONAN_BOOST_ROOT")
	assert.Contains(t, string(paths), "CONAN_LIBCURL_ROOT")

	_, err = os.Stat(filepath.Join(res.PackageDir, cacheFile))
	assert.NoError(t, err)
}

func TestCreateCacheHit(t *testing.T) {
	f := newFixture(t)
	f.installZombiesDeps(t)
	ctx := context.Background()

	first, err := f.builder.Create(ctx, zombies.New(), Request{})
	require.NoError(t, err)
	ran := len(f.runner.cmds)

	second, err := f.builder.Create(ctx, zombies.New(), Request{})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.BuildID, second.BuildID)
	assert.Equal(t, first.PackageDir, second.PackageDir)
	assert.Len(t, f.runner.cmds, ran, "cache hit must not build")
	assert.Equal(t, 1, f.vcs.syncs, "cache hit must not fetch sources")

	// A different option is a different package.
	third, err := f.builder.Create(ctx, zombies.New(), Request{Options: map[string]string{"buildtests": "True"}})
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.NotEqual(t, first.PackageID, third.PackageID)
	assert.Contains(t, f.runner.args("-S")[1], "-DBUILD_Tests:BOOL=ON")
}

func TestCreatePolicies(t *testing.T) {
	t.Run("never", func(t *testing.T) {
		f := newFixture(t)
		f.installZombiesDeps(t)
		_, err := f.builder.Create(context.Background(), zombies.New(), Request{Policy: recipe.BuildNever})
		assert.ErrorIs(t, err, ErrNoPackage)
		assert.Empty(t, f.runner.cmds)
	})
	t.Run("always", func(t *testing.T) {
		f := newFixture(t)
		f.installZombiesDeps(t)
		ctx := context.Background()
		first, err := f.builder.Create(ctx, zombies.New(), Request{})
		require.NoError(t, err)
		second, err := f.builder.Create(ctx, zombies.New(), Request{Policy: recipe.BuildAlways})
		require.NoError(t, err)
		assert.False(t, second.Cached)
		assert.NotEqual(t, first.BuildID, second.BuildID)
		assert.Len(t, f.runner.args("-S"), 2)
	})
	t.Run("never after build", func(t *testing.T) {
		f := newFixture(t)
		f.installZombiesDeps(t)
		ctx := context.Background()
		_, err := f.builder.Create(ctx, zombies.New(), Request{})
		require.NoError(t, err)
		res, err := f.builder.Create(ctx, zombies.New(), Request{Policy: recipe.BuildNever})
		require.NoError(t, err)
		assert.True(t, res.Cached)
	})
}

func TestCreateMissingDependency(t *testing.T) {
	f := newFixture(t)
	f.install(t, "boost/1.68.0@conan/stable")

	_, err := f.builder.Create(context.Background(), zombies.New(), Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, deps.ErrNotFound)
	assert.True(t, strings.HasPrefix(err.Error(), "requires: "), err.Error())
	assert.Zero(t, f.vcs.syncs)
}

func TestCreateToolRequirements(t *testing.T) {
	t.Run("old cmake", func(t *testing.T) {
		f := newFixture(t)
		f.installZombiesDeps(t)
		f.runner.version = "3.5.2"
		_, err := f.builder.Create(context.Background(), zombies.New(), Request{})
		assert.ErrorIs(t, err, cmake.ErrVersionUnsatisfied)
		assert.Zero(t, f.vcs.syncs)
	})
	t.Run("unknown tool", func(t *testing.T) {
		f := newFixture(t)
		r := &recipe.Recipe{
			Metadata:      recipe.Metadata{Name: "tool", Version: "1.0"},
			BuildRequires: []recipe.Reference{recipe.MustParseReference("ninja/[>1.10]")},
		}
		_, err := f.builder.Create(context.Background(), r, Request{})
		assert.ErrorIs(t, err, ErrUnsupportedTool)
	})
}

func TestCreateHookOrderAndAbort(t *testing.T) {
	var order []string
	hooks := func(failAt string) *recipe.Recipe {
		order = nil
		r := &recipe.Recipe{
			Metadata: recipe.Metadata{Name: "hooks", Version: "1.0"},
			SCM:      recipe.SCM{Type: recipe.SCMGit, URL: "https://example.com/hooks.git", Subfolder: "src"},
		}
		step := func(name string) error {
			order = append(order, name)
			if name == failAt {
				return errors.New("boom")
			}
			return nil
		}
		r.OnBuild(func(ctx *recipe.Context) error {
			if _, err := os.Stat(ctx.SourcePath("src", "CMakeLists.txt")); err != nil {
				t.Errorf("build ran before source: %v", err)
			}
			return step("build")
		})
		r.OnPackage(func(*recipe.Context) error { return step("package") })
		r.OnPackageInfo(func(*recipe.Context, *recipe.CppInfo) error { return step("package_info") })
		r.OnDeploy(func(*recipe.Context) error { return step("deploy") })
		return r
	}

	f := newFixture(t)
	_, err := f.builder.Create(context.Background(), hooks(""), Request{})
	require.NoError(t, err)
	assert.Equal(t, []string{"build", "package", "package_info", "deploy"}, order)

	for _, failAt := range []string{"build", "package", "package_info", "deploy"} {
		t.Run(failAt, func(t *testing.T) {
			f := newFixture(t)
			r := hooks(failAt)
			_, err := f.builder.Create(context.Background(), r, Request{})
			require.Error(t, err)
			assert.Equal(t, failAt+": boom", err.Error())
			assert.Equal(t, failAt, order[len(order)-1], "no step may run after a failure")

			_, err = f.builder.Lookup(Reference(r, testRev), "")
			assert.Error(t, err, "a failed run must not leave a cache entry")
		})
	}
}

func TestCreateBuildToolFailure(t *testing.T) {
	f := newFixture(t)
	f.installZombiesDeps(t)
	f.runner.fail = "--build"

	_, err := f.builder.Create(context.Background(), zombies.New(), Request{})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "build: "), err.Error())
	assert.Empty(t, f.runner.args("--install"))
}

func TestCreateRejectsBadRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.builder.Create(ctx, zombies.New(), Request{Options: map[string]string{"fast": "True"}})
	assert.ErrorIs(t, err, recipe.ErrUnknownOption)

	_, err = f.builder.Create(ctx, zombies.New(), Request{Options: map[string]string{"shared": "yes"}})
	assert.ErrorIs(t, err, recipe.ErrInvalidOptionValue)

	_, err = f.builder.Create(ctx, zombies.New(), Request{Settings: map[string]string{"libc": "musl"}})
	assert.ErrorIs(t, err, recipe.ErrUnknownSetting)
	assert.Zero(t, f.vcs.syncs)
}

func TestSource(t *testing.T) {
	f := newFixture(t)
	lock, dir, err := f.builder.Source(context.Background(), zombies.New(), Request{})
	require.NoError(t, err)

	assert.Equal(t, "zombies/0123456789ab", lock.Ref)
	assert.Equal(t, testRev, lock.Source.Revision)
	assert.Equal(t, "cloned_repo", lock.Source.Subfolder)
	assert.Equal(t, recipe.SubmoduleRecursive, lock.Source.Submodule)
	assert.Equal(t, []string{"boost/1.68.0@conan/stable", "libcurl/7.61.0@ag/stable"}, lock.Requires)
	assert.Equal(t, []string{"cmake_installer/[>3.9]@conan/stable"}, lock.BuildRequires)
	assert.FileExists(t, filepath.Join(dir, "cloned_repo", "CMakeLists.txt"))
	assert.Empty(t, f.runner.cmds)
}

func TestCreatePinnedRevision(t *testing.T) {
	f := newFixture(t)
	f.installZombiesDeps(t)
	pinned := "fedcba9876543210fedcba9876543210fedcba98"
	f.vcs.rev = pinned

	res, err := f.builder.Create(context.Background(), zombies.New(), Request{Revision: pinned})
	require.NoError(t, err)
	assert.Equal(t, pinned, f.vcs.lastRef)
	assert.Equal(t, "zombies/fedcba987654", res.Ref.String())
}

func TestLookup(t *testing.T) {
	f := newFixture(t)
	f.installZombiesDeps(t)
	res, err := f.builder.Create(context.Background(), zombies.New(), Request{})
	require.NoError(t, err)

	got, err := f.builder.Lookup(res.Ref, "")
	require.NoError(t, err)
	assert.True(t, got.Cached)
	assert.Equal(t, res.BuildID, got.BuildID)
	assert.Equal(t, []string{"zombies"}, got.Info.Libs)

	got, err = f.builder.Lookup(res.Ref, res.PackageID)
	require.NoError(t, err)
	assert.Equal(t, res.PackageDir, got.PackageDir)

	_, err = f.builder.Lookup(res.Ref, "missing")
	assert.ErrorIs(t, err, ErrNoPackage)

	_, err = f.builder.Lookup(recipe.MustParseReference("zombies/unknown"), "")
	assert.ErrorIs(t, err, deps.ErrNotFound)
}

func TestLockPathSerialises(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pkg", "id.lock")
	unlock, err := lockPath(path)
	require.NoError(t, err)

	acquired := make(chan func())
	go func() {
		u, err := lockPath(path)
		if err != nil {
			t.Error(err)
			close(acquired)
			return
		}
		acquired <- u
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first is held")
	case <-time.After(100 * time.Millisecond):
	}
	unlock()

	select {
	case u, ok := <-acquired:
		if ok && u != nil {
			u()
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second lock not acquired after release")
	}
}

func TestCreateWaitsForSourceLock(t *testing.T) {
	f := newFixture(t)
	f.installZombiesDeps(t)
	r := zombies.New()

	cfg, err := f.builder.configure(r, Request{})
	require.NoError(t, err)
	srcDir, _, err := f.builder.workDirs(Reference(r, testRev), cfg.id)
	require.NoError(t, err)

	// Hold the lock a concurrent source checkout would take.
	unlock, err := lockPath(srcDir + ".lock")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.builder.Create(context.Background(), r, Request{})
		done <- err
	}()

	select {
	case err := <-done:
		unlock()
		t.Fatalf("create finished while the source folder was locked: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
	unlock()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("create did not resume after the source lock was released")
	}
	assert.Equal(t, 1, f.vcs.syncs)
}

func TestNewLockfileRoundTrip(t *testing.T) {
	r := zombies.New()
	lock := NewLockfile(r, Reference(r, testRev), testRev)
	file := filepath.Join(t.TempDir(), "zpkg.lock")
	require.NoError(t, lock.Write(file))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.True(t, slices.Contains(strings.Split(string(data), "\n"), `    "revision": "`+testRev+`",`))
}
