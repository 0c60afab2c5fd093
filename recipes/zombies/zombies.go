// Package zombies is the recipe of the 2018 CodinGame "Code vs Zombies"
// solution: a CMake project fetched from git with its submodules, built
// against boost and libcurl.
package zombies

import (
	_ "embed"

	"github.com/adnn/zpkg/pkgs/buildsys/cmake"
	"github.com/adnn/zpkg/pkgs/libs"
	"github.com/adnn/zpkg/recipe"
)

// HCL is the same recipe in recipe-file form.
//
//go:embed zombies.hcl
var HCL []byte

const sourceFolder = "cloned_repo"

// New returns the zombies recipe.
func New() *recipe.Recipe {
	r := &recipe.Recipe{
		Metadata: recipe.Metadata{
			Name:        "zombies",
			License:     "The Unlicense",
			URL:         "https://github.com/Adnn/2018_codinggame_zombies",
			Description: "Coding game 2018",
		},
		Settings: recipe.Settings{"cppstd", "os", "compiler", "build_type", "arch"},
		Options: recipe.Options{
			{Name: "shared", Default: false},
			{Name: "verbosebuild", Default: false},
			{Name: "buildtests", Default: false},
		},
		Requires: []recipe.Reference{
			recipe.MustParseReference("boost/1.68.0@conan/stable"),
			recipe.MustParseReference("libcurl/7.61.0@ag/stable"),
		},
		BuildRequires: []recipe.Reference{
			recipe.MustParseReference("cmake_installer/[>3.9]@conan/stable"),
		},
		BuildPolicy: recipe.BuildMissing,
		Generators:  []string{recipe.GeneratorCMakePaths},
		SCM: recipe.SCM{
			Type:      recipe.SCMGit,
			Subfolder: sourceFolder,
			URL:       "https://github.com/Adnn/2018_codinggame_zombies.git",
			Revision:  recipe.RevisionAuto,
			Submodule: recipe.SubmoduleRecursive,
		},
	}
	r.OnBuild(build)
	r.OnPackageInfo(packageInfo)
	// Package and deploy stay no-ops: the install step of build already
	// populated the package folder.
	return r
}

func build(ctx *recipe.Context) error {
	// AG_BUILD_BY_CONAN stays unset so the project does not look for a
	// generated conanbuildinfo.cmake.
	definitions := map[string]bool{
		"OPTION_VERBOSE_ADD_SUBDIR": ctx.Options["verbosebuild"],
		"BUILD_Tests":               ctx.Options["buildtests"],
	}

	c := cmake.New(ctx)
	c.Source(ctx.SourcePath(sourceFolder))
	c.DefineBools(definitions)
	if err := c.Configure(); err != nil {
		return err
	}
	if err := c.Build(); err != nil {
		return err
	}
	return c.Install()
}

func packageInfo(ctx *recipe.Context, info *recipe.CppInfo) error {
	found, err := libs.CollectDir(ctx.PackageDir, info.LibDirs...)
	if err != nil {
		return err
	}
	info.Libs = found
	return nil
}
