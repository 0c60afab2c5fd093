package recipe

import (
	"context"
	"path/filepath"

	"github.com/adnn/zpkg/pkgs/buildsys"
)

// Context is handed to every hook of a recipe.
type Context struct {
	Ctx context.Context

	Options  Values
	Settings SettingValues

	SourceDir  string // checkout root, the SCM subfolder lives below it
	BuildDir   string
	PackageDir string // install prefix

	Deps []Dependency

	Runner buildsys.Runner
	CMake  string // cmake executable, "cmake" when empty
	Jobs   int    // parallel build jobs, 0 lets the build tool decide
}

// Dependency is a required package resolved to its folder on disk.
type Dependency struct {
	Ref Reference
	Dir string
}

// SourcePath joins elem to the source folder.
func (c *Context) SourcePath(elem ...string) string {
	return filepath.Join(append([]string{c.SourceDir}, elem...)...)
}

// Context returns the standard context, never nil.
func (c *Context) Context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// CppInfo describes a built package to its consumers.
type CppInfo struct {
	Libs        []string `json:"libs" yaml:"libs"`
	IncludeDirs []string `json:"include_dirs" yaml:"include_dirs"`
	LibDirs     []string `json:"lib_dirs" yaml:"lib_dirs"`
}

// NewCppInfo returns the default layout: headers in include, libraries in lib.
func NewCppInfo() *CppInfo {
	return &CppInfo{
		IncludeDirs: []string{"include"},
		LibDirs:     []string{"lib"},
	}
}
