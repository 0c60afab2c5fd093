// Package recipe describes how a package is fetched, built and published:
// identifying metadata, settings axes, boolean options, pinned
// requirements, one source checkout and the lifecycle hooks.
package recipe

import (
	"errors"
	"fmt"
	"slices"
)

// Metadata holds the static identifying strings of a recipe.
type Metadata struct {
	Name        string
	Version     string // optional, the resolved revision versions the package otherwise
	License     string
	URL         string
	Description string
}

const (
	SCMGit = "git"

	// RevisionAuto pins the checkout to the remote HEAD at source time.
	RevisionAuto = "auto"

	SubmoduleRecursive = "recursive"
	SubmoduleShallow   = "shallow"
)

// SCM binds a recipe to exactly one repository checkout.
type SCM struct {
	Type      string
	Subfolder string
	URL       string
	Revision  string
	Submodule string
}

// BuildPolicy decides when a package is built from sources.
type BuildPolicy string

const (
	BuildMissing BuildPolicy = "missing"
	BuildAlways  BuildPolicy = "always"
	BuildNever   BuildPolicy = "never"
)

// GeneratorCMakePaths writes conan_paths.cmake into the build folder.
const GeneratorCMakePaths = "cmake_paths"

// Recipe is a declarative package description plus its lifecycle hooks.
// Hooks left unset are no-ops.
type Recipe struct {
	Metadata

	Settings      Settings
	Options       Options
	Requires      []Reference
	BuildRequires []Reference
	BuildPolicy   BuildPolicy
	Generators    []string
	SCM           SCM

	fOnBuild       func(ctx *Context) error
	fOnPackage     func(ctx *Context) error
	fOnPackageInfo func(ctx *Context, info *CppInfo) error
	fOnDeploy      func(ctx *Context) error
}

// OnBuild sets the hook that configures, builds and installs the sources.
func (r *Recipe) OnBuild(f func(ctx *Context) error) { r.fOnBuild = f }

// OnPackage sets the hook that copies artifacts into the package folder.
func (r *Recipe) OnPackage(f func(ctx *Context) error) { r.fOnPackage = f }

// OnPackageInfo sets the hook that describes the package to consumers.
func (r *Recipe) OnPackageInfo(f func(ctx *Context, info *CppInfo) error) { r.fOnPackageInfo = f }

// OnDeploy sets the hook run after the package is available.
func (r *Recipe) OnDeploy(f func(ctx *Context) error) { r.fOnDeploy = f }

func (r *Recipe) Build(ctx *Context) error {
	if r.fOnBuild == nil {
		return nil
	}
	return r.fOnBuild(ctx)
}

func (r *Recipe) Package(ctx *Context) error {
	if r.fOnPackage == nil {
		return nil
	}
	return r.fOnPackage(ctx)
}

func (r *Recipe) PackageInfo(ctx *Context, info *CppInfo) error {
	if r.fOnPackageInfo == nil {
		return nil
	}
	return r.fOnPackageInfo(ctx, info)
}

func (r *Recipe) Deploy(ctx *Context) error {
	if r.fOnDeploy == nil {
		return nil
	}
	return r.fOnDeploy(ctx)
}

// Policy returns the build policy, defaulting to BuildMissing.
func (r *Recipe) Policy() BuildPolicy {
	if r.BuildPolicy == "" {
		return BuildMissing
	}
	return r.BuildPolicy
}

// Validate checks the declarations for consistency.
func (r *Recipe) Validate() error {
	var errs []error
	if r.Name == "" {
		errs = append(errs, errors.New("name is empty"))
	}
	seen := make(map[string]bool, len(r.Options))
	for _, opt := range r.Options {
		if opt.Name == "" {
			errs = append(errs, errors.New("option with empty name"))
		}
		if seen[opt.Name] {
			errs = append(errs, fmt.Errorf("option %s declared twice", opt.Name))
		}
		seen[opt.Name] = true
	}
	for _, req := range r.Requires {
		if req.Name == "" || !req.IsExact() {
			errs = append(errs, fmt.Errorf("requirement %s must pin an exact version", req))
		}
	}
	for _, req := range r.BuildRequires {
		if req.Name == "" || (!req.IsRange() && !req.IsExact()) {
			errs = append(errs, fmt.Errorf("build requirement %s has an invalid version", req))
		}
	}
	switch r.Policy() {
	case BuildMissing, BuildAlways, BuildNever:
	default:
		errs = append(errs, fmt.Errorf("unknown build policy %q", r.BuildPolicy))
	}
	for _, g := range r.Generators {
		if g != GeneratorCMakePaths {
			errs = append(errs, fmt.Errorf("unknown generator %q", g))
		}
	}
	if err := r.SCM.validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("recipe %s: %w", r.Name, err)
	}
	return nil
}

func (s SCM) validate() error {
	if s.URL == "" {
		return nil
	}
	if s.Type != SCMGit {
		return fmt.Errorf("scm type %q is not supported", s.Type)
	}
	if !slices.Contains([]string{"", SubmoduleShallow, SubmoduleRecursive}, s.Submodule) {
		return fmt.Errorf("scm submodule policy %q is not supported", s.Submodule)
	}
	return nil
}
