// Package hclrecipe loads recipes written in HCL.
//
// A recipe file declares the same attributes as a Go recipe value:
//
//	name        = "zombies"
//	settings    = ["os", "arch", "build_type"]
//	option "buildtests" { default = false }
//	requires    = ["boost/1.68.0@conan/stable"]
//	scm { type = "git" url = "..." revision = "auto" submodule = "recursive" }
//	cmake {
//	  source_folder = "cloned_repo"
//	  definitions   = { BUILD_Tests = options.buildtests }
//	}
//
// The cmake block becomes the build hook; definitions are evaluated when the
// hook runs, with the resolved options and settings in scope. The package
// info hook collects the installed libraries unless package_info lists them.
package hclrecipe

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/adnn/zpkg/pkgs/buildsys/cmake"
	"github.com/adnn/zpkg/pkgs/libs"
	"github.com/adnn/zpkg/recipe"
)

type hclFile struct {
	Name        string `hcl:"name"`
	Version     string `hcl:"version,optional"`
	License     string `hcl:"license,optional"`
	URL         string `hcl:"url,optional"`
	Description string `hcl:"description,optional"`

	Settings       []string     `hcl:"settings,optional"`
	Options        []*hclOption `hcl:"option,block"`
	DefaultOptions []string     `hcl:"default_options,optional"`
	Requires       []string     `hcl:"requires,optional"`
	BuildRequires  []string     `hcl:"build_requires,optional"`
	BuildPolicy    string       `hcl:"build_policy,optional"`
	Generators     []string     `hcl:"generators,optional"`

	SCM         *hclSCM         `hcl:"scm,block"`
	CMake       *hclCMake       `hcl:"cmake,block"`
	PackageInfo *hclPackageInfo `hcl:"package_info,block"`
}

type hclOption struct {
	Name    string `hcl:"name,label"`
	Default bool   `hcl:"default,optional"`
}

type hclSCM struct {
	Type      string `hcl:"type,optional"`
	Subfolder string `hcl:"subfolder,optional"`
	URL       string `hcl:"url"`
	Revision  string `hcl:"revision,optional"`
	Submodule string `hcl:"submodule,optional"`
}

type hclCMake struct {
	SourceFolder string         `hcl:"source_folder,optional"`
	Generator    string         `hcl:"generator,optional"`
	Toolchain    string         `hcl:"toolchain,optional"` // relative to the source folder
	Jobs         int            `hcl:"jobs,optional"`      // overrides the configured jobs
	Definitions  hcl.Expression `hcl:"definitions,optional"`
}

type hclPackageInfo struct {
	Libs []string `hcl:"libs,optional"`
}

// Load parses and decodes the recipe file at path.
func Load(path string) (*recipe.Recipe, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(src, path)
}

// Parse decodes recipe source; filename is used in diagnostics.
func Parse(src []byte, filename string) (*recipe.Recipe, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var parsed hclFile
	diags = gohcl.DecodeBody(file.Body, nil, &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	r, err := parsed.recipe()
	if err != nil {
		return nil, fmt.Errorf("recipe file %s: %w", filename, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("recipe file %s: %w", filename, err)
	}
	return r, nil
}

func (f *hclFile) recipe() (*recipe.Recipe, error) {
	r := &recipe.Recipe{
		Metadata: recipe.Metadata{
			Name:        f.Name,
			Version:     f.Version,
			License:     f.License,
			URL:         f.URL,
			Description: f.Description,
		},
		Settings:    recipe.Settings(f.Settings),
		BuildPolicy: recipe.BuildPolicy(f.BuildPolicy),
		Generators:  f.Generators,
	}

	for _, o := range f.Options {
		r.Options = append(r.Options, recipe.Option{Name: o.Name, Default: o.Default})
	}
	defaults, err := recipe.BoolOptions(f.DefaultOptions...)
	if err != nil {
		return nil, err
	}
	for _, d := range defaults {
		if i := indexOption(r.Options, d.Name); i >= 0 {
			r.Options[i].Default = d.Default
			continue
		}
		r.Options = append(r.Options, d)
	}

	if r.Requires, err = parseRefs(f.Requires); err != nil {
		return nil, err
	}
	if r.BuildRequires, err = parseRefs(f.BuildRequires); err != nil {
		return nil, err
	}

	if f.SCM != nil {
		r.SCM = recipe.SCM{
			Type:      f.SCM.Type,
			Subfolder: f.SCM.Subfolder,
			URL:       f.SCM.URL,
			Revision:  f.SCM.Revision,
			Submodule: f.SCM.Submodule,
		}
		if r.SCM.Type == "" {
			r.SCM.Type = recipe.SCMGit
		}
		if r.SCM.Revision == "" {
			r.SCM.Revision = recipe.RevisionAuto
		}
	}

	if f.CMake != nil {
		r.OnBuild(f.CMake.build)
	}

	var explicitLibs []string
	if f.PackageInfo != nil {
		explicitLibs = f.PackageInfo.Libs
	}
	r.OnPackageInfo(func(ctx *recipe.Context, info *recipe.CppInfo) error {
		if explicitLibs != nil {
			info.Libs = append([]string(nil), explicitLibs...)
			return nil
		}
		found, err := libs.CollectDir(ctx.PackageDir, info.LibDirs...)
		if err != nil {
			return err
		}
		info.Libs = found
		return nil
	})
	return r, nil
}

func (c *hclCMake) build(ctx *recipe.Context) error {
	defs, err := c.definitions(ctx)
	if err != nil {
		return err
	}
	cm := cmake.New(ctx)
	cm.Source(ctx.SourcePath(c.SourceFolder))
	if c.Generator != "" {
		cm.Generator(c.Generator)
	}
	if c.Toolchain != "" {
		toolchain := c.Toolchain
		if !filepath.IsAbs(toolchain) {
			toolchain = ctx.SourcePath(c.SourceFolder, toolchain)
		}
		cm.Toolchain(toolchain)
	}
	if c.Jobs > 0 {
		cm.Jobs(c.Jobs)
	}
	for name, v := range defs {
		switch v.Type() {
		case cty.Bool:
			cm.DefineBool(name, v.True())
		case cty.String:
			cm.Define(name, v.AsString())
		case cty.Number:
			cm.Define(name, v.AsBigFloat().Text('f', -1))
		default:
			return fmt.Errorf("definition %s: unsupported type %s", name, v.Type().FriendlyName())
		}
	}
	if err := cm.Configure(); err != nil {
		return err
	}
	if err := cm.Build(); err != nil {
		return err
	}
	return cm.Install()
}

// definitions evaluates the definitions expression with the resolved
// options and settings as the "options" and "settings" variables.
func (c *hclCMake) definitions(ctx *recipe.Context) (map[string]cty.Value, error) {
	if c.Definitions == nil {
		return nil, nil
	}
	val, diags := c.Definitions.Value(evalContext(ctx))
	if diags.HasErrors() {
		return nil, fmt.Errorf("evaluate definitions: %w", diags)
	}
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsWhollyKnown() {
		return nil, fmt.Errorf("definitions are not fully known")
	}
	ty := val.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("definitions must be an object, got %s", ty.FriendlyName())
	}
	defs := make(map[string]cty.Value, val.LengthInt())
	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		if v.IsNull() {
			return nil, fmt.Errorf("definition %s is null", k.AsString())
		}
		defs[k.AsString()] = v
	}
	return defs, nil
}

func evalContext(ctx *recipe.Context) *hcl.EvalContext {
	opts := make(map[string]cty.Value, len(ctx.Options))
	for name, v := range ctx.Options {
		opts[name] = cty.BoolVal(v)
	}
	settings := make(map[string]cty.Value, len(ctx.Settings))
	for axis, v := range ctx.Settings {
		settings[axis] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"options":  cty.ObjectVal(opts),
			"settings": cty.ObjectVal(settings),
		},
	}
}

func parseRefs(list []string) ([]recipe.Reference, error) {
	if len(list) == 0 {
		return nil, nil
	}
	refs := make([]recipe.Reference, 0, len(list))
	for _, s := range list {
		ref, err := recipe.ParseReference(s)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func indexOption(opts recipe.Options, name string) int {
	for i, o := range opts {
		if o.Name == name {
			return i
		}
	}
	return -1
}
