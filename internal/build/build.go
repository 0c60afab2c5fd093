package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adnn/zpkg/internal/deps"
	"github.com/adnn/zpkg/internal/logx"
	"github.com/adnn/zpkg/internal/vcs"
	"github.com/adnn/zpkg/pkgs/buildsys"
	"github.com/adnn/zpkg/pkgs/buildsys/cmake"
	"github.com/adnn/zpkg/pkgs/lockfile"
	"github.com/adnn/zpkg/recipe"
)

var (
	// ErrNoPackage is returned when the build policy forbids building and
	// the package is not cached.
	ErrNoPackage = errors.New("no cached package")

	ErrUnsupportedTool = errors.New("unsupported tool requirement")
)

// Options configures a Builder.
type Options struct {
	WorkDir  string // source and build folders
	CacheDir string // package cache
	VCS      vcs.VCS
	Runner   buildsys.Runner
	CMake    string
	Jobs     int
	Host     recipe.SettingValues // base settings, detected from the host when nil
}

// Builder runs the lifecycle of recipes against a package cache.
type Builder struct {
	opts     Options
	cache    deps.Cache
	resolver *deps.Resolver
}

func NewBuilder(opts Options) *Builder {
	if opts.VCS == nil {
		opts.VCS = vcs.NewGitVCS()
	}
	if opts.Runner == nil {
		opts.Runner = &buildsys.ExecRunner{}
	}
	if opts.CMake == "" {
		opts.CMake = "cmake"
	}
	if opts.Host == nil {
		opts.Host = recipe.HostSettings()
	}
	return &Builder{
		opts:     opts,
		cache:    deps.Cache{Dir: opts.CacheDir},
		resolver: deps.NewResolver(opts.CacheDir),
	}
}

// Request selects the configuration of a run.
type Request struct {
	Options  map[string]string  // option overrides
	Settings map[string]string  // setting overrides, an empty value removes the axis
	Revision string             // pins the checkout, overriding the recipe's revision
	Policy   recipe.BuildPolicy // overrides the recipe's build policy when set
}

// Result describes a package available in the cache.
type Result struct {
	Ref        recipe.Reference
	PackageID  string
	PackageDir string
	Revision   string
	Settings   recipe.SettingValues
	Options    recipe.Values
	Info       recipe.CppInfo
	BuildID    string
	BuildTime  time.Time
	Cached     bool // served from the cache without building
}

type config struct {
	options  recipe.Values
	settings recipe.SettingValues
	id       string
}

func (b *Builder) configure(r *recipe.Recipe, req Request) (*config, error) {
	options, err := r.Options.Resolve(req.Options)
	if err != nil {
		return nil, err
	}
	settings, err := r.Settings.Resolve(b.opts.Host, req.Settings)
	if err != nil {
		return nil, err
	}
	return &config{
		options:  options,
		settings: settings,
		id:       PackageID(settings, options, r.Requires),
	}, nil
}

// Source checks out the sources of r for the requested configuration and
// returns the lockfile pinning the checkout together with the source folder.
func (b *Builder) Source(ctx context.Context, r *recipe.Recipe, req Request) (*lockfile.Lockfile, string, error) {
	cfg, err := b.configure(r, req)
	if err != nil {
		return nil, "", err
	}
	rev, err := b.revision(ctx, r, req.Revision)
	if err != nil {
		return nil, "", fmt.Errorf("source: %w", err)
	}
	ref := Reference(r, rev)
	srcDir, _, err := b.workDirs(ref, cfg.id)
	if err != nil {
		return nil, "", err
	}

	unlock, err := lockPath(srcDir + ".lock")
	if err != nil {
		return nil, "", err
	}
	defer unlock()

	if rev, err = b.sync(ctx, r, rev, srcDir); err != nil {
		return nil, "", fmt.Errorf("source: %w", err)
	}
	return NewLockfile(r, ref, rev), srcDir, nil
}

// Create produces the package of r for the requested configuration. Per the
// build policy a cached package is returned as is; otherwise the hooks run
// in order after the source step: build, package, package_info, deploy.
// The first failing step aborts the run.
func (b *Builder) Create(ctx context.Context, r *recipe.Recipe, req Request) (*Result, error) {
	log := logx.FromContext(ctx).With(zap.String("recipe", r.Name))

	cfg, err := b.configure(r, req)
	if err != nil {
		return nil, err
	}
	rev, err := b.revision(ctx, r, req.Revision)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	ref := Reference(r, rev)
	log = log.With(zap.String("ref", ref.String()), zap.String("package_id", cfg.id))

	pkgDir, err := b.cache.PackageDir(ref, cfg.id)
	if err != nil {
		return nil, err
	}
	unlock, err := lockPath(pkgDir + ".lock")
	if err != nil {
		return nil, err
	}
	defer unlock()

	policy := req.Policy
	if policy == "" {
		policy = r.Policy()
	}
	entryPath := filepath.Join(pkgDir, cacheFile)
	if policy != recipe.BuildAlways {
		// Checked under the lock: another process may have built it.
		if entry, err := loadBuildCache(entryPath); err == nil {
			log.Info("package found in cache", zap.String("dir", pkgDir))
			return entry.result(pkgDir, true)
		}
		if policy == recipe.BuildNever {
			return nil, fmt.Errorf("%w for %s:%s, build policy is %s", ErrNoPackage, ref, cfg.id, policy)
		}
	}

	if err := b.checkTools(ctx, r); err != nil {
		return nil, fmt.Errorf("build_requires: %w", err)
	}
	dependencies, err := b.resolver.Resolve(ctx, r.Requires)
	if err != nil {
		return nil, fmt.Errorf("requires: %w", err)
	}

	srcDir, buildDir, err := b.workDirs(ref, cfg.id)
	if err != nil {
		return nil, err
	}
	// Same lock as Source: the worktree stays put until the build is done.
	unlockSrc, err := lockPath(srcDir + ".lock")
	if err != nil {
		return nil, err
	}
	defer unlockSrc()

	log.Info("fetching sources", zap.String("url", r.SCM.URL), zap.String("revision", rev))
	if rev, err = b.sync(ctx, r, rev, srcDir); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	if err := b.generate(r, buildDir, dependencies); err != nil {
		return nil, fmt.Errorf("generators: %w", err)
	}

	if err := os.RemoveAll(pkgDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(pkgDir, 0o755); err != nil {
		return nil, err
	}

	rctx := &recipe.Context{
		Ctx:        ctx,
		Options:    cfg.options,
		Settings:   cfg.settings,
		SourceDir:  srcDir,
		BuildDir:   buildDir,
		PackageDir: pkgDir,
		Deps:       dependencies,
		Runner:     b.opts.Runner,
		CMake:      b.opts.CMake,
		Jobs:       b.opts.Jobs,
	}
	info := recipe.NewCppInfo()
	steps := []struct {
		name string
		run  func() error
	}{
		{"build", func() error { return r.Build(rctx) }},
		{"package", func() error { return r.Package(rctx) }},
		{"package_info", func() error { return r.PackageInfo(rctx, info) }},
		{"deploy", func() error { return r.Deploy(rctx) }},
	}
	for _, step := range steps {
		log.Debug("running step", zap.String("step", step.name))
		if err := step.run(); err != nil {
			return nil, fmt.Errorf("%s: %w", step.name, err)
		}
	}

	entry := &buildEntry{
		BuildID:   uuid.NewString(),
		Ref:       ref.String(),
		PackageID: cfg.id,
		Revision:  rev,
		Settings:  cfg.settings,
		Options:   formatOptions(cfg.options),
		Info:      *info,
		BuildTime: time.Now(),
	}
	if err := saveBuildCache(entryPath, entry); err != nil {
		return nil, err
	}
	log.Info("package created",
		zap.String("build_id", entry.BuildID),
		zap.Strings("libs", info.Libs),
		zap.String("dir", pkgDir))
	return entry.result(pkgDir, false)
}

// Lookup returns the cached package of ref with the given id, or the most
// recent package of ref when id is empty.
func (b *Builder) Lookup(ref recipe.Reference, id string) (*Result, error) {
	var (
		dir string
		err error
	)
	if id == "" {
		dir, err = b.cache.Lookup(ref)
	} else {
		dir, err = b.cache.PackageDir(ref, id)
	}
	if err != nil {
		return nil, err
	}
	entry, err := loadBuildCache(filepath.Join(dir, cacheFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w for %s", ErrNoPackage, ref)
	}
	if err != nil {
		return nil, err
	}
	return entry.result(dir, true)
}

// revision returns the revision to check out: the pinned one, else the
// recipe's, with "auto" resolved to the remote HEAD.
func (b *Builder) revision(ctx context.Context, r *recipe.Recipe, pinned string) (string, error) {
	switch {
	case pinned != "":
		return pinned, nil
	case r.SCM.URL == "":
		return "", nil
	case r.SCM.Revision == "" || r.SCM.Revision == recipe.RevisionAuto:
		return b.opts.VCS.Latest(ctx, r.SCM.URL)
	}
	return r.SCM.Revision, nil
}

func (b *Builder) sync(ctx context.Context, r *recipe.Recipe, rev, srcDir string) (string, error) {
	if r.SCM.URL == "" {
		return rev, os.MkdirAll(srcDir, 0o755)
	}
	dir := filepath.Join(srcDir, r.SCM.Subfolder)
	return b.opts.VCS.Sync(ctx, r.SCM.URL, rev, dir, r.SCM.Submodule)
}

func (b *Builder) workDirs(ref recipe.Reference, id string) (srcDir, buildDir string, err error) {
	escaped, err := ref.EscapePath()
	if err != nil {
		return "", "", err
	}
	root := filepath.Join(b.opts.WorkDir, escaped, id)
	return filepath.Join(root, "source"), filepath.Join(root, "build"), nil
}

// checkTools verifies the tool requirements. Only cmake is known: its
// version is matched against the requirement range.
func (b *Builder) checkTools(ctx context.Context, r *recipe.Recipe) error {
	for _, req := range r.BuildRequires {
		if !strings.HasPrefix(req.Name, "cmake") {
			return fmt.Errorf("%w: %s", ErrUnsupportedTool, req)
		}
		constraint := req.Range()
		if constraint == "" {
			constraint = "=" + req.Version
		}
		v, err := cmake.CheckRequirement(ctx, b.opts.Runner, b.opts.CMake, constraint)
		if err != nil {
			return fmt.Errorf("%s: %w", req, err)
		}
		logx.FromContext(ctx).Debug("tool requirement satisfied",
			zap.Stringer("requirement", req), zap.Stringer("version", v))
	}
	return nil
}

func (b *Builder) generate(r *recipe.Recipe, buildDir string, dependencies []recipe.Dependency) error {
	for _, g := range r.Generators {
		switch g {
		case recipe.GeneratorCMakePaths:
			if _, err := cmake.WritePaths(buildDir, dependencies); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown generator %q", g)
		}
	}
	return nil
}

// Reference returns the reference r is cached under. Without a declared
// version the package is versioned by its revision, abbreviated when it is
// a commit hash.
func Reference(r *recipe.Recipe, rev string) recipe.Reference {
	version := r.Version
	if version == "" {
		version = rev
		if isHash(rev) {
			version = rev[:12]
		}
	}
	if version == "" {
		version = "0.0.0"
	}
	return recipe.Reference{Name: r.Name, Version: version}
}

// NewLockfile records the checkout of r at rev.
func NewLockfile(r *recipe.Recipe, ref recipe.Reference, rev string) *lockfile.Lockfile {
	l := &lockfile.Lockfile{
		Ref: ref.String(),
		Source: lockfile.Source{
			URL:       r.SCM.URL,
			Revision:  rev,
			Subfolder: r.SCM.Subfolder,
			Submodule: r.SCM.Submodule,
		},
	}
	for _, req := range r.Requires {
		l.Requires = append(l.Requires, req.String())
	}
	for _, req := range r.BuildRequires {
		l.BuildRequires = append(l.BuildRequires, req.String())
	}
	return l
}

func (e *buildEntry) result(dir string, cached bool) (*Result, error) {
	ref, err := recipe.ParseReference(e.Ref)
	if err != nil {
		return nil, fmt.Errorf("cache entry %s: %w", dir, err)
	}
	options := make(recipe.Values, len(e.Options))
	for name, raw := range e.Options {
		v, err := recipe.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("cache entry %s: option %s: %w", dir, name, err)
		}
		options[name] = v
	}
	return &Result{
		Ref:        ref,
		PackageID:  e.PackageID,
		PackageDir: dir,
		Revision:   e.Revision,
		Settings:   e.Settings,
		Options:    options,
		Info:       e.Info,
		BuildID:    e.BuildID,
		BuildTime:  e.BuildTime,
		Cached:     cached,
	}, nil
}

func formatOptions(v recipe.Values) map[string]string {
	m := make(map[string]string, len(v))
	for name, b := range v {
		m[name] = recipe.FormatBool(b)
	}
	return m
}

func isHash(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}
