// Package deps resolves required packages in the local package cache.
//
// Cache layout:
//
//	cacheDir/
//	  <name>/<version>/<user>/<channel>/   # reference root, "_" for empty user/channel
//	    package/                          # package root
//	      <package id>/                   # one binary package per configuration
//	        .cache.json                   # written once the package is complete
//	        include/
//	        lib/
//
// A package root without complete package folders but with an include or
// lib folder is itself treated as an installed package, so prebuilt
// libraries can be dropped into the cache.
package deps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/adnn/zpkg/recipe"
)

// ErrNotFound is returned when a required package is not in the cache.
var ErrNotFound = errors.New("package not found in cache")

// EntryFile marks a complete package folder.
const EntryFile = ".cache.json"

// Cache is a package cache rooted at Dir.
type Cache struct {
	Dir string
}

// Root returns the reference root <name>/<version>/<user>/<channel>.
func (c Cache) Root(ref recipe.Reference) (string, error) {
	escaped, err := ref.EscapePath()
	if err != nil {
		return "", err
	}
	return filepath.Join(c.Dir, escaped), nil
}

// PackageRoot returns the folder holding every package of ref.
func (c Cache) PackageRoot(ref recipe.Reference) (string, error) {
	root, err := c.Root(ref)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "package"), nil
}

// PackageDir returns the folder of the package of ref with the given id.
func (c Cache) PackageDir(ref recipe.Reference, id string) (string, error) {
	root, err := c.PackageRoot(ref)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, id), nil
}

// Lookup returns the folder of the most recently completed package of ref.
func (c Cache) Lookup(ref recipe.Reference) (string, error) {
	root, err := c.PackageRoot(ref)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return "", err
	}

	var (
		newest string
		mtime  int64
	)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		fi, err := os.Stat(filepath.Join(root, e.Name(), EntryFile))
		if err != nil {
			continue
		}
		if t := fi.ModTime().UnixNano(); newest == "" || t > mtime {
			newest, mtime = e.Name(), t
		}
	}
	if newest != "" {
		return filepath.Join(root, newest), nil
	}
	if isInstalled(root) {
		return root, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
}

// isInstalled reports whether dir holds an install prefix.
func isInstalled(dir string) bool {
	for _, sub := range []string{"include", "lib"} {
		if fi, err := os.Stat(filepath.Join(dir, sub)); err == nil && fi.IsDir() {
			return true
		}
	}
	return false
}

// Resolver maps requirements to installed packages.
type Resolver struct {
	cache Cache
}

func NewResolver(cacheDir string) *Resolver {
	return &Resolver{cache: Cache{Dir: cacheDir}}
}

// Resolve looks every reference up concurrently. The result follows the
// order of refs; the first failure cancels the remaining lookups.
func (r *Resolver) Resolve(ctx context.Context, refs []recipe.Reference) ([]recipe.Dependency, error) {
	out := make([]recipe.Dependency, len(refs))
	g, ctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dir, err := r.cache.Lookup(ref)
			if err != nil {
				return err
			}
			out[i] = recipe.Dependency{Ref: ref, Dir: dir}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
