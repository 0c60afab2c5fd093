// Package libs discovers the library artifacts installed in a package folder.
package libs

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
)

// Extensions recognized as library files.
var Extensions = []string{".so", ".lib", ".a", ".dylib", ".bc"}

// Collect returns the link names of the libraries found directly in each of
// libDirs of fsys, sorted by name. "libfoo.a" yields "foo"; ".lib"
// files keep their full stem. A name found twice is reported once.
// Missing directories are skipped.
func Collect(fsys fs.FS, libDirs ...string) ([]string, error) {
	if len(libDirs) == 0 {
		libDirs = []string{"lib"}
	}
	var names []string
	seen := make(map[string]bool)
	for _, dir := range libDirs {
		entries, err := fs.ReadDir(fsys, dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			name, ok := linkName(e.Name())
			if !ok || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// CollectDir is Collect on the directory tree rooted at root.
func CollectDir(root string, libDirs ...string) ([]string, error) {
	return Collect(os.DirFS(root), libDirs...)
}

func linkName(file string) (string, bool) {
	ext := path.Ext(file)
	if !isLibExt(ext) {
		return "", false
	}
	name := strings.TrimSuffix(file, ext)
	if ext != ".lib" {
		name = strings.TrimPrefix(name, "lib")
	}
	if name == "" {
		return "", false
	}
	return name, true
}

func isLibExt(ext string) bool {
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}
