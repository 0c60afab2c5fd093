package build

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/adnn/zpkg/internal/deps"
	"github.com/adnn/zpkg/recipe"
)

// Package folder layout:
//
//	cacheDir/<name>/<version>/<user>/<channel>/package/
//	  <id>.lock                # serialises builds of <id>
//	  <id>/                    # install prefix of the build
//	    .cache.json            # buildEntry, written last
//	    include/
//	    lib/
const cacheFile = deps.EntryFile

// buildEntry contains metadata about a single successful build.
type buildEntry struct {
	BuildID   string               `json:"build_id"`
	Ref       string               `json:"ref"`
	PackageID string               `json:"package_id"`
	Revision  string               `json:"revision,omitempty"`
	Settings  recipe.SettingValues `json:"settings"`
	Options   map[string]string    `json:"options"`
	Info      recipe.CppInfo       `json:"cpp_info"`
	BuildTime time.Time            `json:"build_time"`
}

func loadBuildCache(path string) (*buildEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry buildEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// saveBuildCache writes entry through a temporary file so a reader never
// sees a partial entry.
func saveBuildCache(path string, entry *buildEntry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
