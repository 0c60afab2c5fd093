// Package lockfile reads and writes the file pinning a recipe's source
// revision and requirements.
package lockfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Name is the default lockfile name.
const Name = "zpkg.lock"

// Source pins the checkout of a recipe.
type Source struct {
	URL       string `json:"url"`
	Revision  string `json:"revision"` // full commit hash
	Subfolder string `json:"subfolder,omitempty"`
	Submodule string `json:"submodule,omitempty"`
}

// Lockfile records what a source step resolved.
type Lockfile struct {
	Ref           string   `json:"ref"`                      // recipe reference
	Source        Source   `json:"source"`                   // resolved checkout
	Requires      []string `json:"requires,omitempty"`       // pinned requirements
	BuildRequires []string `json:"build_requires,omitempty"` // tool requirement ranges
}

// Parse reads and parses a lockfile from either provided data or a file path.
// If data is non-nil, it is used directly and the file parameter is ignored.
// Otherwise, the file is read from the provided path.
func Parse(file string, data []byte) (*Lockfile, error) {
	var reader io.Reader

	if data != nil {
		reader = bytes.NewBuffer(data)
	} else {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		reader = f
	}

	var l Lockfile

	if err := json.NewDecoder(reader).Decode(&l); err != nil {
		return nil, fmt.Errorf("parse lockfile %s: %w", file, err)
	}

	return &l, nil
}

// Write stores l at file, creating parent directories as needed.
func (l *Lockfile) Write(file string) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return err
	}
	return os.WriteFile(file, append(data, '\n'), 0o644)
}
