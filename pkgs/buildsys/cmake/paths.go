package cmake

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/adnn/zpkg/recipe"
)

// PathsFile is the file written by the cmake_paths generator.
const PathsFile = "conan_paths.cmake"

var pathsTmpl = template.Must(template.New(PathsFile).Parse(`# Generated by zpkg, do not edit.
{{- range .}}
set(CONAN_{{.Var}}_ROOT "{{.Dir}}")
{{- end}}
set(CMAKE_MODULE_PATH{{range .}} "{{.Dir}}/"{{end}} ${CMAKE_MODULE_PATH} ${CMAKE_CURRENT_LIST_DIR})
set(CMAKE_PREFIX_PATH{{range .}} "{{.Dir}}/"{{end}} ${CMAKE_PREFIX_PATH} ${CMAKE_CURRENT_LIST_DIR})
`))

type pathEntry struct {
	Var string
	Dir string
}

// WritePaths writes conan_paths.cmake into dir so that a project can find
// the resolved dependencies with find_package. It returns the file path.
func WritePaths(dir string, deps []recipe.Dependency) (string, error) {
	entries := make([]pathEntry, 0, len(deps))
	for _, dep := range deps {
		entries = append(entries, pathEntry{
			Var: cmakeVar(dep.Ref.Name),
			Dir: filepath.ToSlash(dep.Dir),
		})
	}
	var buf bytes.Buffer
	if err := pathsTmpl.Execute(&buf, entries); err != nil {
		return "", fmt.Errorf("render %s: %w", PathsFile, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, PathsFile)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// cmakeVar upper-cases name and replaces characters CMake variables cannot hold.
func cmakeVar(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, name)
}
