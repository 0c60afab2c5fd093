package internal

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"

	"github.com/adnn/zpkg/internal/build"
	"github.com/adnn/zpkg/recipe"
)

const (
	formatTable = "table"
	formatYAML  = "yaml"
	formatJSON  = "json"
)

type optionView struct {
	Name    string `json:"name" yaml:"name"`
	Default string `json:"default" yaml:"default"`
}

type scmView struct {
	Type      string `json:"type" yaml:"type"`
	Subfolder string `json:"subfolder,omitempty" yaml:"subfolder,omitempty"`
	URL       string `json:"url" yaml:"url"`
	Revision  string `json:"revision" yaml:"revision"`
	Submodule string `json:"submodule,omitempty" yaml:"submodule,omitempty"`
}

// recipeView is the printable declaration of a recipe.
type recipeView struct {
	Name          string       `json:"name" yaml:"name"`
	Version       string       `json:"version,omitempty" yaml:"version,omitempty"`
	License       string       `json:"license,omitempty" yaml:"license,omitempty"`
	URL           string       `json:"url,omitempty" yaml:"url,omitempty"`
	Description   string       `json:"description,omitempty" yaml:"description,omitempty"`
	Settings      []string     `json:"settings,omitempty" yaml:"settings,omitempty"`
	Options       []optionView `json:"options,omitempty" yaml:"options,omitempty"`
	Requires      []string     `json:"requires,omitempty" yaml:"requires,omitempty"`
	BuildRequires []string     `json:"build_requires,omitempty" yaml:"build_requires,omitempty"`
	BuildPolicy   string       `json:"build_policy" yaml:"build_policy"`
	Generators    []string     `json:"generators,omitempty" yaml:"generators,omitempty"`
	SCM           *scmView     `json:"scm,omitempty" yaml:"scm,omitempty"`
}

func newRecipeView(r *recipe.Recipe) *recipeView {
	v := &recipeView{
		Name:        r.Name,
		Version:     r.Version,
		License:     r.License,
		URL:         r.URL,
		Description: r.Description,
		Settings:    r.Settings,
		BuildPolicy: string(r.Policy()),
		Generators:  r.Generators,
	}
	for _, o := range r.Options {
		v.Options = append(v.Options, optionView{Name: o.Name, Default: recipe.FormatBool(o.Default)})
	}
	for _, ref := range r.Requires {
		v.Requires = append(v.Requires, ref.String())
	}
	for _, ref := range r.BuildRequires {
		v.BuildRequires = append(v.BuildRequires, ref.String())
	}
	if r.SCM.URL != "" {
		v.SCM = &scmView{
			Type:      r.SCM.Type,
			Subfolder: r.SCM.Subfolder,
			URL:       r.SCM.URL,
			Revision:  r.SCM.Revision,
			Submodule: r.SCM.Submodule,
		}
	}
	return v
}

func (v *recipeView) table() pterm.TableData {
	td := pterm.TableData{{"Field", "Value"}}
	add := func(k, val string) {
		if val != "" {
			td = append(td, []string{k, val})
		}
	}
	add("name", v.Name)
	add("version", v.Version)
	add("license", v.License)
	add("url", v.URL)
	add("description", v.Description)
	add("settings", strings.Join(v.Settings, " "))
	for _, o := range v.Options {
		add("option "+o.Name, o.Default)
	}
	add("requires", strings.Join(v.Requires, "\n"))
	add("build_requires", strings.Join(v.BuildRequires, "\n"))
	add("build_policy", v.BuildPolicy)
	add("generators", strings.Join(v.Generators, " "))
	if v.SCM != nil {
		add("scm", fmt.Sprintf("%s %s@%s", v.SCM.Type, v.SCM.URL, v.SCM.Revision))
		add("scm subfolder", v.SCM.Subfolder)
		add("scm submodule", v.SCM.Submodule)
	}
	return td
}

// resultView is the printable description of a cached package.
type resultView struct {
	Ref         string               `json:"ref" yaml:"ref"`
	PackageID   string               `json:"package_id" yaml:"package_id"`
	Dir         string               `json:"dir" yaml:"dir"`
	Revision    string               `json:"revision,omitempty" yaml:"revision,omitempty"`
	Settings    recipe.SettingValues `json:"settings" yaml:"settings"`
	Options     map[string]string    `json:"options" yaml:"options"`
	Libs        []string             `json:"libs" yaml:"libs"`
	IncludeDirs []string             `json:"include_dirs" yaml:"include_dirs"`
	LibDirs     []string             `json:"lib_dirs" yaml:"lib_dirs"`
	BuildID     string               `json:"build_id" yaml:"build_id"`
	BuildTime   time.Time            `json:"build_time" yaml:"build_time"`
	Cached      bool                 `json:"cached" yaml:"cached"`
}

func newResultView(res *build.Result) *resultView {
	v := &resultView{
		Ref:         res.Ref.String(),
		PackageID:   res.PackageID,
		Dir:         res.PackageDir,
		Revision:    res.Revision,
		Settings:    res.Settings,
		Options:     make(map[string]string, len(res.Options)),
		Libs:        res.Info.Libs,
		IncludeDirs: res.Info.IncludeDirs,
		LibDirs:     res.Info.LibDirs,
		BuildID:     res.BuildID,
		BuildTime:   res.BuildTime,
		Cached:      res.Cached,
	}
	for name, b := range res.Options {
		v.Options[name] = recipe.FormatBool(b)
	}
	return v
}

func (v *resultView) table() pterm.TableData {
	td := pterm.TableData{{"Field", "Value"}}
	td = append(td,
		[]string{"ref", v.Ref},
		[]string{"package_id", v.PackageID},
		[]string{"dir", v.Dir},
	)
	if v.Revision != "" {
		td = append(td, []string{"revision", v.Revision})
	}
	if s := v.Settings.String(); s != "" {
		td = append(td, []string{"settings", s})
	}
	for _, name := range sortedKeys(v.Options) {
		td = append(td, []string{"option " + name, v.Options[name]})
	}
	td = append(td,
		[]string{"libs", strings.Join(v.Libs, " ")},
		[]string{"include_dirs", strings.Join(v.IncludeDirs, " ")},
		[]string{"lib_dirs", strings.Join(v.LibDirs, " ")},
		[]string{"build_id", v.BuildID},
		[]string{"build_time", v.BuildTime.Format(time.RFC3339)},
		[]string{"cached", fmt.Sprint(v.Cached)},
	)
	return td
}

// printView writes v in the given format. Tables are rendered with pterm.
func printView(w io.Writer, format string, v interface{ table() pterm.TableData }) error {
	switch format {
	case formatTable, "":
		s, err := pterm.DefaultTable.WithHasHeader().WithData(v.table()).Srender()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, s)
		return err
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return fmt.Errorf("unknown format %q, want %s, %s or %s", format, formatTable, formatYAML, formatJSON)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// outputResult writes the package folder to dest.
// If dest ends with ".zip", creates a zip archive; otherwise copies the directory.
func outputResult(srcDir, dest string) error {
	if strings.HasSuffix(dest, ".zip") {
		return zipDir(srcDir, dest)
	}
	return os.CopyFS(dest, os.DirFS(srcDir))
}

// zipDir creates a zip archive at dest from the contents of srcDir.
func zipDir(srcDir, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if err := writeZip(f, srcDir); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeZip writes the contents of srcDir as a zip archive to out. The
// central directory is written last, so the error of Close is returned.
func writeZip(out io.Writer, srcDir string) error {
	w := zip.NewWriter(out)
	err := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		writer, err := w.CreateHeader(header)
		if err != nil {
			return err
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(writer, file)
		return err
	})
	if err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
