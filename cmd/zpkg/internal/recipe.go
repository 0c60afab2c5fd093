package internal

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/adnn/zpkg/internal/build"
	"github.com/adnn/zpkg/recipe"
	"github.com/adnn/zpkg/recipe/hclrecipe"
	"github.com/adnn/zpkg/recipes/zombies"
)

// recipeFlags selects a recipe and its configuration.
type recipeFlags struct {
	file     string
	options  []string
	settings []string
}

func (f *recipeFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.file, "recipe", "", "HCL recipe file (default is the built-in zombies recipe)")
	fs.StringArrayVarP(&f.options, "options", "o", nil, "Option override name=value, repeatable")
	fs.StringArrayVarP(&f.settings, "settings", "s", nil, "Setting override key=value, repeatable")
}

func (f *recipeFlags) load() (*recipe.Recipe, error) {
	return loadRecipe(f.file)
}

func (f *recipeFlags) request() (build.Request, error) {
	options, err := recipe.ParseAssigns(f.options)
	if err != nil {
		return build.Request{}, fmt.Errorf("options: %w", err)
	}
	settings, err := recipe.ParseAssigns(f.settings)
	if err != nil {
		return build.Request{}, fmt.Errorf("settings: %w", err)
	}
	return build.Request{Options: options, Settings: settings}, nil
}

// loadRecipe loads the HCL recipe at file, or the built-in recipe when
// file is empty.
func loadRecipe(file string) (*recipe.Recipe, error) {
	if file == "" {
		return zombies.New(), nil
	}
	return hclrecipe.Load(file)
}
