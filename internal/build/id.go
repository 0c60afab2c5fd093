package build

import (
	"crypto/sha1"
	"encoding/hex"
	"slices"
	"strings"

	"github.com/adnn/zpkg/recipe"
)

// PackageID identifies a binary package: the sha1 of the settings, options
// and requirements in canonical order.
func PackageID(settings recipe.SettingValues, options recipe.Values, requires []recipe.Reference) string {
	return packageID(canonicalInfo(settings, options, requires))
}

func packageID(info string) string {
	sum := sha1.Sum([]byte(info))
	return hex.EncodeToString(sum[:])
}

// canonicalInfo renders the configuration as sorted sections:
//
//	[settings]
//	arch=x86_64
//	[options]
//	buildtests=False
//	[requires]
//	boost/1.68.0@conan/stable
func canonicalInfo(settings recipe.SettingValues, options recipe.Values, requires []recipe.Reference) string {
	var b strings.Builder

	b.WriteString("[settings]\n")
	axes := make([]string, 0, len(settings))
	for axis := range settings {
		axes = append(axes, axis)
	}
	slices.Sort(axes)
	for _, axis := range axes {
		b.WriteString(axis + "=" + settings[axis] + "\n")
	}

	b.WriteString("[options]\n")
	for _, name := range options.Names() {
		b.WriteString(name + "=" + recipe.FormatBool(options[name]) + "\n")
	}

	b.WriteString("[requires]\n")
	refs := make([]string, 0, len(requires))
	for _, ref := range requires {
		refs = append(refs, ref.String())
	}
	slices.Sort(refs)
	for _, ref := range refs {
		b.WriteString(ref + "\n")
	}
	return b.String()
}
