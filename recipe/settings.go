package recipe

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sort"
	"strings"
)

var ErrUnknownSetting = errors.New("unknown setting")

// Settings lists the platform axes a recipe depends on, e.g.
// "os", "arch", "compiler", "build_type", "cppstd".
type Settings []string

// SettingValues maps a settings axis to its value.
type SettingValues map[string]string

// HostSettings returns the settings detected from the running host.
func HostSettings() SettingValues {
	vals := SettingValues{"build_type": "Release"}
	if os := hostOS(runtime.GOOS); os != "" {
		vals["os"] = os
	}
	if arch := hostArch(runtime.GOARCH); arch != "" {
		vals["arch"] = arch
	}
	return vals
}

// Resolve keeps the axes declared by s from base and applies overrides.
// Overrides for undeclared axes are rejected.
func (s Settings) Resolve(base SettingValues, overrides map[string]string) (SettingValues, error) {
	vals := make(SettingValues, len(s))
	for _, axis := range s {
		if v, ok := base[axis]; ok && v != "" {
			vals[axis] = v
		}
	}
	for axis, v := range overrides {
		if !slices.Contains(s, axis) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSetting, axis)
		}
		if v == "" {
			delete(vals, axis)
			continue
		}
		vals[axis] = v
	}
	return vals, nil
}

// String returns the values as sorted "key=value" pairs joined by "-".
func (v SettingValues) String() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+v[k])
	}
	return strings.Join(parts, "-")
}

func hostOS(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "darwin":
		return "Macos"
	case "windows":
		return "Windows"
	case "freebsd":
		return "FreeBSD"
	}
	return ""
}

func hostArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "386":
		return "x86"
	case "arm64":
		return "armv8"
	case "arm":
		return "armv7"
	}
	return ""
}
