package recipe

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownOption      = errors.New("unknown option")
	ErrInvalidOptionValue = errors.New("invalid option value")
)

// Option declares a boolean option and its default.
// Boolean is the only option domain.
type Option struct {
	Name    string
	Default bool
}

// Options is the ordered list of declared options.
type Options []Option

// Values maps an option name to its value.
type Values map[string]bool

// BoolOptions declares options from Conan-style default strings such as
// "shared=False".
func BoolOptions(defaults ...string) (Options, error) {
	opts := make(Options, 0, len(defaults))
	for _, d := range defaults {
		name, val, err := ParseAssign(d)
		if err != nil {
			return nil, err
		}
		b, err := ParseBool(val)
		if err != nil {
			return nil, fmt.Errorf("option %s: %w", name, err)
		}
		opts = append(opts, Option{Name: name, Default: b})
	}
	return opts, nil
}

// Lookup returns the declaration named name.
func (o Options) Lookup(name string) (Option, bool) {
	for _, opt := range o {
		if opt.Name == name {
			return opt, true
		}
	}
	return Option{}, false
}

// Defaults returns every declared option at its default value.
func (o Options) Defaults() Values {
	vals := make(Values, len(o))
	for _, opt := range o {
		vals[opt.Name] = opt.Default
	}
	return vals
}

// Resolve applies overrides on top of the defaults. Overrides naming an
// undeclared option or holding a non-boolean value are rejected.
func (o Options) Resolve(overrides map[string]string) (Values, error) {
	vals := o.Defaults()
	for name, raw := range overrides {
		if _, ok := o.Lookup(name); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownOption, name)
		}
		b, err := ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("option %s: %w", name, err)
		}
		vals[name] = b
	}
	return vals, nil
}

// Names returns the option names in sorted order.
func (v Values) Names() []string {
	names := make([]string, 0, len(v))
	for k := range v {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ParseBool accepts the boolean literals of both Go and Python spellings.
func ParseBool(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "True", "true", "1":
		return true, nil
	case "False", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w %q", ErrInvalidOptionValue, s)
}

// FormatBool formats b the way option values are written in recipes.
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// ParseAssign splits "key=value".
func ParseAssign(s string) (key, value string, err error) {
	key, value, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("invalid assignment %q: expected key=value", s)
	}
	return key, strings.TrimSpace(value), nil
}

// ParseAssigns parses a list of "key=value" strings into a map.
func ParseAssigns(list []string) (map[string]string, error) {
	m := make(map[string]string, len(list))
	for _, s := range list {
		k, v, err := ParseAssign(s)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}
