package recipe

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"
)

// A Reference identifies a package in the form "name/version@user/channel".
// User and channel are optional; they format as "_" when empty.
type Reference struct {
	Name    string
	Version string // exact version, or a range such as "[>3.9]"
	User    string
	Channel string
}

// ParseReference parses "name/version@user/channel" or "name/version".
func ParseReference(s string) (Reference, error) {
	nameVer, userChan, hasUser := strings.Cut(s, "@")
	name, version, ok := strings.Cut(nameVer, "/")
	if !ok || name == "" || version == "" {
		return Reference{}, fmt.Errorf("invalid reference %q: expected name/version[@user/channel]", s)
	}
	ref := Reference{Name: name, Version: version}
	if hasUser {
		user, channel, ok := strings.Cut(userChan, "/")
		if !ok || user == "" || channel == "" {
			return Reference{}, fmt.Errorf("invalid reference %q: expected user/channel after '@'", s)
		}
		ref.User, ref.Channel = user, channel
	}
	return ref, nil
}

// MustParseReference is like ParseReference but panics on error.
func MustParseReference(s string) Reference {
	ref, err := ParseReference(s)
	if err != nil {
		panic(err)
	}
	return ref
}

func (r Reference) String() string {
	s := r.Name + "/" + r.Version
	if r.User != "" || r.Channel != "" {
		s += "@" + orPlaceholder(r.User) + "/" + orPlaceholder(r.Channel)
	}
	return s
}

// IsRange reports whether the version is a bracketed range like "[>3.9]".
func (r Reference) IsRange() bool {
	return strings.HasPrefix(r.Version, "[") && strings.HasSuffix(r.Version, "]")
}

// Range returns the range expression without brackets.
func (r Reference) Range() string {
	if !r.IsRange() {
		return ""
	}
	return strings.TrimSpace(r.Version[1 : len(r.Version)-1])
}

// IsExact reports whether the version is a pinned, well-formed version.
func (r Reference) IsExact() bool {
	if r.Version == "" || r.IsRange() {
		return false
	}
	v := r.Version
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.IsValid(v)
}

// EscapePath returns the reference as a relative file system path:
// name/version/user/channel.
func (r Reference) EscapePath() (string, error) {
	if r.IsRange() {
		return "", fmt.Errorf("cannot escape range reference %s", r)
	}
	return filepath.Localize(strings.Join([]string{
		r.Name, r.Version, orPlaceholder(r.User), orPlaceholder(r.Channel),
	}, "/"))
}

func orPlaceholder(s string) string {
	if s == "" {
		return "_"
	}
	return s
}
