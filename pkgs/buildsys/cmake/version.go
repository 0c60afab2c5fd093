package cmake

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/adnn/zpkg/pkgs/buildsys"
)

// ErrVersionUnsatisfied is returned when the installed cmake does not
// satisfy a build requirement range.
var ErrVersionUnsatisfied = errors.New("cmake version does not satisfy requirement")

// Version runs "<bin> --version" and parses the reported version.
func Version(ctx context.Context, runner buildsys.Runner, bin string) (*semver.Version, error) {
	if bin == "" {
		bin = "cmake"
	}
	out, err := runner.Output(ctx, buildsys.Command{Name: bin, Args: []string{"--version"}})
	if err != nil {
		return nil, err
	}
	return parseVersion(out)
}

// parseVersion reads the first line, "cmake version 3.22.1".
func parseVersion(out []byte) (*semver.Version, error) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	if !sc.Scan() {
		return nil, errors.New("empty cmake --version output")
	}
	line := strings.TrimSpace(sc.Text())
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[1] != "version" {
		return nil, fmt.Errorf("unexpected cmake --version output %q", line)
	}
	v, err := semver.NewVersion(fields[2])
	if err != nil {
		return nil, fmt.Errorf("parse cmake version %q: %w", fields[2], err)
	}
	return v, nil
}

// CheckRequirement verifies that the cmake found at bin satisfies the
// version range (e.g. ">3.9"). It returns the detected version.
func CheckRequirement(ctx context.Context, runner buildsys.Runner, bin, constraint string) (*semver.Version, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("parse range %q: %w", constraint, err)
	}
	v, err := Version(ctx, runner, bin)
	if err != nil {
		return nil, err
	}
	if !c.Check(v) {
		return v, fmt.Errorf("%w: found %s, want %s", ErrVersionUnsatisfied, v, constraint)
	}
	return v, nil
}
