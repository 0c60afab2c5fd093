package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"

	"github.com/adnn/zpkg/pkgs/buildsys"
)

const testRev = "0123456789abcdef0123456789abcdef01234567"

// mockVCS checks out a fixed file set at a fixed revision.
type mockVCS struct {
	rev   string
	files map[string]string

	syncs   int
	lastRef string
	lastSub string
	lastDir string
}

func newMockVCS() *mockVCS {
	return &mockVCS{
		rev:   testRev,
		files: map[string]string{"CMakeLists.txt": "project(zombies)\n"},
	}
}

func (m *mockVCS) Sync(ctx context.Context, remote, ref, dir, submodule string) (string, error) {
	m.syncs++
	m.lastRef, m.lastSub, m.lastDir = ref, submodule, dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	for name, content := range m.files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return "", err
		}
	}
	return m.rev, nil
}

func (m *mockVCS) Tags(ctx context.Context, remote string) ([]string, error) {
	return nil, nil
}

func (m *mockVCS) Latest(ctx context.Context, remote string) (string, error) {
	return m.rev, nil
}

// mockRunner records commands and fakes cmake: "--version" reports
// version, "--install" drops a static library into the prefix.
type mockRunner struct {
	version string
	fail    string // first argument of the command to fail

	cmds []buildsys.Command
}

func newMockRunner() *mockRunner {
	return &mockRunner{version: "3.22.1"}
}

func (m *mockRunner) Run(ctx context.Context, cmd buildsys.Command) error {
	m.cmds = append(m.cmds, cmd)
	if len(cmd.Args) == 0 {
		return nil
	}
	if cmd.Args[0] == m.fail {
		return errors.New("exit status 2")
	}
	if cmd.Args[0] == "--install" {
		i := slices.Index(cmd.Args, "--prefix")
		if i < 0 || i+1 >= len(cmd.Args) {
			return nil
		}
		lib := filepath.Join(cmd.Args[i+1], "lib")
		if err := os.MkdirAll(lib, 0o755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(lib, "libzombies.a"), nil, 0o644)
	}
	return nil
}

func (m *mockRunner) Output(ctx context.Context, cmd buildsys.Command) ([]byte, error) {
	return []byte("cmake version " + m.version + "\n\nCMake suite maintained and supported by Kitware (kitware.com/cmake).\n"), nil
}

func (m *mockRunner) args(first string) [][]string {
	var out [][]string
	for _, c := range m.cmds {
		if len(c.Args) > 0 && c.Args[0] == first {
			out = append(out, c.Args)
		}
	}
	return out
}
