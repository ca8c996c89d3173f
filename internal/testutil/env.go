// Package testutil provides utilities for testing preflight in isolation.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Env is the isolated environment prepared by SetupTestEnv.
type Env struct {
	// Root holds every directory below.
	Root string
	// Bin is the only directory on PATH.
	Bin string
	// Tmp is TMPDIR, where scratch directories are created.
	Tmp string
}

// SetupTestEnv isolates a test from the host. It ensures preflight tests
// never see:
// - tools installed on the machine running the tests
// - the user's GitHub token or config file
// - color settings of the surrounding terminal
//
// Directories live under t.TempDir() and the environment is restored by
// t.Setenv, so callers don't need to clean up.
func SetupTestEnv(t *testing.T) *Env {
	t.Helper()

	root := t.TempDir()
	env := &Env{
		Root: root,
		Bin:  filepath.Join(root, "bin"),
		Tmp:  filepath.Join(root, "tmp"),
	}

	for _, dir := range []string{env.Bin, env.Tmp} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}

	t.Setenv("PATH", env.Bin)
	t.Setenv("TMPDIR", env.Tmp)

	// Empty values count as unset.
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "")
	t.Setenv("PREFLIGHT_CONFIG", "")

	// NO_COLOR counts when present at all, so it has to be removed.
	// t.Setenv still restores the original value on cleanup.
	t.Setenv("NO_COLOR", "")
	if err := os.Unsetenv("NO_COLOR"); err != nil {
		t.Fatalf("failed to unset NO_COLOR: %v", err)
	}

	return env
}

// FakeTool writes an executable called name into dir that prints output and
// exits 0, whatever its arguments. It returns the tool's path.
func FakeTool(t *testing.T, dir, name, output string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	// printf is a shell builtin, so the script works with an empty PATH.
	quoted := "'" + strings.ReplaceAll(output, "'", `'\''`) + "'"
	script := fmt.Sprintf("#!/bin/sh\nprintf '%%s\\n' %s\n", quoted)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write fake tool %s: %v", name, err)
	}
	return path
}
