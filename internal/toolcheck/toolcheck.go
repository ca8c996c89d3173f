// Package toolcheck locates the external commands the updaters shell out to
// and reads the versions of the binaries they install.
package toolcheck

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"github.com/blang/semver"
)

// DefaultVersionTimeout bounds a single `--version` invocation.
const DefaultVersionTimeout = 5 * time.Second

var versionRegex = regexp.MustCompile(`\d+\.\d+\.\d+`)

// Tool describes one command on the host.
type Tool struct {
	Name    string `json:"name" yaml:"name"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Present bool   `json:"present" yaml:"present"`
}

// Runner executes name with args and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Options configures a Checker. Zero values use the real host.
type Options struct {
	LookPath func(file string) (string, error)
	Run      Runner
	Timeout  time.Duration
}

// Checker answers tool presence and version questions.
type Checker struct {
	lookPath func(string) (string, error)
	run      Runner
	timeout  time.Duration
}

// New creates a Checker.
func New(opts Options) *Checker {
	c := &Checker{lookPath: opts.LookPath, run: opts.Run, timeout: opts.Timeout}
	if c.lookPath == nil {
		c.lookPath = exec.LookPath
	}
	if c.run == nil {
		c.run = execOutput
	}
	if c.timeout <= 0 {
		c.timeout = DefaultVersionTimeout
	}
	return c
}

func execOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Find resolves name in PATH, following symlinks when possible.
func (c *Checker) Find(name string) Tool {
	path, err := c.lookPath(name)
	if err != nil {
		return Tool{Name: name}
	}

	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}

	return Tool{Name: name, Path: path, Present: true}
}

// Inspect finds name and, when present, reads its version.
// A tool whose version cannot be read is still Present with an empty Version.
func (c *Checker) Inspect(ctx context.Context, name string) Tool {
	tool := c.Find(name)
	if !tool.Present {
		return tool
	}

	if version, err := c.DetectVersion(ctx, tool.Path); err == nil {
		tool.Version = version
	}
	return tool
}

// DetectVersion detects the version of a binary by executing it.
// Tries --version first, then -V as fallback.
func (c *Checker) DetectVersion(ctx context.Context, binaryPath string) (string, error) {
	for _, flag := range []string{"--version", "-V"} {
		runCtx, cancel := context.WithTimeout(ctx, c.timeout)
		output, err := c.run(runCtx, binaryPath, flag)
		cancel()
		if err != nil {
			continue
		}
		if version, err := ExtractVersion(string(output)); err == nil {
			return version, nil
		}
	}

	return "", fmt.Errorf("failed to detect version for %s", binaryPath)
}

// ExtractVersion extracts semantic version from command output
func ExtractVersion(output string) (string, error) {
	match := versionRegex.FindString(output)
	if match == "" {
		return "", fmt.Errorf("no version found in output")
	}
	return match, nil
}

// Compare orders two version strings the way semver does, tolerating a
// leading "v" and missing components. It returns -1, 0 or 1.
func Compare(installed, upstream string) (int, error) {
	a, err := semver.ParseTolerant(installed)
	if err != nil {
		return 0, fmt.Errorf("parse installed version %q: %w", installed, err)
	}
	b, err := semver.ParseTolerant(upstream)
	if err != nil {
		return 0, fmt.Errorf("parse upstream version %q: %w", upstream, err)
	}
	return a.Compare(b), nil
}
