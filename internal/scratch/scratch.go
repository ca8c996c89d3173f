// Package scratch owns the private temporary directory a run downloads into.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Prefix names every scratch directory.
const Prefix = "preflight-"

// Dir is a temporary directory removed at most once.
type Dir struct {
	path string

	once sync.Once
	err  error
}

// New creates a fresh directory under parent, or under os.TempDir when
// parent is empty. The directory is readable by the current user only.
func New(parent string) (*Dir, error) {
	path, err := os.MkdirTemp(parent, Prefix)
	if err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	if err := os.Chmod(path, 0o700); err != nil {
		_ = os.RemoveAll(path)
		return nil, fmt.Errorf("restrict scratch directory: %w", err)
	}
	return &Dir{path: path}, nil
}

// Path returns the directory path.
func (d *Dir) Path() string { return d.path }

// File returns the path of name inside the directory. Only the base name of
// name is used, so callers cannot escape the directory.
func (d *Dir) File(name string) string {
	base := filepath.Base(name)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		base = "download"
	}
	return filepath.Join(d.path, base)
}

// Remove deletes the directory and everything in it. Later calls return the
// result of the first.
func (d *Dir) Remove() error {
	d.once.Do(func() {
		if err := os.RemoveAll(d.path); err != nil {
			d.err = fmt.Errorf("remove scratch directory: %w", err)
		}
	})
	return d.err
}
