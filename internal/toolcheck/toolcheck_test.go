package toolcheck

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    string
		wantErr bool
	}{
		{"rustc", "rustc 1.80.0 (051478957 2024-07-21)\n", "1.80.0", false},
		{"fastfetch", "fastfetch 2.40.4 (x86_64)\n", "2.40.4", false},
		{"xz", "xz (XZ Utils) 5.4.1\nliblzma 5.4.1\n", "5.4.1", false},
		{"two components only", "tool 1.2\n", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractVersion(tt.output)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractVersion() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractVersion() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b    string
		want    int
		wantErr bool
	}{
		{"1.79.0", "1.80.0", -1, false},
		{"1.80.0", "1.80.0", 0, false},
		{"1.80.1", "1.80.0", 1, false},
		{"1.9.0", "1.10.0", -1, false},
		{"v2.40.4", "2.40.4", 0, false},
		{"2.40", "2.40.0", 0, false},
		{"unknown", "1.0.0", 0, true},
		{"1.0.0", "", 0, true},
	}

	for _, tt := range tests {
		got, err := Compare(tt.a, tt.b)
		if (err != nil) != tt.wantErr {
			t.Errorf("Compare(%q, %q) error = %v, wantErr %v", tt.a, tt.b, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestChecker_Find(t *testing.T) {
	c := New(Options{LookPath: func(file string) (string, error) {
		if file == "tar" {
			return "/usr/bin/tar", nil
		}
		return "", exec.ErrNotFound
	}})

	if got := c.Find("tar"); !got.Present || got.Path == "" {
		t.Errorf("Find(tar) = %+v, want present", got)
	}
	if got := c.Find("xz"); got.Present || got.Path != "" {
		t.Errorf("Find(xz) = %+v, want absent", got)
	}
}

func TestChecker_FindResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "rustc-real")
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "rustc")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	c := New(Options{LookPath: func(string) (string, error) { return link, nil }})

	want, err := filepath.EvalSymlinks(target)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Find("rustc"); got.Path != want {
		t.Errorf("Path = %s, want %s", got.Path, want)
	}
}

func TestChecker_Inspect(t *testing.T) {
	var calls [][]string
	c := New(Options{
		LookPath: func(file string) (string, error) { return "/opt/" + file, nil },
		Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			calls = append(calls, append([]string{name}, args...))
			if args[0] == "--version" {
				return nil, errors.New("unknown flag")
			}
			return []byte("fastfetch 2.40.4\n"), nil
		},
	})

	got := c.Inspect(context.Background(), "fastfetch")
	if got.Version != "2.40.4" {
		t.Errorf("Version = %q, want 2.40.4", got.Version)
	}
	if len(calls) != 2 || calls[1][1] != "-V" {
		t.Errorf("calls = %v, want --version then -V", calls)
	}
}

func TestChecker_InspectUnreadableVersion(t *testing.T) {
	c := New(Options{
		LookPath: func(file string) (string, error) { return "/opt/" + file, nil },
		Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return []byte("no digits here"), nil
		},
	})

	got := c.Inspect(context.Background(), "rustc")
	if !got.Present || got.Version != "" {
		t.Errorf("Inspect() = %+v, want present without version", got)
	}
}

func TestChecker_InspectAbsentDoesNotRun(t *testing.T) {
	ran := false
	c := New(Options{
		LookPath: func(string) (string, error) { return "", exec.ErrNotFound },
		Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			ran = true
			return nil, nil
		},
	})

	if got := c.Inspect(context.Background(), "rustc"); got.Present {
		t.Errorf("Inspect() = %+v, want absent", got)
	}
	if ran {
		t.Error("Inspect() ran an absent tool")
	}
}
