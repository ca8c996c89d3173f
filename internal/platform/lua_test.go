package platform

import (
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestInjectPlatformTable_Linux(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	info := &Info{
		OS:         "linux",
		Arch:       "amd64",
		ArchRaw:    "amd64",
		KernelArch: "x86_64",
		Platform:   "ubuntu",
		Family:     "debian",
		Version:    "22.04",
	}

	if err := InjectPlatformTable(L, info); err != nil {
		t.Fatalf("InjectPlatformTable() error = %v", err)
	}

	tests := []struct {
		name string
		code string
		want lua.LValue
	}{
		{"os", `return platform.os`, lua.LString("linux")},
		{"arch", `return platform.arch`, lua.LString("amd64")},
		{"kernel_arch", `return platform.kernel_arch`, lua.LString("x86_64")},
		{"is_linux", `return platform.is_linux`, lua.LTrue},
		{"is_macos", `return platform.is_macos`, lua.LFalse},
		{"is_amd64", `return platform.is_amd64`, lua.LTrue},
		{"rust_triple", `return platform.rust_triple`, lua.LString("x86_64-unknown-linux-gnu")},
		{"deb_arch", `return platform.deb_arch`, lua.LString("amd64")},
		{"distro.id", `return platform.distro.id`, lua.LString("ubuntu")},
		{"distro.family", `return platform.distro.family`, lua.LString("debian")},
		{"is_debian_family", `return platform.is_debian_family`, lua.LTrue},
		{"is_alpine", `return platform.is_alpine`, lua.LFalse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := L.DoString(tt.code); err != nil {
				t.Fatalf("failed to execute %q: %v", tt.code, err)
			}
			got := L.Get(-1)
			L.Pop(1)
			if got.Type() != tt.want.Type() || got.String() != tt.want.String() {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestInjectPlatformTable_UnknownArch(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	if err := InjectPlatformTable(L, &Info{OS: "linux", Arch: "s390x"}); err != nil {
		t.Fatalf("InjectPlatformTable() error = %v", err)
	}

	for _, code := range []string{`return platform.rust_triple`, `return platform.deb_arch`, `return platform.distro`} {
		if err := L.DoString(code); err != nil {
			t.Fatalf("failed to execute %q: %v", code, err)
		}
		got := L.Get(-1)
		L.Pop(1)
		if got != lua.LNil {
			t.Errorf("%s = %v, want nil", code, got)
		}
	}
}

func TestPlatformTable_ReadOnly(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	if err := InjectPlatformTable(L, &Info{OS: "linux", Arch: "amd64"}); err != nil {
		t.Fatalf("InjectPlatformTable() error = %v", err)
	}

	tests := []struct {
		name string
		code string
	}{
		{"modify os", `platform.os = "windows"`},
		{"add new field", `platform.new_field = "value"`},
		{"override triple", `platform.rust_triple = "aarch64-unknown-linux-gnu"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := L.DoString(tt.code); err == nil {
				t.Error("expected error when modifying read-only table, got nil")
			}
		})
	}
}

func TestPlatformTable_WhenHelper(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	if err := InjectPlatformTable(L, &Info{OS: "linux", Arch: "arm64"}); err != nil {
		t.Fatalf("InjectPlatformTable() error = %v", err)
	}

	tests := []struct {
		name string
		code string
		want lua.LValue
	}{
		{"when true returns value", `return platform.when(true, "x")`, lua.LString("x")},
		{"when false returns nil", `return platform.when(false, "x")`, lua.LNil},
		{"when with platform boolean", `return platform.when(platform.is_arm64, "arm")`, lua.LString("arm")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := L.DoString(tt.code); err != nil {
				t.Fatalf("failed to execute code: %v", err)
			}
			got := L.Get(-1)
			L.Pop(1)
			if got.Type() != tt.want.Type() || got.String() != tt.want.String() {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
