// Package platform detects the host OS, architecture and Linux distribution,
// and derives the names both updaters key their downloads on: the Rust target
// triple and the Debian architecture.
//
// The detected information is also injected as a read-only table into the Lua
// configuration. Distribution details come from gopsutil; when that detection
// fails the OS and architecture are still reported (graceful fallback).
package platform

import "context"

// Linux distribution family constants.
// These represent canonical family names for grouping related distributions.
const (
	FamilyDebian  = "debian"  // Debian, Ubuntu, Linux Mint
	FamilyRHEL    = "rhel"    // RHEL, CentOS, Rocky Linux, AlmaLinux
	FamilyFedora  = "fedora"  // Fedora
	FamilySUSE    = "suse"    // openSUSE, SLES
	FamilyArch    = "arch"    // Arch Linux, Manjaro
	FamilyAlpine  = "alpine"  // Alpine Linux
	FamilyGentoo  = "gentoo"  // Gentoo
	FamilyUnknown = "unknown" // Unrecognized distributions
)

// Info contains platform detection information.
type Info struct {
	OS       string // "linux", "darwin"
	Arch     string // normalized ("amd64", "arm64", "arm", "386", "riscv64"); raw value if unsupported
	ArchRaw  string // original GOARCH
	Platform string // distro ID (Linux only, e.g., "ubuntu", "arch")
	Family   string // canonical family (e.g., "debian", "rhel", "arch")
	Version  string // distro version (Linux only, e.g., "22.04")

	// KernelArch is what the kernel reports (uname -m), which can differ from
	// GOARCH when a 32-bit binary runs on a 64-bit kernel.
	KernelArch    string
	KernelVersion string

	// DistroErr records why distribution detection fell back, if it did.
	DistroErr error `json:"-" yaml:"-"`
}

// Distro contains Linux distribution information.
// This is nil on non-Linux platforms.
type Distro struct {
	ID      string // distro ID (e.g., "ubuntu")
	Family  string // canonical family (e.g., "debian")
	Version string // version (e.g., "22.04")
}

// GetDistro returns distro information if this is a Linux platform.
// Returns nil for non-Linux platforms or if distro detection failed.
func (i *Info) GetDistro() *Distro {
	if i.OS != "linux" || i.Platform == "" {
		return nil
	}
	return &Distro{
		ID:      i.Platform,
		Family:  i.Family,
		Version: i.Version,
	}
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsMacOS returns true if the platform is macOS.
func (i *Info) IsMacOS() bool {
	return i.OS == "darwin"
}

// IsAMD64 returns true if the architecture is amd64.
func (i *Info) IsAMD64() bool {
	return i.Arch == "amd64"
}

// IsARM64 returns true if the architecture is arm64.
func (i *Info) IsARM64() bool {
	return i.Arch == "arm64"
}

// IsDebianFamily returns true if the Linux distribution is Debian-based.
func (i *Info) IsDebianFamily() bool {
	return i.OS == "linux" && i.Family == FamilyDebian
}

// IsAlpine returns true if the Linux distribution is Alpine.
func (i *Info) IsAlpine() bool {
	return i.OS == "linux" && i.Family == FamilyAlpine
}

// rustArch maps normalized architectures to the first component of a Rust triple.
var rustArch = map[string]string{
	"amd64":   "x86_64",
	"arm64":   "aarch64",
	"386":     "i686",
	"riscv64": "riscv64gc",
}

// RustTriple returns the Rust target triple the toolchain updater would pick
// for this host, or "" when there is none.
func (i *Info) RustTriple() string {
	arch, ok := rustArch[i.Arch]
	switch {
	case i.IsLinux() && i.Arch == "arm":
		if i.IsAlpine() {
			return "arm-unknown-linux-musleabihf"
		}
		return "armv7-unknown-linux-gnueabihf"
	case !ok:
		return ""
	case i.IsLinux():
		if i.IsAlpine() {
			return arch + "-unknown-linux-musl"
		}
		return arch + "-unknown-linux-gnu"
	case i.IsMacOS() && (i.Arch == "amd64" || i.Arch == "arm64"):
		return arch + "-apple-darwin"
	default:
		return ""
	}
}

// debArch maps normalized architectures to Debian architecture names.
var debArch = map[string]string{
	"amd64":   "amd64",
	"arm64":   "arm64",
	"arm":     "armhf",
	"386":     "i386",
	"riscv64": "riscv64",
}

// DebArch returns the Debian architecture name for this host, or "" if unknown.
func (i *Info) DebArch() string {
	return debArch[i.Arch]
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}
