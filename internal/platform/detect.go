package platform

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector implements Detector using actual platform detection.
type RealDetector struct{}

// NewDetector creates a new platform detector.
func NewDetector() Detector {
	return &RealDetector{}
}

// Detect performs platform detection and returns platform information.
// It uses runtime.GOOS and runtime.GOARCH for OS and architecture,
// and gopsutil for kernel and Linux distribution details.
//
// An unsupported architecture is not an error: Arch keeps the raw value and
// RustTriple and DebArch return "". On Linux, if gopsutil fails to detect the
// distribution, distro fields stay empty and DistroErr is set. Only context
// cancellation fails the call.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:      runtime.GOOS,
		ArchRaw: runtime.GOARCH,
		Arch:    normalizeArch(runtime.GOARCH),
	}

	if v, err := host.KernelVersionWithContext(ctx); err == nil {
		info.KernelVersion = strings.TrimSpace(v)
	}
	if a, err := host.KernelArch(); err == nil {
		info.KernelArch = strings.TrimSpace(a)
	}

	// Detect Linux distribution details using gopsutil (Linux only)
	if runtime.GOOS == "linux" {
		platform, family, version, err := host.PlatformInformationWithContext(ctx)
		if err != nil {
			// Check if context was cancelled - this is a hard failure
			if ctx.Err() != nil {
				return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
			}
			info.DistroErr = fmt.Errorf("distribution detection: %w", err)
			return info, nil
		}
		applyDistro(info, platform, family, version)
	}

	return info, nil
}

// applyDistro normalizes gopsutil's answer into info. Nothing is set when the
// platform ID is empty.
func applyDistro(info *Info, platform, family, version string) {
	platform = normalizePlatform(platform)
	if platform == "" {
		info.DistroErr = fmt.Errorf("distribution detection returned no platform ID")
		return
	}
	info.Platform = platform
	info.Family = mapFamily(family)
	// fall back to the platform ID when the family string is unrecognized
	if info.Family == FamilyUnknown {
		info.Family = mapFamily(platform)
	}
	info.Version = normalizePlatform(version)
}
