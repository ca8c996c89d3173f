package config

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ZebulonRouseFrantzich/preflight/internal/platform"
	"github.com/ZebulonRouseFrantzich/preflight/internal/transport"
)

// Default upstream locations.
const (
	DefaultBaselineURL   = "https://github.com/"
	DefaultManifestURL   = "https://static.rust-lang.org/dist/channel-rust-stable.toml"
	DefaultSigningKeyURL = "https://static.rust-lang.org/rust-key.gpg.ascii"
	DefaultRepo          = "fastfetch-cli/fastfetch"
	DefaultAPIBase       = "https://api.github.com"
	DefaultWebBase       = "https://github.com"
)

// Config is the effective run configuration: defaults overlaid with the user's Lua file.
type Config struct {
	Transport TransportConfig `json:"transport" yaml:"transport"`
	Infra     InfraConfig     `json:"infra" yaml:"infra"`
	Toolchain ToolchainConfig `json:"toolchain" yaml:"toolchain"`
	Package   PackageConfig   `json:"package" yaml:"package"`
}

// TransportConfig selects and bounds the HTTP backend.
type TransportConfig struct {
	// Backends is the preference order; see transport.DefaultOrder.
	Backends       []string      `json:"backends" yaml:"backends"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	TotalTimeout   time.Duration `json:"total_timeout" yaml:"total_timeout"`
}

// InfraConfig configures the self/infra section.
type InfraConfig struct {
	// BaselineURL is probed to establish general outbound connectivity.
	BaselineURL string `json:"baseline_url" yaml:"baseline_url"`
}

// ToolchainConfig configures the toolchain section.
type ToolchainConfig struct {
	ManifestURL string `json:"manifest_url" yaml:"manifest_url"`
	// Triple is the Rust target triple; empty means the host has none.
	Triple string `json:"triple" yaml:"triple"`
	// SigningKeyURL points at the armored key the manifest signature is checked
	// against. Empty limits the check to the signature's shape.
	SigningKeyURL string `json:"signing_key_url,omitempty" yaml:"signing_key_url,omitempty"`
}

// SidecarURL is the published SHA-256 of the manifest.
func (t ToolchainConfig) SidecarURL() string { return t.ManifestURL + ".sha256" }

// SignatureURL is the detached armored signature of the manifest.
func (t ToolchainConfig) SignatureURL() string { return t.ManifestURL + ".asc" }

// PackageConfig configures the package section.
type PackageConfig struct {
	// Repo is "owner/name" on the package host.
	Repo string `json:"repo" yaml:"repo"`
	// Asset is the primary Debian package file name.
	Asset string `json:"asset" yaml:"asset"`
	// VariantAsset is an optional alternative build; empty skips its check.
	VariantAsset string `json:"variant_asset,omitempty" yaml:"variant_asset,omitempty"`
	APIBase      string `json:"api_base" yaml:"api_base"`
	WebBase      string `json:"web_base" yaml:"web_base"`
}

// RecordURL is the API description of the latest release.
func (p PackageConfig) RecordURL() string {
	return strings.TrimRight(p.APIBase, "/") + "/repos/" + p.Repo + "/releases/latest"
}

// AliasURL is the web alias that redirects to the latest tagged release.
func (p PackageConfig) AliasURL() string {
	return strings.TrimRight(p.WebBase, "/") + "/" + p.Repo + "/releases/latest"
}

// PageURL is the rendered release page for tag.
func (p PackageConfig) PageURL(tag string) string {
	return strings.TrimRight(p.WebBase, "/") + "/" + p.Repo + "/releases/tag/" + url.PathEscape(tag)
}

// Artifact is the directory name the asset is nested under in published checksums.
func (p PackageConfig) Artifact() string {
	return strings.TrimSuffix(p.Asset, ".deb")
}

// Default returns the configuration the updaters themselves use on a host
// described by info. A nil info yields linux/amd64 names.
func Default(info *platform.Info) *Config {
	if info == nil {
		info = &platform.Info{OS: "linux", Arch: "amd64"}
	}

	arch := info.DebArch()
	if arch == "" {
		arch = info.Arch
	}

	return &Config{
		Transport: TransportConfig{
			Backends:       slices.Clone(transport.DefaultOrder),
			ConnectTimeout: transport.DefaultConnectTimeout,
			TotalTimeout:   transport.DefaultTotalTimeout,
		},
		Infra: InfraConfig{
			BaselineURL: DefaultBaselineURL,
		},
		Toolchain: ToolchainConfig{
			ManifestURL:   DefaultManifestURL,
			Triple:        info.RustTriple(),
			SigningKeyURL: DefaultSigningKeyURL,
		},
		Package: PackageConfig{
			Repo:         DefaultRepo,
			Asset:        "fastfetch-linux-" + arch + ".deb",
			VariantAsset: "fastfetch-linux-" + arch + "-polyfilled.deb",
			APIBase:      DefaultAPIBase,
			WebBase:      DefaultWebBase,
		},
	}
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}

var (
	repoPattern  = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)
	assetPattern = regexp.MustCompile(`^[A-Za-z0-9_.+-]+$`)
)

// Validate performs validation on a Config.
func (c *Config) Validate() error {
	if len(c.Transport.Backends) == 0 {
		return &ValidationError{Field: "transport.backends", Message: "at least one backend is required"}
	}
	for i, b := range c.Transport.Backends {
		if !slices.Contains(transport.DefaultOrder, b) {
			return &ValidationError{
				Field:   fmt.Sprintf("transport.backends[%d]", i),
				Message: fmt.Sprintf("unknown backend %q (expected one of %s)", b, strings.Join(transport.DefaultOrder, ", ")),
			}
		}
	}
	if c.Transport.ConnectTimeout <= 0 {
		return &ValidationError{Field: "transport.connect_timeout", Message: "must be positive"}
	}
	if c.Transport.TotalTimeout <= 0 {
		return &ValidationError{Field: "transport.total_timeout", Message: "must be positive"}
	}
	if c.Transport.TotalTimeout < c.Transport.ConnectTimeout {
		return &ValidationError{Field: "transport.total_timeout", Message: "must not be shorter than connect_timeout"}
	}

	urls := []struct {
		field, value string
		optional     bool
	}{
		{"infra.baseline_url", c.Infra.BaselineURL, false},
		{"toolchain.manifest_url", c.Toolchain.ManifestURL, false},
		{"toolchain.signing_key_url", c.Toolchain.SigningKeyURL, true},
		{"package.api_base", c.Package.APIBase, false},
		{"package.web_base", c.Package.WebBase, false},
	}
	for _, u := range urls {
		if u.optional && u.value == "" {
			continue
		}
		if err := validateHTTPURL(u.value); err != nil {
			return &ValidationError{Field: u.field, Message: err.Error()}
		}
	}

	if !repoPattern.MatchString(c.Package.Repo) {
		return &ValidationError{Field: "package.repo", Message: fmt.Sprintf("expected owner/name, got %q", c.Package.Repo)}
	}
	if c.Package.Asset == "" {
		return &ValidationError{Field: "package.asset", Message: "cannot be empty"}
	}
	if !assetPattern.MatchString(c.Package.Asset) {
		return &ValidationError{Field: "package.asset", Message: fmt.Sprintf("invalid file name %q", c.Package.Asset)}
	}
	if c.Package.VariantAsset != "" && !assetPattern.MatchString(c.Package.VariantAsset) {
		return &ValidationError{Field: "package.variant_asset", Message: fmt.Sprintf("invalid file name %q", c.Package.VariantAsset)}
	}

	return nil
}

// validateHTTPURL requires an absolute http(s) URL with a host.
func validateHTTPURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("URL must use https:// or http:// scheme (got: %s)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host: %s", raw)
	}
	return nil
}
