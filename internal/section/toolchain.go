package section

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"path"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/ZebulonRouseFrantzich/preflight/internal/extract"
	"github.com/ZebulonRouseFrantzich/preflight/internal/integrity"
	"github.com/ZebulonRouseFrantzich/preflight/internal/report"
	"github.com/ZebulonRouseFrantzich/preflight/internal/severity"
	"github.com/ZebulonRouseFrantzich/preflight/internal/signature"
)

const manifestFile = "channel-rust-stable.toml"

// Toolchain checks the assumptions of the toolchain updater: local archive
// tools and the upstream channel manifest with the archive it points at.
func Toolchain(ctx context.Context, env *Env, net Network) *report.SectionOutcome {
	out := report.NewSection(severity.BitToolchain)
	env.log().Debug("section started", "section", out.Name)
	defer func() { env.log().Debug("section finished", "section", out.Name, "level", out.Level) }()

	env.requireTool(out, "tar", "archives are unpacked with it")
	switch {
	case env.Tools.Find("xz").Present:
		out.Addf("tool:xz", severity.OK, "present")
	case env.Tools.Find("gzip").Present:
		out.Addf("tool:xz", severity.OK, "absent; gzip archives remain usable")
	default:
		out.Addf("tool:xz", severity.Warn, "neither xz nor gzip found")
	}
	rustc := env.inspectTool(ctx, out, "rustc")

	if !net.Available {
		skipNetwork(out, net)
		return out
	}

	cfg := env.Config.Toolchain
	if !env.probe(ctx, out, "manifest", cfg.ManifestURL, severity.Err) {
		return out
	}

	manifest, err := env.download(ctx, cfg.ManifestURL, manifestFile)
	if err != nil {
		out.Addf("manifest:fetch", severity.Err, "%v", err)
		return out
	}
	out.Addf("manifest:fetch", severity.OK, "%d bytes", len(manifest))

	var doc map[string]interface{}
	if err := toml.Unmarshal(manifest, &doc); err != nil {
		out.Addf("manifest:toml", severity.Warn, "not well-formed TOML: %v", err)
	} else {
		out.Addf("manifest:toml", severity.OK, "well-formed")
	}

	rec := extract.Manifest(string(manifest), cfg.Triple)
	version, assetURL, hash := rec.Get(extract.FactVersion), rec.Get(extract.FactURL), rec.Get(extract.FactHash)
	recordFacts(out, version, assetURL, hash)

	requireFact(out, version, "[pkg.rust] version")
	targetHint := "target " + cfg.Triple
	if cfg.Triple == "" {
		targetHint = "no target triple for this platform"
	}
	requireFact(out, assetURL, targetHint)
	requireDigest(out, hash, targetHint)

	if assetURL.Present {
		asset := signature.NewAsset(assetURL.Value, hash.Value)
		if archiveSuffix(asset) && strings.Contains(assetURL.Value, cfg.Triple) {
			out.Addf("asset:suffix", severity.OK, "%s", asset.Format)
		} else {
			out.Addf("asset:suffix", severity.Err, "%s is not a .tar.xz or .tar.gz archive for %s", assetURL.Value, cfg.Triple)
		}

		env.probe(ctx, out, "asset", assetURL.Value, severity.Err)
		out.Add(signatureCheck(signature.Verify(ctx, env.Ranger, asset)))
	}

	out.Add(sidecarCheck(ctx, env, manifest))
	out.Add(pgpCheck(ctx, env, manifest))

	if version.Present {
		compareUpdate(out, rustc, version.Value)
	}

	return out
}

// requireFact records fact:<name> at ERR when the fact is absent.
func requireFact(out *report.SectionOutcome, f extract.Fact, where string) bool {
	if !f.Present {
		out.Addf("fact:"+f.Name, severity.Err, "absent (%s)", where)
		return false
	}
	out.Addf("fact:"+f.Name, severity.OK, "%s (from %s)", f.Value, f.Source)
	return true
}

// requireDigest is requireFact for SHA-256 digests, which must also be well formed.
func requireDigest(out *report.SectionOutcome, f extract.Fact, where string) bool {
	if f.Present && !integrity.IsSHA256Hex(f.Value) {
		out.Addf("fact:"+f.Name, severity.Err, "%q is not a 64-character hex digest", f.Value)
		return false
	}
	return requireFact(out, f, where)
}

func archiveSuffix(a signature.Asset) bool {
	p := strings.ToLower(a.URL)
	if u, err := url.Parse(a.URL); err == nil && u.Path != "" {
		p = strings.ToLower(u.Path)
	}
	return strings.HasSuffix(p, ".tar.xz") || strings.HasSuffix(p, ".tar.gz")
}

func signatureCheck(o signature.Outcome) report.Check {
	c := report.Check{Name: "asset:signature", Level: o.Level(), Note: string(o.Result)}
	if o.Note != "" {
		c.Note += ": " + o.Note
	}
	return c
}

// sidecarCheck compares the published SHA-256 of the manifest with the bytes
// actually fetched.
func sidecarCheck(ctx context.Context, env *Env, manifest []byte) report.Check {
	const name = "manifest:sha256"
	cfg := env.Config.Toolchain

	sidecar, err := env.Backend.FetchBody(ctx, cfg.SidecarURL())
	if err != nil {
		return report.Check{Name: name, Level: severity.Warn, Note: "sidecar unavailable: " + err.Error()}
	}

	expected, err := integrity.FindChecksum(bytes.NewReader(sidecar), manifestBase(cfg.ManifestURL))
	if err != nil {
		return report.Check{Name: name, Level: severity.Warn, Note: "sidecar unreadable: " + err.Error()}
	}

	actual := integrity.SHA256Bytes(manifest)
	if err := integrity.MatchSHA256(actual, expected); err != nil {
		return report.Check{Name: name, Level: severity.Err, Note: err.Error()}
	}
	return report.Check{Name: name, Level: severity.OK, Note: "matches " + actual[:12]}
}

// pgpCheck verifies the detached manifest signature against the configured
// signing key. Without a usable key it falls back to checking the
// signature's shape. Every failure is capped at WARN.
func pgpCheck(ctx context.Context, env *Env, manifest []byte) report.Check {
	const name = "manifest:pgp"
	cfg := env.Config.Toolchain

	sig, err := env.Backend.FetchBody(ctx, cfg.SignatureURL())
	if err != nil {
		return report.Check{Name: name, Level: severity.Warn, Note: "signature unavailable: " + err.Error()}
	}

	var keyNote string
	if cfg.SigningKeyURL != "" {
		keyData, err := env.Backend.FetchBody(ctx, cfg.SigningKeyURL)
		if err == nil {
			keyring, kerr := integrity.ReadKeyring(keyData)
			if kerr == nil {
				info, verr := integrity.VerifyDetached(keyring, bytes.NewReader(manifest), sig)
				if verr != nil {
					return report.Check{Name: name, Level: severity.Warn, Note: verr.Error()}
				}
				return report.Check{Name: name, Level: severity.OK, Note: "verified, key " + info.KeyID}
			}
			err = kerr
		}
		keyNote = "; signing key unusable: " + err.Error()
	}

	info, err := integrity.InspectSignature(sig)
	if err != nil {
		if errors.Is(err, integrity.ErrNotSignature) {
			return report.Check{Name: name, Level: severity.Warn, Note: err.Error() + keyNote}
		}
		return report.Check{Name: name, Level: severity.Warn, Note: "malformed signature: " + err.Error() + keyNote}
	}

	note := "well-formed, not verified"
	if info.KeyID != "" {
		note += ", issuer " + info.KeyID
	}
	return report.Check{Name: name, Level: severity.OK, Note: note + keyNote}
}

func manifestBase(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(rawURL)
}
