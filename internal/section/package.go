package section

import (
	"context"

	"github.com/ZebulonRouseFrantzich/preflight/internal/extract"
	"github.com/ZebulonRouseFrantzich/preflight/internal/report"
	"github.com/ZebulonRouseFrantzich/preflight/internal/severity"
	"github.com/ZebulonRouseFrantzich/preflight/internal/signature"
)

const (
	recordFile = "release.json"
	pageFile   = "release.html"

	// factVariantURL names the download URL of the optional variant asset.
	factVariantURL = "variant_url"
	// factAliasTag names the tag the latest-release alias redirects to.
	factAliasTag = "alias_tag"
)

// Package checks the assumptions of the package updater: dpkg, the latest
// release record, the alias redirect and the digest published on the
// release page.
func Package(ctx context.Context, env *Env, net Network) *report.SectionOutcome {
	out := report.NewSection(severity.BitPackage)
	env.log().Debug("section started", "section", out.Name)
	defer func() { env.log().Debug("section finished", "section", out.Name, "level", out.Level) }()

	if tool := env.Tools.Find("dpkg"); tool.Present {
		out.Addf("tool:dpkg", severity.OK, "%s", tool.Path)
	} else if env.Platform != nil && env.Platform.IsDebianFamily() {
		out.Addf("tool:dpkg", severity.Err, "not found in PATH on a Debian-family host")
	} else {
		out.Addf("tool:dpkg", severity.Warn, "not found; the package updater targets Debian-family hosts")
	}
	installed := env.inspectTool(ctx, out, "fastfetch")

	if !net.Available {
		skipNetwork(out, net)
		return out
	}

	cfg := env.Config.Package
	if !env.probe(ctx, out, "record", cfg.RecordURL(), severity.Err) {
		return out
	}

	record, err := env.download(ctx, cfg.RecordURL(), recordFile)
	if err != nil {
		out.Addf("record:fetch", severity.Err, "%v", err)
		return out
	}
	out.Addf("record:fetch", severity.OK, "%d bytes", len(record))

	rec := extract.ReleaseRecord(string(record), cfg.Asset)
	tag, assetURL := rec.Get(extract.FactTag), rec.Get(extract.FactURL)
	recordFacts(out, tag, assetURL)

	requireFact(out, tag, "tag_name")
	requireFact(out, assetURL, "asset "+cfg.Asset)

	if cfg.VariantAsset != "" {
		variant := extract.ReleaseRecord(string(record), cfg.VariantAsset).Get(extract.FactURL)
		variant.Name = factVariantURL
		recordFacts(out, variant)
		if variant.Present {
			out.Addf("fact:variant", severity.OK, "%s", variant.Value)
		} else {
			out.Addf("fact:variant", severity.Warn, "asset %s not published (upstream may have discontinued it)", cfg.VariantAsset)
		}
	}

	var asset signature.Asset
	if assetURL.Present {
		asset = signature.NewAsset(assetURL.Value, "")
		if asset.Format == signature.FormatDeb {
			out.Addf("asset:suffix", severity.OK, "%s", asset.Format)
		} else {
			out.Addf("asset:suffix", severity.Err, "%s is not a .deb package", assetURL.Value)
		}
		env.probe(ctx, out, "asset", assetURL.Value, severity.Err)
	}

	out.Add(aliasCheck(ctx, env, out, tag))

	if !tag.Present {
		out.Addf("page:fetch", severity.Err, "skipped: no release tag to locate the page")
		return out
	}

	page, err := env.download(ctx, cfg.PageURL(tag.Value), pageFile)
	if err != nil {
		out.Addf("page:fetch", severity.Err, "%v", err)
	} else {
		out.Addf("page:fetch", severity.OK, "%d bytes", len(page))

		digest := extract.ReleasePage(string(page), cfg.Artifact(), cfg.Asset).Get(extract.FactHash)
		digest.Name = "digest"
		recordFacts(out, digest)
		if requireDigest(out, digest, "release page for "+tag.Value) {
			asset.Hash = digest.Value
		}
	}

	if assetURL.Present {
		out.Add(signatureCheck(signature.Verify(ctx, env.Ranger, asset)))
	}

	compareUpdate(out, installed, tag.Value)

	return out
}

// aliasCheck compares the tag the web alias redirects to with the API tag.
// Disagreement is transient on release day, so it is at most a warning.
func aliasCheck(ctx context.Context, env *Env, out *report.SectionOutcome, tag extract.Fact) report.Check {
	const name = "alias:redirect"

	location, err := env.Backend.RedirectTarget(ctx, env.Config.Package.AliasURL())
	if err != nil {
		return report.Check{Name: name, Level: severity.Warn, Note: "unresolvable: " + err.Error()}
	}

	var alias extract.Record
	alias.Set(extract.Fact{Name: factAliasTag, Value: extract.TagFromRedirect(location), Source: "location", Raw: location})
	aliasTag := alias.Get(factAliasTag)
	out.Fact(aliasTag)

	switch {
	case !aliasTag.Present:
		return report.Check{Name: name, Level: severity.Warn, Note: "redirect carries no tag: " + location}
	case !tag.Present:
		return report.Check{Name: name, Level: severity.Warn, Note: "alias points at " + aliasTag.Value + "; no API tag to compare"}
	case aliasTag.Value != tag.Value:
		return report.Check{Name: name, Level: severity.Warn, Note: "alias points at " + aliasTag.Value + ", API reports " + tag.Value}
	default:
		return report.Check{Name: name, Level: severity.OK, Note: aliasTag.Value}
	}
}
