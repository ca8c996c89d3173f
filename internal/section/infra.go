package section

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZebulonRouseFrantzich/preflight/internal/report"
	"github.com/ZebulonRouseFrantzich/preflight/internal/severity"
)

// Infra checks what both updaters need from the host itself and decides
// whether the dependent sections may use the network.
func Infra(ctx context.Context, env *Env) (*report.SectionOutcome, Network) {
	out := report.NewSection(severity.BitInfra)
	env.log().Debug("section started", "section", out.Name)

	net := Network{Available: true}

	if env.Backend == nil {
		reason := "no usable HTTP backend"
		if env.BackendErr != nil {
			reason = env.BackendErr.Error()
		}
		out.Addf("transport", severity.Err, "%s (tried %s)", reason, strings.Join(env.Config.Transport.Backends, ", "))
		net = Network{Reason: "transport unavailable"}
	} else {
		out.Addf("transport", severity.OK, "%s", env.Backend.Name())
	}

	if env.Ranger != nil {
		out.Addf("range", severity.OK, "%s", env.RangeName)
	} else {
		out.Addf("range", severity.OK, "no range-capable backend; signature checks will be skipped")
	}

	env.requireTool(out, "sha256sum", "both updaters verify digests with it")

	if tool := env.Tools.Find("sudo"); tool.Present {
		out.Addf("tool:sudo", severity.OK, "%s", tool.Path)
	} else if env.Root {
		out.Addf("tool:sudo", severity.OK, "absent; running as root")
	} else {
		out.Addf("tool:sudo", severity.Warn, "absent and not running as root; installs will fail")
	}

	out.Addf("scratch", severity.OK, "%s", env.Scratch.Path())

	if net.Available {
		if !env.probe(ctx, out, "connectivity", env.Config.Infra.BaselineURL, severity.Err) {
			net = Network{Reason: "baseline connectivity failed"}
		}
	}

	out.Add(platformCheck(env))

	env.log().Debug("section finished", "section", out.Name, "level", out.Level)
	return out, net
}

func platformCheck(env *Env) report.Check {
	info := env.Platform
	if info == nil {
		return report.Check{Name: "platform", Level: severity.Warn, Note: "platform not detected"}
	}

	desc := fmt.Sprintf("%s/%s", info.OS, info.Arch)
	if info.KernelArch != "" {
		desc += " kernel " + info.KernelArch
	}
	if d := info.GetDistro(); d != nil {
		desc += fmt.Sprintf(", %s %s (%s family)", d.ID, d.Version, d.Family)
	}

	switch {
	case !info.IsLinux():
		return report.Check{Name: "platform", Level: severity.Warn, Note: desc + "; the updaters target Linux"}
	case info.DistroErr != nil:
		return report.Check{Name: "platform", Level: severity.Warn, Note: desc + "; distribution unknown: " + info.DistroErr.Error()}
	default:
		return report.Check{Name: "platform", Level: severity.OK, Note: desc}
	}
}
