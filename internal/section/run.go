package section

import (
	"context"

	"github.com/ZebulonRouseFrantzich/preflight/internal/report"
)

// Selection chooses the dependent sections to run. Infra always runs.
type Selection struct {
	Toolchain bool
	Package   bool
}

// All selects every section.
var All = Selection{Toolchain: true, Package: true}

// Run executes infra and then the selected sections, in order, and returns
// the finished report.
func Run(ctx context.Context, env *Env, sel Selection, version string) *report.Report {
	r := report.New(version)
	env.log().Debug("run started", "run_id", r.RunID)

	infra, net := Infra(ctx, env)
	r.Add(infra)

	if sel.Toolchain {
		r.Add(Toolchain(ctx, env, net))
	}
	if sel.Package {
		r.Add(Package(ctx, env, net))
	}

	r.Finish()
	env.log().Debug("run finished", "run_id", r.RunID, "mask", r.Mask)
	return r
}
