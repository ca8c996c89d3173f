// Package section runs the three independently scored groups of checks
// (infra, toolchain, package) and returns one report.SectionOutcome each.
//
// Checks run strictly in sequence. Every status probe goes through Env, which
// answers a repeated probe of the same URL from memory, so no endpoint is
// probed twice in one run.
package section

import (
	"context"
	"fmt"
	"os"

	"github.com/ZebulonRouseFrantzich/preflight/internal/config"
	"github.com/ZebulonRouseFrantzich/preflight/internal/extract"
	"github.com/ZebulonRouseFrantzich/preflight/internal/logging"
	"github.com/ZebulonRouseFrantzich/preflight/internal/platform"
	"github.com/ZebulonRouseFrantzich/preflight/internal/report"
	"github.com/ZebulonRouseFrantzich/preflight/internal/scratch"
	"github.com/ZebulonRouseFrantzich/preflight/internal/severity"
	"github.com/ZebulonRouseFrantzich/preflight/internal/toolcheck"
	"github.com/ZebulonRouseFrantzich/preflight/internal/transport"
)

// Env is everything the sections share for one run.
type Env struct {
	Config   *config.Config
	Platform *platform.Info
	Scratch  *scratch.Dir
	Tools    *toolcheck.Checker
	Log      logging.Logger

	// Backend is nil when no backend in the configured order is available;
	// BackendErr then says why.
	Backend    transport.Backend
	BackendErr error
	// Ranger is nil when no available backend supports byte ranges.
	Ranger    transport.RangeFetcher
	RangeName string

	// Root reports whether the process runs with effective UID 0.
	Root bool

	probed map[string]string
}

// Network is the infra section's verdict on whether dependent sections may
// touch the network.
type Network struct {
	Available bool
	// Reason explains an unavailable network.
	Reason string
}

func (e *Env) log() logging.Logger { return logging.OrNop(e.Log) }

// status probes url once per run. Later calls return the first status.
func (e *Env) status(ctx context.Context, url string) string {
	if s, ok := e.probed[url]; ok {
		e.log().Debug("probe answered from this run", "url", url, "status", s)
		return s
	}
	s := e.Backend.ProbeStatus(ctx, url)
	if e.probed == nil {
		e.probed = make(map[string]string)
	}
	e.probed[url] = s
	return s
}

// probe records a status probe of url in out and reports reachability. An
// unreachable URL is recorded at failLevel.
func (e *Env) probe(ctx context.Context, out *report.SectionOutcome, target, url string, failLevel severity.Level) bool {
	s := e.status(ctx, url)
	ok := transport.Reachable(s)

	level := severity.OK
	if !ok {
		level = failLevel
	}
	out.Probe(report.ProbeResult{Target: target, URL: url, Status: s, Level: level})

	note := fmt.Sprintf("HTTP %s %s", s, url)
	if s == transport.StatusUnknown {
		note = "no response from " + url
	}
	out.Add(report.Check{Name: target + ":reachable", Level: level, Note: note})
	return ok
}

// download fetches url into the scratch directory under name and returns its
// contents.
func (e *Env) download(ctx context.Context, url, name string) ([]byte, error) {
	path := e.Scratch.File(name)
	if err := e.Backend.FetchToPath(ctx, url, path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// recordFacts copies facts into out in the given order, absent ones included.
func recordFacts(out *report.SectionOutcome, facts ...extract.Fact) {
	for _, f := range facts {
		out.Fact(f)
	}
}

// inspectTool records a diagnostic check for an installed binary whose
// absence is expected on a fresh host.
func (e *Env) inspectTool(ctx context.Context, out *report.SectionOutcome, name string) toolcheck.Tool {
	tool := e.Tools.Inspect(ctx, name)
	switch {
	case !tool.Present:
		out.Addf("tool:"+name, severity.OK, "not installed (fresh install)")
	case tool.Version == "":
		out.Addf("tool:"+name, severity.OK, "%s (version unreadable)", tool.Path)
	default:
		out.Addf("tool:"+name, severity.OK, "%s %s", tool.Path, tool.Version)
	}
	return tool
}

// requireTool records an ERR when name is absent.
func (e *Env) requireTool(out *report.SectionOutcome, name, why string) bool {
	tool := e.Tools.Find(name)
	if !tool.Present {
		out.Addf("tool:"+name, severity.Err, "not found in PATH (%s)", why)
		return false
	}
	out.Addf("tool:"+name, severity.OK, "%s", tool.Path)
	return true
}

// compareUpdate records how the installed version relates to upstream.
func compareUpdate(out *report.SectionOutcome, tool toolcheck.Tool, upstream string) {
	switch {
	case upstream == "":
		return
	case !tool.Present:
		out.Addf("update", severity.OK, "fresh install of %s", upstream)
		return
	case tool.Version == "":
		out.Addf("update", severity.OK, "upstream %s; installed version unknown", upstream)
		return
	}

	cmp, err := toolcheck.Compare(tool.Version, upstream)
	switch {
	case err != nil:
		out.Addf("update", severity.OK, "cannot compare %s with %s", tool.Version, upstream)
	case cmp < 0:
		out.Addf("update", severity.OK, "update available: %s -> %s", tool.Version, upstream)
	case cmp == 0:
		out.Addf("update", severity.OK, "up to date (%s)", upstream)
	default:
		out.Addf("update", severity.OK, "installed %s is newer than upstream %s", tool.Version, upstream)
	}
}

// skipNetwork records the single check a dependent section gets when infra
// ruled the network out.
func skipNetwork(out *report.SectionOutcome, net Network) {
	out.Addf("network", severity.Warn, "skipped: %s", net.Reason)
}
