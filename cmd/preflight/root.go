package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/preflight/internal/config"
	"github.com/ZebulonRouseFrantzich/preflight/internal/logging"
	"github.com/ZebulonRouseFrantzich/preflight/internal/platform"
	"github.com/ZebulonRouseFrantzich/preflight/internal/report"
	"github.com/ZebulonRouseFrantzich/preflight/internal/scratch"
	"github.com/ZebulonRouseFrantzich/preflight/internal/section"
	"github.com/ZebulonRouseFrantzich/preflight/internal/toolcheck"
	"github.com/ZebulonRouseFrantzich/preflight/internal/transport"
)

type options struct {
	toolchainOnly bool
	packageOnly   bool
	noColor       bool
	output        string
	configPath    string
	verbose       bool
	version       bool
	printConfig   bool
}

// exitError carries a process exit code out of RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error    { return &exitError{code: exitUsage, err: err} }
func internalError(err error) error { return &exitError{code: exitInternal, err: err} }

// run executes the command line and returns the process exit code. Cobra
// parse errors are usage errors; a panic anywhere is an internal error.
func run(args []string, stdout, stderr io.Writer) (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(stderr, "Error: internal error: %v\n", r)
			code = exitInternal
		}
	}()

	exit := 0
	cmd := newRootCmd(stdout, stderr, &exit)
	cmd.SetArgs(args)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		return exitUsage
	}
	return exit
}

func newRootCmd(stdout, stderr io.Writer, exit *int) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check what the toolchain and package updaters assume about this host and upstream",
		Long: `preflight validates, without installing anything, every assumption the
toolchain updater and the package updater make about the local host and
their upstream release endpoints.

Results are grouped into three independently scored sections: infra,
toolchain and package. The exit code is 0 when nothing failed, otherwise a
bitmask of the failed sections: 1 infra, 2 toolchain, 4 package.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := runPreflight(cmd.Context(), opts, stdout)
			*exit = code
			return err
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.BoolVar(&opts.toolchainOnly, "toolchain-only", false, "run only the infra and toolchain sections")
	f.BoolVar(&opts.packageOnly, "package-only", false, "run only the infra and package sections")
	f.BoolVar(&opts.noColor, "no-color", false, "disable colored output (also NO_COLOR)")
	f.StringVarP(&opts.output, "output", "o", string(report.FormatText), "report format: text, json or yaml")
	f.StringVar(&opts.configPath, "config", "", "Lua config file (default $PREFLIGHT_CONFIG)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "show probes and facts, and log debug output to stderr")
	f.BoolVar(&opts.version, "version", false, "print version and environment diagnostics, then exit")
	f.BoolVar(&opts.printConfig, "print-config", false, "print the effective configuration as Lua, then exit")
	cmd.MarkFlagsMutuallyExclusive("toolchain-only", "package-only")

	return cmd
}

func runPreflight(ctx context.Context, opts *options, stdout io.Writer) (int, error) {
	format, err := report.ParseFormat(opts.output)
	if err != nil {
		return exitUsage, usageError(err)
	}

	zl, err := logging.New(opts.verbose)
	if err != nil {
		return exitInternal, internalError(err)
	}
	defer func() { _ = zl.Sync() }()
	log := logging.FromZap(zl)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	info, err := platform.NewDetector().Detect(ctx)
	if err != nil {
		return exitInternal, internalError(err)
	}

	cfg, err := loadConfig(ctx, opts, info, log)
	if err != nil {
		return exitUsage, usageError(err)
	}

	if opts.printConfig {
		lua, err := config.NewGenerator().Generate(cfg)
		if err != nil {
			return exitInternal, internalError(err)
		}
		fmt.Fprint(stdout, lua)
		return 0, nil
	}

	topts := transport.Options{
		ConnectTimeout: cfg.Transport.ConnectTimeout,
		TotalTimeout:   cfg.Transport.TotalTimeout,
		UserAgent:      "preflight/" + strings.TrimPrefix(Version, "v"),
		Token:          githubToken(),
		Logger:         log,
	}
	backend, backendErr := transport.Select(cfg.Transport.Backends, topts)
	ranger, rangeName := transport.SelectRange(cfg.Transport.Backends, topts)

	if opts.version {
		printVersion(stdout, cfg, info, backend, backendErr, rangeName)
		return 0, nil
	}

	dir, err := scratch.New("")
	if err != nil {
		return exitInternal, internalError(err)
	}
	defer func() {
		if err := dir.Remove(); err != nil {
			log.Warn("scratch directory left behind", "path", dir.Path(), "error", err)
		}
	}()

	env := &section.Env{
		Config:     cfg,
		Platform:   info,
		Scratch:    dir,
		Tools:      toolcheck.New(toolcheck.Options{}),
		Log:        log,
		Backend:    backend,
		BackendErr: backendErr,
		Ranger:     ranger,
		RangeName:  rangeName,
		Root:       os.Geteuid() == 0,
	}

	sel := section.All
	switch {
	case opts.toolchainOnly:
		sel = section.Selection{Toolchain: true}
	case opts.packageOnly:
		sel = section.Selection{Package: true}
	}

	r := section.Run(ctx, env, sel, Version)
	if ctx.Err() != nil {
		log.Warn("run interrupted; results are incomplete", "error", ctx.Err())
	}

	color := !opts.noColor && !logging.ColorDisabled()
	if err := report.Render(stdout, r, format, report.Options{Color: color, Verbose: opts.verbose}); err != nil {
		return exitInternal, internalError(fmt.Errorf("render report: %w", err))
	}

	return report.ExitCode(r), nil
}

// loadConfig parses --config, or $PREFLIGHT_CONFIG, over the platform
// defaults. Without either the defaults are used as they are.
func loadConfig(ctx context.Context, opts *options, info *platform.Info, log logging.Logger) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		path = os.Getenv("PREFLIGHT_CONFIG")
	}
	if path == "" {
		return config.Default(info), nil
	}

	cfg, err := config.NewParser(detected{info}).WithLogger(log).ParseFile(ctx, path)
	if err != nil {
		return nil, errors.New(config.FormatError(err, opts.verbose))
	}
	log.Debug("config loaded", "path", path)
	return cfg, nil
}

// detected hands an already detected platform to the config parser.
type detected struct{ info *platform.Info }

func (d detected) Detect(context.Context) (*platform.Info, error) { return d.info, nil }

func githubToken() string {
	if t := os.Getenv("GITHUB_TOKEN"); t != "" {
		return t
	}
	return os.Getenv("GH_TOKEN")
}

func printVersion(w io.Writer, cfg *config.Config, info *platform.Info, backend transport.Backend, backendErr error, rangeName string) {
	backendName := "none"
	if backend != nil {
		backendName = backend.Name()
	} else if backendErr != nil {
		backendName = "none (" + backendErr.Error() + ")"
	}
	if rangeName == "" {
		rangeName = "none"
	}

	plat := info.OS + "/" + info.Arch
	if d := info.GetDistro(); d != nil {
		plat += " " + strings.TrimSpace(d.ID+" "+d.Version)
	}

	orNone := func(s string) string {
		if s == "" {
			return "none"
		}
		return s
	}

	fmt.Fprintf(w, "preflight %s\n", Version)
	fmt.Fprintf(w, "  backend:        %s\n", backendName)
	fmt.Fprintf(w, "  range backend:  %s\n", rangeName)
	fmt.Fprintf(w, "  platform:       %s\n", plat)
	fmt.Fprintf(w, "  triple:         %s\n", orNone(cfg.Toolchain.Triple))
	fmt.Fprintf(w, "  deb arch:       %s\n", orNone(info.DebArch()))
}
