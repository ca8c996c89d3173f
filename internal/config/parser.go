package config

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/ZebulonRouseFrantzich/preflight/internal/logging"
	"github.com/ZebulonRouseFrantzich/preflight/internal/platform"
)

const (
	// MaxConfigSize is the largest config file the parser will read.
	MaxConfigSize = 1 << 20
	// DefaultParseTimeout bounds evaluation of the user's Lua when ctx has no deadline.
	DefaultParseTimeout = 5 * time.Second
)

// Parser represents a Lua config parser with platform detection.
type Parser struct {
	detector platform.Detector
	log      logging.Logger
}

// NewParser creates a new config parser with the given platform detector.
// A nil detector parses without a platform table and with linux/amd64 defaults.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector, log: logging.Nop()}
}

// WithLogger sets the logger that receives sensitive-data and unknown-field warnings.
func (p *Parser) WithLogger(l logging.Logger) *Parser {
	p.log = logging.OrNop(l)
	return p
}

// ParseFile reads and parses the Lua config at path.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if info.IsDir() {
		return nil, &ParseError{Message: "config path is a directory", Detail: path}
	}
	if info.Size() > MaxConfigSize {
		return nil, &ParseError{
			Message: "config file too large",
			Detail:  fmt.Sprintf("%s is %d bytes (max %d)", path, info.Size(), MaxConfigSize),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return p.ParseString(ctx, string(data))
}

// ParseString parses a Lua config from a string and overlays it onto the
// defaults for the detected platform. The result is validated.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Config, error) {
	if len(luaCode) > MaxConfigSize {
		return nil, &ParseError{
			Message: "config too large",
			Detail:  fmt.Sprintf("%d bytes (max %d)", len(luaCode), MaxConfigSize),
		}
	}

	for _, f := range DetectSensitiveData(luaCode) {
		p.log.Warn("possible credential in config", "pattern", f.PatternName, "line", f.Line, "preview", f.Preview)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultParseTimeout)
		defer cancel()
	}

	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	var platformInfo *platform.Info
	if p.detector != nil {
		info, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, info); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
		platformInfo = info
	}

	if err := L.DoString(luaCode); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &ParseError{Message: "config evaluation aborted", Detail: ctxErr.Error(), Err: ctxErr}
		}
		return nil, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}

	cfg := Default(platformInfo)
	if err := p.overlay(L, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ParseError{
			Message: "config validation failed",
			Detail:  err.Error(),
			Err:     err,
		}
	}

	return cfg, nil
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

func (e *ParseError) Unwrap() error { return e.Err }

// overlay copies every field set in the global preflight table onto cfg.
// A missing preflight table leaves the defaults untouched.
func (p *Parser) overlay(L *lua.LState, cfg *Config) error {
	root := L.GetGlobal(luaGlobalPreflight)
	switch root.Type() {
	case lua.LTNil:
		return nil
	case lua.LTTable:
	default:
		return &ParseError{
			Message: "invalid 'preflight' table",
			Detail:  fmt.Sprintf("expected table, got %s", root.Type()),
		}
	}
	table := root.(*lua.LTable)

	table.ForEach(func(key, _ lua.LValue) {
		if _, ok := knownFields[key.String()]; !ok {
			p.log.Warn("unknown config field ignored", "field", luaGlobalPreflight+"."+key.String())
		}
	})

	sections := []struct {
		name  string
		apply func(*fields)
	}{
		{luaFieldTransport, func(f *fields) {
			f.list(luaFieldBackends, &cfg.Transport.Backends)
			f.duration(luaFieldConnectTimeout, &cfg.Transport.ConnectTimeout)
			f.duration(luaFieldTotalTimeout, &cfg.Transport.TotalTimeout)
		}},
		{luaFieldInfra, func(f *fields) {
			f.str(luaFieldBaselineURL, &cfg.Infra.BaselineURL)
		}},
		{luaFieldToolchain, func(f *fields) {
			f.str(luaFieldManifestURL, &cfg.Toolchain.ManifestURL)
			f.str(luaFieldTriple, &cfg.Toolchain.Triple)
			f.str(luaFieldSigningKeyURL, &cfg.Toolchain.SigningKeyURL)
		}},
		{luaFieldPackage, func(f *fields) {
			f.str(luaFieldRepo, &cfg.Package.Repo)
			f.str(luaFieldAsset, &cfg.Package.Asset)
			f.str(luaFieldVariantAsset, &cfg.Package.VariantAsset)
			f.str(luaFieldAPIBase, &cfg.Package.APIBase)
			f.str(luaFieldWebBase, &cfg.Package.WebBase)
		}},
	}

	for _, s := range sections {
		v := table.RawGetString(s.name)
		if v.Type() == lua.LTNil {
			continue
		}
		sub, ok := v.(*lua.LTable)
		if !ok {
			return typeError(s.name, "table", v)
		}
		p.warnUnknown(s.name, sub)

		f := &fields{prefix: s.name, table: sub}
		s.apply(f)
		if f.err != nil {
			return f.err
		}
	}

	return nil
}

func (p *Parser) warnUnknown(section string, table *lua.LTable) {
	known := knownFields[section]
	table.ForEach(func(key, _ lua.LValue) {
		if !slices.Contains(known, key.String()) {
			p.log.Warn("unknown config field ignored", "field", section+"."+key.String())
		}
	})
}

// fields reads typed values out of one sub-table, keeping the first error.
type fields struct {
	prefix string
	table  *lua.LTable
	err    error
}

func (f *fields) str(key string, dst *string) {
	if f.err != nil {
		return
	}
	v := f.table.RawGetString(key)
	switch v.Type() {
	case lua.LTNil:
	case lua.LTString:
		*dst = strings.TrimSpace(v.String())
	default:
		f.err = typeError(f.prefix+"."+key, "string", v)
	}
}

// duration reads a number of seconds.
func (f *fields) duration(key string, dst *time.Duration) {
	if f.err != nil {
		return
	}
	v := f.table.RawGetString(key)
	switch v.Type() {
	case lua.LTNil:
	case lua.LTNumber:
		secs := float64(lua.LVAsNumber(v))
		if math.IsNaN(secs) || math.IsInf(secs, 0) || secs > math.MaxInt64/float64(time.Second) {
			f.err = &ParseError{Message: "invalid value for " + f.prefix + "." + key, Detail: v.String()}
			return
		}
		*dst = time.Duration(secs * float64(time.Second))
	default:
		f.err = typeError(f.prefix+"."+key, "number of seconds", v)
	}
}

// list reads an array of strings. Nil holes from platform conditionals
// such as `platform.is_linux and "wget" or nil` are skipped.
func (f *fields) list(key string, dst *[]string) {
	if f.err != nil {
		return
	}
	v := f.table.RawGetString(key)
	switch v.Type() {
	case lua.LTNil:
		return
	case lua.LTTable:
	default:
		f.err = typeError(f.prefix+"."+key, "array of strings", v)
		return
	}

	var out []string
	arr := v.(*lua.LTable)
	for i := 1; i <= arr.MaxN(); i++ {
		item := arr.RawGetInt(i)
		switch item.Type() {
		case lua.LTNil:
		case lua.LTString:
			out = append(out, item.String())
		default:
			f.err = typeError(fmt.Sprintf("%s.%s[%d]", f.prefix, key, i), "string", item)
			return
		}
	}
	*dst = out
}

func typeError(field, want string, got lua.LValue) error {
	return &ParseError{
		Message: "invalid type for " + field,
		Detail:  fmt.Sprintf("expected %s, got %s", want, got.Type()),
	}
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		return err.Error()
	}
	if verbose {
		return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
	}
	detail := parseErr.Detail
	if idx := strings.Index(detail, "stack traceback"); idx > 0 {
		detail = strings.TrimSpace(detail[:idx])
	}
	return fmt.Sprintf("%s: %s", parseErr.Message, detail)
}
