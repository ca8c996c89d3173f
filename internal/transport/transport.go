package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/ZebulonRouseFrantzich/preflight/internal/logging"
)

const (
	// StatusUnknown is returned by ProbeStatus when no HTTP status could be obtained.
	StatusUnknown = "000"
	// DefaultConnectTimeout bounds connection establishment.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultTotalTimeout bounds a whole request including the body.
	DefaultTotalTimeout = 30 * time.Second
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "preflight/1.0"

	// Backend names, in default preference order.
	BackendCurl   = "curl"
	BackendWget   = "wget"
	BackendNative = "native"

	githubAPIHost = "api.github.com"
)

var (
	// ErrNoBackend means no backend in the configured ranking is available.
	ErrNoBackend = errors.New("no usable HTTP backend")
	// ErrRangeUnsupported means the backend cannot issue byte-range requests.
	ErrRangeUnsupported = errors.New("byte-range fetch unsupported")
	// ErrNoRedirect means the URL answered without a redirect target.
	ErrNoRedirect = errors.New("response carries no redirect target")

	statusPattern = regexp.MustCompile(`^[0-9]{3}$`)
)

// DefaultOrder is the backend ranking used when configuration does not narrow it.
var DefaultOrder = []string{BackendCurl, BackendWget, BackendNative}

// Backend is one way of reaching HTTP endpoints.
type Backend interface {
	// Name identifies the backend in reports and logs.
	Name() string
	// Available reports whether the backend can be used on this host.
	Available() bool
	// ProbeStatus issues a header-only request following redirects and returns the
	// final status code, or StatusUnknown on any failure.
	ProbeStatus(ctx context.Context, url string) string
	// FetchBody downloads url into memory. Non-2xx responses are errors.
	FetchBody(ctx context.Context, url string) ([]byte, error)
	// FetchToPath downloads url to path. Non-2xx responses are errors.
	FetchToPath(ctx context.Context, url, path string) error
	// RedirectTarget issues a header-only request without following redirects
	// and returns the Location it points at.
	RedirectTarget(ctx context.Context, url string) (string, error)
}

// RangeFetcher is the independently queryable byte-range capability.
type RangeFetcher interface {
	// FetchRange returns bytes [start, end] of url. At most end-start+1 bytes are
	// returned even if the server ignores the range.
	FetchRange(ctx context.Context, url string, start, end int64) ([]byte, error)
}

// Options configures every backend.
type Options struct {
	ConnectTimeout time.Duration
	TotalTimeout   time.Duration
	UserAgent      string
	// Token is sent as a bearer token to the GitHub API host only.
	Token  string
	Logger logging.Logger

	// LookPath resolves tool binaries. Defaults to exec.LookPath.
	LookPath func(file string) (string, error)
	// Run executes a tool binary. Defaults to running it with os/exec.
	Run Runner
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.TotalTimeout <= 0 {
		o.TotalTimeout = DefaultTotalTimeout
	}
	if o.TotalTimeout < o.ConnectTimeout {
		o.TotalTimeout = o.ConnectTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.LookPath == nil {
		o.LookPath = exec.LookPath
	}
	if o.Run == nil {
		o.Run = execRunner
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}

// authHeader returns the Authorization header value for rawURL, if any.
func (o Options) authHeader(rawURL string) (string, bool) {
	if o.Token == "" {
		return "", false
	}
	u, err := url.Parse(rawURL)
	if err != nil || !strings.EqualFold(u.Hostname(), githubAPIHost) {
		return "", false
	}
	return "Bearer " + o.Token, true
}

// Reachable reports whether status counts as reachable (2xx or 3xx).
// The sentinel and anything unparseable are unreachable.
func Reachable(status string) bool {
	if !statusPattern.MatchString(status) {
		return false
	}
	return status[0] == '2' || status[0] == '3'
}

// normalizeStatus maps anything that is not a three-digit code to StatusUnknown.
func normalizeStatus(s string) string {
	s = strings.TrimSpace(s)
	if !statusPattern.MatchString(s) {
		return StatusUnknown
	}
	return s
}

// New constructs the named backend without checking availability.
func New(name string, opts Options) (Backend, error) {
	opts = opts.withDefaults()
	switch name {
	case BackendCurl:
		return newCurl(opts), nil
	case BackendWget:
		return newWget(opts), nil
	case BackendNative:
		return newNative(opts), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

// Select returns the first available backend in order.
// Unknown names are errors; an empty order uses DefaultOrder.
func Select(order []string, opts Options) (Backend, error) {
	if len(order) == 0 {
		order = DefaultOrder
	}
	opts = opts.withDefaults()
	for _, name := range order {
		b, err := New(name, opts)
		if err != nil {
			return nil, err
		}
		if b.Available() {
			opts.Logger.Debug("backend selected", "backend", name)
			return instrument(b, opts.Logger), nil
		}
		opts.Logger.Debug("backend unavailable", "backend", name)
	}
	return nil, ErrNoBackend
}

// SelectRange returns the first available backend in order that supports
// byte ranges, or nil when none does.
func SelectRange(order []string, opts Options) (RangeFetcher, string) {
	if len(order) == 0 {
		order = DefaultOrder
	}
	opts = opts.withDefaults()
	for _, name := range order {
		b, err := New(name, opts)
		if err != nil || !b.Available() {
			continue
		}
		if rf, ok := b.(RangeFetcher); ok {
			return &instrumentedRange{name: name, next: rf, log: opts.Logger}, name
		}
	}
	return nil, ""
}

// instrumented logs every call of a Backend at debug level.
type instrumented struct {
	next Backend
	log  logging.Logger
}

func instrument(b Backend, log logging.Logger) Backend {
	return &instrumented{next: b, log: log}
}

func (i *instrumented) Name() string    { return i.next.Name() }
func (i *instrumented) Available() bool { return i.next.Available() }

func (i *instrumented) ProbeStatus(ctx context.Context, url string) string {
	start := time.Now()
	status := i.next.ProbeStatus(ctx, url)
	i.log.Debug("probe", "backend", i.next.Name(), "url", url, "status", status, "elapsed", time.Since(start))
	return status
}

func (i *instrumented) FetchBody(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	body, err := i.next.FetchBody(ctx, url)
	i.log.Debug("fetch", "backend", i.next.Name(), "url", url, "bytes", len(body), "err", err, "elapsed", time.Since(start))
	return body, err
}

func (i *instrumented) FetchToPath(ctx context.Context, url, path string) error {
	start := time.Now()
	err := i.next.FetchToPath(ctx, url, path)
	i.log.Debug("fetch to path", "backend", i.next.Name(), "url", url, "path", path, "err", err, "elapsed", time.Since(start))
	return err
}

func (i *instrumented) RedirectTarget(ctx context.Context, url string) (string, error) {
	start := time.Now()
	loc, err := i.next.RedirectTarget(ctx, url)
	i.log.Debug("redirect", "backend", i.next.Name(), "url", url, "location", loc, "err", err, "elapsed", time.Since(start))
	return loc, err
}

type instrumentedRange struct {
	name string
	next RangeFetcher
	log  logging.Logger
}

func (i *instrumentedRange) FetchRange(ctx context.Context, url string, start, end int64) ([]byte, error) {
	began := time.Now()
	b, err := i.next.FetchRange(ctx, url, start, end)
	i.log.Debug("range", "backend", i.name, "url", url, "bytes", len(b), "err", err, "elapsed", time.Since(began))
	return b, err
}

// seconds renders a timeout for tool command lines, rounding up to one second.
func seconds(d time.Duration) string {
	s := int64((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return fmt.Sprintf("%d", s)
}
