package transport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// curlBackend shells out to curl, the same way the updaters do.
type curlBackend struct {
	opts Options
	path string
}

func newCurl(opts Options) *curlBackend {
	path, err := opts.LookPath("curl")
	if err != nil {
		path = ""
	}
	return &curlBackend{opts: opts, path: path}
}

func (c *curlBackend) Name() string    { return BackendCurl }
func (c *curlBackend) Available() bool { return c.path != "" }

// baseArgs are shared by every invocation: silent with errors, bounded timeouts.
func (c *curlBackend) baseArgs(url string) []string {
	args := []string{
		"-sS",
		"--connect-timeout", seconds(c.opts.ConnectTimeout),
		"--max-time", seconds(c.opts.TotalTimeout),
		"-A", c.opts.UserAgent,
	}
	if auth, ok := c.opts.authHeader(url); ok {
		args = append(args, "-H", "Authorization: "+auth)
	}
	return args
}

func (c *curlBackend) run(ctx context.Context, limit int64, args []string) ([]byte, []byte, error) {
	if !c.Available() {
		return nil, nil, fmt.Errorf("curl not found in PATH")
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.TotalTimeout)
	defer cancel()
	return c.opts.Run(ctx, limit, c.path, args...)
}

func (c *curlBackend) ProbeStatus(ctx context.Context, url string) string {
	args := append(c.baseArgs(url),
		"-o", os.DevNull,
		"-I", "-L", "--max-redirs", strconv.Itoa(maxRedirects),
		"-w", "%{http_code}",
		url,
	)
	// curl prints 000 itself on transport failure and exits non-zero;
	// the exit status adds nothing the code does not already say
	out, _, _ := c.run(ctx, 0, args)
	return normalizeStatus(string(out))
}

func (c *curlBackend) fetchArgs(url string) []string {
	return append(c.baseArgs(url), "-f", "-L", "--max-redirs", strconv.Itoa(maxRedirects))
}

func (c *curlBackend) FetchBody(ctx context.Context, url string) ([]byte, error) {
	out, stderr, err := c.run(ctx, 0, append(c.fetchArgs(url), url))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w%s", url, err, stderrSuffix(stderr))
	}
	return out, nil
}

func (c *curlBackend) FetchToPath(ctx context.Context, url, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}
	tmpPath := path + ".tmp"
	_, stderr, err := c.run(ctx, 0, append(c.fetchArgs(url), "-o", tmpPath, url))
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("fetch %s: %w%s", url, err, stderrSuffix(stderr))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (c *curlBackend) RedirectTarget(ctx context.Context, url string) (string, error) {
	args := append(c.baseArgs(url),
		"-o", os.DevNull,
		"-I",
		"-w", "%{redirect_url}",
		url,
	)
	out, stderr, err := c.run(ctx, 0, args)
	if err != nil {
		return "", fmt.Errorf("probe %s: %w%s", url, err, stderrSuffix(stderr))
	}
	loc := strings.TrimSpace(string(out))
	if loc == "" {
		return "", ErrNoRedirect
	}
	return loc, nil
}

func (c *curlBackend) FetchRange(ctx context.Context, url string, start, end int64) ([]byte, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("invalid range %d-%d", start, end)
	}
	args := append(c.fetchArgs(url), "-r", fmt.Sprintf("%d-%d", start, end), url)
	out, stderr, err := c.run(ctx, end-start+1, args)
	if err != nil {
		return nil, fmt.Errorf("range %s: %w%s", url, err, stderrSuffix(stderr))
	}
	return out, nil
}

// stderrSuffix renders captured stderr for error messages.
func stderrSuffix(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if s == "" {
		return ""
	}
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return ": " + s
}
