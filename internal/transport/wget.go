package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	// server response lines as printed by `wget -S`, e.g. "  HTTP/1.1 302 Found"
	wgetStatusLine   = regexp.MustCompile(`^\s*HTTP/[0-9.]+\s+([0-9]{3})`)
	wgetLocationLine = regexp.MustCompile(`^\s*[Ll]ocation:\s*(\S+)`)
)

// wgetBackend shells out to wget. It never serves byte ranges.
type wgetBackend struct {
	opts Options
	path string
}

func newWget(opts Options) *wgetBackend {
	path, err := opts.LookPath("wget")
	if err != nil {
		path = ""
	}
	return &wgetBackend{opts: opts, path: path}
}

func (w *wgetBackend) Name() string    { return BackendWget }
func (w *wgetBackend) Available() bool { return w.path != "" }

func (w *wgetBackend) baseArgs(url string) []string {
	args := []string{
		"--tries=1",
		"--connect-timeout=" + seconds(w.opts.ConnectTimeout),
		"--read-timeout=" + seconds(w.opts.TotalTimeout),
		"--user-agent=" + w.opts.UserAgent,
	}
	if auth, ok := w.opts.authHeader(url); ok {
		args = append(args, "--header=Authorization: "+auth)
	}
	return args
}

func (w *wgetBackend) run(ctx context.Context, args []string) ([]byte, []byte, error) {
	if !w.Available() {
		return nil, nil, fmt.Errorf("wget not found in PATH")
	}
	ctx, cancel := context.WithTimeout(ctx, w.opts.TotalTimeout)
	defer cancel()
	return w.opts.Run(ctx, 0, w.path, args...)
}

func (w *wgetBackend) ProbeStatus(ctx context.Context, url string) string {
	args := append(w.baseArgs(url),
		"--spider", "-S",
		"--max-redirect="+strconv.Itoa(maxRedirects),
		url,
	)
	// wget exits non-zero for 4xx/5xx but still prints the response headers
	_, stderr, _ := w.run(ctx, args)
	return lastWgetStatus(stderr)
}

func (w *wgetBackend) FetchBody(ctx context.Context, url string) ([]byte, error) {
	args := append(w.baseArgs(url), "-q", "-O", "-", url)
	out, stderr, err := w.run(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w%s", url, err, stderrSuffix(stderr))
	}
	return out, nil
}

func (w *wgetBackend) FetchToPath(ctx context.Context, url, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}
	tmpPath := path + ".tmp"
	args := append(w.baseArgs(url), "-q", "-O", tmpPath, url)
	_, stderr, err := w.run(ctx, args)
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

func (w *wgetBackend) RedirectTarget(ctx context.Context, url string) (string, error) {
	args := append(w.baseArgs(url), "--spider", "-S", "--max-redirect=0", url)
	// "0 redirections exceeded" makes wget exit non-zero on exactly the
	// responses we want, so the headers decide
	_, stderr, _ := w.run(ctx, args)

	status := lastWgetStatus(stderr)
	loc := firstWgetLocation(stderr)
	if status[0] != '3' || loc == "" {
		return "", fmt.Errorf("status %s: %w", status, ErrNoRedirect)
	}
	return loc, nil
}

// lastWgetStatus returns the final status code wget printed, or StatusUnknown.
func lastWgetStatus(stderr []byte) string {
	status := StatusUnknown
	sc := bufio.NewScanner(bytes.NewReader(stderr))
	for sc.Scan() {
		if m := wgetStatusLine.FindStringSubmatch(sc.Text()); m != nil {
			status = m[1]
		}
	}
	return normalizeStatus(status)
}

func firstWgetLocation(stderr []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(stderr))
	for sc.Scan() {
		if m := wgetLocationLine.FindStringSubmatch(sc.Text()); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
