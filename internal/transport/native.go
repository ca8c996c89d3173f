package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

const (
	// maxRedirects bounds redirect chains followed by the native client.
	maxRedirects = 10
	// maxBodyBytes caps in-memory fetches; manifests and release pages are far smaller.
	maxBodyBytes = 32 << 20
)

// nativeBackend reaches endpoints with Go's net/http client.
type nativeBackend struct {
	opts     Options
	client   *http.Client
	noFollow *http.Client
}

func newNative(opts Options) *nativeBackend {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: opts.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.TotalTimeout,
		// one request per endpoint per run; nothing to reuse
		DisableKeepAlives: true,
	}

	return &nativeBackend{
		opts: opts,
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.TotalTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		noFollow: &http.Client{
			Transport: transport,
			Timeout:   opts.TotalTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (n *nativeBackend) Name() string { return BackendNative }

// Available is always true; the client is compiled in.
func (n *nativeBackend) Available() bool { return true }

func (n *nativeBackend) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", n.opts.UserAgent)
	if auth, ok := n.opts.authHeader(url); ok {
		req.Header.Set("Authorization", auth)
	}
	return req, nil
}

func (n *nativeBackend) ProbeStatus(ctx context.Context, url string) string {
	ctx, cancel := context.WithTimeout(ctx, n.opts.TotalTimeout)
	defer cancel()

	req, err := n.newRequest(ctx, http.MethodHead, url)
	if err != nil {
		return StatusUnknown
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return StatusUnknown
	}
	defer resp.Body.Close()

	return normalizeStatus(strconv.Itoa(resp.StatusCode))
}

// get performs a GET and returns the response when the status is 2xx.
func (n *nativeBackend) get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	req, err := n.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp, nil
}

func (n *nativeBackend) FetchBody(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, n.opts.TotalTimeout)
	defer cancel()

	resp, err := n.get(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

// FetchToPath writes to a temporary sibling and renames it into place, so a
// failed transfer never leaves a partial file at path.
func (n *nativeBackend) FetchToPath(ctx context.Context, url, path string) error {
	ctx, cancel := context.WithTimeout(ctx, n.opts.TotalTimeout)
	defer cancel()

	resp, err := n.get(ctx, url, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	tmpPath := path + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, io.LimitReader(resp.Body, maxBodyBytes)); err != nil {
		return fmt.Errorf("copy response body: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	cleanupNeeded = false
	return nil
}

func (n *nativeBackend) RedirectTarget(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, n.opts.TotalTimeout)
	defer cancel()

	req, err := n.newRequest(ctx, http.MethodHead, url)
	if err != nil {
		return "", err
	}
	resp, err := n.noFollow.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	loc := resp.Header.Get("Location")
	if resp.StatusCode < 300 || resp.StatusCode > 399 || loc == "" {
		return "", fmt.Errorf("status %d: %w", resp.StatusCode, ErrNoRedirect)
	}
	if u, err := resp.Request.URL.Parse(loc); err == nil {
		loc = u.String()
	}
	return loc, nil
}

func (n *nativeBackend) FetchRange(ctx context.Context, url string, start, end int64) ([]byte, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("invalid range %d-%d", start, end)
	}
	ctx, cancel := context.WithTimeout(ctx, n.opts.TotalTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := n.get(ctx, url, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	want := end - start + 1
	var body io.Reader = resp.Body
	if resp.StatusCode == http.StatusOK && start > 0 {
		// server ignored the range; skip up to start
		if _, err := io.CopyN(io.Discard, body, start); err != nil {
			return nil, fmt.Errorf("skip to range start: %w", err)
		}
	}

	b, err := io.ReadAll(io.LimitReader(body, want))
	if err != nil {
		return nil, fmt.Errorf("read range: %w", err)
	}
	return b, nil
}
