package section

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/stretchr/testify/require"

	"github.com/ZebulonRouseFrantzich/preflight/internal/config"
	"github.com/ZebulonRouseFrantzich/preflight/internal/platform"
	"github.com/ZebulonRouseFrantzich/preflight/internal/report"
	"github.com/ZebulonRouseFrantzich/preflight/internal/scratch"
	"github.com/ZebulonRouseFrantzich/preflight/internal/severity"
	"github.com/ZebulonRouseFrantzich/preflight/internal/toolcheck"
	"github.com/ZebulonRouseFrantzich/preflight/internal/transport"
)

// server is replaced by the fixture's base URL when a body is served.
const server = "@SERVER@"

var (
	xzHash  = strings.Repeat("cd", 32)
	gzHash  = strings.Repeat("ef", 32)
	debHash = strings.Repeat("ab", 32)

	xzMagic  = []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}
	debMagic = []byte("!<arch>\n")
)

const sampleManifest = `manifest-version = "2"
date = "2024-07-25"

[pkg.cargo]
version = "1.80.0 (376290515 2024-07-16)"

[pkg.rust]
version = "1.80.0 (051478957 2024-07-21)"

[pkg.rust.target.aarch64-unknown-linux-gnu]
available = true
url = "@SERVER@/dist/rust-1.80.0-aarch64-unknown-linux-gnu.tar.gz"
hash = "` + "0000000000000000000000000000000000000000000000000000000000000000" + `"

[pkg.rust.target.x86_64-unknown-linux-gnu]
available = true
url = "@SERVER@/dist/rust-1.80.0-x86_64-unknown-linux-gnu.tar.gz"
hash = "GZHASH"
xz_url = "@SERVER@/dist/rust-1.80.0-x86_64-unknown-linux-gnu.tar.xz"
xz_hash = "XZHASH"
`

const sampleRecord = `{
  "url": "@SERVER@/api/repos/fastfetch-cli/fastfetch/releases/200",
  "tag_name": "2.40.4",
  "name": "2.40.4",
  "assets": [
    {
      "name": "fastfetch-linux-aarch64.deb",
      "browser_download_url": "@SERVER@/dl/2.40.4/fastfetch-linux-aarch64.deb"
    },
    {
      "name": "fastfetch-linux-amd64.deb",
      "browser_download_url": "@SERVER@/dl/2.40.4/fastfetch-linux-amd64.deb"
    },
    {
      "name": "fastfetch-linux-amd64-polyfilled.deb",
      "browser_download_url": "@SERVER@/dl/2.40.4/fastfetch-linux-amd64-polyfilled.deb"
    }
  ]
}`

const samplePage = `<html><body>
<div class="markdown-body">
<h2>SHA256SUMs</h2>
<pre><code>DEBHASH  fastfetch-linux-amd64/fastfetch-linux-amd64.deb
DEBHASH  fastfetch-linux-amd64-polyfilled/fastfetch-linux-amd64-polyfilled.deb
</code></pre>
</div>
</body></html>`

var (
	signerOnce sync.Once
	signer     *openpgp.Entity
	signerKey  []byte
	signerErr  error
)

// testSigner returns a throwaway signing key and its armored public half.
func testSigner(t *testing.T) (*openpgp.Entity, []byte) {
	t.Helper()
	signerOnce.Do(func() {
		signer, signerErr = openpgp.NewEntity("Rust Test", "", "rust@example.test", nil)
		if signerErr != nil {
			return
		}
		var buf bytes.Buffer
		w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
		if err != nil {
			signerErr = err
			return
		}
		if err := signer.Serialize(w); err != nil {
			signerErr = err
			return
		}
		signerErr = w.Close()
		signerKey = buf.Bytes()
	})
	require.NoError(t, signerErr)
	return signer, signerKey
}

// upstream serves every endpoint the sections touch. Fields may be changed
// before the run; handlers read them per request.
type upstream struct {
	t   *testing.T
	srv *httptest.Server

	manifest string
	// sidecar overrides the published manifest digest.
	sidecar string
	// signed is the content the manifest signature covers; nil means the manifest.
	signed    []byte
	signature []byte
	archive   []byte
	record    string
	aliasTag  string
	page      string
	deb       []byte

	// status forces a response code for a path.
	status map[string]int

	mu       sync.Mutex
	requests []string
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	_, key := testSigner(t)

	u := &upstream{
		t:        t,
		manifest: strings.NewReplacer("XZHASH", xzHash, "GZHASH", gzHash).Replace(sampleManifest),
		archive:  append(append([]byte{}, xzMagic...), bytes.Repeat([]byte{0x01}, 64)...),
		record:   sampleRecord,
		aliasTag: "2.40.4",
		page:     strings.ReplaceAll(samplePage, "DEBHASH", debHash),
		deb:      append(append([]byte{}, debMagic...), bytes.Repeat([]byte{0x02}, 64)...),
		status:   map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/baseline", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/dist/channel-rust-stable.toml", func(w http.ResponseWriter, r *http.Request) {
		u.serve(w, r, []byte(u.body(u.manifest)))
	})
	mux.HandleFunc("/dist/channel-rust-stable.toml.sha256", func(w http.ResponseWriter, r *http.Request) {
		digest := u.sidecar
		if digest == "" {
			sum := sha256.Sum256([]byte(u.body(u.manifest)))
			digest = hex.EncodeToString(sum[:])
		}
		fmt.Fprintf(w, "%s  channel-rust-stable.toml\n", digest)
	})
	mux.HandleFunc("/dist/channel-rust-stable.toml.asc", func(w http.ResponseWriter, r *http.Request) {
		w.Write(u.manifestSignature())
	})
	mux.HandleFunc("/rust-key.gpg.ascii", func(w http.ResponseWriter, r *http.Request) {
		w.Write(key)
	})
	mux.HandleFunc("/dist/", func(w http.ResponseWriter, r *http.Request) {
		u.serve(w, r, u.archive)
	})
	mux.HandleFunc("/api/repos/fastfetch-cli/fastfetch/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		u.serve(w, r, []byte(u.body(u.record)))
	})
	mux.HandleFunc("/web/fastfetch-cli/fastfetch/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/web/fastfetch-cli/fastfetch/releases/tag/"+u.aliasTag, http.StatusFound)
	})
	mux.HandleFunc("/web/fastfetch-cli/fastfetch/releases/tag/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		u.serve(w, r, []byte(u.page))
	})
	mux.HandleFunc("/dl/", func(w http.ResponseWriter, r *http.Request) {
		u.serve(w, r, u.deb)
	})

	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.requests = append(u.requests, r.Method+" "+r.URL.Path)
		code, forced := u.status[r.URL.Path]
		u.mu.Unlock()

		if forced {
			w.WriteHeader(code)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(u.srv.Close)

	return u
}

func (u *upstream) body(s string) string {
	return strings.ReplaceAll(s, server, u.srv.URL)
}

// serve answers HEAD, GET and ranged GET requests for content.
func (u *upstream) serve(w http.ResponseWriter, r *http.Request, content []byte) {
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(content))
}

func (u *upstream) manifestSignature() []byte {
	if u.signature != nil {
		return u.signature
	}
	entity := signer
	signed := u.signed
	if signed == nil {
		signed = []byte(u.body(u.manifest))
	}
	var buf bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&buf, entity, bytes.NewReader(signed), nil); err != nil {
		u.t.Errorf("sign manifest: %v", err)
	}
	return buf.Bytes()
}

// count returns how many requests matched method and path.
func (u *upstream) count(method, path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, r := range u.requests {
		if r == method+" "+path {
			n++
		}
	}
	return n
}

func (u *upstream) total() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.requests)
}

// fakeTools answers LookPath from a fixed set and --version from versions.
type fakeTools struct {
	present  map[string]bool
	versions map[string]string
}

func defaultTools() *fakeTools {
	return &fakeTools{
		present: map[string]bool{
			"sha256sum": true, "sudo": true, "tar": true, "xz": true, "gzip": true,
			"dpkg": true, "rustc": true, "fastfetch": true,
		},
		versions: map[string]string{
			"rustc":     "rustc 1.79.0 (129f3b996 2024-06-10)",
			"fastfetch": "fastfetch 2.40.4 (x86_64)",
		},
	}
}

func (f *fakeTools) without(names ...string) *fakeTools {
	for _, n := range names {
		delete(f.present, n)
	}
	return f
}

func (f *fakeTools) checker() *toolcheck.Checker {
	return toolcheck.New(toolcheck.Options{
		LookPath: func(file string) (string, error) {
			if f.present[file] {
				return "/nonexistent/bin/" + file, nil
			}
			return "", exec.ErrNotFound
		},
		Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			base := name[strings.LastIndex(name, "/")+1:]
			if v, ok := f.versions[base]; ok {
				return []byte(v + "\n"), nil
			}
			return nil, exec.ErrNotFound
		},
	})
}

func debianHost() *platform.Info {
	return &platform.Info{
		OS: "linux", Arch: "amd64", ArchRaw: "amd64", KernelArch: "x86_64",
		Platform: "ubuntu", Family: platform.FamilyDebian, Version: "24.04",
	}
}

// env wires a native-backend Env at the fixture.
func (u *upstream) env(t *testing.T, tools *fakeTools) *Env {
	t.Helper()

	info := debianHost()
	cfg := config.Default(info)
	cfg.Transport.Backends = []string{transport.BackendNative}
	cfg.Transport.ConnectTimeout = 2 * time.Second
	cfg.Transport.TotalTimeout = 5 * time.Second
	cfg.Infra.BaselineURL = u.srv.URL + "/baseline"
	cfg.Toolchain.ManifestURL = u.srv.URL + "/dist/channel-rust-stable.toml"
	cfg.Toolchain.SigningKeyURL = u.srv.URL + "/rust-key.gpg.ascii"
	cfg.Package.APIBase = u.srv.URL + "/api"
	cfg.Package.WebBase = u.srv.URL + "/web"
	require.NoError(t, cfg.Validate())

	opts := transport.Options{
		ConnectTimeout: cfg.Transport.ConnectTimeout,
		TotalTimeout:   cfg.Transport.TotalTimeout,
	}
	backend, err := transport.Select(cfg.Transport.Backends, opts)
	require.NoError(t, err)
	ranger, rangeName := transport.SelectRange(cfg.Transport.Backends, opts)

	dir, err := scratch.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { dir.Remove() })

	return &Env{
		Config:    cfg,
		Platform:  info,
		Scratch:   dir,
		Tools:     tools.checker(),
		Backend:   backend,
		Ranger:    ranger,
		RangeName: rangeName,
	}
}

// findSection returns the named section of r.
func findSection(t *testing.T, r *report.Report, name string) *report.SectionOutcome {
	t.Helper()
	for _, s := range r.Sections {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("section %s not in report", name)
	return nil
}

// findCheck returns the named check of s.
func findCheck(t *testing.T, s *report.SectionOutcome, name string) report.Check {
	t.Helper()
	for _, c := range s.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %s not in section %s; have %v", name, s.Name, checkNames(s))
	return report.Check{}
}

func hasCheck(s *report.SectionOutcome, name string) bool {
	for _, c := range s.Checks {
		if c.Name == name {
			return true
		}
	}
	return false
}

func checkNames(s *report.SectionOutcome) []string {
	names := make([]string, 0, len(s.Checks))
	for _, c := range s.Checks {
		names = append(names, c.Name+"="+c.Level.String())
	}
	return names
}

func findFact(s *report.SectionOutcome, name string) (value, source string, ok bool) {
	for _, f := range s.Facts {
		if f.Name == name {
			return f.Value, f.Source, f.Present
		}
	}
	return "", "", false
}

func levelOf(t *testing.T, s *report.SectionOutcome, name string) severity.Level {
	t.Helper()
	return findCheck(t, s, name).Level
}
