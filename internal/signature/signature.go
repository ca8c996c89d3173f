// Package signature checks that a remote artifact starts with the magic bytes
// its declared format implies, using a single small byte-range request.
package signature

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ZebulonRouseFrantzich/preflight/internal/severity"
	"github.com/ZebulonRouseFrantzich/preflight/internal/transport"
)

// SnippetEnd is the last byte offset fetched; bytes [0, SnippetEnd] are compared.
const SnippetEnd = 15

// Format is the archive format an asset is expected to have.
type Format string

const (
	FormatXZ      Format = "archive-xz"
	FormatGZ      Format = "archive-gz"
	FormatDeb     Format = "debian-package"
	FormatUnknown Format = "unknown"
)

var magic = map[Format][]byte{
	FormatXZ:  {0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00},
	FormatGZ:  {0x1F, 0x8B},
	FormatDeb: []byte("!<arch>\n"),
}

// Magic returns the expected prefix for f, or nil for FormatUnknown.
func Magic(f Format) []byte {
	return magic[f]
}

// Asset is a remote artifact to verify.
type Asset struct {
	URL string
	// Hash is the expected SHA-256, when upstream publishes one.
	Hash   string
	Format Format
}

// NewAsset builds an Asset whose format is detected from the URL.
func NewAsset(rawURL, hash string) Asset {
	return Asset{URL: rawURL, Hash: hash, Format: DetectFormat(rawURL)}
}

// DetectFormat maps a URL suffix to a Format. Query strings and fragments are ignored.
func DetectFormat(rawURL string) Format {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	p = strings.ToLower(p)
	switch {
	case strings.HasSuffix(p, ".tar.xz"), strings.HasSuffix(p, ".txz"):
		return FormatXZ
	case strings.HasSuffix(p, ".tar.gz"), strings.HasSuffix(p, ".tgz"):
		return FormatGZ
	case strings.HasSuffix(p, ".deb"):
		return FormatDeb
	default:
		return FormatUnknown
	}
}

// Result is the outcome kind of a magic-byte comparison.
type Result string

const (
	Match    Result = "match"
	Mismatch Result = "mismatch"
	Skipped  Result = "skipped"
)

// Outcome is what Verify observed.
type Outcome struct {
	Result Result
	// Note explains a skip or a mismatch.
	Note string
	// Got holds the leading bytes actually compared, for diagnostics.
	Got []byte
}

// Level classifies the outcome. The check is best-effort, so a mismatch is at
// most a warning and a skip is OK.
func (o Outcome) Level() severity.Level {
	if o.Result == Mismatch {
		return severity.Warn
	}
	return severity.OK
}

// Classify compares snippet against the magic prefix of format. A snippet
// shorter than the magic is Skipped unless the bytes it does hold disagree.
func Classify(snippet []byte, format Format) Outcome {
	want := Magic(format)
	if want == nil {
		return Outcome{Result: Skipped, Note: "format unknown"}
	}
	if len(snippet) == 0 {
		return Outcome{Result: Skipped, Note: "empty snippet"}
	}
	got := snippet
	if len(got) > len(want) {
		got = got[:len(want)]
	}
	if !bytes.HasPrefix(want, got) {
		// the bytes present already rule the format out
		return Outcome{
			Result: Mismatch,
			Note:   fmt.Sprintf("expected %s magic % x, got % x", format, want, got),
			Got:    got,
		}
	}
	if len(got) < len(want) {
		return Outcome{Result: Skipped, Note: fmt.Sprintf("snippet too short (%d bytes)", len(snippet)), Got: got}
	}
	return Outcome{Result: Match, Got: got}
}

// Verify fetches the leading bytes of asset through ranger and classifies them.
// It never fails hard: a nil ranger, an unknown format, an empty URL or a
// fetch error all yield Skipped.
func Verify(ctx context.Context, ranger transport.RangeFetcher, asset Asset) Outcome {
	switch {
	case ranger == nil:
		return Outcome{Result: Skipped, Note: "no range-capable backend"}
	case asset.URL == "":
		return Outcome{Result: Skipped, Note: "no asset URL"}
	case Magic(asset.Format) == nil:
		return Outcome{Result: Skipped, Note: "format unknown"}
	}

	snippet, err := ranger.FetchRange(ctx, asset.URL, 0, SnippetEnd)
	if err != nil {
		return Outcome{Result: Skipped, Note: "range fetch failed: " + err.Error()}
	}
	return Classify(snippet, asset.Format)
}
