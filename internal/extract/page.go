package extract

import (
	"bufio"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var hexDigest = regexp.MustCompile(`\b[0-9a-fA-F]{64}\b`)

// pagePath is one rendering of the asset path a digest may sit next to.
type pagePath struct {
	label string
	path  string
}

// ReleasePage locates the SHA-256 digest of asset on a rendered release page.
//
// Two renderings of the path are tried, nested (artifact/asset) before flat
// (asset). The primary pass matches "digest whitespace path" on the raw
// markup. Only if that finds nothing for either path, the fallback strips all
// tags and takes the first digest on a line that contains the path. Source is
// "primary:nested", "primary:flat", "fallback:nested" or "fallback:flat".
func ReleasePage(page, artifact, asset string) Record {
	var rec Record
	if asset == "" {
		return rec
	}

	paths := make([]pagePath, 0, 2)
	if artifact != "" {
		paths = append(paths, pagePath{label: "nested", path: artifact + "/" + asset})
	}
	paths = append(paths, pagePath{label: "flat", path: asset})

	for _, p := range paths {
		if d, ok := primaryDigest(page, p.path); ok {
			rec.Set(Fact{Name: FactHash, Value: strings.ToLower(d), Source: "primary:" + p.label, Raw: d})
			return rec
		}
	}

	text := stripTags(page)
	for _, p := range paths {
		if d, ok := fallbackDigest(text, p.path); ok {
			rec.Set(Fact{Name: FactHash, Value: strings.ToLower(d), Source: "fallback:" + p.label, Raw: d})
			return rec
		}
	}
	return rec
}

// pathStart and pathEnd require the path to be delimited by non-path
// characters, so "a.deb" matches neither "musl-a.deb" nor "a.deb.sig".
const (
	pathStart = `(?:^|[^A-Za-z0-9._/-])`
	pathEnd   = `(?:[^A-Za-z0-9._/-]|$)`
)

func primaryDigest(page, path string) (string, bool) {
	re, err := regexp.Compile(`\b([0-9a-fA-F]{64})\s+` + regexp.QuoteMeta(path) + pathEnd)
	if err != nil {
		return "", false
	}
	m := re.FindStringSubmatch(page)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func fallbackDigest(text, path string) (string, bool) {
	onLine, err := regexp.Compile(pathStart + regexp.QuoteMeta(path) + pathEnd)
	if err != nil {
		return "", false
	}
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !onLine.MatchString(line) {
			continue
		}
		if d := hexDigest.FindString(line); d != "" {
			return d, true
		}
	}
	return "", false
}

// stripTags returns the text content of markup with entities decoded.
// Script and style bodies are dropped.
func stripTags(markup string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(markup))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "br", "p", "div", "li", "tr":
				b.WriteByte('\n')
			case "td", "th":
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "p", "div", "li", "tr":
				b.WriteByte('\n')
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if string(name) == "br" {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}
