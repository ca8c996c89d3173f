package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

const (
	keyTagName     = "tag_name"
	keyAssetName   = "name"
	keyDownloadURL = "browser_download_url"
)

// recordPair matches one `"key": "value"` pair, wherever it sits in the text.
var recordPair = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"\s*:\s*"((?:[^"\\]|\\.)*)"`)

type pair struct {
	key, value string
}

// pairs tokenises text into quoted key/value pairs in document order. Nesting
// is ignored; records are treated as one flat sequence.
func pairs(text string) []pair {
	matches := recordPair.FindAllStringSubmatch(text, -1)
	out := make([]pair, 0, len(matches))
	for _, m := range matches {
		out = append(out, pair{key: unquote(m[1]), value: unquote(m[2])})
	}
	return out
}

func unquote(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	if u, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return u
	}
	return strings.ReplaceAll(s, `\/`, `/`)
}

// ReleaseRecord extracts the release tag and the download URL of asset from a
// release description.
//
// The tag is the first tag_name anywhere. The URL is the first
// browser_download_url at or after the name field equal to asset; names and
// URLs are associated by position, so the scan continues forward from the name
// instead of restarting.
func ReleaseRecord(text, asset string) Record {
	var rec Record
	tokens := pairs(text)

	for _, p := range tokens {
		if p.key == keyTagName {
			rec.Set(Fact{Name: FactTag, Value: p.value, Source: keyTagName})
			break
		}
	}

	if asset == "" {
		return rec
	}
	found := false
	for _, p := range tokens {
		if !found {
			found = p.key == keyAssetName && p.value == asset
			continue
		}
		if p.key == keyDownloadURL {
			rec.Set(Fact{Name: FactURL, Value: p.value, Source: keyAssetName + "->" + keyDownloadURL})
			break
		}
	}
	return rec
}

// TagFromRedirect returns the last path segment after "/tag/" in location,
// or "" when location does not point at a tagged release.
func TagFromRedirect(location string) string {
	path := location
	if u, err := url.Parse(location); err == nil && u.Path != "" {
		path = u.Path
	}
	i := strings.LastIndex(path, "/tag/")
	if i < 0 {
		return ""
	}
	rest := strings.Trim(path[i+len("/tag/"):], "/")
	if j := strings.LastIndex(rest, "/"); j >= 0 {
		rest = rest[j+1:]
	}
	if tag, err := url.PathUnescape(rest); err == nil {
		return tag
	}
	return rest
}
