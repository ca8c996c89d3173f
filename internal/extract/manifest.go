package extract

import (
	"bufio"
	"regexp"
	"strings"
)

// ManifestPackage is the package section the toolchain updater installs from.
const ManifestPackage = "rust"

// fieldRule maps a fact to the manifest keys that may carry it, most preferred first.
type fieldRule struct {
	fact string
	keys []string
}

// targetRules are evaluated in order inside the target section. A later key is
// only used when no earlier key was ever seen.
var targetRules = []fieldRule{
	{fact: FactURL, keys: []string{"xz_url", "url"}},
	{fact: FactHash, keys: []string{"xz_hash", "hash"}},
}

var manifestKeyValue = regexp.MustCompile(`^([A-Za-z0-9_.-]+)\s*=\s*"([^"]*)"`)

type manifestState int

const (
	outside manifestState = iota
	inPackage
	inTarget
)

// Manifest extracts the version, asset URL and hash for triple from a channel
// manifest.
//
// The version is read at most once from the [pkg.rust] section and reduced to
// its first token ("1.80.0 (051478957 2024-07-21)" becomes "1.80.0"). URL and
// hash come from the first [pkg.rust.target.<name>] section whose name contains
// triple, following targetRules. Any other section header leaves that state.
func Manifest(text, triple string) Record {
	var rec Record
	packageHeader := "pkg." + ManifestPackage
	targetPrefix := packageHeader + ".target."

	// first value seen per key inside the target section
	seen := make(map[string]string)
	state := outside

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			state = outside
			// array-of-tables headers never carry target fields
			if strings.HasPrefix(line, "[[") {
				continue
			}
			name := headerName(line)
			switch {
			case name == packageHeader:
				state = inPackage
			case triple != "" && strings.HasPrefix(name, targetPrefix) &&
				strings.Contains(name[len(targetPrefix):], triple):
				state = inTarget
			}
			continue
		}

		m := manifestKeyValue.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key, value := m[1], m[2]

		switch state {
		case inPackage:
			if key == "version" && !rec.Has(FactVersion) {
				rec.Set(versionFact(value))
			}
		case inTarget:
			if _, ok := seen[key]; !ok {
				seen[key] = value
			}
		}
	}

	for _, rule := range targetRules {
		for _, key := range rule.keys {
			if v, ok := seen[key]; ok && v != "" {
				rec.Set(Fact{Name: rule.fact, Value: v, Source: key})
				break
			}
		}
	}
	return rec
}

// headerName returns the table name of a "[name]" header line, ignoring
// anything after the closing bracket such as a trailing comment.
func headerName(line string) string {
	body := strings.TrimPrefix(line, "[")
	var quote rune
	for i, r := range body {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == ']':
			return strings.TrimSpace(body[:i])
		}
	}
	return strings.TrimSpace(body)
}

func versionFact(raw string) Fact {
	value := raw
	if fields := strings.Fields(raw); len(fields) > 0 {
		value = fields[0]
	}
	return Fact{Name: FactVersion, Value: value, Source: "version", Raw: raw}
}
