package config

import (
	"bytes"
	"strconv"
	"strings"
	"time"
)

// Generator renders a Config back into Lua the parser accepts.
type Generator struct {
	indent string // Indentation string (default: two spaces)
}

// NewGenerator creates a new Lua config generator.
func NewGenerator() *Generator {
	return &Generator{
		indent: "  ",
	}
}

// Generate writes every field of config, so the output is a complete,
// self-contained config file describing the effective settings.
func (g *Generator) Generate(config *Config) (string, error) {
	var buf bytes.Buffer

	buf.WriteString("-- preflight effective configuration\n\n")
	buf.WriteString(luaGlobalPreflight)
	buf.WriteString(" = {\n")

	g.openTable(&buf, luaFieldTransport)
	g.writeList(&buf, luaFieldBackends, config.Transport.Backends)
	g.writeRaw(&buf, luaFieldConnectTimeout, formatSeconds(config.Transport.ConnectTimeout))
	g.writeRaw(&buf, luaFieldTotalTimeout, formatSeconds(config.Transport.TotalTimeout))
	g.closeTable(&buf)

	g.openTable(&buf, luaFieldInfra)
	g.writeString(&buf, luaFieldBaselineURL, config.Infra.BaselineURL)
	g.closeTable(&buf)

	g.openTable(&buf, luaFieldToolchain)
	g.writeString(&buf, luaFieldManifestURL, config.Toolchain.ManifestURL)
	g.writeString(&buf, luaFieldTriple, config.Toolchain.Triple)
	g.writeString(&buf, luaFieldSigningKeyURL, config.Toolchain.SigningKeyURL)
	g.closeTable(&buf)

	g.openTable(&buf, luaFieldPackage)
	g.writeString(&buf, luaFieldRepo, config.Package.Repo)
	g.writeString(&buf, luaFieldAsset, config.Package.Asset)
	g.writeString(&buf, luaFieldVariantAsset, config.Package.VariantAsset)
	g.writeString(&buf, luaFieldAPIBase, config.Package.APIBase)
	g.writeString(&buf, luaFieldWebBase, config.Package.WebBase)
	g.closeTable(&buf)

	buf.WriteString("}\n")

	return buf.String(), nil
}

func (g *Generator) openTable(buf *bytes.Buffer, name string) {
	buf.WriteString(g.indent)
	buf.WriteString(name)
	buf.WriteString(" = {\n")
}

func (g *Generator) closeTable(buf *bytes.Buffer) {
	buf.WriteString(g.indent)
	buf.WriteString("},\n")
}

// writeString writes key = "value". Empty values are written too, since an
// empty string clears the corresponding default.
func (g *Generator) writeString(buf *bytes.Buffer, key, value string) {
	g.writeRaw(buf, key, g.quoteLuaString(value))
}

func (g *Generator) writeList(buf *bytes.Buffer, key string, values []string) {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = g.quoteLuaString(v)
	}
	g.writeRaw(buf, key, "{ "+strings.Join(quoted, ", ")+" }")
}

func (g *Generator) writeRaw(buf *bytes.Buffer, key, value string) {
	buf.WriteString(g.indent)
	buf.WriteString(g.indent)
	buf.WriteString(key)
	buf.WriteString(" = ")
	buf.WriteString(value)
	buf.WriteString(",\n")
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// quoteLuaString quotes a string for Lua, handling special characters.
func (g *Generator) quoteLuaString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\") // Escape backslashes first
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return "\"" + s + "\""
}
