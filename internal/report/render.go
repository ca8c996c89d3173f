package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"gopkg.in/yaml.v3"

	"github.com/ZebulonRouseFrantzich/preflight/internal/severity"
)

// Format selects a renderer.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Formats lists the accepted --output values.
var Formats = []Format{FormatText, FormatJSON, FormatYAML}

// ParseFormat validates an --output value.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("invalid output format %q (expected text, json or yaml)", s)
}

// Options tunes rendering.
type Options struct {
	// Color enables ANSI styling in text output.
	Color bool
	// Verbose adds probes and facts to text output. Structured formats always
	// carry everything.
	Verbose bool
}

// document is the structured rendering of a Report.
type document struct {
	Report   `yaml:",inline"`
	ExitCode int      `json:"exit_code" yaml:"exit_code"`
	Failed   []string `json:"failed_sections,omitempty" yaml:"failed_sections,omitempty"`
}

func newDocument(r *Report) document {
	return document{Report: *r, ExitCode: ExitCode(r), Failed: r.Mask.Sections()}
}

// Render writes r to w in format.
func Render(w io.Writer, r *Report, format Format, opts Options) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(newDocument(r)); err != nil {
			return fmt.Errorf("encode json report: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(newDocument(r)); err != nil {
			return fmt.Errorf("encode yaml report: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encode yaml report: %w", err)
		}
		return nil
	case FormatText, "":
		_, err := io.WriteString(w, newTextRenderer(w, opts).render(r))
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// Palette for the text renderer.
var (
	colorOK    = lipgloss.Color("#8BC34A")
	colorWarn  = lipgloss.Color("#FFC107")
	colorErr   = lipgloss.Color("#E53935")
	colorMuted = lipgloss.Color("#7A8699")
)

type textRenderer struct {
	opts Options

	title   lipgloss.Style
	section lipgloss.Style
	muted   lipgloss.Style
	levels  map[severity.Level]lipgloss.Style
}

func newTextRenderer(w io.Writer, opts Options) *textRenderer {
	re := lipgloss.NewRenderer(w)
	if !opts.Color {
		re.SetColorProfile(termenv.Ascii)
	}

	return &textRenderer{
		opts:    opts,
		title:   re.NewStyle().Bold(true),
		section: re.NewStyle().Bold(true).Underline(true),
		muted:   re.NewStyle().Foreground(colorMuted),
		levels: map[severity.Level]lipgloss.Style{
			severity.OK:   re.NewStyle().Foreground(colorOK).Width(5),
			severity.Warn: re.NewStyle().Foreground(colorWarn).Bold(true).Width(5),
			severity.Err:  re.NewStyle().Foreground(colorErr).Bold(true).Width(5),
		},
	}
}

func (t *textRenderer) level(l severity.Level) string {
	return t.levels[l].Render(l.String())
}

func (t *textRenderer) render(r *Report) string {
	var sb strings.Builder
	sb.Grow(1024 + len(r.Sections)*512)

	sb.WriteString(t.title.Render("preflight " + r.Version))
	sb.WriteString("  ")
	sb.WriteString(t.muted.Render("run " + r.RunID))
	sb.WriteString("\n")

	nameWidth := 0
	for _, s := range r.Sections {
		for _, c := range s.Checks {
			nameWidth = max(nameWidth, len(c.Name))
		}
	}

	for _, s := range r.Sections {
		sb.WriteString("\n")
		sb.WriteString(t.section.Render(s.Name))
		sb.WriteString("  ")
		sb.WriteString(t.levels[s.Level].UnsetWidth().Render(s.Level.String()))
		sb.WriteString("\n")

		for _, c := range s.Checks {
			sb.WriteString("  ")
			sb.WriteString(t.level(c.Level))
			sb.WriteString(" ")
			sb.WriteString(c.Name)
			if c.Note != "" {
				sb.WriteString(strings.Repeat(" ", nameWidth-len(c.Name)+2))
				sb.WriteString(c.Note)
			}
			sb.WriteString("\n")
		}

		if !t.opts.Verbose {
			continue
		}
		for _, p := range s.Probes {
			sb.WriteString(t.muted.Render(fmt.Sprintf("    probe %s %s %s", p.Target, p.Status, p.URL)))
			sb.WriteString("\n")
		}
		for _, f := range s.Facts {
			line := fmt.Sprintf("    fact  %s absent", f.Name)
			if f.Present {
				line = fmt.Sprintf("    fact  %s = %s (%s)", f.Name, f.Value, f.Source)
			}
			sb.WriteString(t.muted.Render(line))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	if r.Mask == 0 {
		summary := "all updater assumptions hold"
		if r.Level() == severity.Warn {
			summary += " (with warnings)"
		}
		sb.WriteString(t.levels[r.Level()].UnsetWidth().Render(summary))
	} else {
		sb.WriteString(t.levels[severity.Err].UnsetWidth().Render(
			fmt.Sprintf("failed: %s (exit %d)", strings.Join(r.Mask.Sections(), ", "), ExitCode(r))))
	}
	sb.WriteString("\n")

	return sb.String()
}
