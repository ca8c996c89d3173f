// Package report collects check outcomes per section, folds them into the
// exit-status bitmask and renders the final summary.
package report

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ZebulonRouseFrantzich/preflight/internal/extract"
	"github.com/ZebulonRouseFrantzich/preflight/internal/severity"
)

// Check is one classified assumption.
type Check struct {
	Name  string         `json:"name" yaml:"name"`
	Level severity.Level `json:"level" yaml:"level"`
	Note  string         `json:"note,omitempty" yaml:"note,omitempty"`
}

// ProbeResult records one network call. Status is a three-digit HTTP code or
// "000" when none was obtained.
type ProbeResult struct {
	Target string         `json:"target" yaml:"target"`
	URL    string         `json:"url" yaml:"url"`
	Status string         `json:"status" yaml:"status"`
	Level  severity.Level `json:"level" yaml:"level"`
}

// SectionOutcome accumulates what one section observed. It is appended to
// while the section runs and frozen by Finalize.
type SectionOutcome struct {
	Name   string         `json:"name" yaml:"name"`
	Level  severity.Level `json:"level" yaml:"level"`
	Checks []Check        `json:"checks" yaml:"checks"`
	Probes []ProbeResult  `json:"probes,omitempty" yaml:"probes,omitempty"`
	Facts  []extract.Fact `json:"facts,omitempty" yaml:"facts,omitempty"`

	bit       severity.Bit
	finalized bool
}

// NewSection starts an outcome for the section owning bit.
func NewSection(bit severity.Bit) *SectionOutcome {
	return &SectionOutcome{Name: bit.String(), bit: bit}
}

// Bit returns the exit-status bit owned by the section.
func (s *SectionOutcome) Bit() severity.Bit { return s.bit }

func (s *SectionOutcome) mustBeOpen() {
	if s.finalized {
		panic(fmt.Sprintf("report: %s section modified after Finalize", s.Name))
	}
}

// Add records c and raises the section level to at least c.Level.
func (s *SectionOutcome) Add(c Check) {
	s.mustBeOpen()
	s.Checks = append(s.Checks, c)
	s.Level = severity.Max(s.Level, c.Level)
}

// Addf records a check with a formatted note.
func (s *SectionOutcome) Addf(name string, level severity.Level, format string, args ...interface{}) {
	s.Add(Check{Name: name, Level: level, Note: fmt.Sprintf(format, args...)})
}

// Probe records a network call. Probes are evidence only and never change
// the section level; the check that interprets them does.
func (s *SectionOutcome) Probe(p ProbeResult) {
	s.mustBeOpen()
	s.Probes = append(s.Probes, p)
}

// Fact records an extracted fact, absent or not.
func (s *SectionOutcome) Fact(f extract.Fact) {
	s.mustBeOpen()
	s.Facts = append(s.Facts, f)
}

// Finalize freezes the outcome. Finalizing twice is harmless.
func (s *SectionOutcome) Finalize() { s.finalized = true }

// Finalized reports whether Finalize has been called.
func (s *SectionOutcome) Finalized() bool { return s.finalized }

// Mask returns the section's contribution to the exit status.
func (s *SectionOutcome) Mask() severity.Mask {
	return severity.Mask(0).Fold(s.bit, s.Level)
}

// Count returns how many checks ended at level.
func (s *SectionOutcome) Count(level severity.Level) int {
	n := 0
	for _, c := range s.Checks {
		if c.Level == level {
			n++
		}
	}
	return n
}

// Report is the result of one run.
type Report struct {
	RunID    string            `json:"run_id" yaml:"run_id"`
	Version  string            `json:"version" yaml:"version"`
	Started  time.Time         `json:"started" yaml:"started"`
	Finished time.Time         `json:"finished,omitempty" yaml:"finished,omitempty"`
	Sections []*SectionOutcome `json:"sections" yaml:"sections"`
	Mask     severity.Mask     `json:"mask" yaml:"mask"`
}

// New starts a report stamped with a fresh run ID.
func New(version string) *Report {
	return &Report{
		RunID:   uuid.NewString(),
		Version: version,
		Started: time.Now().UTC(),
	}
}

// Add finalizes s, appends it and folds its bit into the mask.
func (r *Report) Add(s *SectionOutcome) {
	s.Finalize()
	r.Sections = append(r.Sections, s)
	r.Mask |= s.Mask()
}

// Finish stamps the end time.
func (r *Report) Finish() {
	r.Finished = time.Now().UTC()
}

// Level returns the most severe level across all sections.
func (r *Report) Level() severity.Level {
	level := severity.OK
	for _, s := range r.Sections {
		level = severity.Max(level, s.Level)
	}
	return level
}

// ExitCode is the process exit status for r: the bitmask of sections with an ERR.
func ExitCode(r *Report) int {
	return int(r.Mask)
}
