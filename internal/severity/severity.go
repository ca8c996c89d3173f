// Package severity defines the three-level outcome of a single check and the
// per-section bitmask that the process exit status is built from.
package severity

import (
	"fmt"
	"strings"
)

// Level is the classified outcome of one check.
type Level int

const (
	// OK means the assumption holds (possibly with an explanatory note).
	OK Level = iota
	// Warn means a best-effort check was inconclusive or an optional fact is missing.
	Warn
	// Err means a hard requirement does not hold.
	Err
)

// String returns the label used in reports.
func (l Level) String() string {
	switch l {
	case OK:
		return "OK"
	case Warn:
		return "WARN"
	case Err:
		return "ERR"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the level as its label for JSON and YAML reports.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText parses a label produced by MarshalText.
func (l *Level) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "OK":
		*l = OK
	case "WARN":
		*l = Warn
	case "ERR":
		*l = Err
	default:
		return fmt.Errorf("unknown severity level %q", string(text))
	}
	return nil
}

// Max returns the more severe of two levels.
func Max(a, b Level) Level {
	if b > a {
		return b
	}
	return a
}

// Bit identifies one scored section in the exit-status bitmask.
type Bit uint8

const (
	// BitInfra is owned by the self/infra section.
	BitInfra Bit = 1 << iota
	// BitToolchain is owned by the toolchain section.
	BitToolchain
	// BitPackage is owned by the package section.
	BitPackage
)

// String returns the section name owning the bit.
func (b Bit) String() string {
	switch b {
	case BitInfra:
		return "infra"
	case BitToolchain:
		return "toolchain"
	case BitPackage:
		return "package"
	default:
		return fmt.Sprintf("bit(%d)", uint8(b))
	}
}

// Mask is the bitwise OR of every section bit whose section saw an ERR.
// The zero value means every section was OK or WARN-only.
type Mask uint8

// Set returns the mask with bit set. Bits are never cleared.
func (m Mask) Set(b Bit) Mask {
	return m | Mask(b)
}

// Has reports whether bit is set.
func (m Mask) Has(b Bit) bool {
	return m&Mask(b) != 0
}

// Fold adds the section bit to the mask when level is Err.
// Warn and OK leave the mask untouched.
func (m Mask) Fold(b Bit, level Level) Mask {
	if level == Err {
		return m.Set(b)
	}
	return m
}

// Sections lists the names of the set bits in ascending bit order.
func (m Mask) Sections() []string {
	var names []string
	for _, b := range []Bit{BitInfra, BitToolchain, BitPackage} {
		if m.Has(b) {
			names = append(names, b.String())
		}
	}
	return names
}
