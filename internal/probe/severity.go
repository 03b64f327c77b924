package probe

import (
	"errors"
	"fmt"
	"strings"
)

// Severity is the ordered severity scale shared by findings, results and
// stored patterns: info < low < medium < high < critical.
type Severity string

const (
	Info     Severity = "info"
	Low      Severity = "low"
	Medium   Severity = "medium"
	High     Severity = "high"
	Critical Severity = "critical"
)

// Levels lists every severity in ascending order.
var Levels = []Severity{Info, Low, Medium, High, Critical}

// ErrUnknownSeverity is returned when a string is not on the severity scale.
var ErrUnknownSeverity = errors.New("probe: unknown severity")

// ParseSeverity converts s into a Severity. Matching is case-insensitive and
// ignores surrounding whitespace.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSeverity, s)
	}
	return sev, nil
}

// Rank returns the position of s on the scale, or -1 if s is unknown.
func (s Severity) Rank() int {
	for i, lvl := range Levels {
		if lvl == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is on the scale.
func (s Severity) Valid() bool { return s.Rank() >= 0 }

func (s Severity) String() string { return string(s) }

// MaxSeverity returns the more severe of a and b. Unknown values rank below info.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}
