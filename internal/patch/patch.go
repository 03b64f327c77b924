// Package patch maps findings to fixed remediation templates.
package patch

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HendryAvila/hexprobe/internal/probe"
)

// Patch is a proposed remediation for one finding.
type Patch struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	CodeSnippet string    `json:"code_snippet"`
	Rationale   string    `json:"rationale"`
	CreatedAt   time.Time `json:"created_at"`
}

// Template is the fixed text attached to a family of findings.
type Template struct {
	Match       string
	CodeSnippet string
	Rationale   string
}

// Templates are tried in order against the finding category; the first
// substring match wins.
var Templates = []Template{
	{"lint", "# Fixed lint issues according to project style guide", "Applies auto-lint corrections to comply with code style"},
	{"type", "# Added type annotations to match static types", "Corrects type mismatches detected by type checker"},
	{"boundary", "# Validate input with safe guards", "Prevents unsafe user input to reduce security risk"},
}

// Fallback applies when no template matches.
var Fallback = Template{
	CodeSnippet: "# Manual review required",
	Rationale:   "No automatic patch available; requires human review",
}

// Lookup returns the template for category.
func Lookup(category string) Template {
	for _, t := range Templates {
		if strings.Contains(category, t.Match) {
			return t
		}
	}
	return Fallback
}

// Synthesize proposes a patch for f. The description is the finding message.
func Synthesize(f probe.Finding) Patch {
	t := Lookup(f.Category)
	return Patch{
		ID:          uuid.NewString(),
		Category:    f.Category,
		Description: f.Message,
		CodeSnippet: t.CodeSnippet,
		Rationale:   t.Rationale,
		CreatedAt:   time.Now().UTC(),
	}
}

// SynthesizeAll proposes one patch per finding, in order.
func SynthesizeAll(findings []probe.Finding) []Patch {
	patches := make([]Patch, 0, len(findings))
	for _, f := range findings {
		patches = append(patches, Synthesize(f))
	}
	return patches
}
