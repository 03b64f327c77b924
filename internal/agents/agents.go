// Package agents holds the fixed reviewers that approve or flag a probe
// result.
package agents

import (
	"strings"

	"github.com/HendryAvila/hexprobe/internal/probe"
)

// Approver reviews a normalized probe result.
type Approver interface {
	Name() string
	Role() string
	Domains() []string
	Approve(res probe.Result) (bool, error)
}

// Default returns the six agents in evaluation order.
func Default() []Approver {
	return []Approver{
		Architect{},
		Fuzz{},
		Forensic{},
		Scale{},
		Edge{},
		Automation{},
	}
}

// Architect (Maya) rejects any high or critical structure finding.
type Architect struct{}

func (Architect) Name() string      { return "Maya" }
func (Architect) Role() string      { return "structural and architecture probing" }
func (Architect) Domains() []string { return []string{"architecture", "observability"} }

func (Architect) Approve(res probe.Result) (bool, error) {
	for _, f := range res.Findings {
		if f.Category == "structure" && f.Severity.Rank() >= probe.High.Rank() {
			return false, nil
		}
	}
	return true, nil
}

// Fuzz (Diego) approves only results without reproduction evidence.
type Fuzz struct{}

func (Fuzz) Name() string      { return "Diego" }
func (Fuzz) Role() string      { return "fuzzing and security" }
func (Fuzz) Domains() []string { return []string{"security", "memory safety"} }

// Approve treats a nil and an empty repro list alike: no reproduction evidence.
func (Fuzz) Approve(res probe.Result) (bool, error) {
	return len(res.Repro) == 0, nil
}

// Forensic (Ethan) wants the rationale to explain a root cause.
type Forensic struct{}

func (Forensic) Name() string      { return "Ethan" }
func (Forensic) Role() string      { return "forensics and root cause" }
func (Forensic) Domains() []string { return []string{"repro", "causality"} }

func (Forensic) Approve(res probe.Result) (bool, error) {
	return strings.Contains(strings.ToLower(res.Rationale), "root cause"), nil
}

// Scale (Omar) rejects high and critical results.
type Scale struct{}

func (Scale) Name() string      { return "Omar" }
func (Scale) Role() string      { return "performance and chaos" }
func (Scale) Domains() []string { return []string{"performance", "resilience"} }

func (Scale) Approve(res probe.Result) (bool, error) {
	return res.Severity.Rank() < probe.High.Rank(), nil
}

// Edge (Naomi) always approves.
type Edge struct{}

func (Edge) Name() string      { return "Naomi" }
func (Edge) Role() string      { return "edge cases and UX" }
func (Edge) Domains() []string { return []string{"UX", "boundary"} }

func (Edge) Approve(probe.Result) (bool, error) { return true, nil }

// Automation (Priya) always approves so pipelines can enforce results.
type Automation struct{}

func (Automation) Name() string      { return "Priya" }
func (Automation) Role() string      { return "CI/CD and automation" }
func (Automation) Domains() []string { return []string{"CI", "rollout"} }

func (Automation) Approve(probe.Result) (bool, error) { return true, nil }
