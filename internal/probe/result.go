package probe

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Finding is one concrete observation produced by a probe run.
type Finding struct {
	Category string   `json:"category"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Location string   `json:"location,omitempty"`
}

// Result is the canonical envelope every probe run is normalized into.
// Severity always equals OverallSeverity(Findings).
type Result struct {
	Findings  []Finding `json:"findings"`
	Severity  Severity  `json:"severity"`
	Repro     []string  `json:"repro,omitempty"`
	Rationale string    `json:"rationale,omitempty"`
}

// NewResult builds a Result whose overall severity is derived from findings.
func NewResult(findings ...Finding) Result {
	return Result{Findings: findings, Severity: OverallSeverity(findings)}
}

// OverallSeverity returns the maximum severity across findings, or Info when
// there are none.
func OverallSeverity(findings []Finding) Severity {
	overall := Info
	for _, f := range findings {
		overall = MaxSeverity(overall, f.Severity)
	}
	return overall
}

// FailureResult turns a probe execution failure into a single critical
// finding, for callers that display failures alongside normal results.
func FailureResult(err error) Result {
	return NewResult(Finding{
		Category: "probe_failure",
		Severity: Critical,
		Message:  err.Error(),
	})
}

// Resulter is implemented by probe outputs that are not a Result themselves
// but can describe one.
type Resulter interface {
	ProbeFindings() []Finding
	ProbeSeverity() Severity
}

// Reproducer is optionally implemented by a Resulter carrying repro evidence.
type Reproducer interface {
	ProbeRepro() []string
}

// Rationaler is optionally implemented by a Resulter carrying a rationale.
type Rationaler interface {
	ProbeRationale() string
}

// ErrMalformedResult is returned by NormalizeResult when the probe output has
// no recognizable shape. The accompanying Result is still usable: empty
// findings, severity info.
var ErrMalformedResult = errors.New("probe: malformed result")

// NormalizeResult coerces whatever a probe returned into a Result.
//
// Accepted shapes: Result, *Result, Resulter, map[string]any, and JSON
// encoded objects ([]byte, json.RawMessage, string starting with '{').
// Findings given as bare strings or arbitrary values become findings whose
// severity is the declared overall severity.
func NormalizeResult(v any) (Result, error) {
	switch r := v.(type) {
	case Result:
		return finalize(r), nil
	case *Result:
		if r == nil {
			return emptyResult(), fmt.Errorf("%w: nil result", ErrMalformedResult)
		}
		return finalize(*r), nil
	case Resulter:
		out := Result{Findings: r.ProbeFindings(), Severity: r.ProbeSeverity()}
		if rp, ok := v.(Reproducer); ok {
			out.Repro = rp.ProbeRepro()
		}
		if rt, ok := v.(Rationaler); ok {
			out.Rationale = rt.ProbeRationale()
		}
		return finalize(out), nil
	case map[string]any:
		return fromMap(r)
	case json.RawMessage:
		return fromJSON(r)
	case []byte:
		return fromJSON(r)
	case string:
		if strings.HasPrefix(strings.TrimSpace(r), "{") {
			return fromJSON([]byte(r))
		}
	}
	return emptyResult(), fmt.Errorf("%w: unsupported type %T", ErrMalformedResult, v)
}

func emptyResult() Result {
	return Result{Findings: []Finding{}, Severity: Info}
}

// finalize fills defaults on a copy; the caller's findings are never touched.
func finalize(r Result) Result {
	r.Findings = append([]Finding{}, r.Findings...)
	r.Repro = slices.Clone(r.Repro)
	for i := range r.Findings {
		if !r.Findings[i].Severity.Valid() {
			r.Findings[i].Severity = Info
		}
	}
	r.Severity = OverallSeverity(r.Findings)
	return r
}

func fromJSON(data []byte) (Result, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return emptyResult(), fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	return fromMap(m)
}

func fromMap(m map[string]any) (Result, error) {
	raw, hasFindings := m["findings"]
	sevRaw, hasSeverity := m["severity"]
	if !hasFindings && !hasSeverity {
		return emptyResult(), fmt.Errorf("%w: neither findings nor severity present", ErrMalformedResult)
	}

	declared := Info
	if s, ok := sevRaw.(string); ok {
		if parsed, err := ParseSeverity(s); err == nil {
			declared = parsed
		}
	}

	out := Result{Findings: coerceFindings(raw, declared)}
	if rationale, ok := m["rationale"].(string); ok {
		out.Rationale = rationale
	}
	switch repro := m["repro"].(type) {
	case []any:
		for _, item := range repro {
			out.Repro = append(out.Repro, fmt.Sprint(item))
		}
	case []string:
		out.Repro = repro
	case string:
		out.Repro = []string{repro}
	}
	return finalize(out), nil
}

func coerceFindings(raw any, declared Severity) []Finding {
	switch v := raw.(type) {
	case nil:
		return nil
	case []Finding:
		return v
	case string:
		return []Finding{{Category: "note", Severity: declared, Message: v}}
	case []any:
		findings := make([]Finding, 0, len(v))
		for _, item := range v {
			findings = append(findings, coerceFinding(item, declared))
		}
		return findings
	case []map[string]any:
		findings := make([]Finding, 0, len(v))
		for _, item := range v {
			findings = append(findings, coerceFinding(item, declared))
		}
		return findings
	case map[string]any:
		if _, ok := v["message"]; ok {
			return []Finding{coerceFinding(v, declared)}
		}
		findings := make([]Finding, 0, len(v))
		for k, val := range v {
			findings = append(findings, Finding{Category: k, Severity: declared, Message: fmt.Sprint(val)})
		}
		return findings
	default:
		return []Finding{{Category: "note", Severity: declared, Message: fmt.Sprint(v)}}
	}
}

func coerceFinding(item any, declared Severity) Finding {
	m, ok := item.(map[string]any)
	if !ok {
		return Finding{Category: "note", Severity: declared, Message: fmt.Sprint(item)}
	}
	f := Finding{Severity: declared}
	f.Category, _ = m["category"].(string)
	if f.Category == "" {
		f.Category, _ = m["name"].(string)
	}
	if s, ok := m["severity"].(string); ok {
		if parsed, err := ParseSeverity(s); err == nil {
			f.Severity = parsed
		}
	}
	f.Message, _ = m["message"].(string)
	f.Location, _ = m["location"].(string)
	if f.Location == "" {
		f.Location, _ = m["path"].(string)
	}
	return f
}
