package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Fuzz runs the repository's fuzz harness and collects crash files.
type Fuzz struct {
	Command  []string // default ./fuzz/run.sh
	CrashDir string   // relative to repo, default artifacts/fuzz/crashes
	Runner   Runner
	Timeout  time.Duration
}

// Run executes the harness. The harness exit code is ignored; crashes are
// detected from files in the crash directory and stored in artifacts under
// "fuzz_crashes".
func (f *Fuzz) Run(ctx context.Context, repo string, artifacts *Artifacts) (any, error) {
	command := f.Command
	if len(command) == 0 {
		command = []string{"./fuzz/run.sh"}
	}
	crashDir := f.CrashDir
	if crashDir == "" {
		crashDir = filepath.Join("artifacts", "fuzz", "crashes")
	}
	crashDir = filepath.Join(repo, crashDir)
	if err := os.MkdirAll(crashDir, 0o755); err != nil {
		return nil, fmt.Errorf("probe fuzz: crash dir: %w", err)
	}

	if _, _, err := run(ctx, f.Runner, "fuzz", repo, f.Timeout, command); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(crashDir)
	if err != nil {
		return nil, fmt.Errorf("probe fuzz: read crash dir: %w", err)
	}
	var crashes []string
	for _, e := range entries {
		crashes = append(crashes, filepath.Join(crashDir, e.Name()))
	}
	if len(crashes) == 0 {
		return NewResult(Finding{Category: "fuzz", Severity: Info, Message: "fuzz stable"}), nil
	}

	artifacts.Put("fuzz_crashes", crashes)
	res := NewResult(Finding{Category: "fuzz", Severity: Critical, Message: fmt.Sprintf("fuzz crashes detected (%d)", len(crashes))})
	res.Repro = crashes
	return res, nil
}

// DefaultPerfBaseline is used when the "perf_baseline" artifact is absent.
var DefaultPerfBaseline = map[string]float64{"p95": 100, "p99": 200, "error_rate": 0}

// Perf runs a k6 load test and reports metrics more than 5% above baseline.
type Perf struct {
	Command []string // default k6 run load.js --summary-export=summary.json
	Summary string   // relative to repo, default summary.json
	Runner  Runner
	Timeout time.Duration
}

type k6Summary struct {
	Metrics struct {
		Duration struct {
			P95 float64 `json:"p(95)"`
			P99 float64 `json:"p(99)"`
		} `json:"http_req_duration"`
		Failed struct {
			Rate float64 `json:"rate"`
		} `json:"http_req_failed"`
	} `json:"metrics"`
}

// Run executes the load test. An unreadable summary means "no change from
// baseline".
func (p *Perf) Run(ctx context.Context, repo string, artifacts *Artifacts) (any, error) {
	baseline := DefaultPerfBaseline
	if v, ok := artifacts.Get("perf_baseline"); ok {
		if b, ok := v.(map[string]float64); ok {
			baseline = b
		}
	}
	command := p.Command
	if len(command) == 0 {
		command = []string{"k6", "run", "load.js", "--summary-export=summary.json"}
	}
	summaryPath := p.Summary
	if summaryPath == "" {
		summaryPath = "summary.json"
	}

	if _, _, err := run(ctx, p.Runner, "perf", repo, p.Timeout, command); err != nil {
		return nil, err
	}

	current := baseline
	if data, err := os.ReadFile(filepath.Join(repo, summaryPath)); err == nil {
		var s k6Summary
		if json.Unmarshal(data, &s) == nil {
			current = map[string]float64{
				"p95":        s.Metrics.Duration.P95,
				"p99":        s.Metrics.Duration.P99,
				"error_rate": s.Metrics.Failed.Rate,
			}
		}
	}

	var findings []Finding
	for _, metric := range sortedKeys(current) {
		v := current[metric]
		base := baseline[metric]
		if v > base*1.05 {
			findings = append(findings, Finding{
				Category: "perf",
				Severity: High,
				Message:  fmt.Sprintf("%s regressed: %.2f -> %.2f", metric, base, v),
			})
		}
	}
	if len(findings) == 0 {
		return NewResult(Finding{Category: "perf", Severity: Info, Message: "performance stable"}), nil
	}
	return NewResult(findings...), nil
}

// DefaultChaosScenarios are the disruptions Chaos applies when none are set.
var DefaultChaosScenarios = [][]string{
	{"chaos", "kill", "service"},
	{"chaos", "latency", "500ms"},
	{"chaos", "cpu", "90%"},
}

// Chaos runs disruption scenarios and reports the ones the service did not
// tolerate (non-zero exit).
type Chaos struct {
	Scenarios [][]string
	Runner    Runner
	Timeout   time.Duration
}

// Run executes every scenario in order.
func (c *Chaos) Run(ctx context.Context, repo string, _ *Artifacts) (any, error) {
	scenarios := c.Scenarios
	if len(scenarios) == 0 {
		scenarios = DefaultChaosScenarios
	}
	var findings []Finding
	for _, scenario := range scenarios {
		_, code, err := run(ctx, c.Runner, "chaos", repo, c.Timeout, scenario)
		if err != nil {
			return nil, err
		}
		if code != 0 {
			findings = append(findings, Finding{
				Category: "chaos",
				Severity: Critical,
				Message:  "scenario not tolerated: " + strings.Join(scenario, " "),
			})
		}
	}
	if len(findings) == 0 {
		return NewResult(Finding{Category: "chaos", Severity: Info, Message: "chaos tolerated"}), nil
	}
	return NewResult(findings...), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
