package tools

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/hexprobe/internal/agents"
	"github.com/HendryAvila/hexprobe/internal/global"
	"github.com/HendryAvila/hexprobe/internal/knowledge"
	"github.com/HendryAvila/hexprobe/internal/maintenance"
	"github.com/HendryAvila/hexprobe/internal/metrics"
	"github.com/HendryAvila/hexprobe/internal/orchestrator"
	"github.com/HendryAvila/hexprobe/internal/probe"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

type fixture struct {
	local    *knowledge.Store
	global   *global.SQLiteStore
	registry *probe.Registry
	orch     *orchestrator.Orchestrator
	metrics  *metrics.Collector

	// age shifts the local store clock into the past.
	age time.Duration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{}

	clock := func() time.Time { return time.Now().Add(-f.age) }
	local, err := knowledge.New(knowledge.Config{DataDir: dir, MaxRunHistory: 100, Clock: clock})
	if err != nil {
		t.Fatalf("failed to create local store: %v", err)
	}
	t.Cleanup(func() { _ = local.Close() })

	glob := global.NewSQLiteStore(filepath.Join(dir, "global"))
	t.Cleanup(func() { _ = glob.Close() })

	registry := probe.NewRegistry()
	mustRegister(t, registry, "lint_probe", probe.Func(func(ctx context.Context, repo string, _ *probe.Artifacts) (any, error) {
		return probe.NewResult(probe.Finding{Category: "lint", Severity: probe.Medium, Message: "unused import in main.go"}), nil
	}))
	mustRegister(t, registry, "broken", probe.Func(func(ctx context.Context, repo string, _ *probe.Artifacts) (any, error) {
		return nil, &probe.ExecutionError{Probe: "broken", Command: []string{"golangci-lint"}, ExitCode: 2}
	}))

	f.local, f.global, f.registry = local, glob, registry
	f.metrics = metrics.New()
	f.orch = orchestrator.New(local, glob, orchestrator.Config{Metrics: f.metrics})
	return f
}

func mustRegister(t *testing.T, r *probe.Registry, id string, p probe.Probe) {
	t.Helper()
	if err := r.Register(probe.Descriptor{ID: id, Name: id, Description: id + " probe", Probe: p}); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

type handler interface {
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

func call(t *testing.T, h handler, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	res, err := h.Handle(context.Background(), makeReq(args))
	if err != nil {
		t.Fatalf("handler returned Go error: %v", err)
	}
	return res
}

func mustOK(t *testing.T, h handler, args map[string]interface{}) string {
	t.Helper()
	res := call(t, h, args)
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(res))
	}
	return resultText(res)
}

func mustFail(t *testing.T, h handler, args map[string]interface{}) string {
	t.Helper()
	res := call(t, h, args)
	if !res.IsError {
		t.Fatalf("expected tool error, got: %s", resultText(res))
	}
	return resultText(res)
}

func (f *fixture) record(t *testing.T, id, category, description string) {
	t.Helper()
	tool := NewPatternRecordTool(f.local, knowledge.IDContent, f.metrics)
	mustOK(t, tool, map[string]interface{}{"id": id, "category": category, "description": description})
}

// ─── Definitions ─────────────────────────────────────────────────────────────

func TestDefinitions_NamesAndRequired(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		def      mcp.Tool
		name     string
		required []string
	}{
		{NewProbeListTool(f.registry).Definition(), "probe_list", nil},
		{NewProbeRunTool(f.registry, f.orch).Definition(), "probe_run", []string{"probe"}},
		{NewAgentListTool(agents.Default()).Definition(), "agent_list", nil},
		{NewPatternRecordTool(f.local, knowledge.IDContent, nil).Definition(), "pattern_record", []string{"category", "description"}},
		{NewPatternRecurrentTool(f.local, 5).Definition(), "pattern_recurrent", nil},
		{NewPatternPromoteTool(f.local, f.global, nil).Definition(), "pattern_promote", []string{"id"}},
		{NewPatternSetStatusTool(f.local).Definition(), "pattern_set_status", []string{"id", "status"}},
		{NewPatternFalsePositiveTool(f.local).Definition(), "pattern_false_positive", []string{"id"}},
		{NewPatternAdjustSeverityTool(f.local).Definition(), "pattern_adjust_severity", []string{"id"}},
		{NewPatternConflictsTool(f.local).Definition(), "pattern_conflicts", nil},
		{NewMemoryPruneTool(nil, 180, nil).Definition(), "memory_prune", nil},
		{NewProbeGenerateTool(f.local, f.global, nil).Definition(), "probe_generate", []string{"pattern_id"}},
		{NewProbeLineageTool(f.local, f.global).Definition(), "probe_lineage", []string{"probe_id"}},
		{NewProbeOriginTool(f.local, f.global).Definition(), "probe_origin", []string{"probe_id"}},
		{NewRunHistoryTool(f.local).Definition(), "run_history", nil},
	}
	for _, tt := range tests {
		if tt.def.Name != tt.name {
			t.Errorf("tool name = %q, want %q", tt.def.Name, tt.name)
		}
		for _, r := range tt.required {
			found := false
			for _, got := range tt.def.InputSchema.Required {
				if got == r {
					found = true
				}
			}
			if !found {
				t.Errorf("%s: %q should be required", tt.name, r)
			}
		}
	}
}

// ─── Probe tools ─────────────────────────────────────────────────────────────

func TestProbeListTool(t *testing.T) {
	f := newFixture(t)
	text := mustOK(t, NewProbeListTool(f.registry), nil)
	if !strings.Contains(text, "`lint_probe`") || !strings.Contains(text, "`broken`") {
		t.Errorf("probe list missing entries:\n%s", text)
	}
	if strings.Index(text, "lint_probe") > strings.Index(text, "broken") {
		t.Error("probes should be listed in registration order")
	}
}

func TestProbeRunTool_FullCycle(t *testing.T) {
	f := newFixture(t)
	tool := NewProbeRunTool(f.registry, f.orch)
	text := mustOK(t, tool, map[string]interface{}{"probe": "lint_probe", "repo": t.TempDir()})

	var cycle orchestrator.Cycle
	if err := json.Unmarshal([]byte(text), &cycle); err != nil {
		t.Fatalf("cycle is not JSON: %v\n%s", err, text)
	}
	if cycle.Result.Severity != probe.Medium {
		t.Errorf("severity = %q, want medium", cycle.Result.Severity)
	}
	if len(cycle.Approvals) != len(agents.Default()) {
		t.Errorf("approvals = %d, want %d", len(cycle.Approvals), len(agents.Default()))
	}
	if len(cycle.PatternIDs) != 1 || len(cycle.ProbeIDs) != 1 {
		t.Fatalf("pattern ids = %v, probe ids = %v", cycle.PatternIDs, cycle.ProbeIDs)
	}
	if _, err := f.local.GetPattern(context.Background(), cycle.PatternIDs[0]); err != nil {
		t.Errorf("learned pattern not stored: %v", err)
	}
}

func TestProbeRunTool_ProbeFailureShowsCriticalFinding(t *testing.T) {
	f := newFixture(t)
	text := mustFail(t, NewProbeRunTool(f.registry, f.orch), map[string]interface{}{"probe": "broken", "repo": t.TempDir()})

	var out failedRun
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("failure is not JSON: %v\n%s", err, text)
	}
	if out.Result.Severity != probe.Critical || len(out.Result.Findings) != 1 {
		t.Errorf("failure result = %+v, want one critical finding", out.Result)
	}
	runs, err := f.local.RecentRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("failed probe should not be recorded, got %d runs", len(runs))
	}
}

func TestProbeRunTool_Validation(t *testing.T) {
	f := newFixture(t)
	tool := NewProbeRunTool(f.registry, f.orch)
	mustFail(t, tool, map[string]interface{}{})
	if text := mustFail(t, tool, map[string]interface{}{"probe": "nope"}); !strings.Contains(text, "unknown probe") {
		t.Errorf("unexpected error: %s", text)
	}
}

func TestAgentListTool_Order(t *testing.T) {
	text := mustOK(t, NewAgentListTool(agents.Default()), nil)
	if !strings.HasPrefix(strings.Split(text, "\n")[2], "1. **Maya**") {
		t.Errorf("first agent should be Maya:\n%s", text)
	}
}

// ─── Pattern tools ───────────────────────────────────────────────────────────

func TestPatternRecordTool_UpsertIncrements(t *testing.T) {
	f := newFixture(t)
	tool := NewPatternRecordTool(f.local, knowledge.IDContent, f.metrics)
	args := map[string]interface{}{"category": "lint", "description": "unused import", "severity": "high"}

	mustOK(t, tool, args)
	text := mustOK(t, tool, args)

	var p knowledge.Pattern
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		t.Fatalf("pattern is not JSON: %v", err)
	}
	if p.ID != knowledge.PatternID("lint", "unused import") {
		t.Errorf("id = %q, want content hash", p.ID)
	}
	if p.TriggerCount != 1 || p.Severity != probe.High {
		t.Errorf("pattern = %+v, want trigger_count 1 and high", p)
	}
}

func TestPatternRecordTool_Validation(t *testing.T) {
	f := newFixture(t)
	tool := NewPatternRecordTool(f.local, knowledge.IDContent, nil)
	mustFail(t, tool, map[string]interface{}{"description": "x"})
	mustFail(t, tool, map[string]interface{}{"category": "lint"})
	mustFail(t, tool, map[string]interface{}{"category": "lint", "description": "x", "severity": "urgent"})
}

func TestPatternRecurrentTool(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.record(t, "p_hot", "lint", "hot")
	}
	f.record(t, "p_cold", "lint", "cold")

	tool := NewPatternRecurrentTool(f.local, 5)
	if text := mustOK(t, tool, nil); !strings.Contains(text, "No patterns") {
		t.Errorf("default threshold should match nothing:\n%s", text)
	}

	var patterns []knowledge.Pattern
	text := mustOK(t, tool, map[string]interface{}{"min_triggers": float64(2)})
	if err := json.Unmarshal([]byte(text), &patterns); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if len(patterns) != 1 || patterns[0].ID != "p_hot" {
		t.Errorf("recurrent = %+v, want only p_hot", patterns)
	}
}

func TestPatternPromoteTool_WithLineage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.record(t, "p1", "lint", "unused import")
	p, err := f.local.GetPattern(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	probeID, _, err := f.local.GenerateProbe(ctx, *p, "BUG-1", nil, "repo-a")
	if err != nil {
		t.Fatal(err)
	}

	tool := NewPatternPromoteTool(f.local, f.global, f.metrics)
	mustOK(t, tool, map[string]interface{}{"id": "p1", "include_lineage": true})
	text := mustOK(t, tool, map[string]interface{}{"id": "p1"})
	if !strings.Contains(text, "global trigger_count: 1") {
		t.Errorf("second promotion should increment global count:\n%s", text)
	}

	l, err := f.global.GetLineage(ctx, probeID)
	if err != nil || l == nil {
		t.Fatalf("global lineage = %v, %v", l, err)
	}
	if l.BugID != "BUG-1" {
		t.Errorf("bug id = %q, want BUG-1", l.BugID)
	}

	mustFail(t, tool, map[string]interface{}{"id": "missing"})
}

func TestPatternPromoteTool_RefusesDeprecated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.record(t, "p_loser", "lint", "unused import")
	f.record(t, "p_winner", "lint", "unused import")
	if err := f.local.Deprecate(ctx, "p_loser", "p_winner"); err != nil {
		t.Fatal(err)
	}

	tool := NewPatternPromoteTool(f.local, f.global, f.metrics)
	text := mustFail(t, tool, map[string]interface{}{"id": "p_loser"})
	if !strings.Contains(text, "deprecated") || !strings.Contains(text, "p_winner") {
		t.Errorf("error should name the redirect target: %q", text)
	}
	if _, err := f.global.GetPattern(ctx, "p_loser"); !errors.Is(err, knowledge.ErrPatternNotFound) {
		t.Errorf("deprecated pattern reached the global store: %v", err)
	}

	mustOK(t, tool, map[string]interface{}{"id": "p_winner"})
}

func TestPatternSetStatusTool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.record(t, "p1", "lint", "unused import")

	tool := NewPatternSetStatusTool(f.local)
	text := mustOK(t, tool, map[string]interface{}{"id": "p1", "status": "core"})
	if !strings.Contains(text, "p1 marked core") {
		t.Errorf("text = %q", text)
	}
	st, err := f.local.Status(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != knowledge.StatusCore {
		t.Errorf("status = %s, want core", st.Status)
	}

	mustFail(t, tool, map[string]interface{}{"id": "p1", "status": "deprecated"})
	mustFail(t, tool, map[string]interface{}{"id": "p1", "status": "bogus"})
	mustFail(t, tool, map[string]interface{}{"id": "missing", "status": "core"})
	mustFail(t, tool, map[string]interface{}{"status": "core"})
}

func TestPatternFalsePositiveAndAdjust(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.record(t, "p1", "lint", "noisy rule")

	fp := NewPatternFalsePositiveTool(f.local)
	for i := 0; i < 3; i++ {
		mustOK(t, fp, map[string]interface{}{"id": "p1"})
	}
	mustFail(t, fp, map[string]interface{}{"id": "missing"})

	adjust := NewPatternAdjustSeverityTool(f.local)
	text := mustOK(t, adjust, map[string]interface{}{"id": "p1", "dry_run": true})
	if !strings.Contains(text, "would change medium → low") {
		t.Errorf("dry run text = %q", text)
	}
	p, _ := f.local.GetPattern(ctx, "p1")
	if p.Severity != probe.Medium {
		t.Errorf("dry run saved severity %q", p.Severity)
	}

	mustOK(t, adjust, map[string]interface{}{"id": "p1"})
	p, _ = f.local.GetPattern(ctx, "p1")
	if p.Severity != probe.Low {
		t.Errorf("severity = %q, want low", p.Severity)
	}

	text = mustOK(t, adjust, map[string]interface{}{"id": "p1"})
	if !strings.Contains(text, "stays low") {
		t.Errorf("low with 3 false positives should clamp: %q", text)
	}
}

func TestPatternAdjustSeverityTool_InfoIsUnadjustable(t *testing.T) {
	f := newFixture(t)
	mustOK(t, NewPatternRecordTool(f.local, knowledge.IDContent, nil),
		map[string]interface{}{"id": "p_info", "category": "docs", "description": "missing readme", "severity": "info"})
	mustFail(t, NewPatternAdjustSeverityTool(f.local), map[string]interface{}{"id": "p_info"})
}

func TestPatternConflictsTool_DetectThenResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.record(t, "p_a", "lint", "Unused import in file 12")
	f.record(t, "p_b", "lint", "unused import in file 7")
	f.record(t, "p_b", "lint", "unused import in file 7")
	f.record(t, "p_c", "boundary", "unused import in file 7")

	tool := NewPatternConflictsTool(f.local)
	text := mustOK(t, tool, nil)
	if !strings.Contains(text, "p_a ↔ p_b") || !strings.Contains(text, "keep p_b") {
		t.Errorf("detect output:\n%s", text)
	}
	if st, _ := f.local.Status(ctx, "p_a"); st.Status != knowledge.StatusActive {
		t.Error("detect must not change status")
	}

	text = mustOK(t, tool, map[string]interface{}{"resolve": true})
	if !strings.Contains(text, "p_a deprecated → p_b") {
		t.Errorf("resolve output:\n%s", text)
	}
	st, err := f.local.Status(ctx, "p_a")
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != knowledge.StatusDeprecated || st.RedirectTo != "p_b" {
		t.Errorf("status = %+v, want deprecated → p_b", st)
	}

	if text := mustOK(t, tool, nil); text != "No conflicts." {
		t.Errorf("after resolve: %q", text)
	}
}

func TestPatternConflictsTool_CoreWinsOverTriggerCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.record(t, "p_core", "lint", "unused import in file 3")
	for i := 0; i < 3; i++ {
		f.record(t, "p_hot", "lint", "unused import in file 7")
	}
	mustOK(t, NewPatternSetStatusTool(f.local), map[string]interface{}{"id": "p_core", "status": "core"})

	text := mustOK(t, NewPatternConflictsTool(f.local), map[string]interface{}{"resolve": true})
	if !strings.Contains(text, "p_hot deprecated → p_core") {
		t.Errorf("resolve output:\n%s", text)
	}
	st, err := f.local.Status(ctx, "p_hot")
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != knowledge.StatusDeprecated || st.RedirectTo != "p_core" {
		t.Errorf("status = %+v, want deprecated → p_core", st)
	}
}

// ─── Lineage tools ───────────────────────────────────────────────────────────

func TestProbeGenerateLineageOrigin(t *testing.T) {
	f := newFixture(t)
	f.record(t, "p1", "boundary", "off by one in pager")

	gen := NewProbeGenerateTool(f.local, f.global, f.metrics)
	text := mustOK(t, gen, map[string]interface{}{
		"pattern_id": "p1", "bug_id": "BUG-7", "fix_commit": "abc123", "repo": "repo-a", "promote": true,
	})
	var out generated
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if len(out.Result.Findings) != 1 || out.Result.Severity != probe.Medium {
		t.Errorf("generated result = %+v", out.Result)
	}

	for _, scope := range []string{"local", "global"} {
		text := mustOK(t, NewProbeLineageTool(f.local, f.global), map[string]interface{}{"probe_id": out.ProbeID, "scope": scope})
		var l knowledge.Lineage
		if err := json.Unmarshal([]byte(text), &l); err != nil {
			t.Fatalf("%s lineage not JSON: %v\n%s", scope, err, text)
		}
		if l.PatternID != "p1" || l.FixCommit == nil || *l.FixCommit != "abc123" {
			t.Errorf("%s lineage = %+v", scope, l)
		}

		text = mustOK(t, NewProbeOriginTool(f.local, f.global), map[string]interface{}{"probe_id": out.ProbeID, "scope": scope})
		var origins []knowledge.Origin
		if err := json.Unmarshal([]byte(text), &origins); err != nil {
			t.Fatalf("%s origin not JSON: %v", scope, err)
		}
		if len(origins) != 1 || origins[0].OriginatingRepo != "repo-a" || origins[0].BugID != "BUG-7" {
			t.Errorf("%s origins = %+v", scope, origins)
		}
	}
}

func TestProbeLineageTool_Missing(t *testing.T) {
	f := newFixture(t)
	text := mustOK(t, NewProbeLineageTool(f.local, f.global), map[string]interface{}{"probe_id": "nope"})
	if !strings.Contains(text, "No local lineage") {
		t.Errorf("text = %q", text)
	}
	text = mustOK(t, NewProbeOriginTool(f.local, f.global), map[string]interface{}{"probe_id": "nope", "scope": "global"})
	if !strings.Contains(text, "No global origin") {
		t.Errorf("text = %q", text)
	}
	mustFail(t, NewProbeOriginTool(f.local, f.global), map[string]interface{}{"probe_id": "nope", "scope": "cluster"})
}

func TestProbeGenerateTool_UnknownPattern(t *testing.T) {
	f := newFixture(t)
	mustFail(t, NewProbeGenerateTool(f.local, f.global, nil), map[string]interface{}{"pattern_id": "missing"})
}

// ─── Maintenance tools ───────────────────────────────────────────────────────

func TestMemoryPruneTool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.age = 200 * 24 * time.Hour
	f.record(t, "p_old", "lint", "old")
	f.age = 0
	f.record(t, "p_new", "lint", "new")

	targets := []maintenance.Target{{Name: "local", Store: f.local}, {Name: "global", Store: f.global}}
	tool := NewMemoryPruneTool(targets, 180, f.metrics)
	text := mustOK(t, tool, nil)
	if !strings.Contains(text, "**local**: 1 patterns") {
		t.Errorf("prune output:\n%s", text)
	}
	if _, err := f.local.GetPattern(ctx, "p_new"); err != nil {
		t.Errorf("recent pattern pruned: %v", err)
	}

	mustFail(t, tool, map[string]interface{}{"max_age_days": float64(-1)})
}

func TestRunHistoryTool(t *testing.T) {
	f := newFixture(t)
	tool := NewRunHistoryTool(f.local)
	if text := mustOK(t, tool, nil); text != "No runs recorded yet." {
		t.Errorf("empty history text = %q", text)
	}

	mustOK(t, NewProbeRunTool(f.registry, f.orch), map[string]interface{}{"probe": "lint_probe", "repo": "repo-a"})
	text := mustOK(t, tool, nil)
	if !strings.Contains(text, "`lint_probe` on repo-a: medium, 1 findings, 1 patches") {
		t.Errorf("history:\n%s", text)
	}
	if !strings.Contains(text, "Store: 1 patterns (0 deprecated), 1 lineage rows, 1 runs") {
		t.Errorf("history should carry store totals:\n%s", text)
	}
}
