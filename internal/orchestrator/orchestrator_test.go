package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/HendryAvila/hexprobe/internal/agents"
	"github.com/HendryAvila/hexprobe/internal/global"
	"github.com/HendryAvila/hexprobe/internal/knowledge"
	"github.com/HendryAvila/hexprobe/internal/metrics"
	"github.com/HendryAvila/hexprobe/internal/probe"
)

type fixture struct {
	orch   *Orchestrator
	local  *knowledge.Store
	global *global.SQLiteStore
	spans  *tracetest.SpanRecorder
	met    *metrics.Collector
}

func newFixture(t *testing.T, approvers ...agents.Approver) *fixture {
	t.Helper()
	local, err := knowledge.New(knowledge.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	glob := global.NewSQLiteStore(filepath.Join(t.TempDir(), "global"))
	t.Cleanup(func() { glob.Close() })

	spans := tracetest.NewSpanRecorder()
	met := metrics.New()
	cfg := Config{
		IDMode:         knowledge.IDContent,
		Metrics:        met,
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
	}
	if len(approvers) > 0 {
		cfg.Agents = approvers
	}
	return &fixture{orch: New(local, glob, cfg), local: local, global: glob, spans: spans, met: met}
}

func fixed(v any, err error) probe.Descriptor {
	return probe.Descriptor{ID: "fixed", Probe: probe.Func(func(context.Context, string, *probe.Artifacts) (any, error) {
		return v, err
	})}
}

type panicky struct{ agents.Edge }

func (panicky) Name() string { return "Panicky" }
func (panicky) Approve(probe.Result) (bool, error) {
	panic("boom")
}

type failing struct{ agents.Edge }

func (failing) Name() string { return "Failing" }
func (failing) Approve(probe.Result) (bool, error) {
	return true, errors.New("cannot decide")
}

// counterValue sums every series of the named counter.
func counterValue(t *testing.T, c *metrics.Collector, name string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

// ─── Full cycle ─────────────────────────────────────────────────────────────

func TestRunFullCycle_LearnsPromotesAndRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	raw := map[string]any{
		"findings": []any{
			map[string]any{"category": "lint", "severity": "medium", "message": "Lint issues detected"},
			map[string]any{"category": "perf", "severity": "high", "message": "p95 regressed"},
		},
		"severity": "high",
	}

	c, err := f.orch.RunFullCycle(ctx, fixed(raw, nil), "/repos/api", nil)
	require.NoError(t, err)

	assert.Equal(t, probe.High, c.Result.Severity)
	require.Len(t, c.Approvals, 6)
	assert.Equal(t, "Maya", c.Approvals[0].Agent)
	assert.False(t, c.Approvals[3].Approved, "Omar rejects high results")
	require.Len(t, c.Patches, 2)
	assert.Equal(t, "# Manual review required", c.Patches[1].CodeSnippet)
	require.Len(t, c.PatternIDs, 2)
	require.Len(t, c.ProbeIDs, 2)
	assert.NotEmpty(t, c.RunID)

	p, err := f.local.GetPattern(ctx, c.PatternIDs[0])
	require.NoError(t, err)
	assert.Equal(t, AutoGeneratedCategory, p.Category)
	assert.Equal(t, "Lint issues detected", p.Description)
	assert.Equal(t, probe.High, p.Severity, "pattern takes the overall result severity")

	gp, err := f.global.GetPattern(ctx, c.PatternIDs[0])
	require.NoError(t, err)
	assert.Equal(t, p.CreatedAt, gp.CreatedAt)

	l, err := f.local.GetProbeLineage(ctx, c.ProbeIDs[0])
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Nil(t, l.FixCommit)
	assert.Equal(t, "/repos/api", l.OriginatingRepo)
	gl, err := f.global.GetLineage(ctx, c.ProbeIDs[0])
	require.NoError(t, err)
	require.NotNil(t, gl)
	assert.Equal(t, c.PatternIDs[0], gl.PatternID)

	runs, err := f.local.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].PatchCount)
	assert.Len(t, runs[0].Approvals, 6)
}

func TestRunFullCycle_RepeatedFindingsConverge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	raw := probe.NewResult(probe.Finding{Category: "lint", Severity: probe.Low, Message: "Lint issues detected"})

	first, err := f.orch.RunFullCycle(ctx, fixed(raw, nil), "/r", nil)
	require.NoError(t, err)
	gp, err := f.global.GetPattern(ctx, first.PatternIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 1, gp.TriggerCount, "a new pattern is promoted with one trigger")

	second, err := f.orch.RunFullCycle(ctx, fixed(raw, nil), "/r", nil)
	require.NoError(t, err)
	assert.Equal(t, first.PatternIDs, second.PatternIDs)

	p, err := f.local.GetPattern(ctx, first.PatternIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 1, p.TriggerCount)

	gp, err = f.global.GetPattern(ctx, first.PatternIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 2, gp.TriggerCount, "second promotion increments")

	assert.Equal(t, 2.0, counterValue(t, f.met, "hexprobe_patterns_learned_total"))
}

func TestRunFullCycle_ProbeErrorPropagatesUnchanged(t *testing.T) {
	f := newFixture(t)
	probeErr := &probe.ExecutionError{Probe: "fixed", Command: []string{"k6"}, ExitCode: 2}

	c, err := f.orch.RunFullCycle(context.Background(), fixed(nil, probeErr), "/r", nil)
	assert.Nil(t, c)
	assert.Same(t, probeErr, err)
	assert.True(t, IsProbeFailure(err))

	runs, _ := f.local.RecentRuns(context.Background(), 0)
	assert.Empty(t, runs, "failed probe is not recorded")
}

func TestRunFullCycle_MalformedResultDegrades(t *testing.T) {
	f := newFixture(t)
	c, err := f.orch.RunFullCycle(context.Background(), fixed(42, nil), "/r", nil)
	require.NoError(t, err)
	assert.Equal(t, probe.Info, c.Result.Severity)
	assert.Empty(t, c.Patches)
	assert.Empty(t, c.PatternIDs)
	assert.Len(t, c.Approvals, 6)
}

func TestRunFullCycle_SkipsDeprecatedPattern(t *testing.T) {
	f := newFixture(t, agents.Edge{})
	ctx := context.Background()
	finding := probe.Finding{Category: "lint", Severity: probe.Low, Message: "Lint issues detected"}
	id := knowledge.PatternID(finding.Category, finding.Message)

	// A deprecated row without a redirect has no live target.
	db, err := sql.Open("sqlite", f.local.Path())
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(
		`INSERT INTO pattern_status (pattern_id, status, redirect_to, updated_at) VALUES (?, 'deprecated', NULL, ?)`,
		id, knowledge.FormatTime(time.Now()))
	require.NoError(t, err)

	c, err := f.orch.RunFullCycle(ctx, fixed(probe.NewResult(finding), nil), "/r", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, c.Skipped)
	assert.Empty(t, c.PatternIDs)
	_, err = f.global.GetPattern(ctx, id)
	assert.ErrorIs(t, err, knowledge.ErrPatternNotFound, "deprecated pattern must not be promoted")
}

func TestRunFullCycle_FollowsRedirect(t *testing.T) {
	f := newFixture(t, agents.Edge{})
	ctx := context.Background()
	finding := probe.Finding{Category: "lint", Severity: probe.Low, Message: "Lint issues detected"}
	id := knowledge.PatternID(finding.Category, finding.Message)
	require.NoError(t, f.local.UpsertPattern(ctx, "pat_winner", AutoGeneratedCategory, "Lint issues detected", probe.Low))
	require.NoError(t, f.local.Deprecate(ctx, id, "pat_winner"))

	c, err := f.orch.RunFullCycle(ctx, fixed(probe.NewResult(finding), nil), "/r", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"pat_winner"}, c.PatternIDs)
}

func TestNew_DefaultsToRandomIDs(t *testing.T) {
	f := newFixture(t)
	o := New(f.local, f.global, Config{})
	assert.Equal(t, knowledge.IDRandom, o.idMode)
}

func TestRunFullCycle_RandomIDs(t *testing.T) {
	f := newFixture(t)
	f.orch.idMode = knowledge.IDRandom
	raw := probe.NewResult(probe.Finding{Category: "lint", Severity: probe.Low, Message: "same"})

	a, err := f.orch.RunFullCycle(context.Background(), fixed(raw, nil), "/r", nil)
	require.NoError(t, err)
	b, err := f.orch.RunFullCycle(context.Background(), fixed(raw, nil), "/r", nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.PatternIDs, b.PatternIDs)
}

// ─── Stages ─────────────────────────────────────────────────────────────────

func TestEvaluateWithAgents_IsolatesFailures(t *testing.T) {
	f := newFixture(t, agents.Edge{}, panicky{}, failing{}, agents.Automation{})

	approvals := f.orch.EvaluateWithAgents(probe.NewResult())
	require.Len(t, approvals, 4)
	assert.True(t, approvals[0].Approved)
	assert.False(t, approvals[1].Approved)
	assert.Contains(t, approvals[1].Err, "panicked")
	assert.False(t, approvals[2].Approved, "an erroring agent never approves")
	assert.Equal(t, "cannot decide", approvals[2].Err)
	assert.True(t, approvals[3].Approved, "later agents still run")
}

func TestRunFullCycle_Spans(t *testing.T) {
	f := newFixture(t, agents.Edge{})
	_, err := f.orch.RunFullCycle(context.Background(), fixed(probe.NewResult(), nil), "/r", nil)
	require.NoError(t, err)

	var names []string
	for _, s := range f.spans.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{
		"orchestrator.run_probe",
		"orchestrator.normalize_result",
		"orchestrator.evaluate_with_agents",
		"orchestrator.propose_fixes",
		"orchestrator.integrate_memory",
		"orchestrator.cycle",
	}, names)
}
