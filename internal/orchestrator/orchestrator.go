// Package orchestrator runs one probe through the HexProbe pipeline:
//
//	RunProbe → NormalizeResult → EvaluateWithAgents → ProposeFixes → IntegrateMemory
//
// Stages run sequentially with no retries. Probe errors abort the cycle,
// agent failures never do.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/HendryAvila/hexprobe/internal/agents"
	"github.com/HendryAvila/hexprobe/internal/global"
	"github.com/HendryAvila/hexprobe/internal/knowledge"
	"github.com/HendryAvila/hexprobe/internal/metrics"
	"github.com/HendryAvila/hexprobe/internal/patch"
	"github.com/HendryAvila/hexprobe/internal/probe"
)

// AutoGeneratedCategory is the category of patterns learned from patches.
const AutoGeneratedCategory = "auto_generated"

// Stage names, used for spans and metrics.
const (
	StageRunProbe        = "run_probe"
	StageNormalize       = "normalize_result"
	StageEvaluate        = "evaluate_with_agents"
	StageProposeFixes    = "propose_fixes"
	StageIntegrateMemory = "integrate_memory"
)

// Approval is one agent's verdict. Err is set when the agent failed, in
// which case Approved is false.
type Approval struct {
	Agent    string `json:"agent"`
	Approved bool   `json:"approved"`
	Err      string `json:"error,omitempty"`
}

// Cycle is the outcome of RunFullCycle.
type Cycle struct {
	RunID      string        `json:"run_id"`
	Probe      string        `json:"probe"`
	Repo       string        `json:"repo"`
	Result     probe.Result  `json:"result"`
	Approvals  []Approval    `json:"approvals"`
	Patches    []patch.Patch `json:"patches"`
	PatternIDs []string      `json:"pattern_ids"`
	ProbeIDs   []string      `json:"probe_ids"`
	// Skipped lists pattern ids not learned because they are deprecated.
	Skipped []string `json:"skipped,omitempty"`
}

// Config holds the orchestrator's optional collaborators.
type Config struct {
	Agents         []agents.Approver
	IDMode         knowledge.IDMode
	Metrics        *metrics.Collector
	Logger         zerolog.Logger
	TracerProvider trace.TracerProvider
	Clock          func() time.Time
}

// Orchestrator composes probes, agents, patch templates and both stores.
type Orchestrator struct {
	local  *knowledge.Store
	global global.Store

	agents  []agents.Approver
	idMode  knowledge.IDMode
	metrics *metrics.Collector
	log     zerolog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// New creates an Orchestrator. Zero-valued Config fields fall back to the
// default agents, random ids, no metrics, the global tracer provider and
// time.Now.
func New(local *knowledge.Store, glob global.Store, cfg Config) *Orchestrator {
	if cfg.Agents == nil {
		cfg.Agents = agents.Default()
	}
	if cfg.IDMode == "" {
		cfg.IDMode = knowledge.IDRandom
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Orchestrator{
		local:   local,
		global:  glob,
		agents:  cfg.Agents,
		idMode:  cfg.IDMode,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
		tracer:  cfg.TracerProvider.Tracer("github.com/HendryAvila/hexprobe/internal/orchestrator"),
		now:     cfg.Clock,
	}
}

// Agents returns the agents in evaluation order.
func (o *Orchestrator) Agents() []agents.Approver {
	return o.agents
}

// ─── Stages ──────────────────────────────────────────────────────────────────

// RunProbe invokes p on repo. Its error is returned unchanged.
func (o *Orchestrator) RunProbe(ctx context.Context, p probe.Probe, repo string, artifacts *probe.Artifacts) (any, error) {
	return p.Run(ctx, repo, artifacts)
}

// NormalizeResult coerces raw into a probe.Result. A malformed value is
// logged and yields an empty info result.
func (o *Orchestrator) NormalizeResult(raw any) probe.Result {
	res, err := probe.NormalizeResult(raw)
	if err != nil {
		o.log.Warn().Err(err).Str("type", fmt.Sprintf("%T", raw)).Msg("probe returned a malformed result")
	}
	return res
}

// EvaluateWithAgents asks every agent, in order, to approve res. An agent
// that errors or panics is recorded as not approving.
func (o *Orchestrator) EvaluateWithAgents(res probe.Result) []Approval {
	approvals := make([]Approval, 0, len(o.agents))
	for _, a := range o.agents {
		ok, err := approve(a, res)
		ap := Approval{Agent: a.Name(), Approved: ok && err == nil}
		if err != nil {
			ap.Err = err.Error()
			o.log.Warn().Err(err).Str("agent", a.Name()).Msg("agent failed; recorded as not approved")
		}
		o.metrics.Verdict(ap.Agent, ap.Approved)
		approvals = append(approvals, ap)
	}
	return approvals
}

func approve(a agents.Approver, res probe.Result) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("agent %s panicked: %v", a.Name(), r)
		}
	}()
	return a.Approve(res)
}

// ProposeFixes returns one patch per finding.
func (o *Orchestrator) ProposeFixes(res probe.Result) []patch.Patch {
	return patch.SynthesizeAll(res.Findings)
}

// Integration is what IntegrateMemory wrote.
type Integration struct {
	PatternIDs []string
	ProbeIDs   []string
	Skipped    []string
}

// IntegrateMemory learns one pattern per patch in the local store, promotes
// it, and records and promotes placeholder lineage for it. Patterns whose
// id resolves to a deprecated entry are skipped. The first store error
// aborts the stage; writes already made are kept.
func (o *Orchestrator) IntegrateMemory(ctx context.Context, res probe.Result, patches []patch.Patch, repo string) (Integration, error) {
	var out Integration
	for _, pt := range patches {
		id := knowledge.NewPatternID(o.idMode, pt.Category, pt.Description)

		target, err := o.local.ResolveRedirect(ctx, id)
		if err != nil {
			return out, fmt.Errorf("orchestrator: integrate memory: %w", err)
		}
		status, err := o.local.Status(ctx, target)
		if err != nil {
			return out, fmt.Errorf("orchestrator: integrate memory: %w", err)
		}
		if status.Status == knowledge.StatusDeprecated {
			o.log.Debug().Str("pattern", target).Msg("skipping deprecated pattern")
			out.Skipped = append(out.Skipped, target)
			continue
		}

		p, err := o.local.Learn(ctx, target, AutoGeneratedCategory, pt.Description, res.Severity)
		if err != nil {
			return out, fmt.Errorf("orchestrator: integrate memory: %w", err)
		}
		o.metrics.PatternLearned()
		// The global row counts this occurrence even when the local row is new.
		promoted := *p
		promoted.TriggerCount = max(promoted.TriggerCount, 1)
		if err := o.global.PromotePattern(ctx, promoted); err != nil {
			return out, fmt.Errorf("orchestrator: integrate memory: %w", err)
		}
		o.metrics.Promoted("pattern")
		out.PatternIDs = append(out.PatternIDs, p.ID)

		lineage := knowledge.Lineage{
			ProbeID:         uuid.NewString(),
			PatternID:       p.ID,
			BugID:           uuid.NewString(),
			OriginatingRepo: repo,
			CreatedAt:       o.now(),
		}
		if err := o.local.RecordLineage(ctx, lineage); err != nil {
			return out, fmt.Errorf("orchestrator: integrate memory: %w", err)
		}
		if err := o.global.PromoteLineage(ctx, lineage); err != nil {
			return out, fmt.Errorf("orchestrator: integrate memory: %w", err)
		}
		o.metrics.Promoted("lineage")
		out.ProbeIDs = append(out.ProbeIDs, lineage.ProbeID)
	}
	return out, nil
}

// ─── Full cycle ──────────────────────────────────────────────────────────────

// RunFullCycle runs every stage for probe d against repo and appends the
// run to history. Probe errors are returned as-is with a nil Cycle.
func (o *Orchestrator) RunFullCycle(ctx context.Context, d probe.Descriptor, repo string, artifacts *probe.Artifacts) (*Cycle, error) {
	if d.Probe == nil {
		return nil, fmt.Errorf("orchestrator: probe %q has no implementation", d.ID)
	}
	ctx, span := o.tracer.Start(ctx, "orchestrator.cycle",
		trace.WithAttributes(attribute.String("probe", d.ID), attribute.String("repo", repo)))
	defer span.End()

	c := &Cycle{Probe: d.ID, Repo: repo}

	var raw any
	err := o.stage(ctx, StageRunProbe, func(ctx context.Context) error {
		var err error
		raw, err = o.RunProbe(ctx, d.Probe, repo, artifacts)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "probe failed")
		return nil, err
	}

	_ = o.stage(ctx, StageNormalize, func(context.Context) error {
		c.Result = o.NormalizeResult(raw)
		return nil
	})
	_ = o.stage(ctx, StageEvaluate, func(context.Context) error {
		c.Approvals = o.EvaluateWithAgents(c.Result)
		return nil
	})
	_ = o.stage(ctx, StageProposeFixes, func(context.Context) error {
		c.Patches = o.ProposeFixes(c.Result)
		return nil
	})
	err = o.stage(ctx, StageIntegrateMemory, func(ctx context.Context) error {
		in, err := o.IntegrateMemory(ctx, c.Result, c.Patches, repo)
		c.PatternIDs, c.ProbeIDs, c.Skipped = in.PatternIDs, in.ProbeIDs, in.Skipped
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "integrate memory failed")
		return c, err
	}

	c.RunID = o.recordRun(ctx, c)
	o.metrics.ObserveRun(d.ID, string(c.Result.Severity))
	span.SetAttributes(
		attribute.String("severity", string(c.Result.Severity)),
		attribute.Int("findings", len(c.Result.Findings)),
	)
	o.log.Info().
		Str("probe", d.ID).
		Str("repo", repo).
		Str("severity", string(c.Result.Severity)).
		Int("findings", len(c.Result.Findings)).
		Int("patches", len(c.Patches)).
		Msg("probe cycle complete")
	return c, nil
}

// stage runs fn inside a child span and records its duration.
func (o *Orchestrator) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	o.metrics.ObserveStage(name, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// recordRun appends c to run history. History is best-effort: a failure is
// logged and the cycle still succeeds.
func (o *Orchestrator) recordRun(ctx context.Context, c *Cycle) string {
	approvals := make([]knowledge.RunApproval, 0, len(c.Approvals))
	for _, a := range c.Approvals {
		approvals = append(approvals, knowledge.RunApproval{Agent: a.Agent, Approved: a.Approved, Error: a.Err})
	}
	run, err := o.local.RecordRun(ctx, knowledge.Run{
		Probe:        c.Probe,
		Repo:         c.Repo,
		Severity:     c.Result.Severity,
		FindingCount: len(c.Result.Findings),
		PatchCount:   len(c.Patches),
		Approvals:    approvals,
		CreatedAt:    o.now(),
	})
	if err != nil {
		o.log.Warn().Err(err).Str("probe", c.Probe).Msg("failed to record run history")
		return ""
	}
	return run.ID
}

// IsProbeFailure reports whether err came from a probe rather than a store.
func IsProbeFailure(err error) bool {
	var execErr *probe.ExecutionError
	return errors.As(err, &execErr)
}
