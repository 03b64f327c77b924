// Package server wires all HexProbe components and creates the MCP server.
//
// This is the composition root: Open builds the stores, probe registry and
// orchestrator from configuration, and New registers the tools, prompts and
// resources that depend on them. No business logic lives here.
package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/HendryAvila/hexprobe/internal/config"
	"github.com/HendryAvila/hexprobe/internal/global"
	"github.com/HendryAvila/hexprobe/internal/knowledge"
	"github.com/HendryAvila/hexprobe/internal/maintenance"
	"github.com/HendryAvila/hexprobe/internal/metrics"
	"github.com/HendryAvila/hexprobe/internal/orchestrator"
	"github.com/HendryAvila/hexprobe/internal/probe"
	"github.com/HendryAvila/hexprobe/internal/prompts"
	"github.com/HendryAvila/hexprobe/internal/resources"
	"github.com/HendryAvila/hexprobe/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Deps holds every component built from configuration. The CLI uses it
// directly; the MCP server exposes it through tools.
type Deps struct {
	Config       *config.Config
	Local        *knowledge.Store
	Global       global.Store
	Registry     *probe.Registry
	Orchestrator *orchestrator.Orchestrator
	Metrics      *metrics.Collector
	Log          zerolog.Logger
}

// Open builds Deps from cfg. The returned cleanup closes both stores and
// is always non-nil.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Deps, func(), error) {
	local, err := knowledge.New(cfg.Local())
	if err != nil {
		return nil, noop, err
	}

	glob, err := global.Open(ctx, cfg.GlobalStore())
	if err != nil {
		_ = local.Close()
		return nil, noop, err
	}

	cleanup := func() {
		if err := glob.Close(); err != nil {
			log.Warn().Err(err).Msg("global store close")
		}
		if err := local.Close(); err != nil {
			log.Warn().Err(err).Msg("local store close")
		}
	}

	registry, err := probe.DefaultRegistry(cfg.ProbeOptions())
	if err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("creating probe registry: %w", err)
	}

	met := metrics.New()
	orch := orchestrator.New(local, glob, orchestrator.Config{
		IDMode:  cfg.IDMode(),
		Metrics: met,
		Logger:  log,
	})

	return &Deps{
		Config:       cfg,
		Local:        local,
		Global:       glob,
		Registry:     registry,
		Orchestrator: orch,
		Metrics:      met,
		Log:          log,
	}, cleanup, nil
}

// PruneTargets returns the stores the aging cycle runs over, local first.
func (d *Deps) PruneTargets() []maintenance.Target {
	return []maintenance.Target{
		{Name: "local", Store: d.Local},
		{Name: "global", Store: d.Global},
	}
}

// New creates the MCP server with all tools, prompts and resources
// registered against d.
func New(d *Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"hexprobe",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Probes & agents ---

	probeList := tools.NewProbeListTool(d.Registry)
	s.AddTool(probeList.Definition(), probeList.Handle)

	probeRun := tools.NewProbeRunTool(d.Registry, d.Orchestrator)
	s.AddTool(probeRun.Definition(), probeRun.Handle)

	agentList := tools.NewAgentListTool(d.Orchestrator.Agents())
	s.AddTool(agentList.Definition(), agentList.Handle)

	// --- Patterns ---

	recordTool := tools.NewPatternRecordTool(d.Local, d.Config.IDMode(), d.Metrics)
	s.AddTool(recordTool.Definition(), recordTool.Handle)

	recurrentTool := tools.NewPatternRecurrentTool(d.Local, d.Config.Learning.RecurrentMin)
	s.AddTool(recurrentTool.Definition(), recurrentTool.Handle)

	promoteTool := tools.NewPatternPromoteTool(d.Local, d.Global, d.Metrics)
	s.AddTool(promoteTool.Definition(), promoteTool.Handle)

	statusTool := tools.NewPatternSetStatusTool(d.Local)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	falsePositiveTool := tools.NewPatternFalsePositiveTool(d.Local)
	s.AddTool(falsePositiveTool.Definition(), falsePositiveTool.Handle)

	adjustTool := tools.NewPatternAdjustSeverityTool(d.Local)
	s.AddTool(adjustTool.Definition(), adjustTool.Handle)

	conflictsTool := tools.NewPatternConflictsTool(d.Local)
	s.AddTool(conflictsTool.Definition(), conflictsTool.Handle)

	// --- Lineage ---

	generateTool := tools.NewProbeGenerateTool(d.Local, d.Global, d.Metrics)
	s.AddTool(generateTool.Definition(), generateTool.Handle)

	lineageTool := tools.NewProbeLineageTool(d.Local, d.Global)
	s.AddTool(lineageTool.Definition(), lineageTool.Handle)

	originTool := tools.NewProbeOriginTool(d.Local, d.Global)
	s.AddTool(originTool.Definition(), originTool.Handle)

	// --- Maintenance ---

	pruneTool := tools.NewMemoryPruneTool(d.PruneTargets(), d.Config.Aging.MaxAgeDays, d.Metrics)
	s.AddTool(pruneTool.Definition(), pruneTool.Handle)

	historyTool := tools.NewRunHistoryTool(d.Local)
	s.AddTool(historyTool.Definition(), historyTool.Handle)

	// --- Prompts & resources ---

	triage := prompts.NewTriagePrompt()
	s.AddPrompt(triage.Definition(), triage.Handle)

	resourceHandler := resources.NewHandler(d.Local, d.Config.Learning.RecurrentMin)
	s.AddResource(resourceHandler.RecurrentResource(), resourceHandler.HandleRecurrent)

	return s
}

// noop is the cleanup returned when nothing was opened.
func noop() {}

// serverInstructions tells the AI how to use HexProbe.
func serverInstructions() string {
	return `You have access to HexProbe, a repository probing server that learns from what it finds.

## RUNNING PROBES

Call probe_list to see the available probes, then probe_run with a probe id and
a repository path. Every run goes through the same stages: the probe runs, its
output is normalized, six review agents approve or reject it, a patch is proposed
for every finding, and each patch is learned as a pattern in the local store and
promoted to the global store.

If a probe's external tool is missing or fails, probe_run returns a single
critical "probe_failure" finding. Tell the user which tool to install; do not
retry blindly.

## CURATING PATTERNS

- pattern_recurrent lists patterns that keep coming back.
- pattern_false_positive records a finding the user rejected. Follow it with
  pattern_adjust_severity so the severity reflects the evidence.
- pattern_conflicts finds duplicates. Ask the user before resolving them:
  resolution deprecates the loser permanently and redirects it to the winner.
- pattern_set_status marks a pattern core. Core patterns always win conflicts.
- pattern_promote shares a local pattern through the global store. Deprecated
  patterns are refused; promote their redirect target.

## REGRESSION PROBES

When a bug is fixed, call probe_generate with the pattern, bug id and fix commit.
probe_lineage and probe_origin answer where a probe came from.

## MAINTENANCE

memory_prune deletes patterns and lineage older than the configured age. It only
runs when called. run_history shows recent runs.`
}
