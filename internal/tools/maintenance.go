package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/hexprobe/internal/knowledge"
	"github.com/HendryAvila/hexprobe/internal/maintenance"
	"github.com/HendryAvila/hexprobe/internal/metrics"
)

// ─── MemoryPruneTool ────────────────────────────────────────────────────────

// MemoryPruneTool handles the memory_prune MCP tool.
type MemoryPruneTool struct {
	targets    []maintenance.Target
	maxAgeDays int
	metrics    *metrics.Collector
	now        func() time.Time
}

// NewMemoryPruneTool creates a MemoryPruneTool over targets. maxAgeDays is
// the default age when the request gives none.
func NewMemoryPruneTool(targets []maintenance.Target, maxAgeDays int, met *metrics.Collector) *MemoryPruneTool {
	return &MemoryPruneTool{targets: targets, maxAgeDays: maxAgeDays, metrics: met, now: time.Now}
}

// Definition returns the MCP tool definition for memory_prune.
func (t *MemoryPruneTool) Definition() mcp.Tool {
	return mcp.NewTool("memory_prune",
		mcp.WithDescription(
			"Run the aging cycle: delete patterns and lineage created more than max_age_days ago "+
				"from the local and global stores. Counters are ignored.",
		),
		mcp.WithNumber("max_age_days",
			mcp.Description(fmt.Sprintf("Age limit in days (default: %d)", t.maxAgeDays)),
		),
	)
}

// Handle processes the memory_prune tool call.
func (t *MemoryPruneTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	days := intArg(req, "max_age_days", t.maxAgeDays)
	report, err := maintenance.Cycle(ctx, t.now(), days, t.targets...)
	ObservePrune(t.metrics, report)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("aging cycle failed: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Aging cycle (cutoff %s)\n\n", report.Cutoff.UTC().Format(time.RFC3339)))
	for _, c := range report.Targets {
		sb.WriteString(fmt.Sprintf("- **%s**: %d patterns, %d lineage rows deleted\n", c.Target, c.Patterns, c.Lineage))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// ObservePrune adds the deletions of report to met.
func ObservePrune(met *metrics.Collector, report maintenance.Report) {
	for _, c := range report.Targets {
		met.Pruned(c.Target, "patterns", c.Patterns)
		met.Pruned(c.Target, "lineage", c.Lineage)
	}
}

// ─── RunHistoryTool ─────────────────────────────────────────────────────────

// RunHistoryTool handles the run_history MCP tool.
type RunHistoryTool struct {
	store *knowledge.Store
}

// NewRunHistoryTool creates a RunHistoryTool.
func NewRunHistoryTool(store *knowledge.Store) *RunHistoryTool {
	return &RunHistoryTool{store: store}
}

// Definition returns the MCP tool definition for run_history.
func (t *RunHistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("run_history",
		mcp.WithDescription("List recent probe runs, newest first, with local store totals."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum runs to return (default: 10)"),
		),
	)
}

// Handle processes the run_history tool call.
func (t *RunHistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := t.store.RecentRuns(ctx, intArg(req, "limit", 10))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read run history: %v", err)), nil
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("No runs recorded yet."), nil
	}

	st, err := t.store.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read store stats: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Store: %d patterns (%d deprecated), %d lineage rows, %d runs\n\n",
		st.Patterns, st.Deprecated, st.Lineage, st.Runs))
	sb.WriteString("## Recent runs\n\n")
	for _, r := range runs {
		approved := 0
		for _, a := range r.Approvals {
			if a.Approved {
				approved++
			}
		}
		sb.WriteString(fmt.Sprintf("- %s `%s` on %s: %s, %d findings, %d patches, %d/%d approvals\n",
			r.CreatedAt.UTC().Format(time.RFC3339), r.Probe, r.Repo, r.Severity,
			r.FindingCount, r.PatchCount, approved, len(r.Approvals)))
	}
	return mcp.NewToolResultText(sb.String()), nil
}
