package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/hexprobe/internal/conflict"
	"github.com/HendryAvila/hexprobe/internal/global"
	"github.com/HendryAvila/hexprobe/internal/knowledge"
	"github.com/HendryAvila/hexprobe/internal/metrics"
	"github.com/HendryAvila/hexprobe/internal/probe"
	"github.com/HendryAvila/hexprobe/internal/severity"
)

// ─── PatternRecordTool ──────────────────────────────────────────────────────

// PatternRecordTool handles the pattern_record MCP tool.
type PatternRecordTool struct {
	store   *knowledge.Store
	idMode  knowledge.IDMode
	metrics *metrics.Collector
}

// NewPatternRecordTool creates a PatternRecordTool.
func NewPatternRecordTool(store *knowledge.Store, idMode knowledge.IDMode, met *metrics.Collector) *PatternRecordTool {
	return &PatternRecordTool{store: store, idMode: idMode, metrics: met}
}

// Definition returns the MCP tool definition for pattern_record.
func (t *PatternRecordTool) Definition() mcp.Tool {
	return mcp.NewTool("pattern_record",
		mcp.WithDescription(
			"Record one occurrence of a finding pattern in the local store. A new pattern starts with "+
				"zero triggers; each further occurrence increments trigger_count. Deprecated ids are followed "+
				"to the pattern that replaced them.",
		),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Finding category (e.g. lint, boundary, security)"),
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("What the pattern detects"),
		),
		mcp.WithString("severity",
			mcp.Description("info, low, medium, high or critical (default: medium)"),
		),
		mcp.WithString("id",
			mcp.Description("Explicit pattern id (default: derived from category and description)"),
		),
	)
}

// Handle processes the pattern_record tool call.
func (t *PatternRecordTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := req.GetString("category", "")
	description := req.GetString("description", "")
	if category == "" {
		return mcp.NewToolResultError("'category' is required"), nil
	}
	if description == "" {
		return mcp.NewToolResultError("'description' is required"), nil
	}
	sev, err := probe.ParseSeverity(req.GetString("severity", string(probe.Medium)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var p *knowledge.Pattern
	id := req.GetString("id", "")
	switch {
	case id != "":
		p, err = t.store.Learn(ctx, id, category, description, sev)
	case t.idMode == knowledge.IDContent:
		p, err = t.store.LearnFinding(ctx, probe.Finding{Category: category, Severity: sev, Message: description})
	default:
		p, err = t.store.Learn(ctx, knowledge.NewPatternID(t.idMode, category, description), category, description, sev)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to record pattern: %v", err)), nil
	}
	t.metrics.PatternLearned()
	return jsonResult(p)
}

// ─── PatternRecurrentTool ───────────────────────────────────────────────────

// PatternRecurrentTool handles the pattern_recurrent MCP tool.
type PatternRecurrentTool struct {
	store      *knowledge.Store
	defaultMin int
}

// NewPatternRecurrentTool creates a PatternRecurrentTool. defaultMin is used
// when the request gives no threshold.
func NewPatternRecurrentTool(store *knowledge.Store, defaultMin int) *PatternRecurrentTool {
	return &PatternRecurrentTool{store: store, defaultMin: defaultMin}
}

// Definition returns the MCP tool definition for pattern_recurrent.
func (t *PatternRecurrentTool) Definition() mcp.Tool {
	return mcp.NewTool("pattern_recurrent",
		mcp.WithDescription("List local patterns whose trigger_count is at least min_triggers, ordered by id."),
		mcp.WithNumber("min_triggers",
			mcp.Description(fmt.Sprintf("Trigger threshold (default: %d)", t.defaultMin)),
		),
	)
}

// Handle processes the pattern_recurrent tool call.
func (t *PatternRecurrentTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	minTriggers := intArg(req, "min_triggers", t.defaultMin)
	patterns, err := t.store.QueryRecurrent(ctx, minTriggers)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to query patterns: %v", err)), nil
	}
	if len(patterns) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No patterns with at least %d triggers.", minTriggers)), nil
	}
	return jsonResult(patterns)
}

// ─── PatternPromoteTool ─────────────────────────────────────────────────────

// PatternPromoteTool handles the pattern_promote MCP tool.
type PatternPromoteTool struct {
	local   *knowledge.Store
	global  global.Store
	metrics *metrics.Collector
}

// NewPatternPromoteTool creates a PatternPromoteTool.
func NewPatternPromoteTool(local *knowledge.Store, glob global.Store, met *metrics.Collector) *PatternPromoteTool {
	return &PatternPromoteTool{local: local, global: glob, metrics: met}
}

// Definition returns the MCP tool definition for pattern_promote.
func (t *PatternPromoteTool) Definition() mcp.Tool {
	return mcp.NewTool("pattern_promote",
		mcp.WithDescription(
			"Promote a local pattern to the global store. Promoting an id the global store already "+
				"holds increments its global trigger_count.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Local pattern id"),
		),
		mcp.WithBoolean("include_lineage",
			mcp.Description("Also promote the lineage of every probe generated from this pattern"),
		),
	)
}

// Handle processes the pattern_promote tool call.
func (t *PatternPromoteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	p, err := t.local.GetPattern(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := t.local.Status(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read pattern status: %v", err)), nil
	}
	if st.Status == knowledge.StatusDeprecated {
		return mcp.NewToolResultError(fmt.Sprintf(
			"pattern %s is deprecated (redirects to %s); promote %s instead", id, st.RedirectTo, st.RedirectTo,
		)), nil
	}
	if err := t.global.PromotePattern(ctx, *p); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to promote pattern: %v", err)), nil
	}
	t.metrics.Promoted("pattern")

	lineageCount := 0
	if boolArg(req, "include_lineage", false) {
		lineage, err := t.local.LineageForPattern(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read lineage: %v", err)), nil
		}
		for _, l := range lineage {
			if err := t.global.PromoteLineage(ctx, l); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to promote lineage %s: %v", l.ProbeID, err)), nil
			}
			t.metrics.Promoted("lineage")
			lineageCount++
		}
	}

	gp, err := t.global.GetPattern(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read global pattern: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Pattern %s promoted (global trigger_count: %d, lineage rows promoted: %d)",
		id, gp.TriggerCount, lineageCount,
	)), nil
}

// ─── PatternSetStatusTool ───────────────────────────────────────────────────

// PatternSetStatusTool handles the pattern_set_status MCP tool.
type PatternSetStatusTool struct {
	store *knowledge.Store
}

// NewPatternSetStatusTool creates a PatternSetStatusTool.
func NewPatternSetStatusTool(store *knowledge.Store) *PatternSetStatusTool {
	return &PatternSetStatusTool{store: store}
}

// Definition returns the MCP tool definition for pattern_set_status.
func (t *PatternSetStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("pattern_set_status",
		mcp.WithDescription(
			"Mark a local pattern active or core. Core patterns win every conflict resolution. "+
				"Deprecated patterns cannot be revived.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Local pattern id"),
		),
		mcp.WithString("status",
			mcp.Required(),
			mcp.Description("New status"),
			mcp.Enum(string(knowledge.StatusActive), string(knowledge.StatusCore)),
		),
	)
}

// Handle processes the pattern_set_status tool call.
func (t *PatternSetStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	status := knowledge.Status(req.GetString("status", ""))

	if _, err := t.store.GetPattern(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := t.store.SetStatus(ctx, id, status); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Pattern %s marked %s", id, status)), nil
}

// ─── PatternFalsePositiveTool ───────────────────────────────────────────────

// PatternFalsePositiveTool handles the pattern_false_positive MCP tool.
type PatternFalsePositiveTool struct {
	store *knowledge.Store
}

// NewPatternFalsePositiveTool creates a PatternFalsePositiveTool.
func NewPatternFalsePositiveTool(store *knowledge.Store) *PatternFalsePositiveTool {
	return &PatternFalsePositiveTool{store: store}
}

// Definition returns the MCP tool definition for pattern_false_positive.
func (t *PatternFalsePositiveTool) Definition() mcp.Tool {
	return mcp.NewTool("pattern_false_positive",
		mcp.WithDescription("Mark one occurrence of a local pattern as a false positive."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Local pattern id"),
		),
	)
}

// Handle processes the pattern_false_positive tool call.
func (t *PatternFalsePositiveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	if err := t.store.MarkFalsePositive(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := t.store.GetPattern(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Pattern %s false_positive_count: %d", id, p.FalsePositiveCount)), nil
}

// ─── PatternAdjustSeverityTool ──────────────────────────────────────────────

// PatternAdjustSeverityTool handles the pattern_adjust_severity MCP tool.
type PatternAdjustSeverityTool struct {
	store *knowledge.Store
}

// NewPatternAdjustSeverityTool creates a PatternAdjustSeverityTool.
func NewPatternAdjustSeverityTool(store *knowledge.Store) *PatternAdjustSeverityTool {
	return &PatternAdjustSeverityTool{store: store}
}

// Definition returns the MCP tool definition for pattern_adjust_severity.
func (t *PatternAdjustSeverityTool) Definition() mcp.Tool {
	return mcp.NewTool("pattern_adjust_severity",
		mcp.WithDescription(
			"Re-rate a local pattern from its counters: one step up at 5+ triggers with at most 1 "+
				"false positive, then one step down at 3+ false positives. Clamped to low..critical.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Local pattern id"),
		),
		mcp.WithBoolean("dry_run",
			mcp.Description("Report the new severity without saving it"),
		),
	)
}

// Handle processes the pattern_adjust_severity tool call.
func (t *PatternAdjustSeverityTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	p, err := t.store.GetPattern(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	before := p.Severity
	if err := severity.AdjustPattern(p); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if p.Severity == before {
		return mcp.NewToolResultText(fmt.Sprintf("Pattern %s stays %s", id, before)), nil
	}
	if boolArg(req, "dry_run", false) {
		return mcp.NewToolResultText(fmt.Sprintf("Pattern %s would change %s → %s", id, before, p.Severity)), nil
	}
	if err := t.store.SetSeverity(ctx, id, p.Severity); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save severity: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Pattern %s: %s → %s", id, before, p.Severity)), nil
}

// ─── PatternConflictsTool ───────────────────────────────────────────────────

// PatternConflictsTool handles the pattern_conflicts MCP tool.
type PatternConflictsTool struct {
	store *knowledge.Store
}

// NewPatternConflictsTool creates a PatternConflictsTool.
func NewPatternConflictsTool(store *knowledge.Store) *PatternConflictsTool {
	return &PatternConflictsTool{store: store}
}

// Definition returns the MCP tool definition for pattern_conflicts.
func (t *PatternConflictsTool) Definition() mcp.Tool {
	return mcp.NewTool("pattern_conflicts",
		mcp.WithDescription(
			"Find local patterns that share a category and trigger signature. With resolve=true, "+
				"each loser is deprecated and redirected to its winner (core first, then score, "+
				"then age, then id).",
		),
		mcp.WithBoolean("resolve",
			mcp.Description("Deprecate the losing pattern of every conflict"),
		),
	)
}

// Handle processes the pattern_conflicts tool call.
func (t *PatternConflictsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	patterns, err := t.store.ListPatterns(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list patterns: %v", err)), nil
	}
	statuses, err := t.store.Statuses(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read statuses: %v", err)), nil
	}
	entries := conflict.FromPatterns(patterns, statuses)

	if !boolArg(req, "resolve", false) {
		pairs := conflict.Detect(entries)
		if len(pairs) == 0 {
			return mcp.NewToolResultText("No conflicts."), nil
		}
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("## Conflicts (%d)\n\n", len(pairs)))
		for _, p := range pairs {
			w := conflict.Resolve(p.First, p.Second)
			sb.WriteString(fmt.Sprintf("- %s ↔ %s [%s] → keep %s\n", p.First.ID, p.Second.ID, p.First.Category, w.ID))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}

	resolutions := conflict.ResolveAll(entries)
	if len(resolutions) == 0 {
		return mcp.NewToolResultText("No conflicts."), nil
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Resolved (%d)\n\n", len(resolutions)))
	for _, r := range resolutions {
		if err := t.store.Deprecate(ctx, r.Loser.ID, r.Winner.ID); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to deprecate %s: %v", r.Loser.ID, err)), nil
		}
		sb.WriteString(fmt.Sprintf("- %s deprecated → %s\n", r.Loser.ID, r.Winner.ID))
	}
	return mcp.NewToolResultText(sb.String()), nil
}
