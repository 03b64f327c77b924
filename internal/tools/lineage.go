package tools

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/hexprobe/internal/global"
	"github.com/HendryAvila/hexprobe/internal/knowledge"
	"github.com/HendryAvila/hexprobe/internal/metrics"
	"github.com/HendryAvila/hexprobe/internal/probe"
)

const (
	scopeLocal  = "local"
	scopeGlobal = "global"
)

// scopeArg reads the "scope" argument, which must be local or global.
func scopeArg(req mcp.CallToolRequest) (string, error) {
	scope := req.GetString("scope", scopeLocal)
	if scope != scopeLocal && scope != scopeGlobal {
		return "", fmt.Errorf("invalid scope %q, must be 'local' or 'global'", scope)
	}
	return scope, nil
}

// ─── ProbeGenerateTool ──────────────────────────────────────────────────────

// ProbeGenerateTool handles the probe_generate MCP tool.
type ProbeGenerateTool struct {
	local   *knowledge.Store
	global  global.Store
	metrics *metrics.Collector
}

// NewProbeGenerateTool creates a ProbeGenerateTool.
func NewProbeGenerateTool(local *knowledge.Store, glob global.Store, met *metrics.Collector) *ProbeGenerateTool {
	return &ProbeGenerateTool{local: local, global: glob, metrics: met}
}

// Definition returns the MCP tool definition for probe_generate.
func (t *ProbeGenerateTool) Definition() mcp.Tool {
	return mcp.NewTool("probe_generate",
		mcp.WithDescription(
			"Generate a regression probe from a local pattern and record where it came from "+
				"(bug, fix commit, originating repo). Returns the new probe id and its result.",
		),
		mcp.WithString("pattern_id",
			mcp.Required(),
			mcp.Description("Local pattern id"),
		),
		mcp.WithString("bug_id",
			mcp.Description("Bug or issue identifier (default: a fresh UUID)"),
		),
		mcp.WithString("fix_commit",
			mcp.Description("Commit that fixed the bug"),
		),
		mcp.WithString("repo",
			mcp.Description("Originating repository (default: server working directory)"),
		),
		mcp.WithBoolean("promote",
			mcp.Description("Also promote the lineage to the global store"),
		),
	)
}

type generated struct {
	ProbeID string       `json:"probe_id"`
	Result  probe.Result `json:"result"`
}

// Handle processes the probe_generate tool call.
func (t *ProbeGenerateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	patternID := req.GetString("pattern_id", "")
	if patternID == "" {
		return mcp.NewToolResultError("'pattern_id' is required"), nil
	}
	repo, err := repoArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bugID := req.GetString("bug_id", "")
	if bugID == "" {
		bugID = uuid.NewString()
	}

	p, err := t.local.GetPattern(ctx, patternID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	probeID, res, err := t.local.GenerateProbe(ctx, *p, bugID, optionalString(req, "fix_commit"), repo)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to generate probe: %v", err)), nil
	}

	if boolArg(req, "promote", false) {
		l, err := t.local.GetProbeLineage(ctx, probeID)
		if err != nil || l == nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read lineage of %s: %v", probeID, err)), nil
		}
		if err := t.global.PromoteLineage(ctx, *l); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to promote lineage: %v", err)), nil
		}
		t.metrics.Promoted("lineage")
	}
	return jsonResult(generated{ProbeID: probeID, Result: res})
}

// ─── ProbeLineageTool ───────────────────────────────────────────────────────

// ProbeLineageTool handles the probe_lineage MCP tool.
type ProbeLineageTool struct {
	local  *knowledge.Store
	global global.Store
}

// NewProbeLineageTool creates a ProbeLineageTool.
func NewProbeLineageTool(local *knowledge.Store, glob global.Store) *ProbeLineageTool {
	return &ProbeLineageTool{local: local, global: glob}
}

// Definition returns the MCP tool definition for probe_lineage.
func (t *ProbeLineageTool) Definition() mcp.Tool {
	return mcp.NewTool("probe_lineage",
		mcp.WithDescription("Show the full lineage record of a generated probe."),
		mcp.WithString("probe_id",
			mcp.Required(),
			mcp.Description("Probe id returned by probe_generate or probe_run"),
		),
		mcp.WithString("scope",
			mcp.Description("local (default) or global"),
		),
	)
}

// Handle processes the probe_lineage tool call.
func (t *ProbeLineageTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	probeID := req.GetString("probe_id", "")
	if probeID == "" {
		return mcp.NewToolResultError("'probe_id' is required"), nil
	}
	scope, err := scopeArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var l *knowledge.Lineage
	if scope == scopeGlobal {
		l, err = t.global.GetLineage(ctx, probeID)
	} else {
		l, err = t.local.GetProbeLineage(ctx, probeID)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read lineage: %v", err)), nil
	}
	if l == nil {
		return mcp.NewToolResultText(fmt.Sprintf("No %s lineage for probe %s.", scope, probeID)), nil
	}
	return jsonResult(l)
}

// ─── ProbeOriginTool ────────────────────────────────────────────────────────

// ProbeOriginTool handles the probe_origin MCP tool.
type ProbeOriginTool struct {
	local  *knowledge.Store
	global global.Store
}

// NewProbeOriginTool creates a ProbeOriginTool.
func NewProbeOriginTool(local *knowledge.Store, glob global.Store) *ProbeOriginTool {
	return &ProbeOriginTool{local: local, global: glob}
}

// Definition returns the MCP tool definition for probe_origin.
func (t *ProbeOriginTool) Definition() mcp.Tool {
	return mcp.NewTool("probe_origin",
		mcp.WithDescription("Show the originating repo, bug id and fix commit of a generated probe."),
		mcp.WithString("probe_id",
			mcp.Required(),
			mcp.Description("Probe id"),
		),
		mcp.WithString("scope",
			mcp.Description("local (default) or global"),
		),
	)
}

// Handle processes the probe_origin tool call.
func (t *ProbeOriginTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	probeID := req.GetString("probe_id", "")
	if probeID == "" {
		return mcp.NewToolResultError("'probe_id' is required"), nil
	}
	scope, err := scopeArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var origins []knowledge.Origin
	if scope == scopeGlobal {
		origins, err = t.global.ProbeOrigin(ctx, probeID)
	} else {
		origins, err = t.local.ProbeOrigin(ctx, probeID)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read origin: %v", err)), nil
	}
	if len(origins) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No %s origin for probe %s.", scope, probeID)), nil
	}
	return jsonResult(origins)
}
