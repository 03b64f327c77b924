package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/hexprobe/internal/agents"
	"github.com/HendryAvila/hexprobe/internal/orchestrator"
	"github.com/HendryAvila/hexprobe/internal/probe"
)

// ─── ProbeListTool ──────────────────────────────────────────────────────────

// ProbeListTool handles the probe_list MCP tool.
type ProbeListTool struct {
	registry *probe.Registry
}

// NewProbeListTool creates a ProbeListTool.
func NewProbeListTool(registry *probe.Registry) *ProbeListTool {
	return &ProbeListTool{registry: registry}
}

// Definition returns the MCP tool definition for probe_list.
func (t *ProbeListTool) Definition() mcp.Tool {
	return mcp.NewTool("probe_list",
		mcp.WithDescription("List the probes HexProbe can run, in registration order."),
	)
}

// Handle processes the probe_list tool call.
func (t *ProbeListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var sb strings.Builder
	sb.WriteString("## Probes\n\n")
	for _, d := range t.registry.List() {
		sb.WriteString(fmt.Sprintf("- **%s** (`%s`): %s", d.Name, d.ID, d.Description))
		if d.SupportsArtifacts {
			sb.WriteString(" _[artifacts]_")
		}
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// ─── ProbeRunTool ───────────────────────────────────────────────────────────

// ProbeRunTool handles the probe_run MCP tool.
type ProbeRunTool struct {
	registry *probe.Registry
	orch     *orchestrator.Orchestrator
}

// NewProbeRunTool creates a ProbeRunTool.
func NewProbeRunTool(registry *probe.Registry, orch *orchestrator.Orchestrator) *ProbeRunTool {
	return &ProbeRunTool{registry: registry, orch: orch}
}

// Definition returns the MCP tool definition for probe_run.
func (t *ProbeRunTool) Definition() mcp.Tool {
	return mcp.NewTool("probe_run",
		mcp.WithDescription(
			"Run a probe through the full cycle: execute, normalize, agent review, patch proposals "+
				"and pattern learning. Returns the cycle as JSON.",
		),
		mcp.WithString("probe",
			mcp.Required(),
			mcp.Description("Probe ID (see probe_list)"),
		),
		mcp.WithString("repo",
			mcp.Description("Repository path (default: server working directory)"),
		),
	)
}

// failedRun is what probe_run shows when the probe itself failed.
type failedRun struct {
	Probe  string       `json:"probe"`
	Repo   string       `json:"repo"`
	Result probe.Result `json:"result"`
}

// Handle processes the probe_run tool call.
func (t *ProbeRunTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("probe", "")
	if id == "" {
		return mcp.NewToolResultError("'probe' is required"), nil
	}
	d, ok := t.registry.Get(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown probe %q; call probe_list for the available ids", id)), nil
	}
	repo, err := repoArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var artifacts *probe.Artifacts
	if d.SupportsArtifacts {
		artifacts = probe.NewArtifacts()
	}

	cycle, err := t.orch.RunFullCycle(ctx, d, repo, artifacts)
	if err != nil {
		if orchestrator.IsProbeFailure(err) {
			res, _ := jsonResult(failedRun{Probe: id, Repo: repo, Result: probe.FailureResult(err)})
			res.IsError = true
			return res, nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("probe cycle failed: %v", err)), nil
	}
	return jsonResult(cycle)
}

// ─── AgentListTool ──────────────────────────────────────────────────────────

// AgentListTool handles the agent_list MCP tool.
type AgentListTool struct {
	agents []agents.Approver
}

// NewAgentListTool creates an AgentListTool.
func NewAgentListTool(list []agents.Approver) *AgentListTool {
	return &AgentListTool{agents: list}
}

// Definition returns the MCP tool definition for agent_list.
func (t *AgentListTool) Definition() mcp.Tool {
	return mcp.NewTool("agent_list",
		mcp.WithDescription("List the review agents in the order they evaluate probe results."),
	)
}

// Handle processes the agent_list tool call.
func (t *AgentListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var sb strings.Builder
	sb.WriteString("## Agents\n\n")
	for i, a := range t.agents {
		sb.WriteString(fmt.Sprintf("%d. **%s**: %s (%s)\n", i+1, a.Name(), a.Role(), strings.Join(a.Domains(), ", ")))
	}
	return mcp.NewToolResultText(sb.String()), nil
}
