// Package prompts implements the HexProbe MCP prompts.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence of tool calls.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// TriagePrompt handles the hexprobe-triage MCP prompt.
// It walks the AI through a probe run and the pattern follow-up.
type TriagePrompt struct{}

// NewTriagePrompt creates a TriagePrompt.
func NewTriagePrompt() *TriagePrompt {
	return &TriagePrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *TriagePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("hexprobe-triage",
		mcp.WithPromptDescription(
			"Probe a repository and triage the results: run a probe, review the agents' verdicts "+
				"and patch proposals, then curate the patterns it taught HexProbe.",
		),
		mcp.WithArgument("probe",
			mcp.ArgumentDescription("Probe ID to run (default: quick_scan)"),
		),
		mcp.WithArgument("repo",
			mcp.ArgumentDescription("Repository path (default: current directory)"),
		),
	)
}

// Handle processes the hexprobe-triage prompt request.
func (p *TriagePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	probeID := "quick_scan"
	repo := "."
	if args := req.Params.Arguments; args != nil {
		if v, ok := args["probe"]; ok && v != "" {
			probeID = v
		}
		if v, ok := args["repo"]; ok && v != "" {
			repo = v
		}
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Triage %s on %s", probeID, repo),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Please triage repository '%s' with the '%s' probe.\n\n"+
						"1. Run `probe_run` with probe='%s' and repo='%s'\n"+
						"2. Summarize the findings by severity and list any agent that did not approve, with its error if one is recorded\n"+
						"3. Show each proposed patch and tell me which ones need manual review\n"+
						"4. Run `pattern_conflicts` and, if there are conflicts, ask me before calling it again with resolve=true\n"+
						"5. For every finding I call a false positive, run `pattern_false_positive` and then `pattern_adjust_severity`\n"+
						"6. Finish with `pattern_recurrent` so I can see which patterns keep coming back",
					repo, probeID, probeID, repo,
				)),
			},
		},
	}, nil
}
