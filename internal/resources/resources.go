// Package resources implements MCP resource handlers for HexProbe.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (hexprobe://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/hexprobe/internal/knowledge"
)

// RecurrentURI addresses the recurrent patterns resource.
const RecurrentURI = "hexprobe://patterns/recurrent"

// Handler manages HexProbe resource endpoints.
type Handler struct {
	store        *knowledge.Store
	recurrentMin int
}

// NewHandler creates a resource Handler. recurrentMin is the trigger
// threshold of the recurrent patterns resource.
func NewHandler(store *knowledge.Store, recurrentMin int) *Handler {
	return &Handler{store: store, recurrentMin: recurrentMin}
}

// RecurrentResource returns the MCP resource definition for recurrent patterns.
func (h *Handler) RecurrentResource() mcp.Resource {
	return mcp.NewResource(
		RecurrentURI,
		"Recurrent Patterns",
		mcp.WithResourceDescription(fmt.Sprintf("Local patterns triggered at least %d times", h.recurrentMin)),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleRecurrent returns the recurrent patterns as JSON.
func (h *Handler) HandleRecurrent(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	patterns, err := h.store.QueryRecurrent(ctx, h.recurrentMin)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	if patterns == nil {
		patterns = []knowledge.Pattern{}
	}

	data, err := json.MarshalIndent(patterns, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling patterns: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
