package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tbourn/go-ttm-coach/internal/services"
)

// PrescriptionTool handles the ttm_prescription MCP tool.
type PrescriptionTool struct {
	svc *services.PrescriptionService
}

// NewPrescriptionTool creates a PrescriptionTool backed by svc. Nothing is stored.
func NewPrescriptionTool(svc *services.PrescriptionService) *PrescriptionTool {
	return &PrescriptionTool{svc: svc}
}

// Definition returns the MCP tool definition for ttm_prescription.
func (t *PrescriptionTool) Definition() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription(
			"Classify stress-management assessment results into bands and return the " +
				"personalised prescription messages, one per slot, in display order.",
		),
	}, scoreArgs()...)
	return mcp.NewTool("ttm_prescription", opts...)
}

// Handle processes the ttm_prescription tool call.
func (t *PrescriptionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := submission(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := t.svc.Evaluate(ctx, in)
	if err != nil {
		return engineError(err), nil
	}
	return jsonResult(res)
}
