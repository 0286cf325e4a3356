package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tbourn/go-ttm-coach/internal/services"
)

// SkeletonTool handles the ttm_work_skeleton MCP tool.
type SkeletonTool struct {
	svc *services.PrescriptionService
}

// NewSkeletonTool creates a SkeletonTool backed by svc.
func NewSkeletonTool(svc *services.PrescriptionService) *SkeletonTool {
	return &SkeletonTool{svc: svc}
}

// Definition returns the MCP tool definition for ttm_work_skeleton.
func (t *SkeletonTool) Definition() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription(
			"Build the stage work skeleton (goal, cards, obstacles, checklist) for assessment " +
				"results, including the SMA focus and the rules that fired.",
		),
	}, scoreArgs()...)
	return mcp.NewTool("ttm_work_skeleton", opts...)
}

// Handle processes the ttm_work_skeleton tool call.
func (t *SkeletonTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := submission(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := t.svc.Plan(ctx, in)
	if err != nil {
		return engineError(err), nil
	}
	return jsonResult(res)
}
