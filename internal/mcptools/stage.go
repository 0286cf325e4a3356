package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tbourn/go-ttm-coach/internal/services"
)

// StageGuideTool handles the ttm_stage_guide MCP tool.
type StageGuideTool struct {
	chat *services.WorkChatService
}

// NewStageGuideTool creates a StageGuideTool. Only chat.Catalog is used.
func NewStageGuideTool(chat *services.WorkChatService) *StageGuideTool {
	return &StageGuideTool{chat: chat}
}

// Definition returns the MCP tool definition for ttm_stage_guide.
func (t *StageGuideTool) Definition() mcp.Tool {
	return mcp.NewTool("ttm_stage_guide",
		mcp.WithDescription("Describe a stage of change: label, description, coaching strategy and suggested choices."),
		mcp.WithString("stage",
			mcp.Required(),
			mcp.Description("Stage code: PC, C, PR, A or M. Unknown codes fall back to PC."),
		),
	)
}

// Handle processes the ttm_stage_guide tool call.
func (t *StageGuideTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.chat.StageGuide(req.GetString("stage", "")))
}
