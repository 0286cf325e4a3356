package mcptools

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/tbourn/go-ttm-coach/internal/services"
)

const instructions = `Tools for the Transtheoretical Model stress-management coach.
Use ttm_prescription to turn assessment results into coaching messages,
ttm_work_skeleton to plan the next stage of work, and ttm_stage_guide to
explain a stage before starting a conversation.`

// New builds an MCP server exposing the engine tools.
func New(name, version string, presc *services.PrescriptionService, chat *services.WorkChatService) *server.MCPServer {
	s := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	prescTool := NewPrescriptionTool(presc)
	s.AddTool(prescTool.Definition(), prescTool.Handle)

	skelTool := NewSkeletonTool(presc)
	s.AddTool(skelTool.Definition(), skelTool.Handle)

	stageTool := NewStageGuideTool(chat)
	s.AddTool(stageTool.Definition(), stageTool.Handle)

	return s
}
