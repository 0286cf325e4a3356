// Package mcptools exposes the assessment engine as MCP tools.
//
// Each tool follows the same shape:
//   - a struct holding the service it calls, built by a constructor
//   - Definition() returns the mcp.Tool schema
//   - Handle() decodes the arguments, runs the engine and returns JSON text
//
// Validation problems are reported as tool errors, never as protocol errors.
package mcptools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tbourn/go-ttm-coach/internal/scoring"
	"github.com/tbourn/go-ttm-coach/internal/services"
)

// submission decodes the mutually exclusive "scores" and "answers" JSON
// arguments into a SubmitInput.
func submission(req mcp.CallToolRequest) (services.SubmitInput, error) {
	var in services.SubmitInput
	scores := strings.TrimSpace(req.GetString("scores", ""))
	answers := strings.TrimSpace(req.GetString("answers", ""))
	if scores != "" {
		in.Scores = &scoring.Scores{}
		if err := json.Unmarshal([]byte(scores), in.Scores); err != nil {
			return in, fmt.Errorf("'scores' is not valid JSON: %v", err)
		}
	}
	if answers != "" {
		in.Answers = &scoring.RawAnswers{}
		if err := json.Unmarshal([]byte(answers), in.Answers); err != nil {
			return in, fmt.Errorf("'answers' is not valid JSON: %v", err)
		}
	}
	return in, nil
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// engineError turns an engine failure into a tool error. Input problems get
// a hint; anything else is reported as-is.
func engineError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, scoring.ErrInvalidInputShape), errors.Is(err, scoring.ErrScoreOutOfDomain):
		return mcp.NewToolResultError(fmt.Sprintf("invalid scores: %v (pass exactly one of 'scores' or 'answers')", err))
	default:
		return mcp.NewToolResultError(fmt.Sprintf("evaluation failed: %v", err))
	}
}

// answersExample is a complete raw submission: one 1..5 answer per item.
// Unlike 'scores', pssm is a flat list and the SMA activity key is "healthy".
const answersExample = `{"stage":"PR","pssm":[3,3,3,3,2],` +
	`"pdsm":{"pros":[4,3,3],"cons":[3,3,2]},` +
	`"ppsm":{"experiential":[3,3,3,3,3],"behavioral":[2,3,2,3,2]},` +
	`"risci":{"stress":[4,4,3],"coping":[3,3,3]},` +
	`"sma":{"planning":[2,2],"reframing":[3,3],"healthy":[4,3]}}`

// Describes the shared arguments of the scoring tools.
func scoreArgs() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("scores",
			mcp.Description(`Sub-dimension totals as JSON, e.g. {"stage":"PR","pssm":{"self_efficacy":14},`+
				`"pdsm":{"pros":10,"cons":8},"ppsm":{"experiential":15,"behavioral":12},`+
				`"risci":{"stress":11,"coping":9},"sma":{"planning":4,"reframing":6,"healthy_activity":7}}`),
		),
		mcp.WithString("answers",
			mcp.Description("Raw Likert item answers (1-5) as JSON, one per item. Use instead of 'scores'. "+
				"pssm is a flat list and the SMA activity key is 'healthy', e.g. "+answersExample),
		),
	}
}
