package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mj1618/web-bridge/internal/bridgeerr"
)

func doTool() mcp.Tool {
	return mcp.NewTool("do",
		mcp.WithDescription("Run several commands in order. Each step is an object with an \"action\" naming a tool plus that tool's arguments."),
		mcp.WithArray("steps", mcp.Description("Array of step objects, e.g. [{\"action\":\"fill\",\"selector\":\"#q\",\"value\":\"shoes\"},{\"action\":\"press_key\",\"key\":\"Enter\"}]"), mcp.Required()),
		mcp.WithBoolean("stop-on-error", mcp.Description("Stop on first error (default: true)")),
		mcp.WithNumber("tabId", mcp.Description("Default tab for every step")),
	)
}

// StepResult is the outcome of one batch step.
type StepResult struct {
	Step   int             `json:"step"`
	Action string          `json:"action"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *bridgeerr.Wire `json:"error,omitempty"`
}

type doRequest struct {
	Steps       []map[string]any `json:"steps"`
	StopOnError *bool            `json:"stop-on-error"`
	TabID       *float64         `json:"tabId"`
}

func (s *Server) handleDo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode arguments: %v", err)), nil
	}
	var req doRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("steps must be an array of objects: %v", err)), nil
	}
	if len(req.Steps) == 0 {
		return mcp.NewToolResultError("steps parameter is required"), nil
	}
	stopOnError := req.StopOnError == nil || *req.StopOnError

	results := s.RunSteps(ctx, req.Steps, req.TabID, stopOnError)
	failed := false
	for _, r := range results {
		failed = failed || !r.OK
	}
	res, err := textResult(mustJSON(results))
	if err != nil || !failed {
		return res, err
	}
	res.IsError = true
	return res, nil
}

// RunSteps runs steps in order through the same tools the server exposes.
func (s *Server) RunSteps(ctx context.Context, steps []map[string]any, tabID *float64, stopOnError bool) []StepResult {
	results := make([]StepResult, 0, len(steps))
	for i, step := range steps {
		action, _ := step["action"].(string)
		r := StepResult{Step: i + 1, Action: action}

		t, ok := lookup(action)
		switch {
		case action == "":
			r.Error = bridgeerr.ToWire(bridgeerr.Newf(bridgeerr.CodeInvalidRequest, "step %d has no action", i+1))
		case !ok || action == "screenshot":
			r.Error = bridgeerr.ToWire(bridgeerr.Newf(bridgeerr.CodeUnknownAction, "%q cannot run in a batch", action))
		default:
			args := make(map[string]any, len(step))
			for k, v := range step {
				if k != "action" {
					args[k] = v
				}
			}
			if _, set := args["tabId"]; !set && tabID != nil {
				args["tabId"] = *tabID
			}
			res, err := s.run(ctx, t, mustJSON(args))
			if err != nil {
				r.Error = bridgeerr.ToWire(err)
			} else {
				r.OK, r.Result = true, res
			}
		}
		results = append(results, r)
		if !r.OK && stopOnError {
			break
		}
	}
	return results
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
