// Package tools provides the callable tools exposed to the model: SQL access
// to the rentals database, the current time, and time-series forecasting.
package tools

import (
	"context"
	"encoding/json"

	"github.com/hometrics/rentbot/foundation/client"
)

// Tool allows the agent to call any tool function we define without the
// agent knowing the exact tool it is using.
type Tool interface {
	Call(ctx context.Context, toolCall client.ToolCall) client.D
}

// SuccessResponse builds a tool message with status SUCCESS and the provided
// key/value pairs under data.
func SuccessResponse(toolID string, keyValues ...any) client.D {
	data := make(map[string]any)
	for i := 0; i < len(keyValues); i = i + 2 {
		data[keyValues[i].(string)] = keyValues[i+1]
	}

	return response(toolID, data, "SUCCESS")
}

// ErrorResponse builds a tool message with status FAILED so the model knows
// the call didn't work without the agent erroring out.
func ErrorResponse(toolID string, err error) client.D {
	data := map[string]any{"error": err.Error()}

	return response(toolID, data, "FAILED")
}

func response(toolID string, data map[string]any, status string) client.D {
	info := struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}{
		Status: status,
		Data:   data,
	}

	content, err := json.Marshal(info)
	if err != nil {
		return client.D{
			"role":         "tool",
			"tool_call_id": toolID,
			"content":      `{"status": "FAILED", "data": "error marshaling tool response"}`,
		}
	}

	return client.D{
		"role":         "tool",
		"tool_call_id": toolID,
		"content":      string(content),
	}
}
