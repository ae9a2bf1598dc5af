package tools

import (
	"context"
	"time"

	"github.com/hometrics/rentbot/foundation/client"
)

// CurrentDatetime tells the model what time it is so questions like "for the
// past year" can be translated into date ranges.
type CurrentDatetime struct {
	name string
	now  func() time.Time
}

func RegisterCurrentDatetime(tools map[string]Tool) client.D {
	cd := CurrentDatetime{
		name: "get_current_datetime",
		now:  time.Now,
	}
	tools[cd.name] = &cd

	return cd.toolDocument()
}

func (cd *CurrentDatetime) toolDocument() client.D {
	return client.D{
		"type": "function",
		"function": client.D{
			"name":        cd.name,
			"description": "Get the current date and time in ISO format",
			"parameters": client.D{
				"type":       "object",
				"properties": client.D{},
			},
		},
	}
}

func (cd *CurrentDatetime) Call(ctx context.Context, toolCall client.ToolCall) client.D {
	return SuccessResponse(toolCall.ID, "datetime", cd.now().Format(time.RFC3339))
}
