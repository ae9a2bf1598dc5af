// Package agent drives the manual tool-calling loop: stream the model's
// output, detect tool calls, invoke the tools, feed the results back, and
// repeat until the model produces a final answer.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hometrics/rentbot/agent/tools"
	"github.com/hometrics/rentbot/foundation/client"
)

const systemPrompt = `You are an assistant designed to help with business and data analysis.
If the user asks for data you don't have, use the provided tools/functions to interact with a database; follow these steps:

1. First, you should ALWAYS look at the tables in the database to see what you can query. Do NOT skip this step

2. Then query the schema of the most relevant tables

3. Create a syntactically correct SQL query

4. You MUST use the tool to check/validate your query syntax before executing it. If you get an error while executing a query, rewrite the query and try again

5. Run the query, look at the results, and only use this returned information to construct your final answer

After you request a tool call, you will receive a JSON document with two fields, "status" and "data". Always check the "status" field to know if the call "SUCCESS" or "FAILED". The information you need will be under the "data" field. If the call "FAILED", inform the user and don't retry the same call in the current response.

Guidelines:

Call each tool individually, one call at a time.
Unless the user specifies a specific number of examples they wish to obtain, always limit your query to at most 5 results.
You can order the results by a relevant column to return the most interesting examples in the database.
Never query for all the columns from a specific table, only ask for the relevant columns given the question.
DO NOT make any DML statements (INSERT, UPDATE, DELETE, DROP etc.) to the database.`

// Event is one unit of streamed agent output.
type Event struct {
	Type      string         `json:"type"` // content, reasoning, tool_call, tool_result, error, done
	SessionID string         `json:"session_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Config holds the dependencies and knobs for the agent.
type Config struct {
	LLM           *client.LLM
	Store         SessionStore
	Counter       TokenCounter
	Log           client.Logger
	MaxMessages   int
	TokenBudget   int
	MaxToolRounds int
	MaxTokens     int
}

type Agent struct {
	llm           *client.LLM
	store         SessionStore
	counter       TokenCounter
	log           client.Logger
	tools         map[string]tools.Tool
	toolDocuments []client.D
	maxMessages   int
	tokenBudget   int
	maxToolRounds int
	maxTokens     int
}

func New(cfg Config, registry map[string]tools.Tool, toolDocuments []client.D) *Agent {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}

	if cfg.Counter == nil {
		cfg.Counter = NewEstimateCounter()
	}

	if cfg.Log == nil {
		cfg.Log = client.NoopLogger
	}

	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 10
	}

	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = 8 * 1024
	}

	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 10
	}

	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4 * 1024
	}

	return &Agent{
		llm:           cfg.LLM,
		store:         cfg.Store,
		counter:       cfg.Counter,
		log:           cfg.Log,
		tools:         registry,
		toolDocuments: toolDocuments,
		maxMessages:   cfg.MaxMessages,
		tokenBudget:   cfg.TokenBudget,
		maxToolRounds: cfg.MaxToolRounds,
		maxTokens:     cfg.MaxTokens,
	}
}

// Chat runs one turn of the conversation for the session. Events are
// delivered on the returned channel which is closed when the turn ends.
func (a *Agent) Chat(ctx context.Context, sessionID string, message string) <-chan Event {
	ch := make(chan Event, 100)

	go func() {
		defer close(ch)

		conversation, err := a.store.Load(ctx, sessionID)
		if err != nil {
			ch <- Event{Type: "error", SessionID: sessionID, Content: fmt.Sprintf("load session: %s", err)}
			return
		}

		if len(conversation) == 0 {
			conversation = append(conversation, client.D{
				"role":    "system",
				"content": systemPrompt,
			})
		}

		conversation = append(conversation, client.D{
			"role":    "user",
			"content": message,
		})

		conversation, err = a.runTurn(ctx, sessionID, conversation, ch)

		// Save whatever we have even when the turn failed part way, so the
		// session doesn't lose the user's message.
		if saveErr := a.store.Save(ctx, sessionID, conversation); saveErr != nil {
			ch <- Event{Type: "error", SessionID: sessionID, Content: fmt.Sprintf("save session: %s", saveErr)}
		}

		if err != nil {
			ch <- Event{Type: "error", SessionID: sessionID, Content: err.Error()}
			return
		}

		ch <- Event{Type: "done", SessionID: sessionID}
	}()

	return ch
}

func (a *Agent) runTurn(ctx context.Context, sessionID string, conversation []client.D, ch chan<- Event) ([]client.D, error) {
	for round := 0; round < a.maxToolRounds; round++ {
		window := Truncate(conversation, a.counter, a.maxMessages, a.tokenBudget)

		a.log(ctx, "agent: model call", "session", sessionID, "round", round, "window", len(window))

		sse, err := a.llm.ChatCompletionsSSE(ctx, window,
			client.WithTools(a.toolDocuments),
			client.WithMaxTokens(a.maxTokens),
		)
		if err != nil {
			return conversation, fmt.Errorf("chat completions: %w", err)
		}

		var content strings.Builder
		var pendingToolCalls []client.ToolCall

		for resp := range sse {
			if resp.Error != "" {
				return conversation, fmt.Errorf("model: %s", resp.Error)
			}

			if len(resp.Choices) == 0 {
				continue
			}

			delta := resp.Choices[0].Delta

			switch {
			case len(delta.ToolCalls) > 0:
				// Execute the calls after the stream is drained.
				pendingToolCalls = append(pendingToolCalls, delta.ToolCalls...)

			case delta.Content != "":
				content.WriteString(delta.Content)
				ch <- Event{Type: "content", SessionID: sessionID, Content: delta.Content}

			case delta.Reasoning != "":
				ch <- Event{Type: "reasoning", SessionID: sessionID, Content: delta.Reasoning}
			}
		}

		if len(pendingToolCalls) > 0 {
			conversation = append(conversation, assistantToolCallMessage(pendingToolCalls))
			conversation = append(conversation, a.callTools(ctx, sessionID, pendingToolCalls, ch)...)
			continue
		}

		answer := strings.TrimLeft(content.String(), "\n")
		if answer != "" {
			conversation = append(conversation, client.D{
				"role":    "assistant",
				"content": answer,
			})
		}

		return conversation, nil
	}

	return conversation, fmt.Errorf("tool call limit reached after %d rounds", a.maxToolRounds)
}

// assistantToolCallMessage records the model's tool request in the
// conversation so the model has context for the results that follow.
func assistantToolCallMessage(toolCalls []client.ToolCall) client.D {
	calls := make([]client.D, 0, len(toolCalls))

	for _, call := range toolCalls {
		argsJSON, _ := json.Marshal(call.Function.Arguments)

		calls = append(calls, client.D{
			"id":   call.ID,
			"type": "function",
			"function": client.D{
				"name":      call.Function.Name,
				"arguments": string(argsJSON),
			},
		})
	}

	return client.D{
		"role":       "assistant",
		"tool_calls": calls,
	}
}

func (a *Agent) callTools(ctx context.Context, sessionID string, toolCalls []client.ToolCall, ch chan<- Event) []client.D {
	var resps []client.D

	for _, toolCall := range toolCalls {
		name := toolCall.Function.Name

		ch <- Event{Type: "tool_call", SessionID: sessionID, Tool: name, Data: toolCall.Function.Arguments}

		tool, exists := a.tools[name]
		if !exists {
			a.log(ctx, "agent: unknown tool", "session", sessionID, "tool", name)
			resps = append(resps, tools.ErrorResponse(toolCall.ID, fmt.Errorf("unknown tool: %q", name)))
			continue
		}

		a.log(ctx, "agent: tool call", "session", sessionID, "tool", name)

		resp := tool.Call(ctx, toolCall)
		resps = append(resps, resp)

		ch <- Event{Type: "tool_result", SessionID: sessionID, Tool: name, Data: toolData(resp)}
	}

	return resps
}

// toolData re-parses the tool response content so event consumers, like the
// website's forecast chart, get structured data instead of a JSON string.
func toolData(resp client.D) map[string]any {
	content, ok := resp["content"].(string)
	if !ok {
		return nil
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return nil
	}

	return data
}
