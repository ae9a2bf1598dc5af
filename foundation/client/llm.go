package client

import (
	"context"
	"fmt"
	"maps"
	"net/http"
)

// LLM provides chat completions against an OpenAI-compatible endpoint. The
// same value can be shared across goroutines.
type LLM struct {
	cln    *Client
	clnSSE *SSEClient[ChatSSE]
	url    string
	model  string
}

func NewLLM(url string, model string, options ...func(cln *Client)) *LLM {
	return &LLM{
		cln:    New(StdoutLogger, options...),
		clnSSE: NewSSE[ChatSSE](StdoutLogger, options...),
		url:    url,
		model:  model,
	}
}

func (llm *LLM) Model() string {
	return llm.model
}

type withParam struct {
	typ string
	d   D
}

func WithParams(temperature float32, topP float32, topK int) withParam {
	return withParam{
		typ: "params",
		d: D{
			"temperature": temperature,
			"top_p":       topP,
			"top_k":       topK,
		},
	}
}

// WithTools attaches tool documents to the request so the model can ask for
// tool invocations.
func WithTools(toolDocuments []D) withParam {
	return withParam{
		typ: "tools",
		d: D{
			"tools":          toolDocuments,
			"tool_selection": "auto",
		},
	}
}

func WithMaxTokens(maxTokens int) withParam {
	return withParam{
		typ: "maxtokens",
		d: D{
			"max_tokens": maxTokens,
		},
	}
}

// =============================================================================

// ChatCompletions performs a single blocking completion over the provided
// conversation and returns the assistant message.
func (llm *LLM) ChatCompletions(ctx context.Context, conversation []D, options ...withParam) (ChatMessage, error) {
	d := llm.request(conversation, false, options)

	var chat Chat
	if err := llm.cln.Do(ctx, http.MethodPost, llm.url, d, &chat); err != nil {
		return ChatMessage{}, fmt.Errorf("do: %w", err)
	}

	if len(chat.Choices) == 0 {
		return ChatMessage{}, fmt.Errorf("no response")
	}

	return chat.Choices[0].Message, nil
}

// ChatCompletionsSSE performs a streaming completion over the provided
// conversation. The returned channel is closed when the stream ends.
func (llm *LLM) ChatCompletionsSSE(ctx context.Context, conversation []D, options ...withParam) (chan ChatSSE, error) {
	d := llm.request(conversation, true, options)

	ch := make(chan ChatSSE, 100)
	if err := llm.clnSSE.Do(ctx, http.MethodPost, llm.url, d, ch); err != nil {
		return nil, fmt.Errorf("do: %w", err)
	}

	return ch, nil
}

func (llm *LLM) request(conversation []D, stream bool, options []withParam) D {
	d := D{
		"model":       llm.model,
		"messages":    conversation,
		"temperature": 0.1,
		"top_p":       0.1,
		"top_k":       50,
	}

	if stream {
		d["stream"] = true
	}

	for _, opt := range options {
		maps.Copy(d, opt.d)
	}

	return d
}
