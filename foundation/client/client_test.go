package client_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hometrics/rentbot/foundation/client"
)

func TestChatCompletionsSSE(t *testing.T) {
	events := []string{
		`{"id":"1","object":"chat.completion.chunk","created":1700000000,"model":"test","choices":[{"index":0,"delta":{"role":"assistant","content":"The average"}}]}`,
		`{"id":"1","object":"chat.completion.chunk","created":1700000000,"model":"test","choices":[{"index":0,"delta":{"content":" rent is $1850."}}]}`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		if stream, _ := req["stream"].(bool); !stream {
			t.Error("expected stream to be set on the request")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	llm := client.NewLLM(srv.URL, "test")

	conversation := []client.D{
		{"role": "user", "content": "What is the average rent?"},
	}

	ch, err := llm.ChatCompletionsSSE(t.Context(), conversation)
	if err != nil {
		t.Fatalf("ChatCompletionsSSE: %v", err)
	}

	var content string
	for resp := range ch {
		if len(resp.Choices) == 0 {
			continue
		}
		content += resp.Choices[0].Delta.Content
	}

	want := "The average rent is $1850."
	if content != want {
		t.Fatalf("got %q, want %q", content, want)
	}
}

func TestChatCompletionsSSENoiseLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")

		// Hosted endpoints mix comments, event fields, and keep-alives into
		// the stream. None of them carry JSON and none may kill the reader.
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "event: message\n")
		fmt.Fprint(w, `data: {"id":"1","created":1700000000,"choices":[{"index":0,"delta":{"role":"assistant","content":"$1850"}}]}`+"\n\n")
		fmt.Fprint(w, ":\n\n")
		fmt.Fprint(w, `data: {"id":"1","created":1700000000,"choices":[{"index":0,"delta":{"content":" per month"}}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	llm := client.NewLLM(srv.URL, "test")

	ch, err := llm.ChatCompletionsSSE(t.Context(), []client.D{{"role": "user", "content": "Rent?"}})
	if err != nil {
		t.Fatalf("ChatCompletionsSSE: %v", err)
	}

	var content string
	for resp := range ch {
		if len(resp.Choices) == 0 {
			continue
		}
		content += resp.Choices[0].Delta.Content
	}

	want := "$1850 per month"
	if content != want {
		t.Fatalf("got %q, want %q", content, want)
	}
}

func TestToolCallUnmarshal(t *testing.T) {
	line := `{"id":"1","created":1700000000,"choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"id":"call_1","index":0,"type":"function","function":{"name":"get_time_series_prediction","arguments":"{\"number_of_values_to_predict\":12,\"historical_values\":[1500,1525,1610]}"}}]}}]}`

	var resp client.ChatSSE
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(resp.Choices) != 1 {
		t.Fatalf("got %d choices, want 1", len(resp.Choices))
	}

	calls := resp.Choices[0].Delta.ToolCalls
	if len(calls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(calls))
	}

	if calls[0].Function.Name != "get_time_series_prediction" {
		t.Fatalf("got tool name %q", calls[0].Function.Name)
	}

	if v, ok := calls[0].Function.Arguments["number_of_values_to_predict"].(float64); !ok || v != 12 {
		t.Fatalf("got prediction length %v", calls[0].Function.Arguments["number_of_values_to_predict"])
	}

	history, ok := calls[0].Function.Arguments["historical_values"].([]any)
	if !ok || len(history) != 3 {
		t.Fatalf("got historical values %v", calls[0].Function.Arguments["historical_values"])
	}
}

func TestChatCompletions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"1","created":1700000000,"model":"test","choices":[{"index":0,"message":{"role":"assistant","content":"42"}}]}`)
	}))
	defer srv.Close()

	llm := client.NewLLM(srv.URL, "test")

	msg, err := llm.ChatCompletions(t.Context(), []client.D{{"role": "user", "content": "Answer?"}})
	if err != nil {
		t.Fatalf("ChatCompletions: %v", err)
	}

	if msg.Content != "42" {
		t.Fatalf("got %q, want %q", msg.Content, "42")
	}
}
