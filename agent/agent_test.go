package agent_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hometrics/rentbot/agent"
	"github.com/hometrics/rentbot/agent/tools"
	"github.com/hometrics/rentbot/foundation/client"
)

// fakeLLM serves an OpenAI-compatible streaming endpoint. The first call
// requests a tool, every following call answers with content.
func fakeLLM(t *testing.T, requests *[][]map[string]any) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []map[string]any `json:"messages"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		*requests = append(*requests, req.Messages)

		w.Header().Set("Content-Type", "text/event-stream")

		hasToolResult := false
		for _, msg := range req.Messages {
			if msg["role"] == "tool" {
				hasToolResult = true
			}
		}

		if !hasToolResult {
			fmt.Fprint(w, `data: {"id":"1","created":1700000000,"choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"id":"call_1","index":0,"type":"function","function":{"name":"get_current_datetime","arguments":"{}"}}]}}]}`+"\n\n")
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}

		fmt.Fprint(w, `data: {"id":"2","created":1700000000,"choices":[{"index":0,"delta":{"role":"assistant","content":"It is "}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"id":"2","created":1700000000,"choices":[{"index":0,"delta":{"content":"late."}}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestChatToolCallLoop(t *testing.T) {
	var requests [][]map[string]any

	srv := fakeLLM(t, &requests)
	defer srv.Close()

	registry := map[string]tools.Tool{}
	toolDocs := []client.D{
		tools.RegisterCurrentDatetime(registry),
	}

	store := agent.NewMemoryStore()

	a := agent.New(agent.Config{
		LLM:   client.NewLLM(srv.URL, "test"),
		Store: store,
	}, registry, toolDocs)

	var events []agent.Event
	for ev := range a.Chat(t.Context(), "session-1", "What time is it?") {
		events = append(events, ev)
	}

	var types []string
	var content string
	for _, ev := range events {
		types = append(types, ev.Type)
		if ev.Type == "content" {
			content += ev.Content
		}
		if ev.Type == "error" {
			t.Fatalf("unexpected error event: %s", ev.Content)
		}
	}

	if content != "It is late." {
		t.Fatalf("got content %q", content)
	}

	want := []string{"tool_call", "tool_result", "content", "content", "done"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("got event types %v, want %v", types, want)
	}

	if len(requests) != 2 {
		t.Fatalf("got %d model calls, want 2", len(requests))
	}

	// The second model call must carry the tool request and its result.
	second := requests[1]
	roles := make([]string, 0, len(second))
	for _, msg := range second {
		roles = append(roles, msg["role"].(string))
	}

	if strings.Join(roles, ",") != "system,user,assistant,tool" {
		t.Fatalf("got roles %v", roles)
	}

	// The session must hold the full turn for the next question.
	conversation, err := store.Load(t.Context(), "session-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(conversation) != 5 {
		t.Fatalf("got %d stored messages, want 5", len(conversation))
	}

	last := conversation[len(conversation)-1]
	if last["role"] != "assistant" || last["content"] != "It is late." {
		t.Fatalf("got final message %v", last)
	}
}

func TestChatUnknownTool(t *testing.T) {
	var requests [][]map[string]any

	srv := fakeLLM(t, &requests)
	defer srv.Close()

	// Empty registry: the datetime call the fake model makes is unknown.
	a := agent.New(agent.Config{
		LLM: client.NewLLM(srv.URL, "test"),
	}, map[string]tools.Tool{}, nil)

	var sawDone bool
	for ev := range a.Chat(t.Context(), "session-1", "What time is it?") {
		if ev.Type == "error" {
			t.Fatalf("unexpected error event: %s", ev.Content)
		}
		if ev.Type == "done" {
			sawDone = true
		}
	}

	if !sawDone {
		t.Fatal("expected the turn to complete with a FAILED tool response")
	}

	// The tool response recorded for the model must be FAILED.
	found := false
	for _, msg := range requests[len(requests)-1] {
		if msg["role"] == "tool" {
			if content, _ := msg["content"].(string); strings.Contains(content, "FAILED") {
				found = true
			}
		}
	}

	if !found {
		t.Fatal("missing FAILED tool response in the follow-up model call")
	}
}

func TestChatToolRoundLimit(t *testing.T) {
	// This model asks for a tool on every call and never answers.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"id":"1","created":1700000000,"choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"id":"call_1","index":0,"type":"function","function":{"name":"get_current_datetime","arguments":"{}"}}]}}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	registry := map[string]tools.Tool{}
	toolDocs := []client.D{
		tools.RegisterCurrentDatetime(registry),
	}

	a := agent.New(agent.Config{
		LLM:           client.NewLLM(srv.URL, "test"),
		MaxToolRounds: 3,
	}, registry, toolDocs)

	var sawLimitError bool
	for ev := range a.Chat(t.Context(), "session-1", "loop forever") {
		if ev.Type == "error" && strings.Contains(ev.Content, "tool call limit") {
			sawLimitError = true
		}
	}

	if !sawLimitError {
		t.Fatal("expected a tool call limit error")
	}
}
