package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/hometrics/rentbot/foundation/client"
)

// SessionStore persists the conversation for each chat session.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) ([]client.D, error)
	Save(ctx context.Context, sessionID string, conversation []client.D) error
}

// MemoryStore keeps sessions in process memory. It is the default store and
// loses sessions on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]client.D
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]client.D),
	}
}

func (ms *MemoryStore) Load(ctx context.Context, sessionID string) ([]client.D, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	conversation := ms.sessions[sessionID]

	cp := make([]client.D, len(conversation))
	copy(cp, conversation)

	return cp, nil
}

func (ms *MemoryStore) Save(ctx context.Context, sessionID string, conversation []client.D) error {
	cp := make([]client.D, len(conversation))
	copy(cp, conversation)

	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.sessions[sessionID] = cp

	return nil
}

// =============================================================================

// TokenCounter reports how many tokens a piece of text costs in the model's
// context window.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter builds a counter over the specified tiktoken encoding,
// e.g. "cl100k_base". The encoding data is fetched on first use, so this can
// fail without network access.
func NewTiktokenCounter(encoding string) (TokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("get encoding: %w", err)
	}

	return &tiktokenCounter{enc: enc}, nil
}

func (tc *tiktokenCounter) Count(text string) int {
	return len(tc.enc.Encode(text, nil, nil))
}

type estimateCounter struct{}

// NewEstimateCounter builds a counter that approximates tokens as one per
// four characters. It is the fallback when the tiktoken data can't be
// fetched.
func NewEstimateCounter() TokenCounter {
	return estimateCounter{}
}

func (estimateCounter) Count(text string) int {
	return len(text)/4 + 1
}

// =============================================================================

// Truncate returns the window of the conversation that is sent to the model:
// the system prompt plus the most recent messages that fit both the message
// cap and the token budget. A tool result is never kept without the
// assistant message that requested it, since models reject orphaned tool
// messages.
func Truncate(conversation []client.D, counter TokenCounter, maxMessages int, tokenBudget int) []client.D {
	if len(conversation) == 0 {
		return conversation
	}

	first := 0
	var window []client.D

	if role, _ := conversation[0]["role"].(string); role == "system" {
		window = append(window, conversation[0])
		first = 1
	}

	tokens := messageTokens(counter, window...)

	start := len(conversation)
	for start > first {
		candidate := conversation[start-1]

		cost := messageTokens(counter, candidate)
		if tokens+cost > tokenBudget && start < len(conversation) {
			break
		}

		if len(conversation)-start >= maxMessages && start < len(conversation) {
			break
		}

		tokens += cost
		start--
	}

	// Walking backward can land on a tool result whose assistant request was
	// cut off. Push the start forward past the orphaned results instead.
	for start < len(conversation) {
		if role, _ := conversation[start]["role"].(string); role != "tool" {
			break
		}
		start++
	}

	return append(window, conversation[start:]...)
}

func messageTokens(counter TokenCounter, msgs ...client.D) int {
	total := 0

	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}

		total += counter.Count(string(data))
	}

	return total
}
