package llm

import (
	"context"
	"fmt"

	"coursebot/internal/nlu"
)

// MockClient implements Client for tests. Responses are served in order;
// when the queue is exhausted the last response repeats. Err, when set,
// fails every call.
type MockClient struct {
	ModelName string
	Responses []string
	Err       error

	Calls []CompletionRequest
	next  int
}

// Model returns the mock model name.
func (m *MockClient) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// Complete replays queued responses and records the request.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.Calls = append(m.Calls, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) == 0 {
		return nil, fmt.Errorf("mock client has no responses queued")
	}
	idx := m.next
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	m.next++
	return &CompletionResponse{
		Content: m.Responses[idx],
		Model:   m.Model(),
		Usage:   nlu.TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	}, nil
}
