// Package llm provides the generative-language-model collaborator: an
// OpenAI-compatible chat client plus the NLU service layer that turns chat
// completions into entity extractions and intent analyses.
package llm

import (
	"context"

	"coursebot/internal/nlu"
)

// Config configures an HTTP-based chat client.
type Config struct {
	APIKey     string            `json:"api_key"`
	BaseURL    string            `json:"base_url"`
	Model      string            `json:"model"`
	Timeout    int               `json:"timeout"` // seconds
	MaxRetries int               `json:"max_retries"`
	Headers    map[string]string `json:"headers"`
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a non-streaming chat completion request.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// CompletionResponse carries the assistant message and provider usage.
type CompletionResponse struct {
	Content string         `json:"content"`
	Model   string         `json:"model"`
	Usage   nlu.TokenUsage `json:"usage"`
}

// Client is the chat-completions contract the NLU service builds on.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Model() string
}
