package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"coursebot/internal/logging"
)

// openaiClient speaks the OpenAI-compatible chat completions API.
type openaiClient struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
	headers    map[string]string
	maxRetries int
}

// NewOpenAIClient constructs a chat client from config. The HTTP timeout is
// the hard upper bound for every call; per-request contexts may be shorter.
func NewOpenAIClient(config Config, logger logging.Logger) (Client, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := 30 * time.Second
	if config.Timeout > 0 {
		timeout = time.Duration(config.Timeout) * time.Second
	}
	return &openaiClient{
		model:      config.Model,
		apiKey:     config.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.OrNop(logger),
		headers:    config.Headers,
		maxRetries: config.MaxRetries,
	}, nil
}

// Model returns the configured model name.
func (c *openaiClient) Model() string {
	return c.model
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a non-streaming chat completion request.
func (c *openaiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	payload := map[string]any{
		"model":    c.model,
		"messages": req.Messages,
		"stream":   false,
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	c.logger.Debug("=== LLM Request ===")
	c.logger.Debug("URL: POST %s", endpoint)
	c.logger.Debug("Model: %s", c.model)

	var respBody []byte
	var statusCode int
	for attempt := 0; ; attempt++ {
		respBody, statusCode, err = c.doRequest(ctx, endpoint, body)
		if err == nil && statusCode != http.StatusTooManyRequests && statusCode < 500 {
			break
		}
		if attempt >= c.maxRetries || ctx.Err() != nil {
			if err != nil {
				return nil, fmt.Errorf("llm request: %w", err)
			}
			return nil, fmt.Errorf("llm API error %d: %s", statusCode, truncate(string(respBody), 500))
		}
		c.logger.Debug("retrying llm call, attempt %d: status=%d err=%v", attempt+1, statusCode, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 500 * time.Millisecond):
		}
	}
	if statusCode != http.StatusOK {
		return nil, fmt.Errorf("llm API error %d: %s", statusCode, truncate(string(respBody), 500))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("llm API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("llm response has no choices")
	}

	out := &CompletionResponse{
		Content: parsed.Choices[0].Message.Content,
		Model:   parsed.Model,
	}
	if out.Model == "" {
		out.Model = c.model
	}
	out.Usage.PromptTokens = parsed.Usage.PromptTokens
	out.Usage.CompletionTokens = parsed.Usage.CompletionTokens
	out.Usage.TotalTokens = parsed.Usage.TotalTokens
	c.logger.Debug("Tokens: prompt=%d completion=%d total=%d",
		out.Usage.PromptTokens, out.Usage.CompletionTokens, out.Usage.TotalTokens)
	return out, nil
}

// doRequest performs one HTTP attempt; the caller owns retry policy.
func (c *openaiClient) doRequest(ctx context.Context, endpoint string, body []byte) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	c.logger.Debug("Request Headers:")
	for k := range httpReq.Header {
		if k == "Authorization" {
			c.logger.Debug("  %s: Bearer (hidden)", k)
			continue
		}
		c.logger.Debug("  %s: %s", k, httpReq.Header.Get(k))
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("HTTP request failed: %v", err)
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("=== LLM Response ===")
	c.logger.Debug("Status: %d %s", resp.StatusCode, resp.Status)
	return respBody, resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
