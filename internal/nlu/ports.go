package nlu

import (
	"context"
	"time"

	"coursebot/internal/store"
)

// TokenUsage mirrors the provider-reported token accounting for one call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// EntityExtraction is the LLM collaborator's full-entity pass over one
// utterance. Date and time phrases are kept separate so the consumer can
// recombine them before time resolution.
type EntityExtraction struct {
	CourseName string `json:"course_name"`
	Student    string `json:"student"`
	Location   string `json:"location"`
	Teacher    string `json:"teacher"`
	DatePhrase string `json:"date_phrase"`
	TimePhrase string `json:"time_phrase"`
}

// IntentAnalysis is the LLM collaborator's intent classification result.
type IntentAnalysis struct {
	Intent     Intent            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities"`
	Reasoning  string            `json:"reasoning"`
	// InDomain is false when the utterance is flagged as unrelated to
	// course scheduling altogether.
	InDomain bool       `json:"in_domain"`
	Usage    TokenUsage `json:"-"`
	Model    string     `json:"-"`
}

// LLMService is the generative-language-model collaborator consumed by the
// pipeline. FallbackIntentAnalysis is pure and local: it must not touch the
// network and must always return a result.
type LLMService interface {
	ExtractAllEntities(ctx context.Context, text string) (*EntityExtraction, error)
	AnalyzeIntent(ctx context.Context, text, userID string) (*IntentAnalysis, error)
	FallbackIntentAnalysis(text string) *IntentAnalysis
}

// PendingContext is the single most recent successful turn kept per user to
// support correction follow-ups.
type PendingContext struct {
	UserID    string
	Intent    Intent
	Entities  Entities
	Result    *AnalysisResult
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ContextStore is the per-user, TTL-bounded conversational memory. An
// expired context must behave identically to no context.
type ContextStore interface {
	GetPendingContext(userID string) (*PendingContext, bool)
	HasValidContext(userID string) bool
	UpdateContext(userID string, intent Intent, entities Entities, result *AnalysisResult)
	Clear(userID string)
	// Lock serializes the read-then-write window for one user; the returned
	// function releases it. Requests for different users never contend.
	Lock(userID string) (unlock func())
}

// CourseLookup is the read-only persistence slice the extractor needs for
// fuzzy disambiguation against the user's existing records.
type CourseLookup interface {
	GetUserCourses(ctx context.Context, userID string, filter store.CourseFilter) ([]store.Course, error)
}

// UsageLogger receives token accounting as a side effect of LLM calls.
// Failures must not affect the pipeline outcome.
type UsageLogger interface {
	LogTokenUsage(ctx context.Context, record store.TokenUsageRecord) error
}
