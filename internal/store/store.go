// Package store holds the persistence boundary the NLU pipeline consumes:
// read-only course lookups used for fuzzy disambiguation, and fire-and-forget
// token usage accounting.
package store

import (
	"context"
	"time"
)

// Course is a scheduled tutoring session as persisted by the CRUD layer.
type Course struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	Teacher    string    `json:"teacher"`
	Location   string    `json:"location"`
	Schedule   time.Time `json:"schedule"`
	Recurrence string    `json:"recurrence"`
	Status     string    `json:"status"`
}

// CourseFilter narrows GetUserCourses results.
type CourseFilter struct {
	// ActiveOnly drops cancelled and past sessions.
	ActiveOnly bool
	// NameContains keeps only courses whose name contains the substring.
	NameContains string
	// Limit caps the result size; 0 means no cap.
	Limit int
}

// TokenUsageRecord is one LLM call's worth of token accounting.
type TokenUsageRecord struct {
	UserID           string    `json:"user_id"`
	Model            string    `json:"model"`
	Method           string    `json:"method"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	CreatedAt        time.Time `json:"created_at"`
}

// CourseStore is the persistence contract. Failures from LogTokenUsage must
// never affect a pipeline outcome; callers log and continue.
type CourseStore interface {
	GetUserCourses(ctx context.Context, userID string, filter CourseFilter) ([]Course, error)
	LogTokenUsage(ctx context.Context, record TokenUsageRecord) error
}
