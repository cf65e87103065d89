// Package nlu implements the natural-language understanding pipeline that
// turns free-form chat messages into structured course-management commands:
// rule-based intent classification, ambiguity rejection, layered entity
// extraction, canonical time resolution, and multi-turn correction handling.
package nlu

import (
	"coursebot/internal/nlu/timeparse"
)

// Intent is the user's requested course-management action.
type Intent string

const (
	IntentRecordCourse  Intent = "record_course"
	IntentModifyCourse  Intent = "modify_course"
	IntentCancelCourse  Intent = "cancel_course"
	IntentQuerySchedule Intent = "query_schedule"
	IntentCorrection    Intent = "correction_intent"
	IntentAmbiguous     Intent = "ambiguous_input"
	IntentUnknown       Intent = "unknown"
)

// AnalysisMethod records which stage of the fallback chain produced a result.
// It is a closed set; downstream consumers branch on it to decide whether to
// surface a clarification prompt, proceed to a write, or log a diagnostic.
type AnalysisMethod string

const (
	MethodRuleEngine              AnalysisMethod = "rule_engine"
	MethodRuleEnginePrimary       AnalysisMethod = "rule_engine_primary"
	MethodOpenAI                  AnalysisMethod = "openai"
	MethodEnhancedOpenAI          AnalysisMethod = "enhanced_openai"
	MethodDetailedFallback        AnalysisMethod = "detailed_fallback"
	MethodRuleEngineFallback      AnalysisMethod = "rule_engine_fallback"
	MethodRuleEngineFinalFallback AnalysisMethod = "rule_engine_final_fallback"
	MethodRejectedPureTime        AnalysisMethod = "rejected_pure_time"
	MethodRejectedNotCourse       AnalysisMethod = "rejected_not_course_related"
	MethodError                   AnalysisMethod = "error"
	MethodAllFailed               AnalysisMethod = "all_failed"
)

// IsValid reports whether m is a member of the closed method set.
func (m AnalysisMethod) IsValid() bool {
	switch m {
	case MethodRuleEngine, MethodRuleEnginePrimary, MethodOpenAI,
		MethodEnhancedOpenAI, MethodDetailedFallback, MethodRuleEngineFallback,
		MethodRuleEngineFinalFallback, MethodRejectedPureTime,
		MethodRejectedNotCourse, MethodError, MethodAllFailed:
		return true
	}
	return false
}

// Entities carries every structured field recoverable from one utterance.
// The struct itself is never nil in an AnalysisResult; individual fields are
// empty (or nil for TimeInfo) when nothing was extracted.
type Entities struct {
	CourseName        string              `json:"course_name"`
	Location          string              `json:"location"`
	Teacher           string              `json:"teacher"`
	Student           string              `json:"student"`
	StudentName       string              `json:"student_name"`
	Confirmation      string              `json:"confirmation"`       // "yes", "no", or empty
	RecurrencePattern string              `json:"recurrence_pattern"` // "daily", "weekly[:1-7]", "monthly[:1-31]"
	TimeInfo          *timeparse.TimeInfo `json:"time_info"`
	OriginalText      string              `json:"original_text"`
}

// EmptyEntities returns a well-formed Entities with only the original text
// set. Used on every failure path so callers never see missing keys.
func EmptyEntities(originalText string) Entities {
	return Entities{OriginalText: originalText}
}

// AnalysisResult is the wire contract returned to downstream consumers.
type AnalysisResult struct {
	Success      bool           `json:"success"`
	Method       AnalysisMethod `json:"method"`
	Intent       Intent         `json:"intent"`
	Confidence   float64        `json:"confidence"`
	Entities     Entities       `json:"entities"`
	Reasoning    string         `json:"reasoning,omitempty"`
	Error        string         `json:"error,omitempty"`
	AnalysisTime int64          `json:"analysis_time_ms"`
}

// ExtractionCandidate is one stage's proposal for one entity field. Stages
// append candidates; a single reconciliation step at the end of extraction
// picks winners instead of relabeling an already-built result in place.
type ExtractionCandidate struct {
	Field      string  // "course_name", "student", "location", "teacher"
	Value      string
	Strategy   string // "regex", "llm", "fuzzy", "heuristic"
	Confidence float64
}

// clampConfidence keeps every confidence inside [0,1].
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
