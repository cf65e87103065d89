package nlu

import (
	"context"
	"strings"
	"time"

	"coursebot/internal/logging"
	"coursebot/internal/store"
)

const (
	// TrustRuleConfidence is the floor above which a rule match is trusted
	// outright and no model call is made.
	TrustRuleConfidence = 0.8

	// correctionBoost raises confidence when a correction lands on a live
	// pending context; correctionPenalty lowers it when there is none to
	// correct.
	correctionBoost   = 0.1
	correctionPenalty = 0.3
	correctionFloor   = 0.1

	defaultLLMTimeout = 10 * time.Second
)

// MetricsRecorder receives pipeline outcome observations. Implementations
// must be safe for concurrent use; a nil recorder disables recording.
type MetricsRecorder interface {
	ObserveAnalysis(method AnalysisMethod, intent Intent, duration time.Duration)
	AddTokens(total int)
}

// DecisionOrchestrator runs the full analysis state machine: validation,
// ambiguity guarding, rule classification, the correction branch, and the
// layered LLM fallback chain. Per-user context reads and writes are
// serialized through the context store's lock.
type DecisionOrchestrator struct {
	classifier *Classifier
	guard      *AmbiguityGuard
	extractor  *EntityExtractor
	llm        LLMService
	contexts   ContextStore
	usage      UsageLogger
	metrics    MetricsRecorder
	logger     logging.Logger
	llmTimeout time.Duration
	trust      float64
	now        func() time.Time
}

// OrchestratorOptions wires the orchestrator's collaborators. LLM, Usage and
// Metrics may be nil; Contexts and Extractor are required.
type OrchestratorOptions struct {
	Classifier *Classifier
	Guard      *AmbiguityGuard
	Extractor  *EntityExtractor
	LLM        LLMService
	Contexts   ContextStore
	Usage      UsageLogger
	Metrics    MetricsRecorder
	Logger     logging.Logger
	LLMTimeout time.Duration
	// TrustThreshold overrides TrustRuleConfidence; zero keeps the default.
	TrustThreshold float64
}

// NewDecisionOrchestrator builds the pipeline entry point.
func NewDecisionOrchestrator(opts OrchestratorOptions) *DecisionOrchestrator {
	classifier := opts.Classifier
	if classifier == nil {
		classifier = NewClassifier(DefaultRules())
	}
	guard := opts.Guard
	if guard == nil {
		guard = NewAmbiguityGuard()
	}
	timeout := opts.LLMTimeout
	if timeout <= 0 {
		timeout = defaultLLMTimeout
	}
	trust := opts.TrustThreshold
	if trust <= 0 {
		trust = TrustRuleConfidence
	}
	return &DecisionOrchestrator{
		classifier: classifier,
		guard:      guard,
		extractor:  opts.Extractor,
		llm:        opts.LLM,
		contexts:   opts.Contexts,
		usage:      opts.Usage,
		metrics:    opts.Metrics,
		logger:     logging.OrNop(opts.Logger),
		llmTimeout: timeout,
		trust:      trust,
		now:        time.Now,
	}
}

// AnalyzeMessage turns one chat message into a structured AnalysisResult.
// It returns an error only for invalid input; every runtime failure inside
// the pipeline degrades to a result instead.
func (o *DecisionOrchestrator) AnalyzeMessage(ctx context.Context, text, userID string) (*AnalysisResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if strings.TrimSpace(userID) == "" {
		return nil, &ValidationError{Field: "user_id", Reason: "must not be empty"}
	}

	started := o.now()
	unlock := o.contexts.Lock(userID)
	defer unlock()

	result := o.analyzeLocked(ctx, text, userID)
	result.AnalysisTime = o.now().Sub(started).Milliseconds()
	if o.metrics != nil {
		o.metrics.ObserveAnalysis(result.Method, result.Intent, o.now().Sub(started))
	}
	o.logger.Info("analysis user=%s method=%s intent=%s confidence=%.2f in %dms",
		userID, result.Method, result.Intent, result.Confidence, result.AnalysisTime)
	return result, nil
}

func (o *DecisionOrchestrator) analyzeLocked(ctx context.Context, text, userID string) (result *AnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("analysis panic recovered user=%s: %v", userID, r)
			result = &AnalysisResult{
				Success:  false,
				Method:   MethodError,
				Intent:   IntentUnknown,
				Entities: EmptyEntities(text),
				Error:    "internal analysis failure",
			}
		}
	}()

	pending, hasPending := o.contexts.GetPendingContext(userID)

	// A live exchange disambiguates short replies, so the guard only runs
	// cold.
	if !hasPending {
		if verdict := o.guard.DetectPureTimeInput(text); verdict.IsPureTimeInput {
			return &AnalysisResult{
				Success:  false,
				Method:   MethodRejectedPureTime,
				Intent:   IntentAmbiguous,
				Entities: EmptyEntities(text),
				Error:    verdict.RejectionMessage,
			}
		}
	}

	match := o.classifier.AnalyzeIntent(text)

	if match.Intent == IntentCorrection {
		return o.handleCorrection(ctx, text, userID, match, pending, hasPending)
	}

	if match.Confidence >= o.trust {
		entities := o.extractor.ExtractEntities(ctx, ExtractRequest{
			Text:       text,
			UserID:     userID,
			IntentHint: match.Intent,
			DisableLLM: true,
		})
		result := &AnalysisResult{
			Success:    true,
			Method:     MethodRuleEnginePrimary,
			Intent:     match.Intent,
			Confidence: match.Confidence,
			Entities:   entities,
			Reasoning:  "keyword rules matched with high confidence",
		}
		o.updateContext(userID, result)
		return result
	}

	return o.llmFallbackChain(ctx, text, userID, match)
}

// handleCorrection resolves a correction utterance. With a pending context
// the previous entities are reused and only the corrected fields replace
// them; without one the correction degrades to a fresh low-confidence
// extraction.
func (o *DecisionOrchestrator) handleCorrection(ctx context.Context, text, userID string, match IntentMatch, pending *PendingContext, hasPending bool) *AnalysisResult {
	if hasPending && pending != nil {
		entities := pending.Entities
		entities.OriginalText = text

		// Fields mentioned in the correction override the remembered ones;
		// everything else carries over.
		corrected := o.extractor.ExtractEntities(ctx, ExtractRequest{
			Text:       text,
			UserID:     userID,
			IntentHint: IntentCorrection,
			DisableLLM: true,
		})
		overlayEntities(&entities, corrected)

		// The correction, not the original turn, refreshes nothing: the
		// pending slot keeps aging toward its TTL.
		return &AnalysisResult{
			Success:    true,
			Method:     MethodRuleEngine,
			Intent:     IntentModifyCourse,
			Confidence: clampConfidence(match.Confidence + correctionBoost),
			Entities:   entities,
			Reasoning:  "correction applied to pending context",
		}
	}

	confidence := match.Confidence - correctionPenalty
	if confidence < correctionFloor {
		confidence = correctionFloor
	}
	entities := o.extractor.ExtractEntities(ctx, ExtractRequest{
		Text:       text,
		UserID:     userID,
		IntentHint: IntentCorrection,
	})
	return &AnalysisResult{
		Success:    true,
		Method:     MethodRuleEngine,
		Intent:     IntentCorrection,
		Confidence: confidence,
		Entities:   entities,
		Reasoning:  "correction received with no pending context",
	}
}

// llmFallbackChain runs when rules alone are not conclusive: model analysis
// first, then the local keyword fallback, then the below-threshold rule
// match, and finally a terminal all_failed result.
func (o *DecisionOrchestrator) llmFallbackChain(ctx context.Context, text, userID string, match IntentMatch) *AnalysisResult {
	if o.llm != nil {
		llmCtx, cancel := context.WithTimeout(ctx, o.llmTimeout)
		analysis, err := o.llm.AnalyzeIntent(llmCtx, text, userID)
		cancel()
		if err == nil {
			o.logUsage(ctx, userID, analysis)
			return o.resultFromLLM(ctx, text, userID, match, analysis)
		}
		o.logger.Warn("llm intent analysis failed user=%s: %v", userID, err)

		if fallback := o.llm.FallbackIntentAnalysis(text); fallback != nil && fallback.Intent != IntentUnknown {
			entities := o.extractor.ExtractEntities(ctx, ExtractRequest{
				Text:       text,
				UserID:     userID,
				IntentHint: fallback.Intent,
				DisableLLM: true,
			})
			result := &AnalysisResult{
				Success:    true,
				Method:     MethodDetailedFallback,
				Intent:     fallback.Intent,
				Confidence: clampConfidence(fallback.Confidence),
				Entities:   entities,
				Reasoning:  fallback.Reasoning,
			}
			o.updateContext(userID, result)
			return result
		}
	}

	if match.Confidence > 0 {
		entities := o.extractor.ExtractEntities(ctx, ExtractRequest{
			Text:       text,
			UserID:     userID,
			IntentHint: match.Intent,
			DisableLLM: true,
		})
		result := &AnalysisResult{
			Success:    true,
			Method:     MethodRuleEngineFinalFallback,
			Intent:     match.Intent,
			Confidence: match.Confidence,
			Entities:   entities,
			Reasoning:  "low-confidence rule match used as last resort",
		}
		o.updateContext(userID, result)
		return result
	}

	return &AnalysisResult{
		Success:  false,
		Method:   MethodAllFailed,
		Intent:   IntentUnknown,
		Entities: EmptyEntities(text),
		Error:    "no analysis stage produced a usable intent",
	}
}

// resultFromLLM folds a successful model analysis into a result.
func (o *DecisionOrchestrator) resultFromLLM(ctx context.Context, text, userID string, match IntentMatch, analysis *IntentAnalysis) *AnalysisResult {
	if !analysis.InDomain {
		return &AnalysisResult{
			Success:   false,
			Method:    MethodRejectedNotCourse,
			Intent:    IntentUnknown,
			Entities:  EmptyEntities(text),
			Reasoning: analysis.Reasoning,
			Error:     "message is not about course scheduling",
		}
	}

	// An undecided model answer falls back to the rule match when one
	// exists, even below the trust threshold.
	if analysis.Intent == IntentUnknown && match.Confidence > 0 {
		entities := o.extractor.ExtractEntities(ctx, ExtractRequest{
			Text:       text,
			UserID:     userID,
			IntentHint: match.Intent,
			DisableLLM: true,
		})
		result := &AnalysisResult{
			Success:    true,
			Method:     MethodRuleEngineFinalFallback,
			Intent:     match.Intent,
			Confidence: match.Confidence,
			Entities:   entities,
			Reasoning:  "model undecided, rule match retained",
		}
		o.updateContext(userID, result)
		return result
	}

	entities := o.extractor.ExtractEntities(ctx, ExtractRequest{
		Text:       text,
		UserID:     userID,
		IntentHint: analysis.Intent,
	})
	// The classification call may carry entities the extractor missed.
	if entities.CourseName == "" {
		entities.CourseName = normalizeCourseName(analysis.Entities["course_name"], text)
	}
	if entities.Student == "" {
		entities.Student = analysis.Entities["student"]
	}
	if entities.Location == "" {
		entities.Location = analysis.Entities["location"]
	}
	if entities.Teacher == "" {
		entities.Teacher = analysis.Entities["teacher"]
	}

	result := &AnalysisResult{
		Success:    analysis.Intent != IntentUnknown,
		Method:     MethodOpenAI,
		Intent:     analysis.Intent,
		Confidence: clampConfidence(analysis.Confidence),
		Entities:   entities,
		Reasoning:  analysis.Reasoning,
	}
	o.updateContext(userID, result)
	return result
}

// updateContext remembers a successful actionable turn for correction
// follow-ups. Queries and failures leave the pending slot untouched.
func (o *DecisionOrchestrator) updateContext(userID string, result *AnalysisResult) {
	if !result.Success || result.Entities.CourseName == "" {
		return
	}
	switch result.Intent {
	case IntentRecordCourse, IntentModifyCourse, IntentCancelCourse:
		o.contexts.UpdateContext(userID, result.Intent, result.Entities, result)
	}
}

// logUsage accounts model tokens as a side effect; failures never surface.
func (o *DecisionOrchestrator) logUsage(ctx context.Context, userID string, analysis *IntentAnalysis) {
	if o.metrics != nil && analysis.Usage.TotalTokens > 0 {
		o.metrics.AddTokens(analysis.Usage.TotalTokens)
	}
	if o.usage == nil || analysis.Usage.TotalTokens == 0 {
		return
	}
	record := store.TokenUsageRecord{
		UserID:           userID,
		Model:            analysis.Model,
		Method:           string(MethodOpenAI),
		PromptTokens:     analysis.Usage.PromptTokens,
		CompletionTokens: analysis.Usage.CompletionTokens,
		TotalTokens:      analysis.Usage.TotalTokens,
		CreatedAt:        o.now(),
	}
	if err := o.usage.LogTokenUsage(ctx, record); err != nil {
		o.logger.Warn("token usage logging failed user=%s: %v", userID, err)
	}
}

// overlayEntities copies non-empty corrected fields over base.
func overlayEntities(base *Entities, corrected Entities) {
	if corrected.CourseName != "" {
		base.CourseName = corrected.CourseName
	}
	if corrected.Location != "" {
		base.Location = corrected.Location
	}
	if corrected.Teacher != "" {
		base.Teacher = corrected.Teacher
	}
	if corrected.Student != "" {
		base.Student = corrected.Student
	}
	if corrected.StudentName != "" {
		base.StudentName = corrected.StudentName
	}
	if corrected.RecurrencePattern != "" {
		base.RecurrencePattern = corrected.RecurrencePattern
	}
	if corrected.Confirmation != "" {
		base.Confirmation = corrected.Confirmation
	}
	if corrected.TimeInfo != nil {
		base.TimeInfo = corrected.TimeInfo
	}
}
