package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"coursebot/internal/logging"
	"coursebot/internal/nlu"
	tokenutil "coursebot/internal/shared/token"
)

const extractEntitiesPrompt = `你是課程管理助手的實體抽取器。從用戶消息中抽取以下欄位，以純JSON返回，沒有的欄位填空字串：
{"course_name":"課程名稱","student":"學生姓名","location":"地點","teacher":"老師姓名","date_phrase":"日期短語(如:明天/下週三/9月1日)","time_phrase":"時間短語(如:下午3點/晚上十點半)"}
只輸出JSON，不要任何解釋。用戶消息：`

const analyzeIntentPrompt = `你是家教課程管理助手的意圖分類器。將用戶消息分類為以下意圖之一：
record_course(新增課程), modify_course(修改課程), cancel_course(取消課程), query_schedule(查詢課表), correction_intent(糾正上一句), unknown(無法判斷)。
若消息與課程管理完全無關，course_related 填 false。
以純JSON返回：
{"intent":"...","confidence":0.0,"course_related":true,"reasoning":"一句話理由","entities":{"course_name":"","student":"","location":"","teacher":"","date_phrase":"","time_phrase":""}}
只輸出JSON。用戶消息：`

// Service implements nlu.LLMService on top of a chat Client.
type Service struct {
	client Client
	logger logging.Logger
}

// NewService wraps a chat client. A nil client is allowed; calls then fail
// fast and the pipeline's local fallbacks take over.
func NewService(client Client, logger logging.Logger) *Service {
	return &Service{client: client, logger: logging.OrNop(logger)}
}

// ExtractAllEntities asks the model for a full-entity pass over text.
func (s *Service) ExtractAllEntities(ctx context.Context, text string) (*nlu.EntityExtraction, error) {
	if s.client == nil {
		return nil, fmt.Errorf("no llm client configured")
	}
	resp, err := s.client.Complete(ctx, CompletionRequest{
		Messages: []Message{
			{Role: "system", Content: extractEntitiesPrompt},
			{Role: "user", Content: text},
		},
		Temperature: 0.1,
		MaxTokens:   256,
	})
	if err != nil {
		return nil, fmt.Errorf("extract entities: %w", err)
	}

	var raw struct {
		CourseName string `json:"course_name"`
		Student    string `json:"student"`
		Location   string `json:"location"`
		Teacher    string `json:"teacher"`
		DatePhrase string `json:"date_phrase"`
		TimePhrase string `json:"time_phrase"`
	}
	if err := decodeModelJSON(resp.Content, &raw); err != nil {
		return nil, fmt.Errorf("decode entity extraction: %w", err)
	}
	return &nlu.EntityExtraction{
		CourseName: cleanField(raw.CourseName),
		Student:    cleanField(raw.Student),
		Location:   cleanField(raw.Location),
		Teacher:    cleanField(raw.Teacher),
		DatePhrase: cleanField(raw.DatePhrase),
		TimePhrase: cleanField(raw.TimePhrase),
	}, nil
}

// AnalyzeIntent asks the model to classify text and extract entities in one
// pass. The returned usage lets the caller account tokens; when the provider
// omits usage a tiktoken estimate fills the gap.
func (s *Service) AnalyzeIntent(ctx context.Context, text, userID string) (*nlu.IntentAnalysis, error) {
	if s.client == nil {
		return nil, fmt.Errorf("no llm client configured")
	}
	resp, err := s.client.Complete(ctx, CompletionRequest{
		Messages: []Message{
			{Role: "system", Content: analyzeIntentPrompt},
			{Role: "user", Content: text},
		},
		Temperature: 0.1,
		MaxTokens:   384,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze intent: %w", err)
	}

	var raw struct {
		Intent        string            `json:"intent"`
		Confidence    float64           `json:"confidence"`
		CourseRelated *bool             `json:"course_related"`
		Reasoning     string            `json:"reasoning"`
		Entities      map[string]string `json:"entities"`
	}
	if err := decodeModelJSON(resp.Content, &raw); err != nil {
		return nil, fmt.Errorf("decode intent analysis: %w", err)
	}

	analysis := &nlu.IntentAnalysis{
		Intent:     normalizeIntent(raw.Intent),
		Confidence: raw.Confidence,
		Reasoning:  strings.TrimSpace(raw.Reasoning),
		InDomain:   raw.CourseRelated == nil || *raw.CourseRelated,
		Usage:      resp.Usage,
		Model:      resp.Model,
	}
	if analysis.Confidence < 0 {
		analysis.Confidence = 0
	}
	if analysis.Confidence > 1 {
		analysis.Confidence = 1
	}
	if len(raw.Entities) > 0 {
		analysis.Entities = make(map[string]string, len(raw.Entities))
		for k, v := range raw.Entities {
			if cleaned := cleanField(v); cleaned != "" {
				analysis.Entities[k] = cleaned
			}
		}
	}
	if analysis.Usage.TotalTokens == 0 {
		prompt := analyzeIntentPrompt + text
		analysis.Usage.PromptTokens = tokenutil.CountTokens(prompt)
		analysis.Usage.CompletionTokens = tokenutil.CountTokens(resp.Content)
		analysis.Usage.TotalTokens = analysis.Usage.PromptTokens + analysis.Usage.CompletionTokens
	}
	_ = userID // reserved for per-user model routing
	return analysis, nil
}

// fallbackVocab scores each intent for the local fallback analyzer. Weights
// differ from the rule classifier on purpose: this layer runs only when both
// the rules and the model came up short, so it leans on looser signals.
var fallbackVocab = map[nlu.Intent]map[string]int{
	nlu.IntentCancelCourse: {
		"取消": 3, "不上": 2, "停課": 3, "停课": 3, "請假": 2, "请假": 2, "刪": 1, "删": 1,
	},
	nlu.IntentModifyCourse: {
		"改": 2, "修改": 3, "調整": 2, "调整": 2, "換": 1, "换": 1, "延": 1, "提前": 2, "挪": 2,
	},
	nlu.IntentQuerySchedule: {
		"查": 2, "課表": 3, "课表": 3, "看看": 1, "哪些": 2, "什麼課": 2, "什么课": 2,
	},
	nlu.IntentRecordCourse: {
		"課": 1, "课": 1, "約": 1, "约": 1, "安排": 2, "上": 1, "預約": 2, "预约": 2, "學": 1, "学": 1,
	},
}

// fallbackCoursePattern grabs the token in front of a class suffix. The
// class excludes time/function characters instead of allowing a fixed
// subject list, so unseen course names still match.
var fallbackCoursePattern = regexp.MustCompile(`([^\s，。、！？,.!?的了嗎吗天晚早午點点今明後后昨取消改查到約约]{1,6}(?:課|课|班))`)

// FallbackIntentAnalysis is the pure, local, no-network analyzer used when
// the model is unreachable. It always returns a result; intent may be
// unknown.
func (s *Service) FallbackIntentAnalysis(text string) *nlu.IntentAnalysis {
	bestIntent := nlu.IntentUnknown
	bestScore := 0
	for intent, vocab := range fallbackVocab {
		score := 0
		for word, weight := range vocab {
			if strings.Contains(text, word) {
				score += weight
			}
		}
		if score > bestScore {
			bestIntent, bestScore = intent, score
		}
	}
	if bestScore < 2 {
		return &nlu.IntentAnalysis{
			Intent:    nlu.IntentUnknown,
			Reasoning: "local fallback: no scheduling vocabulary matched",
			InDomain:  true,
		}
	}
	confidence := 0.4 + 0.1*float64(bestScore)
	if confidence > 0.7 {
		confidence = 0.7 // local heuristics never outrank a real model answer
	}
	analysis := &nlu.IntentAnalysis{
		Intent:     bestIntent,
		Confidence: confidence,
		Reasoning:  "local fallback: keyword score analysis",
		InDomain:   true,
	}
	if m := fallbackCoursePattern.FindStringSubmatch(text); m != nil {
		analysis.Entities = map[string]string{"course_name": m[1]}
	}
	return analysis
}

// decodeModelJSON strips markdown fences, then tries strict JSON and falls
// back to jsonrepair for the malformed output models sometimes emit.
func decodeModelJSON(content string, v any) error {
	raw := extractJSONBlock(content)
	if raw == "" {
		return fmt.Errorf("response contains no JSON object")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			return fmt.Errorf("unmarshal: %w (repair also failed: %v)", err, repairErr)
		}
		if err := json.Unmarshal([]byte(repaired), v); err != nil {
			return fmt.Errorf("unmarshal repaired JSON: %w", err)
		}
	}
	return nil
}

// extractJSONBlock returns the first {...} span, tolerating ```json fences
// and prose around the object.
func extractJSONBlock(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "```"); idx >= 0 {
		content = content[idx+3:]
		content = strings.TrimPrefix(content, "json")
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}

// cleanField normalizes model output: trimmed, with textual nulls dropped.
func cleanField(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "null", "none", "無", "无", "n/a":
		return ""
	}
	return s
}

func normalizeIntent(s string) nlu.Intent {
	switch nlu.Intent(strings.TrimSpace(strings.ToLower(s))) {
	case nlu.IntentRecordCourse:
		return nlu.IntentRecordCourse
	case nlu.IntentModifyCourse:
		return nlu.IntentModifyCourse
	case nlu.IntentCancelCourse:
		return nlu.IntentCancelCourse
	case nlu.IntentQuerySchedule:
		return nlu.IntentQuerySchedule
	case nlu.IntentCorrection:
		return nlu.IntentCorrection
	default:
		return nlu.IntentUnknown
	}
}
