package nlu

import (
	"regexp"
	"strings"
)

// maxPureTimeRunes bounds the guard so longer, course-bearing sentences are
// never rejected just because they open with a time phrase.
const maxPureTimeRunes = 12

// RejectionMessagePureTime is the templated clarification sent back when an
// utterance carries only a time and no course.
const RejectionMessagePureTime = "只收到時間，還不知道是哪一門課喔。請補上課程名稱，例如：明天下午3點數學課"

// pureTimePatterns are exact (anchored) matches for time-only utterances:
// a bare day-part word, a bare clock reading, or a date word plus day part.
var pureTimePatterns = []*regexp.Regexp{
	// 下午 / 晚上 / 今晚 ...
	regexp.MustCompile(`^(凌晨|早上|早晨|清晨|上午|中午|下午|傍晚|晚上|晚間|晚间|今晚|明早|明晚)$`),
	// 3點 / 3點半 / 15:30 / 三點 / 十點半 / 3點15分
	regexp.MustCompile(`^(\d{1,2}|[〇零一二三四五六七八九十兩两]{1,3})([點点時时]|:\d{2})(半|一刻|三刻|\d{1,2}分?|[〇零一二三四五六七八九十]{1,3}分)?(鐘|钟)?$`),
	// (明天)(下午)3點(半) — date and/or day part prefixing a clock reading
	regexp.MustCompile(`^(今天|明天|後天|后天|大後天|大后天|下週[一二三四五六日天]|下周[一二三四五六日天]|週[一二三四五六日天]|周[一二三四五六日天])?(凌晨|早上|早晨|清晨|上午|中午|下午|傍晚|晚上|晚間|晚间)?(\d{1,2}|[〇零一二三四五六七八九十兩两]{1,3})[點点時时](半|一刻|三刻|\d{1,2}分?)?$`),
	// 明天 / 後天 / 明天下午 — date word, optionally with a day part
	regexp.MustCompile(`^(今天|明天|明日|後天|后天|大後天|大后天)(凌晨|早上|早晨|清晨|上午|中午|下午|傍晚|晚上)?$`),
}

// PureTimeResult is the ambiguity guard verdict.
type PureTimeResult struct {
	IsPureTimeInput  bool
	RejectionMessage string
}

// AmbiguityGuard rejects utterances that are time-only and therefore
// under-specified. The orchestrator bypasses it while a valid pending
// context exists, since an in-flight exchange disambiguates short replies.
type AmbiguityGuard struct{}

// NewAmbiguityGuard constructs the guard.
func NewAmbiguityGuard() *AmbiguityGuard {
	return &AmbiguityGuard{}
}

// DetectPureTimeInput reports whether text is a time-only utterance.
func (g *AmbiguityGuard) DetectPureTimeInput(text string) PureTimeResult {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || len([]rune(trimmed)) > maxPureTimeRunes {
		return PureTimeResult{}
	}
	for _, pattern := range pureTimePatterns {
		if pattern.MatchString(trimmed) {
			return PureTimeResult{
				IsPureTimeInput:  true,
				RejectionMessage: RejectionMessagePureTime,
			}
		}
	}
	return PureTimeResult{}
}
