package nlu

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursebot/internal/store"
)

// stubLLM scripts ExtractAllEntities per call; the other methods are unused
// by the extractor.
type stubLLM struct {
	extractions []*EntityExtraction
	errs        []error
	calls       int
}

func (s *stubLLM) ExtractAllEntities(ctx context.Context, text string) (*EntityExtraction, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	if idx < len(s.extractions) {
		return s.extractions[idx], nil
	}
	return nil, errors.New("no scripted extraction")
}

func (s *stubLLM) AnalyzeIntent(ctx context.Context, text, userID string) (*IntentAnalysis, error) {
	return nil, errors.New("not scripted")
}

func (s *stubLLM) FallbackIntentAnalysis(text string) *IntentAnalysis {
	return &IntentAnalysis{Intent: IntentUnknown, InDomain: true}
}

type stubCourses struct {
	courses []store.Course
	err     error
}

func (s *stubCourses) GetUserCourses(ctx context.Context, userID string, filter store.CourseFilter) ([]store.Course, error) {
	return s.courses, s.err
}

func TestExtractEntitiesRegexOnly(t *testing.T) {
	e := NewEntityExtractor(nil, nil, nil)
	got := e.ExtractEntities(context.Background(), ExtractRequest{
		Text:       "小明明天下午3點數學課",
		UserID:     "u1",
		IntentHint: IntentRecordCourse,
	})

	assert.Equal(t, "小明", got.StudentName)
	assert.Equal(t, "小明", got.Student)
	assert.Equal(t, "數學課", got.CourseName)
	require.NotNil(t, got.TimeInfo)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, got.TimeInfo.Date)
	assert.Contains(t, got.TimeInfo.Display, "3:00 PM")
	assert.Equal(t, "小明明天下午3點數學課", got.OriginalText)
}

func TestExtractEntitiesSubjectVocabulary(t *testing.T) {
	e := NewEntityExtractor(nil, nil, nil)
	got := e.ExtractEntities(context.Background(), ExtractRequest{Text: "明天晚上十點半法語課"})
	assert.Equal(t, "法語課", got.CourseName)
	require.NotNil(t, got.TimeInfo)
	assert.Contains(t, got.TimeInfo.Display, "10:30 PM")
}

func TestExtractEntitiesLLMPrimary(t *testing.T) {
	llm := &stubLLM{extractions: []*EntityExtraction{{
		CourseName: "法語課",
		Student:    "小明",
		DatePhrase: "明天",
		TimePhrase: "晚上十點半",
	}}}
	e := NewEntityExtractor(llm, nil, nil)

	got := e.ExtractEntities(context.Background(), ExtractRequest{
		Text:       "幫小明約明天晚上十點半的法語課",
		UserID:     "u1",
		IntentHint: IntentRecordCourse,
	})

	assert.Equal(t, 1, llm.calls)
	assert.Equal(t, "法語課", got.CourseName)
	assert.Equal(t, "小明", got.Student)
	require.NotNil(t, got.TimeInfo)
	assert.Contains(t, got.TimeInfo.Display, "10:30 PM")
}

func TestExtractEntitiesDisableLLM(t *testing.T) {
	llm := &stubLLM{}
	e := NewEntityExtractor(llm, nil, nil)
	got := e.ExtractEntities(context.Background(), ExtractRequest{
		Text:       "明天下午3點數學課",
		DisableLLM: true,
	})
	assert.Zero(t, llm.calls)
	assert.Equal(t, "數學課", got.CourseName)
}

func TestExtractEntitiesLLMFailureDegradesToRegex(t *testing.T) {
	llm := &stubLLM{errs: []error{errors.New("timeout"), errors.New("timeout")}}
	e := NewEntityExtractor(llm, nil, nil)
	got := e.ExtractEntities(context.Background(), ExtractRequest{Text: "明天下午3點數學課"})
	assert.Equal(t, "數學課", got.CourseName)
	require.NotNil(t, got.TimeInfo)
}

func TestExtractEntitiesTimeIsolationRetry(t *testing.T) {
	// The utterance itself does not parse; the model isolates the phrases on
	// the second call and the parse is retried once.
	llm := &stubLLM{
		errs:        []error{errors.New("busy"), nil},
		extractions: []*EntityExtraction{nil, {DatePhrase: "明天", TimePhrase: "下午3點"}},
	}
	e := NewEntityExtractor(llm, nil, nil)
	got := e.ExtractEntities(context.Background(), ExtractRequest{Text: "數學課挪去老地方那段"})
	assert.Equal(t, 2, llm.calls)
	require.NotNil(t, got.TimeInfo)
	assert.Contains(t, got.TimeInfo.Display, "3:00 PM")
}

func TestExtractEntitiesNoTime(t *testing.T) {
	e := NewEntityExtractor(nil, nil, nil)
	got := e.ExtractEntities(context.Background(), ExtractRequest{Text: "取消數學課", IntentHint: IntentCancelCourse})
	assert.Equal(t, "數學課", got.CourseName)
	assert.Nil(t, got.TimeInfo)
}

func TestExtractEntitiesHeuristicCourse(t *testing.T) {
	e := NewEntityExtractor(nil, nil, nil)

	// Suffix-less subject after a studying verb.
	got := e.ExtractEntities(context.Background(), ExtractRequest{Text: "明天學珠算", IntentHint: IntentRecordCourse})
	assert.Equal(t, "珠算課", got.CourseName)

	// Course after a change verb, outside the subject vocabulary.
	got = e.ExtractEntities(context.Background(), ExtractRequest{Text: "取消珠算課", IntentHint: IntentCancelCourse})
	assert.Equal(t, "珠算課", got.CourseName)
}

func TestExtractEntitiesFuzzyStoredCourse(t *testing.T) {
	courses := &stubCourses{courses: []store.Course{
		{ID: "c1", UserID: "u1", Name: "進階數學課"},
		{ID: "c2", UserID: "u1", Name: "鋼琴課"},
	}}
	e := NewEntityExtractor(nil, courses, nil)

	got := e.ExtractEntities(context.Background(), ExtractRequest{
		Text:       "取消數學課",
		UserID:     "u1",
		IntentHint: IntentCancelCourse,
	})
	assert.Equal(t, "進階數學課", got.CourseName)
}

func TestExtractEntitiesFuzzyLookupFailureKeepsLocalName(t *testing.T) {
	courses := &stubCourses{err: errors.New("db down")}
	e := NewEntityExtractor(nil, courses, nil)
	got := e.ExtractEntities(context.Background(), ExtractRequest{
		Text:       "取消數學課",
		UserID:     "u1",
		IntentHint: IntentCancelCourse,
	})
	assert.Equal(t, "數學課", got.CourseName)
}

func TestExtractEntitiesLocationAndTeacher(t *testing.T) {
	e := NewEntityExtractor(nil, nil, nil)
	got := e.ExtractEntities(context.Background(), ExtractRequest{Text: "明天下午3點在陽光教室王老師的數學課"})
	assert.Equal(t, "陽光教室", got.Location)
	assert.Equal(t, "王", got.Teacher)
	assert.Equal(t, "數學課", got.CourseName)
}

func TestExtractEntitiesConfirmation(t *testing.T) {
	e := NewEntityExtractor(nil, nil, nil)

	yes := e.ExtractEntities(context.Background(), ExtractRequest{Text: "好的"})
	assert.Equal(t, "yes", yes.Confirmation)
	assert.Empty(t, yes.CourseName)

	no := e.ExtractEntities(context.Background(), ExtractRequest{Text: "不用"})
	assert.Equal(t, "no", no.Confirmation)

	long := e.ExtractEntities(context.Background(), ExtractRequest{Text: "好的那就明天下午3點數學課"})
	assert.Empty(t, long.Confirmation)
}

func TestExtractEntitiesRecurrence(t *testing.T) {
	e := NewEntityExtractor(nil, nil, nil)

	cases := map[string]string{
		"每天早上8點英語課":    "daily",
		"每週三下午3點數學課":   "weekly:3",
		"每周上一次鋼琴課":     "weekly",
		"每月15號交學費順便上美術課": "monthly:15",
	}
	for text, want := range cases {
		got := e.ExtractEntities(context.Background(), ExtractRequest{Text: text})
		assert.Equal(t, want, got.RecurrencePattern, "text: %s", text)
	}

	none := e.ExtractEntities(context.Background(), ExtractRequest{Text: "明天下午3點數學課"})
	assert.Empty(t, none.RecurrencePattern)
}

func TestExtractEntitiesCourseAlias(t *testing.T) {
	e := NewEntityExtractor(nil, nil, nil)
	got := e.ExtractEntities(context.Background(), ExtractRequest{Text: "明天下午3點英文"})
	assert.Equal(t, "英語課", got.CourseName)
}

func TestSeparateStudentName(t *testing.T) {
	name, remaining, ok := separateStudentName("小明明天下午3點數學課")
	require.True(t, ok)
	assert.Equal(t, "小明", name)
	assert.Equal(t, "明天下午3點數學課", remaining)

	name, remaining, ok = separateStudentName("小華的鋼琴課取消")
	require.True(t, ok)
	assert.Equal(t, "小華", name)
	assert.Equal(t, "鋼琴課取消", remaining)

	_, remaining, ok = separateStudentName("明天下午3點數學課")
	assert.False(t, ok)
	assert.Equal(t, "明天下午3點數學課", remaining)
}

func TestNormalizeCourseName(t *testing.T) {
	cases := []struct {
		name, text, want string
	}{
		{"數學", "明天數學", "數學課"},
		{"数学", "明天数学课", "数学课"},
		{"數學課", "x", "數學課"},
		{"英文", "x", "英語課"},
		{"游泳班", "x", "游泳班"},
		{"夏令營", "x", "夏令營"},
		{"", "x", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, normalizeCourseName(tc.name, tc.text), "name: %s", tc.name)
	}
}

func TestPickCandidate(t *testing.T) {
	candidates := []ExtractionCandidate{
		{Field: "course_name", Value: "數學課", Strategy: "regex", Confidence: 0.7},
		{Field: "course_name", Value: "進階數學課", Strategy: "fuzzy", Confidence: 0.95},
		{Field: "location", Value: "線上", Strategy: "regex", Confidence: 0.7},
	}
	assert.Equal(t, "進階數學課", pickCandidate(candidates, "course_name"))
	assert.Equal(t, "線上", pickCandidate(candidates, "location"))
	assert.Empty(t, pickCandidate(candidates, "teacher"))
}
