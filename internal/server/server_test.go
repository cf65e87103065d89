package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursebot/internal/nlu"
)

type stubAnalyzer struct {
	result *nlu.AnalysisResult
	err    error
}

func (s *stubAnalyzer) AnalyzeMessage(ctx context.Context, text, userID string) (*nlu.AnalysisResult, error) {
	return s.result, s.err
}

type stubReloader struct {
	err   error
	calls int
}

func (s *stubReloader) Reload() error {
	s.calls++
	return s.err
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestAnalyzeEndpoint(t *testing.T) {
	srv := New(Options{Analyzer: &stubAnalyzer{result: &nlu.AnalysisResult{
		Success:    true,
		Method:     nlu.MethodRuleEnginePrimary,
		Intent:     nlu.IntentRecordCourse,
		Confidence: 0.8,
		Entities:   nlu.Entities{CourseName: "數學課", OriginalText: "明天下午3點數學課"},
	}}})

	w := postJSON(t, srv.Handler(), "/api/v1/analyze", `{"message":"明天下午3點數學課","user_id":"u1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var got nlu.AnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Success)
	assert.Equal(t, nlu.MethodRuleEnginePrimary, got.Method)
	assert.Equal(t, "數學課", got.Entities.CourseName)
}

func TestAnalyzeEndpointValidation(t *testing.T) {
	srv := New(Options{Analyzer: &stubAnalyzer{
		err: &nlu.ValidationError{Field: "message", Reason: "must not be empty"},
	}})

	w := postJSON(t, srv.Handler(), "/api/v1/analyze", `{"message":"","user_id":"u1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "message")
}

func TestAnalyzeEndpointBadBody(t *testing.T) {
	srv := New(Options{Analyzer: &stubAnalyzer{}})
	w := postJSON(t, srv.Handler(), "/api/v1/analyze", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyzeEndpointInternalError(t *testing.T) {
	srv := New(Options{Analyzer: &stubAnalyzer{err: errors.New("boom")}})
	w := postJSON(t, srv.Handler(), "/api/v1/analyze", `{"message":"x","user_id":"u1"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRulesReload(t *testing.T) {
	reloader := &stubReloader{}
	srv := New(Options{Analyzer: &stubAnalyzer{}, Rules: reloader})

	w := postJSON(t, srv.Handler(), "/api/v1/rules/reload", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, reloader.calls)

	none := New(Options{Analyzer: &stubAnalyzer{}})
	w = postJSON(t, none.Handler(), "/api/v1/rules/reload", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthz(t *testing.T) {
	srv := New(Options{Analyzer: &stubAnalyzer{}})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
