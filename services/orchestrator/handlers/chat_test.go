// Copyright (C) 2026 Equisight Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/equisight-labs/equisight/services/llm"
	"github.com/equisight-labs/equisight/services/orchestrator/datatypes"
)

// =============================================================================
// Mocks
// =============================================================================

// mockStore is an in-memory history.Store.
type mockStore struct {
	turns      []datatypes.Turn
	loadErr    error
	appendErr  error
	appended   []appendedRound
	deletedIDs []string
}

type appendedRound struct {
	sessionID string
	question  string
	answer    string
}

func (m *mockStore) Load(ctx context.Context, sessionID string) ([]datatypes.Turn, error) {
	return m.turns, m.loadErr
}

func (m *mockStore) Append(ctx context.Context, sessionID, question, answer string) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appended = append(m.appended, appendedRound{sessionID, question, answer})
	return nil
}

func (m *mockStore) DeleteSession(ctx context.Context, sessionID string) error {
	m.deletedIDs = append(m.deletedIDs, sessionID)
	return nil
}

func (m *mockStore) DeleteTurnsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// mockCondenser records its inputs and returns a canned rewrite.
type mockCondenser struct {
	condensed   string
	err         error
	calls       int
	lastHistory []datatypes.Turn
}

func (m *mockCondenser) Condense(ctx context.Context, question string, turns []datatypes.Turn) (string, error) {
	m.calls++
	m.lastHistory = turns
	if m.err != nil {
		return "", m.err
	}
	if len(turns) == 0 {
		return question, nil
	}
	return m.condensed, m.err
}

// mockFuser returns canned passages and records the query.
type mockFuser struct {
	passages  []datatypes.RetrievedPassage
	err       error
	lastQuery string
}

func (m *mockFuser) Fuse(ctx context.Context, query string) ([]datatypes.RetrievedPassage, error) {
	m.lastQuery = query
	return m.passages, m.err
}

// mockAssembler returns a fixed prompt.
type mockAssembler struct {
	lastQuestion string
	lastQuotes   string
	lastHistory  []datatypes.Turn
}

func (m *mockAssembler) Assemble(question string, passages []datatypes.RetrievedPassage,
	turns []datatypes.Turn, quoteSection string) (string, error) {
	m.lastQuestion = question
	m.lastQuotes = quoteSection
	m.lastHistory = turns
	return "PROMPT", nil
}

// streamLLM streams canned fragments; failAfter >= 0 injects an error
// after that many fragments.
type streamLLM struct {
	fragments []string
	failAfter int
}

func (s *streamLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return "", errors.New("not used")
}

func (s *streamLLM) GenerateStream(ctx context.Context, prompt string,
	params llm.GenerationParams, cb llm.StreamCallback) error {
	for i, frag := range s.fragments {
		if s.failAfter >= 0 && i == s.failAfter {
			return errors.New("upstream model failure")
		}
		if err := cb(llm.StreamEvent{Type: llm.StreamEventToken, Content: frag}); err != nil {
			return err
		}
	}
	return nil
}

// disconnectingLLM cancels the request context partway through the
// stream, simulating a client that drops the connection.
type disconnectingLLM struct {
	fragments   []string
	cancelAfter int
	cancel      context.CancelFunc
}

func (d *disconnectingLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return "", errors.New("not used")
}

func (d *disconnectingLLM) GenerateStream(ctx context.Context, prompt string,
	params llm.GenerationParams, cb llm.StreamCallback) error {
	for i, frag := range d.fragments {
		if i == d.cancelAfter {
			d.cancel()
		}
		if err := cb(llm.StreamEvent{Type: llm.StreamEventToken, Content: frag}); err != nil {
			return err
		}
	}
	return nil
}

// mockEvaluator returns canned scores.
type mockEvaluator struct {
	scores datatypes.EvalScores
	err    error
	calls  int
}

func (m *mockEvaluator) Evaluate(ctx context.Context, question string,
	passages []datatypes.RetrievedPassage, answerBody string) (datatypes.EvalScores, error) {
	m.calls++
	return m.scores, m.err
}

// =============================================================================
// Helpers
// =============================================================================

func newTestRouter(p *Pipeline) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/chat", AskQuestion(p))
	return router
}

// parseEvents extracts SSE data payloads in order, skipping comments.
func parseEvents(body string) []string {
	var events []string
	for _, block := range strings.Split(body, "\n\n") {
		if strings.HasPrefix(block, "data: ") {
			events = append(events, strings.TrimPrefix(block, "data: "))
		}
	}
	return events
}

func defaultPipeline(store *mockStore, llmClient llm.LLMClient,
	fuser *mockFuser, evaluator AnswerEvaluator) (*Pipeline, *mockCondenser, *mockAssembler) {

	condenser := &mockCondenser{condensed: "standalone question"}
	assembler := &mockAssembler{}
	p := NewPipeline(store, condenser, fuser, assembler, llmClient, evaluator, nil)
	return p, condenser, assembler
}

// =============================================================================
// Tests
// =============================================================================

// TestAskQuestion_MissingQuestion verifies a 400 with the error body.
func TestAskQuestion_MissingQuestion(t *testing.T) {
	t.Parallel()

	p, _, _ := defaultPipeline(&mockStore{}, &streamLLM{failAfter: -1}, &mockFuser{}, nil)
	router := newTestRouter(p)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{}`))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"msg"`)
}

// TestAskQuestion_FirstTurnEventOrder verifies the full happy-path wire
// sequence for a new session.
func TestAskQuestion_FirstTurnEventOrder(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	fuser := &mockFuser{passages: []datatypes.RetrievedPassage{
		{Collection: "news", Name: "doc-a", Content: "passage a"},
		{Collection: "stock", Name: "doc-b", Content: "passage b"},
	}}
	llmClient := &streamLLM{
		fragments: []string{"답변 ", "본문", "\n\nSOURCES: doc-a"},
		failAfter: -1,
	}
	evaluator := &mockEvaluator{scores: datatypes.EvalScores{
		ContextRelevance: 0.9, Groundedness: 0.8, AnswerRelevance: 0.7,
	}}
	p, _, _ := defaultPipeline(store, llmClient, fuser, evaluator)
	router := newTestRouter(p)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"question":"첫 질문"}`))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	events := parseEvents(rec.Body.String())
	require.GreaterOrEqual(t, len(events), 7)

	// Session ack first, with a generated UUID.
	assert.True(t, strings.HasPrefix(events[0], "[SESSION_ID] "))
	assert.NotEmpty(t, strings.TrimPrefix(events[0], "[SESSION_ID] "))

	// Sources next, in fused order.
	assert.True(t, strings.HasPrefix(events[1], "[SOURCE] "))
	assert.Contains(t, events[1], `"name":"doc-a"`)
	assert.True(t, strings.HasPrefix(events[2], "[SOURCE] "))
	assert.Contains(t, events[2], `"name":"doc-b"`)

	// Fragments, newline-normalized.
	assert.Equal(t, "답변 ", events[3])
	assert.Equal(t, "본문", events[4])
	assert.Equal(t, "  SOURCES: doc-a", events[5])

	// Done, then eval.
	assert.Equal(t, "[DONE]", events[6])
	require.Len(t, events, 8)
	assert.Equal(t, "[EVAL] Context Relevance: 0.90, Groundedness: 0.80, Answer Relevance: 0.70", events[7])

	// The round persisted atomically with the answer body only; the
	// citation tail never enters history.
	require.Len(t, store.appended, 1)
	assert.Equal(t, "첫 질문", store.appended[0].question)
	assert.Equal(t, "답변 본문", store.appended[0].answer)
	assert.NotContains(t, store.appended[0].answer, "SOURCES:")
	assert.Equal(t, 1, evaluator.calls)
}

// TestAskQuestion_SecondTurnCondenses verifies the condensed query drives
// retrieval while the original question reaches the prompt.
func TestAskQuestion_SecondTurnCondenses(t *testing.T) {
	t.Parallel()

	store := &mockStore{turns: []datatypes.Turn{
		{Role: datatypes.RoleUser, Text: "이전 질문"},
		{Role: datatypes.RoleAssistant, Text: "이전 답변"},
	}}
	fuser := &mockFuser{}
	llmClient := &streamLLM{fragments: []string{"답"}, failAfter: -1}
	p, condenser, assembler := defaultPipeline(store, llmClient, fuser, nil)
	router := newTestRouter(p)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat?session_id=sess-1", strings.NewReader(`{"question":"그럼 경쟁사는?"}`))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	events := parseEvents(rec.Body.String())
	assert.Equal(t, "[SESSION_ID] sess-1", events[0])

	// Condenser saw the history; retrieval used the rewrite; the prompt
	// kept the original question.
	assert.Equal(t, 1, condenser.calls)
	assert.Len(t, condenser.lastHistory, 2)
	assert.Equal(t, "standalone question", fuser.lastQuery)
	assert.Equal(t, "그럼 경쟁사는?", assembler.lastQuestion)
}

// TestAskQuestion_MidStreamFailure verifies no [DONE] and no persistence
// when generation dies partway.
func TestAskQuestion_MidStreamFailure(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	llmClient := &streamLLM{fragments: []string{"partial ", "answer"}, failAfter: 1}
	p, _, _ := defaultPipeline(store, llmClient, &mockFuser{}, nil)
	router := newTestRouter(p)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat?session_id=sess-2", strings.NewReader(`{"question":"질문"}`))
	router.ServeHTTP(rec, req)

	events := parseEvents(rec.Body.String())
	assert.Contains(t, events, "partial ")
	assert.NotContains(t, events, "[DONE]")
	assert.Empty(t, store.appended, "failed streams must not persist history")
}

// TestAskQuestion_ClientDisconnect verifies a cancelled request context
// ends the stream without [DONE] and without persisting.
func TestAskQuestion_ClientDisconnect(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &mockStore{}
	llmClient := &disconnectingLLM{
		fragments:   []string{"첫 ", "조각", " 이후"},
		cancelAfter: 2,
		cancel:      cancel,
	}
	p, _, _ := defaultPipeline(store, llmClient, &mockFuser{}, nil)
	router := newTestRouter(p)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat?session_id=sess-3",
		strings.NewReader(`{"question":"질문"}`)).WithContext(ctx)
	router.ServeHTTP(rec, req)

	events := parseEvents(rec.Body.String())
	assert.Contains(t, events, "첫 ")
	assert.NotContains(t, events, " 이후")
	assert.NotContains(t, events, "[DONE]")
	assert.Empty(t, store.appended, "disconnected streams must not persist history")
}

// TestAskQuestion_CondensationFailureAborts verifies no fragments stream
// after a condensation failure.
func TestAskQuestion_CondensationFailureAborts(t *testing.T) {
	t.Parallel()

	store := &mockStore{turns: []datatypes.Turn{{Role: datatypes.RoleUser, Text: "q"}}}
	condenser := &mockCondenser{err: errors.New("llm down")}
	assembler := &mockAssembler{}
	p := NewPipeline(store, condenser, &mockFuser{}, assembler, &streamLLM{failAfter: -1}, nil, nil)
	router := newTestRouter(p)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat?session_id=s", strings.NewReader(`{"question":"후속"}`))
	router.ServeHTTP(rec, req)

	events := parseEvents(rec.Body.String())
	require.Len(t, events, 1, "only the session ack may precede the abort")
	assert.Equal(t, "[SESSION_ID] s", events[0])
	assert.Empty(t, store.appended)
}

// TestAskQuestion_TotalRetrievalFailureAborts verifies the stream stops
// after sources cannot be fetched at all.
func TestAskQuestion_TotalRetrievalFailureAborts(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	fuser := &mockFuser{err: errors.New("all collections failed")}
	p, _, _ := defaultPipeline(store, &streamLLM{failAfter: -1}, fuser, nil)
	router := newTestRouter(p)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat?session_id=s", strings.NewReader(`{"question":"질문"}`))
	router.ServeHTTP(rec, req)

	events := parseEvents(rec.Body.String())
	require.Len(t, events, 1)
	assert.NotContains(t, events, "[DONE]")
}

// TestAskQuestion_NoSourcesSkipsEval verifies an uncited answer finishes
// with [DONE] and no [EVAL].
func TestAskQuestion_NoSourcesSkipsEval(t *testing.T) {
	t.Parallel()

	store := &mockStore{}
	llmClient := &streamLLM{fragments: []string{"잘 모르겠습니다."}, failAfter: -1}
	evaluator := &mockEvaluator{}
	p, _, _ := defaultPipeline(store, llmClient, &mockFuser{}, evaluator)
	router := newTestRouter(p)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat?session_id=s", strings.NewReader(`{"question":"질문"}`))
	router.ServeHTTP(rec, req)

	events := parseEvents(rec.Body.String())
	assert.Equal(t, "[DONE]", events[len(events)-1])
	assert.Zero(t, evaluator.calls)

	// The answer still persisted; evaluation is telemetry, not a gate.
	require.Len(t, store.appended, 1)
}

// TestAskQuestion_PersistFailureDoesNotBreakStream verifies a history
// write failure after [DONE] leaves the delivered stream intact.
func TestAskQuestion_PersistFailureDoesNotBreakStream(t *testing.T) {
	t.Parallel()

	store := &mockStore{appendErr: errors.New("weaviate write failed")}
	llmClient := &streamLLM{fragments: []string{"답변"}, failAfter: -1}
	p, _, _ := defaultPipeline(store, llmClient, &mockFuser{}, nil)
	router := newTestRouter(p)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat?session_id=s", strings.NewReader(`{"question":"질문"}`))
	router.ServeHTTP(rec, req)

	events := parseEvents(rec.Body.String())
	assert.Contains(t, events, "[DONE]")
}

// TestGetSessionHistory verifies the admin read endpoint.
func TestGetSessionHistory(t *testing.T) {
	t.Parallel()

	gin.SetMode(gin.TestMode)
	store := &mockStore{turns: []datatypes.Turn{
		{Role: datatypes.RoleUser, Text: "q1"},
		{Role: datatypes.RoleAssistant, Text: "a1"},
	}}
	router := gin.New()
	router.GET("/v1/sessions/:sessionId/history", GetSessionHistory(store))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/sess-9/history", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"session_id":"sess-9"`)
	assert.Contains(t, rec.Body.String(), `"q1"`)
}

// TestDeleteSession verifies the admin delete endpoint.
func TestDeleteSession(t *testing.T) {
	t.Parallel()

	gin.SetMode(gin.TestMode)
	store := &mockStore{}
	router := gin.New()
	router.DELETE("/v1/sessions/:sessionId", DeleteSession(store))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/v1/sessions/sess-7", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"sess-7"}, store.deletedIDs)
}
