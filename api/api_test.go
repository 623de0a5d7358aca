// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/reference-annotator/annotationcache"
	"github.com/mattermost/reference-annotator/annotations"
	"github.com/mattermost/reference-annotator/conversations"
	"github.com/mattermost/reference-annotator/i18n"
	"github.com/mattermost/reference-annotator/llm"
	"github.com/mattermost/reference-annotator/logger"
	"github.com/mattermost/reference-annotator/metrics"
	"github.com/mattermost/reference-annotator/public/client"
	"github.com/mattermost/reference-annotator/streaming"
)

type testConfig struct {
	apiToken     string
	saveHistory  bool
	systemPrompt string
}

func (c *testConfig) APIToken() string        { return c.apiToken }
func (c *testConfig) EnableSaveHistory() bool { return c.saveHistory }
func (c *testConfig) DefaultLocale() string   { return "en" }
func (c *testConfig) SystemPrompt() string    { return c.systemPrompt }

type fakeExtractor struct {
	calls   atomic.Int32
	entries []annotations.ReferenceEntry
	err     error
}

func (f *fakeExtractor) Extract(context.Context, string) ([]annotations.ReferenceEntry, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

type fakeLLM struct {
	answer   string
	err      error
	requests []llm.CompletionRequest
}

func (f *fakeLLM) ChatCompletion(_ context.Context, request llm.CompletionRequest, _ ...llm.LanguageModelOption) (*llm.TextStreamResult, error) {
	f.requests = append(f.requests, request)
	if f.err != nil {
		return nil, f.err
	}
	return llm.NewStreamFromString(f.answer), nil
}

func (f *fakeLLM) ChatCompletionNoStream(ctx context.Context, request llm.CompletionRequest, opts ...llm.LanguageModelOption) (string, error) {
	result, err := f.ChatCompletion(ctx, request, opts...)
	if err != nil {
		return "", err
	}
	return result.ReadAll()
}

type TestEnvironment struct {
	api         *API
	coordinator *streaming.Coordinator
	config      *testConfig
	extractor   *fakeExtractor
	llm         *fakeLLM
	chats       *conversations.MemoryStore
}

func SetupTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()
	gin.SetMode(gin.TestMode)

	memory := annotationcache.NewMemoryStore(0, 0)
	t.Cleanup(memory.Close)

	bundle := i18n.Init()
	metricsService := metrics.NewMetrics(metrics.InstanceInfo{InstanceID: "test"})
	extractor := &fakeExtractor{entries: []annotations.ReferenceEntry{
		{Title: "Isaac Newton", URL: "https://en.wikipedia.org/wiki/Isaac_Newton", Confidence: annotations.Confidence(0.7)},
		{Title: "Force", URL: "https://en.wikipedia.org/wiki/Force", Confidence: annotations.Confidence(0.9)},
	}}
	cache := annotationcache.New(memory, annotationcache.WithObserver(metricsService))
	coordinator := streaming.NewCoordinator(cache, extractor, bundle, logger.Nop(), metricsService, 5)

	env := &TestEnvironment{
		coordinator: coordinator,
		config:      &testConfig{},
		extractor:   extractor,
		llm:         &fakeLLM{answer: "Newton described force."},
		chats:       conversations.NewMemoryStore(),
	}
	env.api = New(coordinator, env.chats, env.config, bundle, logger.Nop(), metricsService, env.llm)
	return env
}

func (e *TestEnvironment) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, path, nil)
	} else {
		request = httptest.NewRequest(method, path, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		request.Header.Set(headers[i], headers[i+1])
	}

	recorder := httptest.NewRecorder()
	e.api.ServeHTTP(recorder, request)
	return recorder
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var resp client.ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	return resp.Error
}

func TestAnnotate(t *testing.T) {
	t.Run("ranked references", func(t *testing.T) {
		e := SetupTestEnvironment(t)

		recorder := e.do(http.MethodPost, "/annotations", `{"text":"Newton described force."}`)

		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))

		var resp client.AnnotateResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
		assert.Equal(t, "reference-annotations", resp.Type)
		require.Len(t, resp.Data.Annotations, 2)
		assert.Equal(t, "Force", resp.Data.Annotations[0].Title)
		assert.Equal(t, "Isaac Newton", resp.Data.Annotations[1].Title)
	})

	t.Run("identical text is extracted once", func(t *testing.T) {
		e := SetupTestEnvironment(t)

		e.do(http.MethodPost, "/annotations", `{"text":"Newton described force."}`)
		e.do(http.MethodPost, "/annotations", `{"text":"Newton described force."}`)

		assert.EqualValues(t, 1, e.extractor.calls.Load())
	})

	t.Run("empty result", func(t *testing.T) {
		e := SetupTestEnvironment(t)
		e.extractor.entries = nil

		recorder := e.do(http.MethodPost, "/annotations", `{"text":"Nothing notable."}`)

		require.Equal(t, http.StatusOK, recorder.Code)
		assert.JSONEq(t, `{"annotations":[]}`, mustField(t, recorder.Body.Bytes(), "data"))
	})

	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "missing text", body: `{}`, wantStatus: http.StatusBadRequest, wantError: "Text is required."},
		{name: "invalid json", body: `{"text":`, wantStatus: http.StatusBadRequest, wantError: "Text is required."},
		{name: "blank text", body: `{"text":"   "}`, err: annotations.ErrInvalidInput, wantStatus: http.StatusBadRequest, wantError: "Text is required."},
		{name: "missing credential", body: `{"text":"x"}`, err: annotations.ErrMissingCredential, wantStatus: http.StatusInternalServerError, wantError: "The reference service is not configured."},
		{name: "upstream unavailable", body: `{"text":"x"}`, err: fmt.Errorf("%w: status 503", annotations.ErrUpstreamUnavailable), wantStatus: http.StatusServiceUnavailable, wantError: "The reference service is unavailable. Please try again later."},
		{name: "unexpected error", body: `{"text":"x"}`, err: fmt.Errorf("boom"), wantStatus: http.StatusInternalServerError, wantError: "An internal error occurred."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := SetupTestEnvironment(t)
			e.extractor.err = tt.err

			recorder := e.do(http.MethodPost, "/annotations", tt.body)

			assert.Equal(t, tt.wantStatus, recorder.Code)
			assert.Equal(t, tt.wantError, decodeError(t, recorder))
		})
	}
}

func mustField(t *testing.T, body []byte, field string) string {
	t.Helper()
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &fields))
	return string(fields[field])
}

func TestAnnotateAuth(t *testing.T) {
	e := SetupTestEnvironment(t)
	e.config.apiToken = "secret"

	recorder := e.do(http.MethodPost, "/annotations", `{"text":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, "Unauthorized.", decodeError(t, recorder))

	recorder = e.do(http.MethodPost, "/annotations", `{"text":"x"}`, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder = e.do(http.MethodPost, "/annotations", `{"text":"x"}`, "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = e.do(http.MethodGet, "/chats/c1", "")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestAnnotateOptions(t *testing.T) {
	e := SetupTestEnvironment(t)
	e.config.apiToken = "secret"

	recorder := e.do(http.MethodOptions, "/annotations", "")

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST", recorder.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, Authorization", recorder.Header().Get("Access-Control-Allow-Headers"))
}

func TestLocalizedErrors(t *testing.T) {
	e := SetupTestEnvironment(t)

	recorder := e.do(http.MethodPost, "/annotations", `{}`, "Accept-Language", "es-ES,es;q=0.9")

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.NotEqual(t, "Text is required.", decodeError(t, recorder))
}

func TestChats(t *testing.T) {
	t.Run("missing chat has no messages", func(t *testing.T) {
		e := SetupTestEnvironment(t)

		recorder := e.do(http.MethodGet, "/chats/nope", "")

		require.Equal(t, http.StatusOK, recorder.Code)
		assert.JSONEq(t, `{"messages":[]}`, recorder.Body.String())
	})

	t.Run("save requires messages", func(t *testing.T) {
		e := SetupTestEnvironment(t)

		recorder := e.do(http.MethodPost, "/chats/c1", `{}`)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		assert.Equal(t, "Messages are required.", decodeError(t, recorder))
	})

	t.Run("save and load", func(t *testing.T) {
		e := SetupTestEnvironment(t)

		recorder := e.do(http.MethodPost, "/chats/c1", `{"messages":[
			{"role":"user","content":"What is force?"},
			{"id":"a1","role":"assistant","content":"A push or pull.","annotations":[{"title":"Force","url":"https://en.wikipedia.org/wiki/Force"}]}
		]}`)
		require.Equal(t, http.StatusOK, recorder.Code)
		assert.JSONEq(t, `{"success":true}`, recorder.Body.String())

		chat, err := e.chats.Get(context.Background(), "c1", conversations.AnonymousUserID)
		require.NoError(t, err)
		assert.Equal(t, "What is force?", chat.Title)
		assert.Equal(t, "/search/c1", chat.Path)

		recorder = e.do(http.MethodGet, "/chats/c1", "")
		require.Equal(t, http.StatusOK, recorder.Code)

		var resp client.ChatResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
		require.Len(t, resp.Messages, 2)
		assert.NotEmpty(t, resp.Messages[0].ID)
		assert.False(t, resp.Messages[0].Timestamp.IsZero())
		assert.Equal(t, "a1", resp.Messages[1].ID)
		require.Len(t, resp.Messages[1].Annotations, 1)
		assert.Equal(t, "Force", resp.Messages[1].Annotations[0].Title)
	})
}

func parseSSE(t *testing.T, body string) []client.StreamEvent {
	t.Helper()
	var events []client.StreamEvent
	for _, block := range strings.Split(body, "\n\n") {
		data, ok := strings.CutPrefix(strings.TrimSpace(block), "data: ")
		if !ok {
			continue
		}
		var event client.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(data), &event))
		events = append(events, event)
	}
	return events
}

func TestSendMessage(t *testing.T) {
	t.Run("streams answer and annotations", func(t *testing.T) {
		e := SetupTestEnvironment(t)
		e.config.systemPrompt = "Answer briefly."

		recorder := e.do(http.MethodPost, "/chats/c1/messages", `{"message":"What is force?"}`)

		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "text/event-stream", recorder.Header().Get("Content-Type"))

		events := parseSSE(t, recorder.Body.String())
		require.Len(t, events, 4)
		assert.Equal(t, client.StreamEventText, events[0].Type)
		assert.Equal(t, "Newton described force.", events[0].Text)

		loading, err := events[1].AnnotationEvent()
		require.NoError(t, err)
		assert.Equal(t, "loading", loading.Status)

		resolved, err := events[2].AnnotationEvent()
		require.NoError(t, err)
		assert.Equal(t, "resolved", resolved.Status)
		require.Len(t, resolved.Data.Annotations, 2)
		assert.Equal(t, "Force", resolved.Data.Annotations[0].Title)

		assert.Equal(t, client.StreamEventEnd, events[3].Type)

		require.Len(t, e.llm.requests, 1)
		posts := e.llm.requests[0].Posts
		require.Len(t, posts, 2)
		assert.Equal(t, llm.PostRoleSystem, posts[0].Role)
		assert.Equal(t, llm.PostRoleUser, posts[1].Role)

		_, err = e.chats.Get(context.Background(), "c1", conversations.AnonymousUserID)
		assert.ErrorIs(t, err, conversations.ErrChatNotFound, "history saving is disabled")
	})

	t.Run("streams and saves related questions", func(t *testing.T) {
		e := SetupTestEnvironment(t)
		e.config.saveHistory = true
		questionModel := &fakeLLM{answer: `{"items":[{"query":"What is mass?"},{"query":"Who was Newton?"}]}`}
		e.coordinator.SetQuestionGenerator(streaming.NewLLMQuestionGenerator(func() llm.LanguageModel { return questionModel }, 2))

		recorder := e.do(http.MethodPost, "/chats/c1/messages", `{"message":"What is force?"}`)
		require.Equal(t, http.StatusOK, recorder.Code)

		events := parseSSE(t, recorder.Body.String())
		require.Len(t, events, 6)
		assert.Equal(t, client.AnnotationTypeReferences, events[2].AnnotationType())
		assert.Equal(t, client.AnnotationTypeRelatedQuestions, events[3].AnnotationType())

		loading, err := events[3].RelatedQuestionsEvent()
		require.NoError(t, err)
		assert.Equal(t, "loading", loading.Status)
		assert.Empty(t, loading.Data.Items)

		resolved, err := events[4].RelatedQuestionsEvent()
		require.NoError(t, err)
		assert.Equal(t, "resolved", resolved.Status)
		assert.Equal(t, []client.RelatedQuestion{{Query: "What is mass?"}, {Query: "Who was Newton?"}}, resolved.Data.Items)
		assert.Equal(t, client.StreamEventEnd, events[5].Type)

		chat, err := e.chats.Get(context.Background(), "c1", conversations.AnonymousUserID)
		require.NoError(t, err)
		require.Len(t, chat.Messages, 2)
		assert.Len(t, chat.Messages[1].RelatedQuestions, 2)

		recorder = e.do(http.MethodGet, "/chats/c1", "")
		require.Equal(t, http.StatusOK, recorder.Code)
		var resp client.ChatResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
		require.Len(t, resp.Messages, 2)
		assert.Equal(t, []client.RelatedQuestion{{Query: "What is mass?"}, {Query: "Who was Newton?"}}, resp.Messages[1].RelatedQuestions)
	})

	t.Run("saves annotated answer when enabled", func(t *testing.T) {
		e := SetupTestEnvironment(t)
		e.config.saveHistory = true

		recorder := e.do(http.MethodPost, "/chats/c1/messages", `{"message":"What is force?"}`)
		require.Equal(t, http.StatusOK, recorder.Code)

		chat, err := e.chats.Get(context.Background(), "c1", conversations.AnonymousUserID)
		require.NoError(t, err)
		require.Len(t, chat.Messages, 2)
		assert.Equal(t, "What is force?", chat.Title)
		assert.Equal(t, conversations.RoleAssistant, chat.Messages[1].Role)
		require.Len(t, chat.Messages[1].Annotations, 2)

		e.llm.answer = "Gravity attracts mass."
		recorder = e.do(http.MethodPost, "/chats/c1/messages", `{"message":"And gravity?"}`)
		require.Equal(t, http.StatusOK, recorder.Code)

		chat, err = e.chats.Get(context.Background(), "c1", conversations.AnonymousUserID)
		require.NoError(t, err)
		require.Len(t, chat.Messages, 4)
		assert.Len(t, e.llm.requests[1].Posts, 3, "history is sent to the language model")
		assert.NotNil(t, chat.Messages[1].Annotations)
		assert.NotNil(t, chat.Messages[3].Annotations)
	})

	t.Run("upstream failure keeps the answer", func(t *testing.T) {
		e := SetupTestEnvironment(t)
		e.config.saveHistory = true
		e.extractor.err = fmt.Errorf("%w: status 503", annotations.ErrUpstreamUnavailable)

		recorder := e.do(http.MethodPost, "/chats/c1/messages", `{"message":"What is force?"}`)
		require.Equal(t, http.StatusOK, recorder.Code)

		events := parseSSE(t, recorder.Body.String())
		require.Len(t, events, 4)
		failed, err := events[2].AnnotationEvent()
		require.NoError(t, err)
		assert.Equal(t, "failed", failed.Status)
		assert.Equal(t, "Unable to retrieve references.", failed.Error)
		assert.Empty(t, failed.Data.Annotations)

		chat, err := e.chats.Get(context.Background(), "c1", conversations.AnonymousUserID)
		require.NoError(t, err)
		require.Len(t, chat.Messages, 2)
		assert.Equal(t, "Newton described force.", chat.Messages[1].Content)
		assert.Nil(t, chat.Messages[1].Annotations)
	})

	t.Run("message required", func(t *testing.T) {
		e := SetupTestEnvironment(t)

		recorder := e.do(http.MethodPost, "/chats/c1/messages", `{"message":" "}`)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("no language model", func(t *testing.T) {
		e := SetupTestEnvironment(t)
		e.api.SetLanguageModel(nil)

		recorder := e.do(http.MethodPost, "/chats/c1/messages", `{"message":"hi"}`)

		assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
		assert.Equal(t, "No language model is configured.", decodeError(t, recorder))
	})

	t.Run("language model request fails", func(t *testing.T) {
		e := SetupTestEnvironment(t)
		e.llm.err = fmt.Errorf("connection refused")

		recorder := e.do(http.MethodPost, "/chats/c1/messages", `{"message":"hi"}`)

		assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	})
}

func TestHealthAndMetrics(t *testing.T) {
	e := SetupTestEnvironment(t)

	recorder := e.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.NotEmpty(t, recorder.Header().Get("X-Request-Id"))

	e.do(http.MethodPost, "/annotations", `{"text":"Newton described force."}`)

	recorder = e.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "annotator_api_time")
	assert.Contains(t, recorder.Body.String(), "annotator_annotations_cache_lookups_total")
}

func TestRequestIDIsPropagated(t *testing.T) {
	e := SetupTestEnvironment(t)

	recorder := e.do(http.MethodGet, "/healthz", "", "X-Request-Id", "abc")

	assert.Equal(t, "abc", recorder.Header().Get("X-Request-Id"))
}
