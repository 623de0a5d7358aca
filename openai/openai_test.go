// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/reference-annotator/llm"
)

func TestPostsToChatCompletionMessages(t *testing.T) {
	posts := []llm.Post{
		{Role: llm.PostRoleSystem, Message: "You are a helpful assistant"},
		{Role: llm.PostRoleUser, Message: "Hello"},
		{Role: llm.PostRoleBot, Message: "Hi there!"},
	}

	messages := postsToChatCompletionMessages(posts)
	require.Len(t, messages, 3)
	assert.NotNil(t, messages[0].OfSystem)
	assert.NotNil(t, messages[1].OfUser)
	assert.NotNil(t, messages[2].OfAssistant)
}

func TestGetModelConstant(t *testing.T) {
	tests := []struct {
		name     string
		model    string
		expected shared.ChatModel
	}{
		{name: "gpt-4o model", model: "gpt-4o", expected: shared.ChatModelGPT4o},
		{name: "gpt-4o-mini model", model: "gpt-4o-mini", expected: shared.ChatModelGPT4oMini},
		{name: "gpt-4 model", model: "gpt-4", expected: shared.ChatModelGPT4},
		{name: "custom model", model: "custom-model-xyz", expected: shared.ChatModel("custom-model-xyz")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, getModelConstant(tt.model))
		})
	}
}

func TestCompletionRequestFromConfig(t *testing.T) {
	client := New(Config{DefaultModel: "gpt-4o", OutputTokenLimit: 256}, http.DefaultClient)

	cfg := client.createConfig([]llm.LanguageModelOption{llm.WithModel("gpt-4o-mini")})
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, 256, cfg.MaxGeneratedTokens)

	params := client.completionRequestFromConfig(cfg)
	assert.Equal(t, shared.ChatModelGPT4oMini, params.Model)
	assert.Equal(t, openai.Int(256), params.MaxCompletionTokens)
}

func TestConfigFromService(t *testing.T) {
	cfg := ConfigFromService(llm.ServiceConfig{APIKey: "key", DefaultModel: "gpt-4o"})
	assert.Equal(t, DefaultStreamingTimeout, cfg.StreamingTimeout)

	cfg = ConfigFromService(llm.ServiceConfig{StreamingTimeoutSeconds: 5})
	assert.Equal(t, 5*time.Second, cfg.StreamingTimeout)
}

func chunk(content, finishReason string) string {
	payload := map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"delta":         map[string]any{"content": content},
			"finish_reason": finishReason,
		}},
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func TestChatCompletionStreaming(t *testing.T) {
	var requestBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &requestBody)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, data := range []string{chunk("Albert ", ""), chunk("Einstein", ""), chunk("", "stop")} {
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewCompatible(Config{
		APIKey:           "test",
		APIURL:           server.URL,
		DefaultModel:     "gpt-4o",
		StreamingTimeout: 5 * time.Second,
	}, server.Client())

	text, err := client.ChatCompletionNoStream(context.Background(), llm.CompletionRequest{
		Posts: []llm.Post{{Role: llm.PostRoleUser, Message: "Who developed relativity?"}},
		User:  "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Albert Einstein", text)
	assert.Equal(t, "gpt-4o", requestBody["model"])
	assert.Equal(t, true, requestBody["stream"])
	assert.Equal(t, "user-1", requestBody["user"])
}

func TestChatCompletionUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad request","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	client := NewCompatible(Config{APIKey: "test", APIURL: server.URL, DefaultModel: "gpt-4o"}, server.Client())

	_, err := client.ChatCompletionNoStream(context.Background(), llm.CompletionRequest{
		Posts: []llm.Post{{Role: llm.PostRoleUser, Message: "hi"}},
	})
	require.Error(t, err)
}
