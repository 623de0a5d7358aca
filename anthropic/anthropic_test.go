// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	anthropicSDK "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/reference-annotator/llm"
)

func TestConversationToMessages(t *testing.T) {
	tests := []struct {
		name         string
		conversation []llm.Post
		wantSystem   string
		wantMessages []anthropicSDK.MessageParam
	}{
		{
			name: "basic conversation with system message",
			conversation: []llm.Post{
				{Role: llm.PostRoleSystem, Message: "You are a helpful assistant"},
				{Role: llm.PostRoleUser, Message: "Hello"},
				{Role: llm.PostRoleBot, Message: "Hi there!"},
			},
			wantSystem: "You are a helpful assistant",
			wantMessages: []anthropicSDK.MessageParam{
				{
					Role: anthropicSDK.MessageParamRoleUser,
					Content: []anthropicSDK.ContentBlockParamUnion{
						anthropicSDK.NewTextBlock("Hello"),
					},
				},
				{
					Role: anthropicSDK.MessageParamRoleAssistant,
					Content: []anthropicSDK.ContentBlockParamUnion{
						anthropicSDK.NewTextBlock("Hi there!"),
					},
				},
			},
		},
		{
			name: "multiple messages from same role",
			conversation: []llm.Post{
				{Role: llm.PostRoleUser, Message: "First message"},
				{Role: llm.PostRoleUser, Message: "Second message"},
				{Role: llm.PostRoleBot, Message: "First response"},
				{Role: llm.PostRoleBot, Message: "Second response"},
			},
			wantSystem: "",
			wantMessages: []anthropicSDK.MessageParam{
				{
					Role: anthropicSDK.MessageParamRoleUser,
					Content: []anthropicSDK.ContentBlockParamUnion{
						anthropicSDK.NewTextBlock("First message"),
						anthropicSDK.NewTextBlock("Second message"),
					},
				},
				{
					Role: anthropicSDK.MessageParamRoleAssistant,
					Content: []anthropicSDK.ContentBlockParamUnion{
						anthropicSDK.NewTextBlock("First response"),
						anthropicSDK.NewTextBlock("Second response"),
					},
				},
			},
		},
		{
			name:         "only system message",
			conversation: []llm.Post{{Role: llm.PostRoleSystem, Message: "system"}},
			wantSystem:   "system",
			wantMessages: []anthropicSDK.MessageParam{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSystem, gotMessages := conversationToMessages(tt.conversation)
			assert.Equal(t, tt.wantSystem, gotSystem)
			assert.Equal(t, tt.wantMessages, gotMessages)
		})
	}
}

func TestGetDefaultConfig(t *testing.T) {
	a := New(llm.ServiceConfig{APIKey: "key", DefaultModel: "claude-sonnet-4-0"}, http.DefaultClient)
	cfg := a.GetDefaultConfig()
	assert.Equal(t, "claude-sonnet-4-0", cfg.Model)
	assert.Equal(t, DefaultMaxTokens, cfg.MaxGeneratedTokens)

	a = New(llm.ServiceConfig{APIKey: "key", OutputTokenLimit: 1000}, http.DefaultClient)
	assert.Equal(t, 1000, a.createConfig([]llm.LanguageModelOption{llm.WithModel("other")}).MaxGeneratedTokens)
}

func TestChatCompletionRequiresMessages(t *testing.T) {
	a := New(llm.ServiceConfig{APIKey: "key"}, http.DefaultClient)
	_, err := a.ChatCompletion(context.Background(), llm.CompletionRequest{
		Posts: []llm.Post{{Role: llm.PostRoleSystem, Message: "only system"}},
	})
	require.Error(t, err)
}

func sseEvent(w http.ResponseWriter, name, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}

func TestChatCompletionStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		sseEvent(w, "message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-0","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":12,"output_tokens":1}}}`)
		sseEvent(w, "content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)
		sseEvent(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Albert "}}`)
		sseEvent(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Einstein"}}`)
		sseEvent(w, "content_block_stop", `{"type":"content_block_stop","index":0}`)
		sseEvent(w, "message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":4}}`)
		sseEvent(w, "message_stop", `{"type":"message_stop"}`)
	}))
	defer server.Close()

	a := New(llm.ServiceConfig{APIKey: "key", APIURL: server.URL, DefaultModel: "claude-sonnet-4-0"}, server.Client())
	result, err := a.ChatCompletion(context.Background(), llm.CompletionRequest{
		Posts: []llm.Post{{Role: llm.PostRoleUser, Message: "Who developed relativity?"}},
	})
	require.NoError(t, err)

	var text string
	var usage llm.TokenUsage
	for event := range result.Stream {
		switch event.Type {
		case llm.EventTypeText:
			text += event.Value.(string)
		case llm.EventTypeUsage:
			usage = event.Value.(llm.TokenUsage)
		case llm.EventTypeError:
			t.Fatalf("unexpected error: %v", event.Value)
		}
	}

	assert.Equal(t, "Albert Einstein", text)
	assert.Equal(t, int64(12), usage.InputTokens)
	assert.Equal(t, int64(4), usage.OutputTokens)
}
