// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/mattermost/reference-annotator/llm"
)

type Config struct {
	APIKey           string        `json:"apiKey"`
	APIURL           string        `json:"apiURL"`
	OrgID            string        `json:"orgID"`
	DefaultModel     string        `json:"defaultModel"`
	OutputTokenLimit int           `json:"outputTokenLimit"`
	StreamingTimeout time.Duration `json:"streamingTimeout"`
}

type OpenAI struct {
	client openai.Client
	config Config
}

const DefaultStreamingTimeout = 30 * time.Second

var ErrStreamingTimeout = errors.New("timeout streaming")

// ConfigFromService converts the service configuration into provider settings.
func ConfigFromService(service llm.ServiceConfig) Config {
	timeout := time.Duration(service.StreamingTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = DefaultStreamingTimeout
	}
	return Config{
		APIKey:           service.APIKey,
		APIURL:           service.APIURL,
		OrgID:            service.OrgID,
		DefaultModel:     service.DefaultModel,
		OutputTokenLimit: service.OutputTokenLimit,
		StreamingTimeout: timeout,
	}
}

func NewCompatible(config Config, httpClient *http.Client) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithBaseURL(strings.TrimSuffix(config.APIURL, "/")),
	}

	client := openai.NewClient(opts...)

	return &OpenAI{
		client: client,
		config: config,
	}
}

func New(config Config, httpClient *http.Client) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithHTTPClient(httpClient),
	}

	if config.OrgID != "" {
		opts = append(opts, option.WithOrganization(config.OrgID))
	}

	client := openai.NewClient(opts...)

	return &OpenAI{
		client: client,
		config: config,
	}
}

func postsToChatCompletionMessages(posts []llm.Post) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(posts))

	for _, post := range posts {
		switch post.Role {
		case llm.PostRoleSystem:
			result = append(result, openai.SystemMessage(post.Message))
		case llm.PostRoleBot:
			result = append(result, openai.AssistantMessage(post.Message))
		case llm.PostRoleUser:
			result = append(result, openai.UserMessage(post.Message))
		}
	}

	return result
}

func (s *OpenAI) streamingTimeout() time.Duration {
	if s.config.StreamingTimeout <= 0 {
		return DefaultStreamingTimeout
	}
	return s.config.StreamingTimeout
}

// streamCompletionsAPIToChannels streams a chat completion, cancelling it if no chunk
// arrives within the streaming timeout.
func (s *OpenAI) streamCompletionsAPIToChannels(parent context.Context, params openai.ChatCompletionNewParams, output chan<- llm.TextStreamEvent) {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	// watchdog to cancel if the streaming stalls
	timeout := s.streamingTimeout()
	watchdog := make(chan struct{})
	go func() {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		for {
			select {
			case <-timer.C:
				cancel(ErrStreamingTimeout)
				return
			case <-ctx.Done():
				return
			case <-watchdog:
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(timeout)
			}
		}
	}()

	stream := s.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()

		// Ping the watchdog when we receive a response
		select {
		case watchdog <- struct{}{}:
		case <-ctx.Done():
		}

		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			output <- llm.TextStreamEvent{
				Type: llm.EventTypeUsage,
				Value: llm.TokenUsage{
					InputTokens:  chunk.Usage.PromptTokens,
					OutputTokens: chunk.Usage.CompletionTokens,
				},
			}
		}

		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			output <- llm.TextStreamEvent{
				Type:  llm.EventTypeText,
				Value: choice.Delta.Content,
			}
		}

		switch choice.FinishReason {
		case "", "stop":
			// The end event is sent when we run out of chunks so trailing usage is kept.
			continue
		default:
			// Unknown finish reason, end the stream
			output <- llm.TextStreamEvent{
				Type:  llm.EventTypeEnd,
				Value: nil,
			}
			return
		}
	}

	if err := stream.Err(); err != nil {
		if ctxErr := context.Cause(ctx); ctxErr != nil {
			output <- llm.TextStreamEvent{
				Type:  llm.EventTypeError,
				Value: ctxErr,
			}
		} else {
			output <- llm.TextStreamEvent{
				Type:  llm.EventTypeError,
				Value: err,
			}
		}
		return
	}

	output <- llm.TextStreamEvent{
		Type:  llm.EventTypeEnd,
		Value: nil,
	}
}

func (s *OpenAI) GetDefaultConfig() llm.LanguageModelConfig {
	return llm.LanguageModelConfig{
		Model:              s.config.DefaultModel,
		MaxGeneratedTokens: s.config.OutputTokenLimit,
	}
}

func (s *OpenAI) createConfig(opts []llm.LanguageModelOption) llm.LanguageModelConfig {
	cfg := s.GetDefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

func (s *OpenAI) completionRequestFromConfig(cfg llm.LanguageModelConfig) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: getModelConstant(cfg.Model),
	}

	if cfg.MaxGeneratedTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(cfg.MaxGeneratedTokens))
	}

	return params
}

// getModelConstant converts string model names to the SDK's model constants
func getModelConstant(model string) shared.ChatModel {
	switch model {
	case "gpt-4o":
		return shared.ChatModelGPT4o
	case "gpt-4o-mini":
		return shared.ChatModelGPT4oMini
	case "gpt-4-turbo":
		return shared.ChatModelGPT4Turbo
	case "gpt-4":
		return shared.ChatModelGPT4
	case "gpt-3.5-turbo":
		return shared.ChatModelGPT3_5Turbo
	default:
		// For custom models or newer versions, use the string as-is
		return model
	}
}

func (s *OpenAI) ChatCompletion(ctx context.Context, request llm.CompletionRequest, opts ...llm.LanguageModelOption) (*llm.TextStreamResult, error) {
	cfg := s.createConfig(opts)
	params := s.completionRequestFromConfig(cfg)
	params.Messages = postsToChatCompletionMessages(request.Posts)
	params.StreamOptions.IncludeUsage = openai.Bool(true)

	if request.User != "" {
		params.User = openai.String(request.User)
	}

	eventStream := make(chan llm.TextStreamEvent)
	go func() {
		defer close(eventStream)
		s.streamCompletionsAPIToChannels(ctx, params, eventStream)
	}()

	return &llm.TextStreamResult{Stream: eventStream}, nil
}

func (s *OpenAI) ChatCompletionNoStream(ctx context.Context, request llm.CompletionRequest, opts ...llm.LanguageModelOption) (string, error) {
	// This could perform better if we didn't use the streaming API here, but the complexity is not worth it.
	result, err := s.ChatCompletion(ctx, request, opts...)
	if err != nil {
		return "", err
	}
	return result.ReadAll()
}
