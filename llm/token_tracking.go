// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package llm

import (
	"context"

	"github.com/mattermost/reference-annotator/logger"
)

// MetricsObserver defines the interface for observing language model usage
type MetricsObserver interface {
	IncrementLLMRequests(llmName string)
	ObserveTokenUsage(llmName string, inputTokens, outputTokens int)
}

// TokenUsageLoggingWrapper wraps a LanguageModel to log token usage and count requests
type TokenUsageLoggingWrapper struct {
	wrapped LanguageModel
	llmName string
	log     logger.Logger
	metrics MetricsObserver
}

// NewTokenUsageLoggingWrapper creates a new wrapper that logs token usage
func NewTokenUsageLoggingWrapper(wrapped LanguageModel, llmName string, log logger.Logger, metrics MetricsObserver) *TokenUsageLoggingWrapper {
	return &TokenUsageLoggingWrapper{
		wrapped: wrapped,
		llmName: llmName,
		log:     log,
		metrics: metrics,
	}
}

// ChatCompletion intercepts the streaming response to extract and log token usage
func (w *TokenUsageLoggingWrapper) ChatCompletion(ctx context.Context, request CompletionRequest, opts ...LanguageModelOption) (*TextStreamResult, error) {
	if w.metrics != nil {
		w.metrics.IncrementLLMRequests(w.llmName)
	}

	result, err := w.wrapped.ChatCompletion(ctx, request, opts...)
	if err != nil {
		return nil, err
	}

	interceptedStream := make(chan TextStreamEvent)

	go func() {
		defer close(interceptedStream)

		for event := range result.Stream {
			if event.Type != EventTypeUsage {
				interceptedStream <- event
				continue
			}

			usage, ok := event.Value.(TokenUsage)
			if !ok {
				continue
			}

			if w.log != nil {
				w.log.Info("Token Usage",
					"llm", w.llmName,
					"user_id", request.User,
					"input_tokens", usage.InputTokens,
					"output_tokens", usage.OutputTokens,
					"total_tokens", usage.InputTokens+usage.OutputTokens,
				)
			}

			if w.metrics != nil {
				w.metrics.ObserveTokenUsage(w.llmName, int(usage.InputTokens), int(usage.OutputTokens))
			}
		}
	}()

	return &TextStreamResult{Stream: interceptedStream}, nil
}

// ChatCompletionNoStream uses the streaming method internally, so token usage
// logging happens automatically when ReadAll() processes the intercepted stream
func (w *TokenUsageLoggingWrapper) ChatCompletionNoStream(ctx context.Context, request CompletionRequest, opts ...LanguageModelOption) (string, error) {
	result, err := w.ChatCompletion(ctx, request, opts...)
	if err != nil {
		return "", err
	}
	return result.ReadAll()
}
