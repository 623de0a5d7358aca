// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package llm

import (
	"context"
	"errors"
)

var ErrNoLanguageModel = errors.New("no language model configured")

type PostRole int

const (
	PostRoleUser PostRole = iota
	PostRoleBot
	PostRoleSystem
)

// Post is a single message of the conversation sent to the model.
type Post struct {
	Role    PostRole
	Message string
}

type CompletionRequest struct {
	Posts []Post
	// User optionally identifies the end user to the provider.
	User string
}

type LanguageModelConfig struct {
	Model              string
	MaxGeneratedTokens int
}

type LanguageModelOption func(*LanguageModelConfig)

func WithModel(model string) LanguageModelOption {
	return func(cfg *LanguageModelConfig) {
		cfg.Model = model
	}
}

func WithMaxGeneratedTokens(maxGeneratedTokens int) LanguageModelOption {
	return func(cfg *LanguageModelConfig) {
		cfg.MaxGeneratedTokens = maxGeneratedTokens
	}
}

type LanguageModel interface {
	// ChatCompletion starts a streamed completion. The stream always terminates with an
	// EventTypeEnd or EventTypeError event and is then closed.
	ChatCompletion(ctx context.Context, request CompletionRequest, opts ...LanguageModelOption) (*TextStreamResult, error)
	ChatCompletionNoStream(ctx context.Context, request CompletionRequest, opts ...LanguageModelOption) (string, error)
}
