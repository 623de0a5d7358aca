// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package server

import (
	"fmt"
	"net/http"

	"github.com/mattermost/reference-annotator/anthropic"
	"github.com/mattermost/reference-annotator/llm"
	"github.com/mattermost/reference-annotator/logger"
	"github.com/mattermost/reference-annotator/openai"
)

// NewLanguageModel creates the model for service. It returns llm.ErrNoLanguageModel when no
// service type is configured.
func NewLanguageModel(service llm.ServiceConfig, httpClient *http.Client) (llm.LanguageModel, error) {
	switch service.Type {
	case "":
		return nil, llm.ErrNoLanguageModel
	case llm.ServiceTypeOpenAI:
		return openai.New(openai.ConfigFromService(service), httpClient), nil
	case llm.ServiceTypeOpenAICompatible:
		return openai.NewCompatible(openai.ConfigFromService(service), httpClient), nil
	case llm.ServiceTypeAnthropic:
		return anthropic.New(service, httpClient), nil
	default:
		return nil, fmt.Errorf("unsupported service type: %s", service.Type)
	}
}

// newInstrumentedLanguageModel wraps the configured model with token usage logging. A
// missing or unsupported service yields nil so chat is disabled instead of failing startup.
func newInstrumentedLanguageModel(service llm.ServiceConfig, httpClient *http.Client, log logger.Logger, metrics llm.MetricsObserver) llm.LanguageModel {
	model, err := NewLanguageModel(service, httpClient)
	if err != nil {
		log.Warn("Chat is disabled", "reason", err)
		return nil
	}

	name := service.Name
	if name == "" {
		name = service.Type
	}
	return llm.NewTokenUsageLoggingWrapper(model, name, log, metrics)
}
