// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package llm

const (
	ServiceTypeOpenAI           = "openai"
	ServiceTypeOpenAICompatible = "openaicompatible"
	ServiceTypeAnthropic        = "anthropic"
)

type ServiceConfig struct {
	Name         string `json:"name" yaml:"name"`
	Type         string `json:"type" yaml:"type"`
	APIKey       string `json:"apiKey" yaml:"apiKey"`
	OrgID        string `json:"orgId" yaml:"orgId"`
	DefaultModel string `json:"defaultModel" yaml:"defaultModel"`
	APIURL       string `json:"apiURL" yaml:"apiURL"`

	StreamingTimeoutSeconds int `json:"streamingTimeoutSeconds" yaml:"streamingTimeoutSeconds"`

	// Otherwise known as maxTokens
	OutputTokenLimit int `json:"outputTokenLimit" yaml:"outputTokenLimit"`
}

// Enabled reports whether a language model has been configured at all.
func (c ServiceConfig) Enabled() bool {
	return c.Type != ""
}

// IsValidService validates a service configuration
func IsValidService(service ServiceConfig) bool {
	switch service.Type {
	case ServiceTypeOpenAI:
		return service.APIKey != ""
	case ServiceTypeOpenAICompatible:
		return service.APIURL != ""
	case ServiceTypeAnthropic:
		return service.APIKey != ""
	default:
		return false
	}
}
