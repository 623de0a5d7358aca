// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package wikifier

import (
	"time"

	"github.com/mattermost/reference-annotator/annotations"
)

const (
	DefaultAPIURL                 = "https://www.wikifier.org"
	DefaultLanguage               = "auto"
	DefaultPageRankSqThreshold    = 0.5
	DefaultNTopDfValuesToIgnore   = 100
	DefaultNWordsToIgnoreFromList = 200
	DefaultTimeoutSeconds         = 15

	DefaultCircuitBreakerMaxFailures   = 10
	DefaultCircuitBreakerWindowSeconds = 300
)

// RateLimitConfig configures outbound request throttling.
type RateLimitConfig struct {
	Enabled           bool `json:"enabled" yaml:"enabled"`
	RequestsPerMinute int  `json:"requestsPerMinute" yaml:"requestsPerMinute"`
	BurstSize         int  `json:"burstSize" yaml:"burstSize"`
}

// CircuitBreakerConfig configures how many failures inside a window open the breaker.
// MaxFailures of zero disables it.
type CircuitBreakerConfig struct {
	MaxFailures   int `json:"maxFailures" yaml:"maxFailures"`
	WindowSeconds int `json:"windowSeconds" yaml:"windowSeconds"`
}

type Config struct {
	UserKey          string `json:"userKey" yaml:"userKey"`
	APIURL           string `json:"apiURL" yaml:"apiURL"`
	ReferenceBaseURL string `json:"referenceBaseURL" yaml:"referenceBaseURL"`

	Language                 string  `json:"language" yaml:"language"`
	PageRankSqThreshold      float64 `json:"pageRankSqThreshold" yaml:"pageRankSqThreshold"`
	ApplyPageRankSqThreshold bool    `json:"applyPageRankSqThreshold" yaml:"applyPageRankSqThreshold"`
	NTopDfValuesToIgnore     int     `json:"nTopDfValuesToIgnore" yaml:"nTopDfValuesToIgnore"`
	NWordsToIgnoreFromList   int     `json:"nWordsToIgnoreFromList" yaml:"nWordsToIgnoreFromList"`

	TimeoutSeconds int                  `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	RateLimit      RateLimitConfig      `json:"rateLimit" yaml:"rateLimit"`
	CircuitBreaker CircuitBreakerConfig `json:"circuitBreaker" yaml:"circuitBreaker"`
}

func DefaultConfig() Config {
	return Config{
		APIURL:                   DefaultAPIURL,
		ReferenceBaseURL:         annotations.DefaultReferenceBaseURL,
		Language:                 DefaultLanguage,
		PageRankSqThreshold:      DefaultPageRankSqThreshold,
		ApplyPageRankSqThreshold: true,
		NTopDfValuesToIgnore:     DefaultNTopDfValuesToIgnore,
		NWordsToIgnoreFromList:   DefaultNWordsToIgnoreFromList,
		TimeoutSeconds:           DefaultTimeoutSeconds,
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:   DefaultCircuitBreakerMaxFailures,
			WindowSeconds: DefaultCircuitBreakerWindowSeconds,
		},
	}
}

// Timeout bounds a single classifier call.
func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c Config) apiURL() string {
	if c.APIURL == "" {
		return DefaultAPIURL
	}
	return c.APIURL
}

func (c Config) referenceBaseURL() string {
	if c.ReferenceBaseURL == "" {
		return annotations.DefaultReferenceBaseURL
	}
	return c.ReferenceBaseURL
}

func (c Config) language() string {
	if c.Language == "" {
		return DefaultLanguage
	}
	return c.Language
}
