// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package config

import (
	"errors"
	"fmt"
	"net/url"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

var (
	ErrUnknownDriver     = errors.New("unknown database driver")
	ErrMissingDataSource = errors.New("database data source is required")
	ErrInvalidTopN       = errors.New("annotations topN must be positive")
	ErrNegativeCacheSize = errors.New("annotation cache limits must not be negative")
	ErrPersistNeedsDB    = errors.New("persisting annotations requires a database")
	ErrUnknownLLMType    = errors.New("unknown llm type")
	ErrNegativeQuestions = errors.New("related questions count must not be negative")
)

// Validate checks the configuration for values the service cannot run with. A missing
// classifier key is allowed; annotation requests then fail with a credential error.
func (c *Config) Validate() error {
	if c.Annotations.TopN <= 0 {
		return ErrInvalidTopN
	}
	if c.Annotations.MaxCacheEntries < 0 || c.Annotations.EntryTTLSeconds < 0 {
		return ErrNegativeCacheSize
	}

	if c.Chat.RelatedQuestions.Count < 0 {
		return ErrNegativeQuestions
	}

	switch c.Database.Driver {
	case "":
		if c.Annotations.Persist {
			return ErrPersistNeedsDB
		}
	case DriverPostgres, DriverSQLite:
		if c.Database.DataSource == "" {
			return ErrMissingDataSource
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownDriver, c.Database.Driver)
	}

	if c.Wikifier.APIURL != "" {
		if _, err := url.ParseRequestURI(c.Wikifier.APIURL); err != nil {
			return fmt.Errorf("invalid wikifier apiURL: %w", err)
		}
	}
	if c.Wikifier.ReferenceBaseURL != "" {
		if _, err := url.ParseRequestURI(c.Wikifier.ReferenceBaseURL); err != nil {
			return fmt.Errorf("invalid wikifier referenceBaseURL: %w", err)
		}
	}

	switch c.LLM.Type {
	case "", "openai", "openaicompatible", "anthropic":
	default:
		return fmt.Errorf("%w: %s", ErrUnknownLLMType, c.LLM.Type)
	}

	return nil
}
