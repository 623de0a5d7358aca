// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the configuration file.
const (
	EnvWikifierUserKey   = "WIKIFIER_USER_KEY"
	EnvEnableSaveHistory = "ENABLE_SAVE_CHAT_HISTORY"
	EnvAPIToken          = "ANNOTATOR_API_TOKEN"
	EnvDatabaseURL       = "DATABASE_URL"
	EnvLLMAPIKey         = "LLM_API_KEY"
)

// Load reads the YAML file at path on top of the defaults, applies environment overrides
// and validates the result. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	applyEnv(&cfg, os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) {
	if v, ok := lookup(EnvWikifierUserKey); ok && v != "" {
		cfg.Wikifier.UserKey = v
	}
	if v, ok := lookup(EnvEnableSaveHistory); ok {
		enabled, err := strconv.ParseBool(v)
		cfg.Chat.EnableSaveHistory = err == nil && enabled
	}
	if v, ok := lookup(EnvAPIToken); ok && v != "" {
		cfg.Server.APIToken = v
	}
	if v, ok := lookup(EnvDatabaseURL); ok && v != "" {
		cfg.Database.DataSource = v
		if cfg.Database.Driver == "" {
			cfg.Database.Driver = DriverPostgres
		}
	}
	if v, ok := lookup(EnvLLMAPIKey); ok && v != "" {
		cfg.LLM.APIKey = v
	}
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
