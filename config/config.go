// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattermost/reference-annotator/annotations"
	"github.com/mattermost/reference-annotator/llm"
	"github.com/mattermost/reference-annotator/wikifier"
)

type Config struct {
	Server      ServerConfig      `json:"server" yaml:"server"`
	Wikifier    wikifier.Config   `json:"wikifier" yaml:"wikifier"`
	Annotations AnnotationsConfig `json:"annotations" yaml:"annotations"`
	Database    DatabaseConfig    `json:"database" yaml:"database"`
	Chat        ChatConfig        `json:"chat" yaml:"chat"`
	LLM         llm.ServiceConfig `json:"llm" yaml:"llm"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr string `json:"listenAddr" yaml:"listenAddr"`
	// APIToken enables bearer token checks on the API when set.
	APIToken string `json:"apiToken" yaml:"apiToken"`
	// DefaultLocale is used for user visible messages when the request has no Accept-Language.
	DefaultLocale string `json:"defaultLocale" yaml:"defaultLocale"`
}

type AnnotationsConfig struct {
	TopN int `json:"topN" yaml:"topN"`
	// MaxCacheEntries bounds the in-memory cache. Zero means unbounded.
	MaxCacheEntries int `json:"maxCacheEntries" yaml:"maxCacheEntries"`
	// EntryTTLSeconds expires cached results. Zero means results never expire.
	EntryTTLSeconds int `json:"entryTTLSeconds" yaml:"entryTTLSeconds"`
	// Persist stores results in the database so they survive restarts and are shared
	// between instances.
	Persist bool `json:"persist" yaml:"persist"`
}

// EntryTTL returns the cache entry lifetime, zero when entries never expire.
func (a AnnotationsConfig) EntryTTL() time.Duration {
	return time.Duration(a.EntryTTLSeconds) * time.Second
}

type DatabaseConfig struct {
	// Driver is "postgres", "sqlite3" or empty for in-memory storage.
	Driver     string `json:"driver" yaml:"driver"`
	DataSource string `json:"dataSource" yaml:"dataSource"`
}

type ChatConfig struct {
	EnableSaveHistory bool                   `json:"enableSaveHistory" yaml:"enableSaveHistory"`
	SystemPrompt      string                 `json:"systemPrompt" yaml:"systemPrompt"`
	RelatedQuestions  RelatedQuestionsConfig `json:"relatedQuestions" yaml:"relatedQuestions"`
}

// RelatedQuestionsConfig controls the follow-up questions suggested after streamed answers.
type RelatedQuestionsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Count   int  `json:"count" yaml:"count"`
}

type LoggingConfig struct {
	Debug bool   `json:"debug" yaml:"debug"`
	File  string `json:"file" yaml:"file"`
}

// Default returns a configuration with every optional value filled in.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:    "127.0.0.1:8080",
			DefaultLocale: "en",
		},
		Wikifier: wikifier.DefaultConfig(),
		Annotations: AnnotationsConfig{
			TopN: annotations.DefaultTopN,
		},
		Chat: ChatConfig{
			RelatedQuestions: RelatedQuestionsConfig{
				Enabled: true,
				Count:   annotations.DefaultRelatedQuestions,
			},
		},
		LLM: llm.ServiceConfig{
			StreamingTimeoutSeconds: 30,
		},
	}
}

func (c *Config) Clone() *Config {
	clone, err := DeepCopyJSON(*c)
	if err != nil {
		panic(fmt.Sprintf("failed to clone configuration: %v", err))
	}

	return &clone
}

type UpdateListener func()

type Container struct {
	cfg         atomic.Pointer[Config]
	listenersMu sync.Mutex
	listeners   []UpdateListener
}

// NewContainer returns a container holding a copy of cfg.
func NewContainer(cfg *Config) *Container {
	c := &Container{}
	c.Update(cfg)
	return c
}

// Config returns the whole configuration readonly.
// Avoid using this method, prefer using config though interfaces.
func (c *Container) Config() *Config {
	return c.cfg.Load()
}

func (c *Container) Wikifier() wikifier.Config {
	return c.cfg.Load().Wikifier
}

func (c *Container) TopN() int {
	cfg := c.cfg.Load()
	if cfg == nil || cfg.Annotations.TopN <= 0 {
		return annotations.DefaultTopN
	}
	return cfg.Annotations.TopN
}

func (c *Container) EnableSaveHistory() bool {
	cfg := c.cfg.Load()
	if cfg == nil {
		return false
	}
	return cfg.Chat.EnableSaveHistory
}

func (c *Container) APIToken() string {
	cfg := c.cfg.Load()
	if cfg == nil {
		return ""
	}
	return cfg.Server.APIToken
}

func (c *Container) DefaultLocale() string {
	cfg := c.cfg.Load()
	if cfg == nil || cfg.Server.DefaultLocale == "" {
		return "en"
	}
	return cfg.Server.DefaultLocale
}

func (c *Container) SystemPrompt() string {
	cfg := c.cfg.Load()
	if cfg == nil {
		return ""
	}
	return cfg.Chat.SystemPrompt
}

func (c *Container) RelatedQuestions() RelatedQuestionsConfig {
	cfg := c.cfg.Load()
	if cfg == nil {
		return RelatedQuestionsConfig{}
	}
	return cfg.Chat.RelatedQuestions
}

func (c *Container) RegisterUpdateListener(listener UpdateListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, listener)
}

// Updates the current configuration
// The new configuration is deep-copied to ensure the new and old
// configurations are independent of each other.
func (c *Container) Update(newConfig *Config) {
	if newConfig == nil {
		c.cfg.Store(nil)
		return
	}
	clone, err := DeepCopyJSON(*newConfig)
	if err != nil {
		panic(fmt.Sprintf("failed to deep copy configuration: %v", err))
	}

	c.cfg.Store(&clone)

	c.listenersMu.Lock()
	listeners := make([]UpdateListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.listenersMu.Unlock()

	for _, listener := range listeners {
		listener()
	}
}

// DeepCopyJSON creates a deep copy of JSON-serializable structs
func DeepCopyJSON[T any](src T) (T, error) {
	var dst T
	data, err := json.Marshal(src)
	if err != nil {
		return dst, err
	}
	err = json.Unmarshal(data, &dst)
	return dst, err
}
