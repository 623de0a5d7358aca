// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package server wires configuration, storage, the reference classifier and the HTTP API
// into a runnable service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattermost/reference-annotator/annotationcache"
	"github.com/mattermost/reference-annotator/annotations"
	"github.com/mattermost/reference-annotator/api"
	"github.com/mattermost/reference-annotator/config"
	"github.com/mattermost/reference-annotator/conversations"
	"github.com/mattermost/reference-annotator/i18n"
	"github.com/mattermost/reference-annotator/llm"
	"github.com/mattermost/reference-annotator/logger"
	"github.com/mattermost/reference-annotator/metrics"
	"github.com/mattermost/reference-annotator/sqlstore"
	"github.com/mattermost/reference-annotator/streaming"
	"github.com/mattermost/reference-annotator/wikifier"
)

// Version is set at build time.
var Version = "dev"

const (
	shutdownTimeout        = 10 * time.Second
	expiredEntriesInterval = 10 * time.Minute
)

type Server struct {
	config  *config.Container
	log     logger.Logger
	metrics metrics.Metrics

	db          *sqlstore.DB
	memory      *annotationcache.MemoryStore
	cacheStore  *annotationcache.SQLStore
	chats       conversations.Store
	wikifier    *wikifier.Client
	coordinator *streaming.Coordinator
	questions   *streaming.LLMQuestionGenerator
	api         *api.API

	llmUpstreamHTTPClient *http.Client

	llmMu      sync.Mutex
	llmService llm.ServiceConfig
	llm        llm.LanguageModel
}

// New builds the service from the current configuration and registers for updates.
func New(ctx context.Context, container *config.Container, log logger.Logger) (*Server, error) {
	cfg := container.Config()
	if cfg == nil {
		return nil, errors.New("configuration is not loaded")
	}

	s := &Server{
		config:                container,
		log:                   log,
		metrics:               metrics.NewMetrics(metrics.InstanceInfo{InstanceID: uuid.NewString(), Version: Version}),
		llmUpstreamHTTPClient: &http.Client{},
	}

	if cfg.Database.Driver != "" {
		db, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.DataSource)
		if err != nil {
			return nil, err
		}
		s.db = db
		s.chats = conversations.NewSQLStore(db)
		if cfg.Annotations.Persist {
			s.cacheStore = annotationcache.NewSQLStore(db, cfg.Annotations.EntryTTL())
		}
	} else {
		s.chats = conversations.NewMemoryStore()
	}

	s.memory = annotationcache.NewMemoryStore(cfg.Annotations.EntryTTL(), cfg.Annotations.MaxCacheEntries)
	cacheOpts := []annotationcache.Option{
		annotationcache.WithLogger(log),
		annotationcache.WithObserver(s.metrics),
	}
	if s.cacheStore != nil {
		cacheOpts = append(cacheOpts, annotationcache.WithPersistentStore(s.cacheStore))
	}
	cache := annotationcache.New(s.memory, cacheOpts...)

	bundle := i18n.Init()
	s.wikifier = wikifier.NewClient(cfg.Wikifier, &http.Client{}, log, s.metrics)
	s.coordinator = streaming.NewCoordinator(cache, s.wikifier, bundle, log, s.metrics, container.TopN())

	s.llmService = cfg.LLM
	s.llm = newInstrumentedLanguageModel(cfg.LLM, s.llmUpstreamHTTPClient, log, s.metrics)
	s.api = api.New(s.coordinator, s.chats, container, bundle, log, s.metrics, s.llm)

	s.questions = streaming.NewLLMQuestionGenerator(s.languageModel, cfg.Chat.RelatedQuestions.Count)
	s.configureRelatedQuestions(container.RelatedQuestions())

	container.RegisterUpdateListener(s.onConfigurationUpdate)

	return s, nil
}

func (s *Server) onConfigurationUpdate() {
	cfg := s.config.Config()
	if cfg == nil {
		return
	}

	s.wikifier.Configure(cfg.Wikifier)
	s.coordinator.SetTopN(s.config.TopN())

	s.configureRelatedQuestions(cfg.Chat.RelatedQuestions)

	s.llmMu.Lock()
	defer s.llmMu.Unlock()
	if cfg.LLM != s.llmService {
		s.llmService = cfg.LLM
		s.llm = newInstrumentedLanguageModel(cfg.LLM, s.llmUpstreamHTTPClient, s.log, s.metrics)
		s.api.SetLanguageModel(s.llm)
		s.log.Info("Language model configuration updated", "type", cfg.LLM.Type)
	}

	s.log.Info("Configuration updated")
}

func (s *Server) configureRelatedQuestions(cfg config.RelatedQuestionsConfig) {
	s.questions.SetCount(cfg.Count)
	if cfg.Enabled {
		s.coordinator.SetQuestionGenerator(s.questions)
	} else {
		s.coordinator.SetQuestionGenerator(nil)
	}
}

func (s *Server) languageModel() llm.LanguageModel {
	s.llmMu.Lock()
	defer s.llmMu.Unlock()
	return s.llm
}

// Handler returns the HTTP API.
func (s *Server) Handler() http.Handler {
	return s.api
}

// Annotate returns the ranked references for text.
func (s *Server) Annotate(ctx context.Context, text string) ([]annotations.ReferenceEntry, error) {
	return s.coordinator.Annotate(ctx, text)
}

// Migrate creates the database tables used by the configured stores.
func (s *Server) Migrate(ctx context.Context) error {
	if err := s.chats.EnsureSchema(ctx); err != nil {
		return err
	}
	if s.cacheStore != nil {
		if err := s.cacheStore.EnsureSchema(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Serve migrates the database and serves the API until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	addr := s.config.Config().Server.ListenAddr
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.cacheStore != nil && s.config.Config().Annotations.EntryTTL() > 0 {
		go s.deleteExpiredEntries(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		s.log.Info("Listening", "addr", addr, "version", Version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func (s *Server) deleteExpiredEntries(ctx context.Context) {
	ticker := time.NewTicker(expiredEntriesInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.cacheStore.DeleteExpired(ctx)
			if err != nil {
				s.log.Warn("Failed to delete expired annotations", "error", err)
				continue
			}
			if deleted > 0 {
				s.log.Debug("Deleted expired annotations", "count", deleted)
			}
		}
	}
}

// Close releases background resources and the database connection.
func (s *Server) Close() error {
	s.wikifier.Close()
	s.memory.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
