// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package api serves the annotation and chat endpoints over HTTP.
package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattermost/reference-annotator/annotations"
	"github.com/mattermost/reference-annotator/conversations"
	"github.com/mattermost/reference-annotator/i18n"
	"github.com/mattermost/reference-annotator/llm"
	"github.com/mattermost/reference-annotator/logger"
	"github.com/mattermost/reference-annotator/metrics"
	"github.com/mattermost/reference-annotator/streaming"
)

const (
	ContextRequestIDKey = "request_id"
	ContextLocaleKey    = "locale"

	headerRequestID = "X-Request-Id"
)

// Annotator computes references for text and answers.
type Annotator interface {
	Annotate(ctx context.Context, text string) ([]annotations.ReferenceEntry, error)
	StreamAnswer(ctx context.Context, stream *llm.TextStreamResult, sink streaming.EventSink, messages []conversations.Message) streaming.Attachment
}

// Config is the live configuration read on every request.
type Config interface {
	APIToken() string
	EnableSaveHistory() bool
	DefaultLocale() string
	SystemPrompt() string
}

// API is the HTTP surface of the service.
type API struct {
	annotator Annotator
	chats     conversations.Store
	config    Config
	bundle    *goi18n.Bundle
	log       logger.Logger
	metrics   metrics.Metrics
	router    *gin.Engine

	llmMu sync.RWMutex
	llm   llm.LanguageModel
}

// New creates the API. languageModel may be nil, in which case chat messages are rejected.
func New(annotator Annotator, chats conversations.Store, config Config, bundle *goi18n.Bundle, log logger.Logger, metricsService metrics.Metrics, languageModel llm.LanguageModel) *API {
	a := &API{
		annotator: annotator,
		chats:     chats,
		config:    config,
		bundle:    bundle,
		log:       log,
		metrics:   metricsService,
		llm:       languageModel,
	}
	a.router = a.newRouter()
	return a
}

func (a *API) newRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(a.requestIDMiddleware)
	router.Use(a.loggingMiddleware)
	router.Use(a.metricsMiddleware)
	router.Use(a.localeMiddleware)

	router.GET("/healthz", a.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.metrics.GetRegistry(), promhttp.HandlerOpts{})))

	annotationsRouter := router.Group("/annotations")
	annotationsRouter.Use(corsMiddleware)
	annotationsRouter.OPTIONS("", handleOptions)
	annotationsRouter.POST("", a.authMiddleware, a.handleAnnotate)

	chatRouter := router.Group("/chats/:chatid")
	chatRouter.Use(a.authMiddleware)
	chatRouter.GET("", a.handleGetChat)
	chatRouter.POST("", a.handleSaveChat)
	chatRouter.POST("/messages", a.handleSendMessage)

	return router
}

// ServeHTTP implements http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// SetLanguageModel replaces the model used to answer chat messages. nil disables chat.
func (a *API) SetLanguageModel(languageModel llm.LanguageModel) {
	a.llmMu.Lock()
	defer a.llmMu.Unlock()
	a.llm = languageModel
}

func (a *API) languageModel() llm.LanguageModel {
	a.llmMu.RLock()
	defer a.llmMu.RUnlock()
	return a.llm
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// translator returns the translate function for the request locale.
func (a *API) translator(c *gin.Context) i18n.TranslateFunc {
	return i18n.LocalizerFunc(a.bundle, c.GetString(ContextLocaleKey))
}
