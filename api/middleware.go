// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mattermost/reference-annotator/i18n"
	"github.com/mattermost/reference-annotator/public/client"
)

func (a *API) requestIDMiddleware(c *gin.Context) {
	requestID := c.GetHeader(headerRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(ContextRequestIDKey, requestID)
	c.Header(headerRequestID, requestID)
	c.Next()
}

func (a *API) loggingMiddleware(c *gin.Context) {
	start := time.Now()
	c.Next()

	a.log.Debug("Handled request",
		"request_id", c.GetString(ContextRequestIDKey),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start).String(),
	)
	for _, err := range c.Errors {
		a.log.Error("Request error", "request_id", c.GetString(ContextRequestIDKey), "error", err.Err)
	}
}

func (a *API) metricsMiddleware(c *gin.Context) {
	start := time.Now()
	a.metrics.IncrementHTTPRequests()

	c.Next()

	status := c.Writer.Status()
	if status >= http.StatusBadRequest {
		a.metrics.IncrementHTTPErrors()
	}

	handler := c.FullPath()
	if handler == "" {
		handler = "unmatched"
	}
	a.metrics.ObserveAPIEndpointDuration(handler, c.Request.Method, strconv.Itoa(status), time.Since(start).Seconds())
}

func (a *API) localeMiddleware(c *gin.Context) {
	c.Set(ContextLocaleKey, i18n.MatchLocale(a.bundle, c.GetHeader("Accept-Language"), a.config.DefaultLocale()))
	c.Next()
}

// authMiddleware requires the configured bearer token. No token configured means the
// endpoints are open.
func (a *API) authMiddleware(c *gin.Context) {
	token := a.config.APIToken()
	if token == "" {
		c.Next()
		return
	}

	provided, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
		T := a.translator(c)
		c.AbortWithStatusJSON(http.StatusUnauthorized, client.ErrorResponse{
			Error: T("annotator.unauthorized", "Unauthorized."),
		})
		return
	}
	c.Next()
}

func corsMiddleware(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "POST")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
	c.Next()
}

func handleOptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{})
}
