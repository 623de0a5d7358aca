// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mattermost/reference-annotator/annotations"
	"github.com/mattermost/reference-annotator/i18n"
	"github.com/mattermost/reference-annotator/public/client"
)

// handleAnnotate handles POST /annotations
func (a *API) handleAnnotate(c *gin.Context) {
	T := a.translator(c)

	var req client.AnnotateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		c.JSON(http.StatusBadRequest, client.ErrorResponse{
			Error: T("annotator.text_required", "Text is required."),
		})
		return
	}

	entries, err := a.annotator.Annotate(c.Request.Context(), req.Text)
	if err != nil {
		_ = c.Error(err)
		status, message := annotateErrorResponse(err, T)
		c.JSON(status, client.ErrorResponse{Error: message})
		return
	}

	c.JSON(http.StatusOK, client.AnnotateResponse{
		Type:      annotations.EventType,
		Data:      client.AnnotationData{Annotations: toReferences(entries)},
		Timestamp: time.Now().UTC(),
	})
}

func annotateErrorResponse(err error, T i18n.TranslateFunc) (int, string) {
	switch {
	case errors.Is(err, annotations.ErrInvalidInput):
		return http.StatusBadRequest, T("annotator.text_required", "Text is required.")
	case errors.Is(err, annotations.ErrMissingCredential):
		return http.StatusInternalServerError, T("annotator.missing_credential", "The reference service is not configured.")
	case errors.Is(err, annotations.ErrUpstreamUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, T("annotator.upstream_unavailable", "The reference service is unavailable. Please try again later.")
	default:
		return http.StatusInternalServerError, T("annotator.internal_error", "An internal error occurred.")
	}
}
