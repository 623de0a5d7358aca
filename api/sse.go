// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mattermost/reference-annotator/annotations"
	"github.com/mattermost/reference-annotator/i18n"
	"github.com/mattermost/reference-annotator/llm"
	"github.com/mattermost/reference-annotator/logger"
	"github.com/mattermost/reference-annotator/public/client"
)

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// sseSink writes answer events as server-sent events. It is used from one goroutine.
type sseSink struct {
	w   http.ResponseWriter
	T   i18n.TranslateFunc
	log logger.Logger
}

func (s *sseSink) Send(event llm.TextStreamEvent) {
	wire, ok := s.toWire(event)
	if !ok {
		return
	}

	data, err := json.Marshal(wire)
	if err != nil {
		s.log.Error("Failed to marshal stream event", "error", err)
		return
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		s.log.Debug("Failed to write stream event", "error", err)
		return
	}
	if flusher, ok := s.w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (s *sseSink) toWire(event llm.TextStreamEvent) (client.StreamEvent, bool) {
	switch event.Type {
	case llm.EventTypeText:
		text, ok := event.Value.(string)
		return client.StreamEvent{Type: client.StreamEventText, Text: text}, ok
	case llm.EventTypeAnnotations:
		switch event.Value.(type) {
		case annotations.Event, annotations.RelatedEvent:
		default:
			return client.StreamEvent{}, false
		}
		data, err := json.Marshal(event.Value)
		if err != nil {
			s.log.Error("Failed to marshal annotation event", "error", err)
			return client.StreamEvent{}, false
		}
		return client.StreamEvent{Type: client.StreamEventAnnotations, Annotations: data}, true
	case llm.EventTypeEnd:
		return client.StreamEvent{Type: client.StreamEventEnd}, true
	case llm.EventTypeError:
		return client.StreamEvent{
			Type:  client.StreamEventError,
			Error: s.T("annotator.llm_error", "Sorry! An error occurred while accessing the language model. See server logs for details."),
		}, true
	default:
		return client.StreamEvent{}, false
	}
}
