// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"encoding/json"
	"time"
)

// Reference links a topic found in an answer to its reference article.
type Reference struct {
	Title      string   `json:"title"`
	URL        string   `json:"url"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// AnnotateRequest is the body of POST /annotations.
type AnnotateRequest struct {
	Text string `json:"text"`
}

// AnnotationData holds the references of an annotation response or event.
type AnnotationData struct {
	Annotations []Reference `json:"annotations"`
}

// AnnotateResponse is the body of a successful POST /annotations.
type AnnotateResponse struct {
	Type      string         `json:"type"`
	Data      AnnotationData `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// AnnotationEvent reports the progress of annotating a streamed answer. Status is
// loading, then one of resolved, empty or failed.
type AnnotationEvent struct {
	Type      string         `json:"type"`
	Status    string         `json:"status"`
	Data      AnnotationData `json:"data"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RelatedQuestion is a follow-up question suggested after an answer.
type RelatedQuestion struct {
	Query string `json:"query"`
}

// RelatedQuestionsEvent reports the progress of generating follow-up questions. It uses
// the same statuses as AnnotationEvent.
type RelatedQuestionsEvent struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Data   struct {
		Items []RelatedQuestion `json:"items"`
	} `json:"data"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Payload types of annotations stream events.
const (
	AnnotationTypeReferences       = "reference-annotations"
	AnnotationTypeRelatedQuestions = "related-questions"
)

// Message is one turn of a chat.
type Message struct {
	ID               string            `json:"id,omitempty"`
	Role             string            `json:"role"` // user|assistant|system
	Content          string            `json:"content"`
	Timestamp        time.Time         `json:"timestamp"`
	Annotations      []Reference       `json:"annotations,omitempty"`
	RelatedQuestions []RelatedQuestion `json:"relatedQuestions,omitempty"`
}

// ChatResponse is the body of GET /chats/{id}.
type ChatResponse struct {
	Messages []Message `json:"messages"`
}

// SaveChatRequest is the body of POST /chats/{id}.
type SaveChatRequest struct {
	Messages []Message `json:"messages"`
}

// SaveChatResponse is the body of a successful POST /chats/{id}.
type SaveChatResponse struct {
	Success bool `json:"success"`
}

// SendMessageRequest is the body of POST /chats/{id}/messages.
type SendMessageRequest struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response from the API
type ErrorResponse struct {
	Error string `json:"error"`
}

// Stream event types sent by POST /chats/{id}/messages.
const (
	StreamEventText        = "text"
	StreamEventAnnotations = "annotations"
	StreamEventEnd         = "end"
	StreamEventError       = "error"
)

// StreamEvent is one server-sent event of an answer stream.
type StreamEvent struct {
	Type        string          `json:"type"`
	Text        string          `json:"text,omitempty"`
	Annotations json.RawMessage `json:"annotations,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// AnnotationType returns the payload type of an annotations event, either
// AnnotationTypeReferences or AnnotationTypeRelatedQuestions.
func (e StreamEvent) AnnotationType() string {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(e.Annotations, &envelope); err != nil {
		return ""
	}
	return envelope.Type
}

// RelatedQuestionsEvent decodes the payload of a related questions event.
func (e StreamEvent) RelatedQuestionsEvent() (*RelatedQuestionsEvent, error) {
	var event RelatedQuestionsEvent
	if err := json.Unmarshal(e.Annotations, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// AnnotationEvent decodes the payload of an annotations event.
func (e StreamEvent) AnnotationEvent() (*AnnotationEvent, error) {
	var event AnnotationEvent
	if err := json.Unmarshal(e.Annotations, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
