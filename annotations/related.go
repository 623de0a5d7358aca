// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package annotations

import (
	"slices"
	"time"
)

// RelatedEventType is the envelope tag of related question events.
const RelatedEventType = "related-questions"

// DefaultRelatedQuestions is the number of follow-up questions suggested per answer.
const DefaultRelatedQuestions = 3

// RelatedQuestion is a follow-up question suggested after an answer.
type RelatedQuestion struct {
	Query string `json:"query"`
}

type RelatedData struct {
	Items []RelatedQuestion `json:"items"`
}

// RelatedEvent is streamed while follow-up questions are generated. It follows the same
// loading then terminal status sequence as Event.
type RelatedEvent struct {
	Type      string      `json:"type"`
	Status    Status      `json:"status"`
	Data      RelatedData `json:"data"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewRelatedEvent builds a related question event. A nil item list is sent as an empty array.
func NewRelatedEvent(status Status, items []RelatedQuestion, at time.Time) RelatedEvent {
	if items == nil {
		items = []RelatedQuestion{}
	}
	return RelatedEvent{
		Type:      RelatedEventType,
		Status:    status,
		Data:      RelatedData{Items: slices.Clone(items)},
		Timestamp: at.UTC(),
	}
}
