// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package annotations

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"time"
)

// EventType is the envelope tag shared by every reference annotation event.
const EventType = "reference-annotations"

// DefaultTopN is the number of references kept per answer when nothing is configured.
const DefaultTopN = 5

// ReferenceEntry links a detected topic to its canonical reference article.
type ReferenceEntry struct {
	Title      string   `json:"title"`
	URL        string   `json:"url"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Score returns the confidence used for ordering, treating an absent confidence as 0.
func (e ReferenceEntry) Score() float64 {
	if e.Confidence == nil {
		return 0
	}
	return *e.Confidence
}

// Confidence builds a confidence value clamped to the 0..1 range.
// Negative values are reported as absent.
func Confidence(v float64) *float64 {
	if v < 0 {
		return nil
	}
	if v > 1 {
		v = 1
	}
	return &v
}

// CloneEntries returns a copy of entries that shares no memory with the input.
func CloneEntries(entries []ReferenceEntry) []ReferenceEntry {
	if entries == nil {
		return nil
	}
	out := slices.Clone(entries)
	for i := range out {
		if out[i].Confidence != nil {
			confidence := *out[i].Confidence
			out[i].Confidence = &confidence
		}
	}
	return out
}

// ContentKey identifies an answer by the exact bytes of its text.
type ContentKey string

// NewContentKey hashes the answer text. Two answers share a key only when their text is
// byte-identical.
func NewContentKey(text string) ContentKey {
	sum := sha256.Sum256([]byte(text))
	return ContentKey(hex.EncodeToString(sum[:]))
}

func (k ContentKey) String() string {
	return string(k)
}

// Result is a ranked reference list computed for one answer content.
type Result struct {
	Key        ContentKey       `json:"key"`
	Entries    []ReferenceEntry `json:"entries"`
	ComputedAt time.Time        `json:"computed_at"`
}

// Status is the lifecycle state of the annotations for one answer.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusLoading  Status = "loading"
	StatusResolved Status = "resolved"
	StatusEmpty    Status = "empty"
	StatusFailed   Status = "failed"
)

// Terminal reports whether no further events follow this status.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusEmpty || s == StatusFailed
}

// EventData carries the reference list of an event.
type EventData struct {
	Annotations []ReferenceEntry `json:"annotations"`
}

// Event is the tagged value streamed to clients while an answer is being annotated.
// Loading and terminal events use the same envelope.
type Event struct {
	Type      string    `json:"type"`
	Status    Status    `json:"status"`
	Data      EventData `json:"data"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent builds an event envelope. A nil entry list is sent as an empty array.
func NewEvent(status Status, entries []ReferenceEntry, at time.Time) Event {
	if entries == nil {
		entries = []ReferenceEntry{}
	}
	return Event{
		Type:      EventType,
		Status:    status,
		Data:      EventData{Annotations: entries},
		Timestamp: at.UTC(),
	}
}
