// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package conversations

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mattermost/reference-annotator/annotations"
)

const (
	// AnonymousUserID owns chats saved without an authenticated user.
	AnonymousUserID = "anonymous"

	maxTitleRunes = 100
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrInvalidChat  = errors.New("chat id is required")
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn of a chat. Annotations and RelatedQuestions are set once on the
// assistant message they were generated for.
type Message struct {
	ID               string                        `json:"id"`
	Role             Role                          `json:"role"`
	Content          string                        `json:"content"`
	Timestamp        time.Time                     `json:"timestamp"`
	Annotations      []annotations.ReferenceEntry  `json:"annotations,omitempty"`
	RelatedQuestions []annotations.RelatedQuestion `json:"relatedQuestions,omitempty"`
}

// NewMessage creates a message with a fresh id and the current UTC time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Path      string    `json:"path"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewChat starts a chat titled after its first message.
func NewChat(id, userID string, messages []Message) *Chat {
	if userID == "" {
		userID = AnonymousUserID
	}
	now := time.Now().UTC()
	return &Chat{
		ID:        id,
		UserID:    userID,
		Title:     titleFrom(messages),
		Path:      "/search/" + id,
		Messages:  messages,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// titleFrom uses the first user message, falling back to the first message of any role.
func titleFrom(messages []Message) string {
	var title string
	for _, message := range messages {
		if message.Role == RoleUser {
			title = message.Content
			break
		}
	}
	if title == "" && len(messages) > 0 {
		title = messages[0].Content
	}

	title = strings.Join(strings.Fields(title), " ")
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = string([]rune(title)[:maxTitleRunes-1]) + "…"
	}
	return title
}

// FindMessage returns the index of the message with id, or -1.
func FindMessage(messages []Message, id string) int {
	if id == "" {
		return -1
	}
	for i := range messages {
		if messages[i].ID == id {
			return i
		}
	}
	return -1
}
