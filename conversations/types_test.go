// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package conversations

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	first := NewMessage(RoleUser, "hello")
	second := NewMessage(RoleUser, "hello")

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, RoleUser, first.Role)
	assert.Equal(t, "hello", first.Content)
	assert.False(t, first.Timestamp.IsZero())
	assert.Equal(t, "UTC", first.Timestamp.Location().String())
}

func TestNewChat(t *testing.T) {
	t.Run("title from first user message", func(t *testing.T) {
		chat := NewChat("abc", "", []Message{
			NewMessage(RoleSystem, "You are helpful."),
			NewMessage(RoleUser, "Who was  Isaac\nNewton?"),
			NewMessage(RoleAssistant, "A physicist."),
		})

		assert.Equal(t, "abc", chat.ID)
		assert.Equal(t, AnonymousUserID, chat.UserID)
		assert.Equal(t, "Who was Isaac Newton?", chat.Title)
		assert.Equal(t, "/search/abc", chat.Path)
		assert.Len(t, chat.Messages, 3)
	})

	t.Run("falls back to first message", func(t *testing.T) {
		chat := NewChat("abc", "user1", []Message{NewMessage(RoleAssistant, "Hi there")})
		assert.Equal(t, "user1", chat.UserID)
		assert.Equal(t, "Hi there", chat.Title)
	})

	t.Run("long titles are truncated", func(t *testing.T) {
		chat := NewChat("abc", "", []Message{NewMessage(RoleUser, strings.Repeat("é", 300))})
		require.Equal(t, maxTitleRunes, utf8.RuneCountInString(chat.Title))
		assert.True(t, strings.HasSuffix(chat.Title, "…"))
	})

	t.Run("no messages", func(t *testing.T) {
		chat := NewChat("abc", "", nil)
		assert.Empty(t, chat.Title)
	})
}

func TestFindMessage(t *testing.T) {
	messages := []Message{{ID: "a"}, {ID: "b"}}

	assert.Equal(t, 1, FindMessage(messages, "b"))
	assert.Equal(t, -1, FindMessage(messages, "c"))
	assert.Equal(t, -1, FindMessage(messages, ""))
	assert.Equal(t, -1, FindMessage(nil, "a"))
}
