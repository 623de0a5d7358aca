// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package conversations

import (
	"context"
	"sync"
	"time"
)

// Store persists chats. Get returns ErrChatNotFound when the chat does not exist or
// belongs to another user.
type Store interface {
	Get(ctx context.Context, chatID, userID string) (*Chat, error)
	Save(ctx context.Context, chat *Chat) error
	EnsureSchema(ctx context.Context) error
}

// MemoryStore keeps chats in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	chats map[string]*Chat
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats: make(map[string]*Chat),
	}
}

func (s *MemoryStore) Get(_ context.Context, chatID, userID string) (*Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[chatID]
	if !ok || chat.UserID != userID {
		return nil, ErrChatNotFound
	}
	return cloneChat(chat), nil
}

// Save inserts or replaces the chat. The creation time of an existing chat is kept.
func (s *MemoryStore) Save(_ context.Context, chat *Chat) error {
	if chat == nil || chat.ID == "" {
		return ErrInvalidChat
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := cloneChat(chat)
	saved.UpdatedAt = time.Now().UTC()
	if existing, ok := s.chats[chat.ID]; ok {
		saved.CreatedAt = existing.CreatedAt
	} else if saved.CreatedAt.IsZero() {
		saved.CreatedAt = saved.UpdatedAt
	}
	s.chats[chat.ID] = saved
	return nil
}

func (s *MemoryStore) EnsureSchema(context.Context) error {
	return nil
}

func cloneChat(chat *Chat) *Chat {
	clone := *chat
	clone.Messages = make([]Message, len(chat.Messages))
	copy(clone.Messages, chat.Messages)
	return &clone
}
