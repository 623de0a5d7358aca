// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package conversations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mattermost/reference-annotator/sqlstore"
)

// SQL schema constants to prevent SQL injection via dynamic construction
const (
	tableName       = "chats"
	columnID        = "id"
	columnUserID    = "user_id"
	columnTitle     = "title"
	columnPath      = "path"
	columnMessages  = "messages"
	columnCreatedAt = "created_at"
	columnUpdatedAt = "updated_at"
	indexUserID     = "idx_chats_user_id"
)

// SQLStore keeps chats in a relational database with messages stored as JSON.
type SQLStore struct {
	db *sqlstore.DB
}

type chatRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Title     string    `db:"title"`
	Path      string    `db:"path"`
	Messages  []byte    `db:"messages"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func NewSQLStore(db *sqlstore.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		%s TEXT PRIMARY KEY,
		%s TEXT NOT NULL,
		%s TEXT NOT NULL DEFAULT '',
		%s TEXT NOT NULL DEFAULT '',
		%s %s NOT NULL,
		%s TIMESTAMP NOT NULL,
		%s TIMESTAMP NOT NULL
	)`, tableName, columnID, columnUserID, columnTitle, columnPath,
		columnMessages, s.db.JSONColumnType(), columnCreatedAt, columnUpdatedAt)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create %s table: %w", tableName, err)
	}

	index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (%s)`, indexUserID, tableName, columnUserID)
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("failed to create %s index: %w", indexUserID, err)
	}

	return nil
}

func (s *SQLStore) Get(ctx context.Context, chatID, userID string) (*Chat, error) {
	query, args, err := s.db.Builder.
		Select(columnID, columnUserID, columnTitle, columnPath, columnMessages, columnCreatedAt, columnUpdatedAt).
		From(tableName).
		Where(sq.Eq{columnID: chatID, columnUserID: userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var row chatRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}

	messages := []Message{}
	if err := json.Unmarshal(row.Messages, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode chat messages: %w", err)
	}

	return &Chat{
		ID:        row.ID,
		UserID:    row.UserID,
		Title:     row.Title,
		Path:      row.Path,
		Messages:  messages,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

// Save inserts or replaces the chat. The creation time of an existing chat is kept.
func (s *SQLStore) Save(ctx context.Context, chat *Chat) error {
	if chat == nil || chat.ID == "" {
		return ErrInvalidChat
	}

	messages := chat.Messages
	if messages == nil {
		messages = []Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to encode chat messages: %w", err)
	}

	now := time.Now().UTC()
	createdAt := chat.CreatedAt.UTC()
	if chat.CreatedAt.IsZero() {
		createdAt = now
	}

	query, args, err := s.db.Builder.
		Insert(tableName).
		Columns(columnID, columnUserID, columnTitle, columnPath, columnMessages, columnCreatedAt, columnUpdatedAt).
		Values(chat.ID, chat.UserID, chat.Title, chat.Path, string(data), createdAt, now).
		Suffix(fmt.Sprintf("ON CONFLICT (%[1]s) DO UPDATE SET %[2]s = EXCLUDED.%[2]s, %[3]s = EXCLUDED.%[3]s, %[4]s = EXCLUDED.%[4]s",
			columnID, columnMessages, columnTitle, columnUpdatedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save chat: %w", err)
	}
	return nil
}
