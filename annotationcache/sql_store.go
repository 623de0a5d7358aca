// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package annotationcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mattermost/reference-annotator/annotations"
	"github.com/mattermost/reference-annotator/sqlstore"
)

// SQL schema constants to prevent SQL injection via dynamic construction
const (
	tableName        = "reference_annotations"
	columnKey        = "content_key"
	columnEntries    = "entries"
	columnComputedAt = "computed_at"
	indexComputedAt  = "idx_reference_annotations_computed_at"
)

// SQLStore persists results in a relational database so they are shared between
// instances and survive restarts.
type SQLStore struct {
	db  *sqlstore.DB
	ttl time.Duration
	now func() time.Time
}

type resultRow struct {
	Key        string    `db:"content_key"`
	Entries    []byte    `db:"entries"`
	ComputedAt time.Time `db:"computed_at"`
}

// NewSQLStore creates a store. A zero ttl keeps rows forever.
func NewSQLStore(db *sqlstore.DB, ttl time.Duration) *SQLStore {
	return &SQLStore{
		db:  db,
		ttl: ttl,
		now: time.Now,
	}
}

// EnsureSchema creates the table and index if they do not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		%s TEXT PRIMARY KEY,
		%s %s NOT NULL,
		%s TIMESTAMP NOT NULL
	)`, tableName, columnKey, columnEntries, s.db.JSONColumnType(), columnComputedAt)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create %s table: %w", tableName, err)
	}

	index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (%s)`, indexComputedAt, tableName, columnComputedAt)
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("failed to create %s index: %w", indexComputedAt, err)
	}

	return nil
}

func (s *SQLStore) Get(ctx context.Context, key annotations.ContentKey) (*annotations.Result, bool, error) {
	query, args, err := s.db.Builder.
		Select(columnKey, columnEntries, columnComputedAt).
		From(tableName).
		Where(sq.Eq{columnKey: string(key)}).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("failed to build query: %w", err)
	}

	var row resultRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get annotations: %w", err)
	}

	if s.ttl > 0 && s.now().Sub(row.ComputedAt) > s.ttl {
		return nil, false, nil
	}

	entries := []annotations.ReferenceEntry{}
	if err := json.Unmarshal(row.Entries, &entries); err != nil {
		return nil, false, fmt.Errorf("failed to decode annotations: %w", err)
	}

	return &annotations.Result{
		Key:        annotations.ContentKey(row.Key),
		Entries:    entries,
		ComputedAt: row.ComputedAt.UTC(),
	}, true, nil
}

func (s *SQLStore) Set(ctx context.Context, result *annotations.Result) error {
	entries := result.Entries
	if entries == nil {
		entries = []annotations.ReferenceEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode annotations: %w", err)
	}

	query, args, err := s.db.Builder.
		Insert(tableName).
		Columns(columnKey, columnEntries, columnComputedAt).
		Values(string(result.Key), string(data), result.ComputedAt.UTC()).
		Suffix(fmt.Sprintf("ON CONFLICT (%[1]s) DO UPDATE SET %[2]s = EXCLUDED.%[2]s, %[3]s = EXCLUDED.%[3]s",
			columnKey, columnEntries, columnComputedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save annotations: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key annotations.ContentKey) error {
	query, args, err := s.db.Builder.
		Delete(tableName).
		Where(sq.Eq{columnKey: string(key)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete annotations: %w", err)
	}
	return nil
}

func (s *SQLStore) Len(ctx context.Context) (int, error) {
	query, args, err := s.db.Builder.Select("COUNT(*)").From(tableName).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count: %w", err)
	}

	var count int
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count annotations: %w", err)
	}
	return count, nil
}

// DeleteExpired removes rows older than the store's ttl.
func (s *SQLStore) DeleteExpired(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}

	query, args, err := s.db.Builder.
		Delete(tableName).
		Where(sq.Lt{columnComputedAt: s.now().Add(-s.ttl).UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired annotations: %w", err)
	}
	return res.RowsAffected()
}
