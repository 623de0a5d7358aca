// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package sqlstore opens the relational databases backing chat history and the
// persistent annotation cache.
package sqlstore

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// DB wraps a connection with a statement builder using the driver's placeholders.
type DB struct {
	*sqlx.DB
	Builder sq.StatementBuilderType
}

// Open connects to dataSource and verifies the connection.
func Open(ctx context.Context, driver, dataSource string) (*DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dataSource)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		// SQLite allows a single writer, and each connection to :memory: is a new database.
		db.SetMaxOpenConns(1)
	}

	return New(db), nil
}

// New wraps an existing connection.
func New(db *sqlx.DB) *DB {
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if db.DriverName() == DriverPostgres {
		builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return &DB{
		DB:      db,
		Builder: builder,
	}
}

// IsPostgres reports whether the connection uses the PostgreSQL driver.
func (db *DB) IsPostgres() bool {
	return db.DriverName() == DriverPostgres
}

// JSONColumnType is the column type used for JSON documents.
func (db *DB) JSONColumnType() string {
	if db.IsPostgres() {
		return "JSONB"
	}
	return "TEXT"
}
