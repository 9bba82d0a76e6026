// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package db implements the node's SQLite-backed persistence: users,
// messages, blocks and peers, under a single-writer discipline for the
// block chain.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// Store is the node's persistence handle. All logical operations open
// a statement against the pooled *sql.DB and return; commitMu serializes
// the read-head-then-append sequence for blocks, since sqlite serializes
// writers at the file level but not that higher-level race.
type Store struct {
	db       *sql.DB
	commitMu sync.Mutex
}

// Open opens (creating if necessary) the sqlite database at path in
// WAL mode with NORMAL synchronous durability, and ensures the schema
// exists.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: sqlDB}
	if err := s.migrate(context.Background()); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			address TEXT PRIMARY KEY,
			enc_pub TEXT NOT NULL,
			sign_pub TEXT NOT NULL,
			created_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cid TEXT NOT NULL,
			sender TEXT NOT NULL,
			recipient TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			delivered INTEGER DEFAULT 0,
			root_id TEXT,
			session_id TEXT,
			committed INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS blocks (
			idx INTEGER PRIMARY KEY AUTOINCREMENT,
			previous_hash TEXT,
			merkle_root TEXT,
			cids TEXT,
			proposer TEXT,
			signature TEXT,
			timestamp INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recipient ON messages(recipient)`,
		`CREATE INDEX IF NOT EXISTS idx_rootid ON messages(root_id)`,
		`CREATE INDEX IF NOT EXISTS idx_cid ON messages(cid)`,
		`CREATE INDEX IF NOT EXISTS idx_committed ON messages(committed)`,
		`CREATE TABLE IF NOT EXISTS peers (
			url TEXT PRIMARY KEY,
			last_seen INTEGER
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}

	return s.ensureCommittedColumn(ctx)
}

// ensureCommittedColumn is a safe migration for databases created before
// the committed column existed: it adds the column only if missing.
func (s *Store) ensureCommittedColumn(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `PRAGMA table_info(messages)`)
	if err != nil {
		return fmt.Errorf("inspect messages schema: %w", err)
	}
	defer rows.Close()

	hasCommitted := false
	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &primaryKey); err != nil {
			return fmt.Errorf("scan column info: %w", err)
		}
		if name == "committed" {
			hasCommitted = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if hasCommitted {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `ALTER TABLE messages ADD COLUMN committed INTEGER DEFAULT 0`)
	if err != nil {
		return fmt.Errorf("add committed column: %w", err)
	}
	return nil
}
