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

package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Message is a delivered end-to-end payload's routing record. The
// payload itself lives in the content store, keyed by CID.
type Message struct {
	ID        int64
	CID       string
	Sender    string
	Recipient string
	Timestamp int64
	Delivered bool
	RootID    string
	SessionID string
	Committed bool
}

// InsertMessage records a verified deliver call and returns the new
// row's id. delivered and committed both start false.
func (s *Store) InsertMessage(ctx context.Context, m Message) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (cid, sender, recipient, timestamp, delivered, root_id, session_id, committed)
		 VALUES (?,?,?,?,0,?,?,0)`,
		m.CID, m.Sender, m.Recipient, m.Timestamp, m.RootID, m.SessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return res.LastInsertId()
}

// MarkDelivered sets delivered=1 for the given message ids (used only
// by an explicit ack call, never optimistically on push).
func (s *Store) MarkDelivered(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `UPDATE messages SET delivered = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("mark delivered %d: %w", id, err)
		}
	}
	return nil
}

// MarkCommitted sets committed=1 for every message row whose cid is in
// cids, called once a block containing them lands.
func (s *Store) MarkCommitted(ctx context.Context, cids []string) error {
	for _, cid := range cids {
		if _, err := s.db.ExecContext(ctx, `UPDATE messages SET committed = 1 WHERE cid = ?`, cid); err != nil {
			return fmt.Errorf("mark committed %q: %w", cid, err)
		}
	}
	return nil
}

// UndeliveredFor returns every message row awaiting delivery to address.
func (s *Store) UndeliveredFor(ctx context.Context, address string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cid, sender, recipient, timestamp, delivered, root_id, session_id, committed
		 FROM messages WHERE recipient = ? AND delivered = 0`, address)
	if err != nil {
		return nil, fmt.Errorf("list undelivered: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Conversation returns up to limit messages for rootID, newest first,
// optionally restricted to timestamps strictly before "before".
func (s *Store) Conversation(ctx context.Context, rootID string, limit int, before *int64) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	var (
		rows *sql.Rows
		err  error
	)
	if before == nil {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, cid, sender, recipient, timestamp, delivered, root_id, session_id, committed
			 FROM messages WHERE root_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
			rootID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, cid, sender, recipient, timestamp, delivered, root_id, session_id, committed
			 FROM messages WHERE root_id = ? AND timestamp < ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
			rootID, *before, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.CID, &m.Sender, &m.Recipient, &m.Timestamp, &m.Delivered, &m.RootID, &m.SessionID, &m.Committed); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UncommittedCIDs returns up to limit distinct CIDs of uncommitted
// messages, oldest first, for the consensus proposer to batch.
func (s *Store) UncommittedCIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT cid FROM messages WHERE committed = 0 ORDER BY timestamp ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("uncommitted cids: %w", err)
	}
	defer rows.Close()

	var cids []string
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			return nil, fmt.Errorf("scan cid: %w", err)
		}
		cids = append(cids, cid)
	}
	return cids, rows.Err()
}

// joinCIDs renders a CID slice the way merkle_root and block storage
// expect: a plain comma join, no spaces.
func joinCIDs(cids []string) string {
	return strings.Join(cids, ",")
}
