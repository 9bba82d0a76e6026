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
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("not found")

// User is a registered end-to-end messaging identity.
type User struct {
	Address   string
	EncPub    string
	SignPub   string
	CreatedAt int64
}

// UpsertUser creates or replaces a user's published keys.
func (s *Store) UpsertUser(ctx context.Context, address, encPub, signPub string, createdAt int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO users(address, enc_pub, sign_pub, created_at) VALUES (?,?,?,?)`,
		address, encPub, signPub, createdAt,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user's keys by address.
func (s *Store) GetUser(ctx context.Context, address string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT address, enc_pub, sign_pub FROM users WHERE address = ?`, address)

	var u User
	if err := row.Scan(&u.Address, &u.EncPub, &u.SignPub); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// ListUsers returns every registered user's address and encryption key.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT address, enc_pub FROM users`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Address, &u.EncPub); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
