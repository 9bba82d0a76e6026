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
	"fmt"
)

// Peer is a known relayer node, identified by its canonical origin URL.
type Peer struct {
	URL      string
	LastSeen int64
}

// UpsertPeer records or refreshes a peer's last-seen timestamp.
func (s *Store) UpsertPeer(ctx context.Context, url string, lastSeen int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO peers (url, last_seen) VALUES (?, ?)`, url, lastSeen)
	if err != nil {
		return fmt.Errorf("upsert peer: %w", err)
	}
	return nil
}

// DeleteStalePeers removes peers whose last_seen is older than cutoff,
// keeping the table bounded as the mesh churns. Returns the number of
// rows pruned.
func (s *Store) DeleteStalePeers(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM peers WHERE last_seen IS NOT NULL AND last_seen < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune peers: %w", err)
	}
	return res.RowsAffected()
}

// ListPeers returns every known peer, or only those seen within
// staleSeconds of now when activeOnly is set.
func (s *Store) ListPeers(ctx context.Context, activeOnly bool, now, staleSeconds int64) ([]Peer, error) {
	var (
		rows = `SELECT url, last_seen FROM peers`
		args []interface{}
	)
	if activeOnly {
		rows = `SELECT url, last_seen FROM peers WHERE last_seen IS NOT NULL AND last_seen >= ?`
		args = append(args, now-staleSeconds)
	}

	r, err := s.db.QueryContext(ctx, rows, args...)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	defer r.Close()

	var peers []Peer
	for r.Next() {
		var p Peer
		if err := r.Scan(&p.URL, &p.LastSeen); err != nil {
			return nil, fmt.Errorf("scan peer: %w", err)
		}
		peers = append(peers, p)
	}
	return peers, r.Err()
}
