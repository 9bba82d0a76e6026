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
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// GenesisHash is the chain head hash reported when no block has been
// appended yet: 64 hex zeroes.
var GenesisHash = strings.Repeat("0", 64)

// Block is a committed batch of CIDs.
type Block struct {
	Idx          int64
	PreviousHash string
	MerkleRoot   string
	CIDs         []string
	Proposer     string
	Signature    string
	Timestamp    int64
}

// LastBlockHash returns the hash of the highest-idx block, or the
// genesis value if the chain is empty.
func (s *Store) LastBlockHash(ctx context.Context) (string, error) {
	b, err := s.lastBlock(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return GenesisHash, nil
		}
		return "", err
	}
	return blockHash(b), nil
}

// LastBlockIdx returns the highest committed block index, or 0 if the
// chain is empty.
func (s *Store) LastBlockIdx(ctx context.Context) (int64, error) {
	b, err := s.lastBlock(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return b.Idx, nil
}

func (s *Store) lastBlock(ctx context.Context) (*Block, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT idx, previous_hash, merkle_root, cids, proposer, signature, timestamp
		 FROM blocks ORDER BY idx DESC LIMIT 1`)

	var (
		b       Block
		cidsCSV string
	)
	if err := row.Scan(&b.Idx, &b.PreviousHash, &b.MerkleRoot, &cidsCSV, &b.Proposer, &b.Signature, &b.Timestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("last block: %w", err)
	}
	if cidsCSV != "" {
		b.CIDs = strings.Split(cidsCSV, ",")
	}
	return &b, nil
}

// blockHash is the chain-link digest:
// sha256("{idx}|{previous_hash}|{merkle_root}|{cids_csv}|{proposer}|{timestamp}").
func blockHash(b *Block) string {
	payload := fmt.Sprintf("%d|%s|%s|%s|%s|%d",
		b.Idx, b.PreviousHash, b.MerkleRoot, joinCIDs(b.CIDs), b.Proposer, b.Timestamp)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// MerkleRootFromCIDs computes the weak merkle root of an ordered CID
// list: sha256 of their concatenation.
func MerkleRootFromCIDs(cids []string) string {
	sum := sha256.Sum256([]byte(strings.Join(cids, "")))
	return hex.EncodeToString(sum[:])
}

// AppendBlock appends a new block row under the store's commit mutex,
// after re-validating that previousHash still matches the local head —
// the application-level guard against two goroutines both reading the
// same head before either inserts.
func (s *Store) AppendBlock(ctx context.Context, previousHash, merkleRoot string, cids []string, proposer, signature string, timestamp int64) (*Block, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	head, err := s.LastBlockHash(ctx)
	if err != nil {
		return nil, err
	}
	if head != previousHash {
		return nil, fmt.Errorf("chain head mismatch: proposal previous_hash %q != local head %q", previousHash, head)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO blocks (previous_hash, merkle_root, cids, proposer, signature, timestamp) VALUES (?,?,?,?,?,?)`,
		previousHash, merkleRoot, joinCIDs(cids), proposer, signature, timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("append block: %w", err)
	}
	idx, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("append block: %w", err)
	}

	if len(cids) > 0 {
		if err := s.MarkCommitted(ctx, cids); err != nil {
			return nil, err
		}
	}

	return &Block{
		Idx:          idx,
		PreviousHash: previousHash,
		MerkleRoot:   merkleRoot,
		CIDs:         cids,
		Proposer:     proposer,
		Signature:    signature,
		Timestamp:    timestamp,
	}, nil
}
