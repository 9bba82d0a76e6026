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

// Package store implements the node's N-way redundant content-addressed
// blob store: every uploaded payload is written under relayer_0..N-1
// directories, keyed by its CID.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blocknet/relayer/crypto"
)

// ErrStorageFull is returned by StoreLocal when every redundant slot
// rejected the write (already present in none, and quota-exhausted in
// all that weren't).
var ErrStorageFull = errors.New("storage full: no slot accepted the payload")

// ErrCIDMismatch is returned when a peer-originated write's declared CID
// does not match the recomputed CID of its payload.
var ErrCIDMismatch = errors.New("cid mismatch")

// ErrNotFound is returned by FetchLocal when no slot holds a decodable
// payload for the given CID.
var ErrNotFound = errors.New("content not found")

// ContentStore manages the redundant on-disk slots under basePath.
type ContentStore struct {
	basePath   string
	redundancy int
	quotaBytes int64
}

// Open creates (if necessary) redundancy slot directories under basePath
// and returns a ready ContentStore.
func Open(basePath string, redundancy int, quotaBytes int64) (*ContentStore, error) {
	if redundancy < 1 {
		redundancy = 1
	}
	cs := &ContentStore{basePath: basePath, redundancy: redundancy, quotaBytes: quotaBytes}
	for i := 0; i < redundancy; i++ {
		if err := os.MkdirAll(cs.slotDir(i), 0755); err != nil {
			return nil, fmt.Errorf("create slot %d: %w", i, err)
		}
	}
	return cs, nil
}

func (cs *ContentStore) slotDir(idx int) string {
	return filepath.Join(cs.basePath, fmt.Sprintf("relayer_%d", idx))
}

func (cs *ContentStore) slotPath(idx int, cid string) string {
	return filepath.Join(cs.slotDir(idx), cid+".json")
}

// StoreLocal computes the CID of payload and writes it to every slot that
// accepts it: a slot that already holds the CID counts as written; a slot
// whose directory would exceed quotaBytes is skipped without failing the
// call. Returns ErrStorageFull only if zero slots accepted the write.
func (cs *ContentStore) StoreLocal(payload interface{}) (string, error) {
	cid, err := crypto.CID(payload)
	if err != nil {
		return "", fmt.Errorf("compute cid: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	accepted := 0
	for i := 0; i < cs.redundancy; i++ {
		path := cs.slotPath(i, cid)
		if _, err := os.Stat(path); err == nil {
			accepted++
			continue
		}

		if cs.quotaBytes > 0 {
			projected, err := dirSize(cs.slotDir(i))
			if err == nil && projected+int64(len(data)) > cs.quotaBytes {
				continue
			}
		}

		if err := writeAtomic(cs.slotDir(i), path, data); err != nil {
			continue
		}
		accepted++
	}

	if accepted == 0 {
		return "", ErrStorageFull
	}
	return cid, nil
}

// FetchLocal returns the first slot's decodable payload whose recomputed
// CID matches cid, or ErrNotFound.
func (cs *ContentStore) FetchLocal(cid string) (json.RawMessage, error) {
	for i := 0; i < cs.redundancy; i++ {
		data, err := os.ReadFile(cs.slotPath(i, cid))
		if err != nil {
			continue
		}

		var generic interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			continue
		}
		recomputed, err := crypto.CID(generic)
		if err != nil || recomputed != cid {
			continue
		}
		return json.RawMessage(data), nil
	}
	return nil, ErrNotFound
}

// StoreToPath persists a peer-originated payload at the given slot index,
// after verifying its declared CID matches the recomputed CID. Used by
// the replication receiver, which always targets slot 0.
func (cs *ContentStore) StoreToPath(cid string, payload interface{}, slotIdx int) error {
	recomputed, err := crypto.CID(payload)
	if err != nil {
		return fmt.Errorf("compute cid: %w", err)
	}
	if recomputed != cid {
		return ErrCIDMismatch
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	return writeAtomic(cs.slotDir(slotIdx), cs.slotPath(slotIdx, cid), data)
}

// writeAtomic writes data to a temp file in dir and renames it into
// place, so concurrent writers of the same CID converge on a complete
// file rather than a torn one.
func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func dirSize(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}
