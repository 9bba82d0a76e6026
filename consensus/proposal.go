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

// Package consensus implements the node's round-based batch commit
// protocol: a periodic proposer batches uncommitted message CIDs into a
// block proposal, broadcasts it to every active peer for a vote, and
// commits locally on majority approval, then broadcasts the commit.
package consensus

import (
	"github.com/blocknet/relayer/crypto"
)

// Proposal is the signed block candidate broadcast to every active peer
// and, on commit, persisted as a db.Block.
type Proposal struct {
	PreviousHash string   `json:"previous_hash"`
	MerkleRoot   string   `json:"merkle_root"`
	CIDs         []string `json:"cids"`
	Proposer     string   `json:"proposer"`
	Timestamp    int64    `json:"timestamp"`
	Signature    string   `json:"signature"`
}

// CanonicalTuple is the ordered value signed and verified for a
// proposal or commit: [previous_hash, merkle_root, cids, proposer,
// timestamp], serialized as canonical JSON.
func CanonicalTuple(previousHash, merkleRoot string, cids []string, proposer string, timestamp int64) ([]byte, error) {
	tuple := []interface{}{previousHash, merkleRoot, cids, proposer, timestamp}
	return crypto.CanonicalJSON(tuple)
}

// Vote is a voter's reply to a proposal.
type Vote struct {
	Vote      bool   `json:"vote"`
	Reason    string `json:"reason,omitempty"`
	HaveCount int    `json:"have_count,omitempty"`
}

// Reasons a voter rejects a proposal.
const (
	ReasonHeadMismatch   = "head_mismatch"
	ReasonMerkleMismatch = "merkle_mismatch"
	ReasonInvalidSig     = "invalid_signature"
	ReasonNoLocalData    = "no_local_data"
)

// CommitEnvelope is the payload broadcast to peers after a local commit,
// accepted by the commit receiver (/api/commit).
type CommitEnvelope struct {
	Idx          int64    `json:"idx"`
	PreviousHash string   `json:"previous_hash"`
	MerkleRoot   string   `json:"merkle_root"`
	CIDs         []string `json:"cids"`
	Proposer     string   `json:"proposer"`
	Signature    string   `json:"signature"`
	Timestamp    int64    `json:"timestamp"`
}
