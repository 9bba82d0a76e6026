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

package consensus

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/blocknet/relayer/crypto"
	"github.com/blocknet/relayer/db"
	"github.com/blocknet/relayer/peer"
	"github.com/blocknet/relayer/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *db.Store, *store.ContentStore, *crypto.NodeKey) {
	t.Helper()
	dbStore, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbStore.Close() })

	content, err := store.Open(t.TempDir(), 1, 0)
	require.NoError(t, err)

	key, err := crypto.LoadOrCreateNodeKey(filepath.Join(t.TempDir(), "node.key"))
	require.NoError(t, err)

	registry := peer.New(dbStore, peer.Config{AllowLocal: true})
	client := peer.NewClient(registry, nil)

	engine := New(dbStore, content, key, client, 0.51)
	return engine, dbStore, content, key
}

func TestVoteRejectsHeadMismatch(t *testing.T) {
	engine, _, _, key := newTestEngine(t)

	p := Proposal{PreviousHash: "not-genesis", MerkleRoot: "x", CIDs: []string{"a"}, Proposer: key.Address, Timestamp: 1}
	v := engine.Vote(context.Background(), p)
	assert.False(t, v.Vote)
	assert.Equal(t, ReasonHeadMismatch, v.Reason)
}

func TestVoteRejectsMerkleMismatch(t *testing.T) {
	engine, _, _, key := newTestEngine(t)

	p := Proposal{PreviousHash: db.GenesisHash, MerkleRoot: "wrong", CIDs: []string{"a"}, Proposer: key.Address, Timestamp: 1}
	v := engine.Vote(context.Background(), p)
	assert.False(t, v.Vote)
	assert.Equal(t, ReasonMerkleMismatch, v.Reason)
}

func TestVoteRejectsInvalidSignature(t *testing.T) {
	engine, _, _, key := newTestEngine(t)

	cids := []string{"a"}
	merkle := db.MerkleRootFromCIDs(cids)
	p := Proposal{PreviousHash: db.GenesisHash, MerkleRoot: merkle, CIDs: cids, Proposer: key.Address, Timestamp: 1, Signature: "0xbad"}
	v := engine.Vote(context.Background(), p)
	assert.False(t, v.Vote)
	assert.Equal(t, ReasonInvalidSig, v.Reason)
}

func TestVoteRejectsNoLocalData(t *testing.T) {
	engine, _, _, key := newTestEngine(t)

	cids := []string{"unseen-cid"}
	merkle := db.MerkleRootFromCIDs(cids)
	tuple, err := CanonicalTuple(db.GenesisHash, merkle, cids, key.Address, 1)
	require.NoError(t, err)
	sig, err := key.Sign(string(tuple))
	require.NoError(t, err)

	p := Proposal{PreviousHash: db.GenesisHash, MerkleRoot: merkle, CIDs: cids, Proposer: key.Address, Timestamp: 1, Signature: sig}
	v := engine.Vote(context.Background(), p)
	assert.False(t, v.Vote)
	assert.Equal(t, ReasonNoLocalData, v.Reason)
}

func TestVoteAcceptsValidProposal(t *testing.T) {
	engine, _, content, key := newTestEngine(t)

	cid, err := content.StoreLocal(map[string]interface{}{"hello": "world"})
	require.NoError(t, err)

	cids := []string{cid}
	merkle := db.MerkleRootFromCIDs(cids)
	tuple, err := CanonicalTuple(db.GenesisHash, merkle, cids, key.Address, 1)
	require.NoError(t, err)
	sig, err := key.Sign(string(tuple))
	require.NoError(t, err)

	p := Proposal{PreviousHash: db.GenesisHash, MerkleRoot: merkle, CIDs: cids, Proposer: key.Address, Timestamp: 1, Signature: sig}
	v := engine.Vote(context.Background(), p)
	assert.True(t, v.Vote)
	assert.Equal(t, 1, v.HaveCount)
}

func TestReceiveCommitAppendsBlockAtGenesis(t *testing.T) {
	engine, dbStore, _, key := newTestEngine(t)

	cids := []string{"a", "b"}
	merkle := db.MerkleRootFromCIDs(cids)
	tuple, err := CanonicalTuple(db.GenesisHash, merkle, cids, key.Address, 1)
	require.NoError(t, err)
	sig, err := key.Sign(string(tuple))
	require.NoError(t, err)

	env := CommitEnvelope{Idx: 1, PreviousHash: db.GenesisHash, MerkleRoot: merkle, CIDs: cids, Proposer: key.Address, Signature: sig, Timestamp: 1}
	require.NoError(t, engine.ReceiveCommit(context.Background(), env))

	head, err := dbStore.LastBlockHash(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, db.GenesisHash, head)
}

func TestReceiveCommitIsIdempotentOnReplay(t *testing.T) {
	engine, dbStore, _, key := newTestEngine(t)

	cids := []string{"a"}
	merkle := db.MerkleRootFromCIDs(cids)
	tuple, err := CanonicalTuple(db.GenesisHash, merkle, cids, key.Address, 1)
	require.NoError(t, err)
	sig, err := key.Sign(string(tuple))
	require.NoError(t, err)

	env := CommitEnvelope{Idx: 1, PreviousHash: db.GenesisHash, MerkleRoot: merkle, CIDs: cids, Proposer: key.Address, Signature: sig, Timestamp: 1}
	require.NoError(t, engine.ReceiveCommit(context.Background(), env))
	headAfterFirst, err := dbStore.LastBlockHash(context.Background())
	require.NoError(t, err)

	// Replay of the same commit: previous_hash no longer matches head, so
	// this must be a silent no-op rather than an error.
	require.NoError(t, engine.ReceiveCommit(context.Background(), env))
	headAfterSecond, err := dbStore.LastBlockHash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, headAfterFirst, headAfterSecond)
}

func TestReceiveCommitRejectsInvalidSignature(t *testing.T) {
	engine, _, _, key := newTestEngine(t)

	cids := []string{"a"}
	merkle := db.MerkleRootFromCIDs(cids)
	env := CommitEnvelope{Idx: 1, PreviousHash: db.GenesisHash, MerkleRoot: merkle, CIDs: cids, Proposer: key.Address, Signature: "0xbad", Timestamp: 1}
	err := engine.ReceiveCommit(context.Background(), env)
	assert.ErrorIs(t, err, errInvalidCommitSignature)
}
