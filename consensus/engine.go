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
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/blocknet/relayer/crypto"
	"github.com/blocknet/relayer/db"
	"github.com/blocknet/relayer/internal/logger"
	"github.com/blocknet/relayer/internal/metrics"
	"github.com/blocknet/relayer/peer"
	"github.com/blocknet/relayer/store"
)

// errInvalidCommitSignature is returned by ReceiveCommit when the
// proposer's signature does not verify over the canonical commit tuple.
var errInvalidCommitSignature = errors.New("consensus: invalid commit signature")

const (
	proposalScanLimit  = 200
	proposalBatchLimit = 20
	proposalTimeout    = 15 * time.Second
)

// Engine runs the proposer loop and answers peer votes and commits.
type Engine struct {
	store            *db.Store
	content          *store.ContentStore
	key              *crypto.NodeKey
	replication      *peer.Client
	majorityFraction float64
}

// New builds a consensus Engine over store, signing proposals with key
// and fanning them out via replication. content is consulted to decide
// whether this node holds at least one CID in a proposal's batch.
func New(dbStore *db.Store, content *store.ContentStore, key *crypto.NodeKey, replication *peer.Client, majorityFraction float64) *Engine {
	if majorityFraction <= 0 {
		majorityFraction = 0.51
	}
	return &Engine{store: dbStore, content: content, key: key, replication: replication, majorityFraction: majorityFraction}
}

// RunProposerLoop starts a proposer on the given interval until ctx is
// cancelled.
func (e *Engine) RunProposerLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.proposeOnce(ctx)
		}
	}
}

func (e *Engine) proposeOnce(ctx context.Context) {
	start := time.Now()

	cids, err := e.store.UncommittedCIDs(ctx, proposalScanLimit)
	if err != nil {
		logger.Warn("consensus: scan uncommitted cids failed", logger.Error(err))
		return
	}
	if len(cids) == 0 {
		return
	}
	if len(cids) > proposalBatchLimit {
		cids = cids[:proposalBatchLimit]
	}

	previousHash, err := e.store.LastBlockHash(ctx)
	if err != nil {
		logger.Warn("consensus: read chain head failed", logger.Error(err))
		return
	}
	merkleRoot := db.MerkleRootFromCIDs(cids)
	timestamp := time.Now().Unix()

	tuple, err := CanonicalTuple(previousHash, merkleRoot, cids, e.key.Address, timestamp)
	if err != nil {
		logger.Warn("consensus: canonicalize proposal failed", logger.Error(err))
		return
	}
	sig, err := e.key.Sign(string(tuple))
	if err != nil {
		logger.Warn("consensus: sign proposal failed", logger.Error(err))
		return
	}

	proposal := Proposal{
		PreviousHash: previousHash,
		MerkleRoot:   merkleRoot,
		CIDs:         cids,
		Proposer:     e.key.Address,
		Timestamp:    timestamp,
		Signature:    sig,
	}

	metrics.ProposalsStarted.Inc()

	results := e.replication.BroadcastProposal(ctx, "/api/proposal", proposal, proposalTimeout)

	yes := 1 // self-vote
	for _, r := range results {
		if r.Err != nil || r.StatusCode != 200 {
			continue
		}
		var v Vote
		if err := json.Unmarshal(r.Body, &v); err != nil {
			continue
		}
		if v.Vote {
			yes++
		}
	}

	activePeers := len(results)
	majorityNeeded := int(math.Floor(float64(max(1, activePeers))*e.majorityFraction)) + 1

	metrics.ProposalRoundDuration.Observe(time.Since(start).Seconds())
	metrics.GetGlobalCollector().RecordProposal(time.Since(start))

	if yes < majorityNeeded {
		logger.Info("consensus: proposal did not reach majority",
			logger.Int("yes", yes), logger.Int("needed", majorityNeeded))
		return
	}

	block, err := e.store.AppendBlock(ctx, previousHash, merkleRoot, cids, e.key.Address, sig, timestamp)
	if err != nil {
		logger.Warn("consensus: commit failed, head race, next tick re-batches", logger.Error(err))
		return
	}

	metrics.CommitsApplied.WithLabelValues("proposer").Inc()
	metrics.ChainHeight.Set(float64(block.Idx))
	metrics.GetGlobalCollector().RecordCommit()

	envelope := CommitEnvelope{
		Idx:          block.Idx,
		PreviousHash: previousHash,
		MerkleRoot:   merkleRoot,
		CIDs:         cids,
		Proposer:     e.key.Address,
		Signature:    sig,
		Timestamp:    timestamp,
	}
	e.replication.BroadcastProposal(ctx, "/api/commit", envelope, proposalTimeout)
}

// Vote evaluates an incoming proposal from a peer proposer and returns
// this node's vote.
func (e *Engine) Vote(ctx context.Context, p Proposal) Vote {
	head, err := e.store.LastBlockHash(ctx)
	if err != nil {
		return Vote{Vote: false, Reason: "internal_error"}
	}
	if head != p.PreviousHash {
		metrics.VotesCast.WithLabelValues("reject").Inc()
		return Vote{Vote: false, Reason: ReasonHeadMismatch}
	}

	if db.MerkleRootFromCIDs(p.CIDs) != p.MerkleRoot {
		metrics.VotesCast.WithLabelValues("reject").Inc()
		return Vote{Vote: false, Reason: ReasonMerkleMismatch}
	}

	tuple, err := CanonicalTuple(p.PreviousHash, p.MerkleRoot, p.CIDs, p.Proposer, p.Timestamp)
	if err != nil || !crypto.Verify(p.Proposer, string(tuple), p.Signature) {
		metrics.VotesCast.WithLabelValues("reject").Inc()
		return Vote{Vote: false, Reason: ReasonInvalidSig}
	}

	haveCount := 0
	for _, cid := range p.CIDs {
		if e.hasCID(ctx, cid) {
			haveCount++
		}
	}
	if haveCount == 0 {
		metrics.VotesCast.WithLabelValues("reject").Inc()
		return Vote{Vote: false, Reason: ReasonNoLocalData}
	}

	metrics.VotesCast.WithLabelValues("accept").Inc()
	return Vote{Vote: true, HaveCount: haveCount}
}

func (e *Engine) hasCID(_ context.Context, cid string) bool {
	_, err := e.content.FetchLocal(cid)
	return err == nil
}

// ReceiveCommit applies a commit broadcast from a peer proposer. It is
// idempotent: a block already present at the given idx, or a head that
// has already advanced past it, is a no-op.
func (e *Engine) ReceiveCommit(ctx context.Context, env CommitEnvelope) error {
	tuple, err := CanonicalTuple(env.PreviousHash, env.MerkleRoot, env.CIDs, env.Proposer, env.Timestamp)
	if err != nil {
		return err
	}
	if !crypto.Verify(env.Proposer, string(tuple), env.Signature) {
		return errInvalidCommitSignature
	}

	head, err := e.store.LastBlockHash(ctx)
	if err != nil {
		return err
	}
	localIdx, err := e.store.LastBlockIdx(ctx)
	if err != nil {
		return err
	}

	if head != env.PreviousHash || env.Idx != localIdx+1 {
		// Already applied, or this node's head is not the envelope's
		// parent (an earlier commit was missed). The broadcast is
		// dropped either way; missed blocks are not fetched from peers.
		return nil
	}

	block, err := e.store.AppendBlock(ctx, env.PreviousHash, env.MerkleRoot, env.CIDs, env.Proposer, env.Signature, env.Timestamp)
	if err != nil {
		return nil
	}

	metrics.CommitsApplied.WithLabelValues("follower").Inc()
	metrics.ChainHeight.Set(float64(block.Idx))
	metrics.GetGlobalCollector().RecordCommit()
	return nil
}
