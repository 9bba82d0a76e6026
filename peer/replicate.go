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

package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/blocknet/relayer/db"
	"github.com/blocknet/relayer/internal/logger"
	"github.com/blocknet/relayer/internal/metrics"
)

// Client fans requests out to active peers: best-effort replication of
// uploaded content, and all-peer broadcast of proposals and commits.
type Client struct {
	registry *Registry
	http     *http.Client
}

// NewClient builds a replication client over registry, using httpClient
// for outbound requests (a default 10s-timeout client is used if nil).
func NewClient(registry *Registry, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{registry: registry, http: httpClient}
}

// PostResult is one peer's response to a fan-out POST.
type PostResult struct {
	Peer       string
	StatusCode int
	Body       json.RawMessage
	Err        error
}

// ReplicateContent sends /api/replicate for {cid, payload} to up to
// K = min(redundancy, |active peers|) peers chosen uniformly at random,
// excluding self. Failures are tolerated; a response under 500 bumps the
// peer's last_seen.
func (c *Client) ReplicateContent(ctx context.Context, redundancy int, cid string, payload interface{}) []PostResult {
	active, err := c.registry.ListActive(ctx)
	if err != nil {
		logger.Warn("replicate: list active peers failed", logger.Error(err))
		return nil
	}
	if len(active) == 0 {
		return nil
	}

	k := redundancy
	if k > len(active) {
		k = len(active)
	}
	if k <= 0 {
		return nil
	}

	selected := samplePeers(active, k)

	body := map[string]interface{}{"cid": cid, "payload": payload}
	start := time.Now()
	results := c.postAllConcurrent(ctx, selected, "/api/replicate", body, 10*time.Second)
	for _, r := range results {
		ok := r.Err == nil && r.StatusCode < 500
		metrics.GetGlobalCollector().RecordReplication(ok, time.Since(start))
		if ok {
			metrics.ReplicationAttempts.WithLabelValues("success").Inc()
			if err := c.registry.Touch(ctx, r.Peer); err != nil {
				logger.Warn("replicate: touch peer failed", logger.String("peer", r.Peer), logger.Error(err))
			}
		} else {
			metrics.ReplicationAttempts.WithLabelValues("failure").Inc()
		}
	}
	return results
}

// BroadcastProposal sends body to every active peer at path (used for
// both /api/proposal and /api/commit), with the given per-request
// timeout. Results are returned in no particular order.
func (c *Client) BroadcastProposal(ctx context.Context, path string, body interface{}, timeout time.Duration) []PostResult {
	active, err := c.registry.ListActive(ctx)
	if err != nil {
		logger.Warn("broadcast: list active peers failed", logger.Error(err))
		return nil
	}
	if len(active) == 0 {
		return nil
	}
	return c.postAllConcurrent(ctx, active, path, body, timeout)
}

func (c *Client) postAllConcurrent(ctx context.Context, peers []db.Peer, path string, body interface{}, timeout time.Duration) []PostResult {
	results := make([]PostResult, len(peers))
	var wg sync.WaitGroup
	for i, p := range peers {
		wg.Add(1)
		go func(i int, peerURL string) {
			defer wg.Done()
			results[i] = c.post(ctx, peerURL, path, body, timeout)
		}(i, p.URL)
	}
	wg.Wait()
	return results
}

func (c *Client) post(ctx context.Context, peerURL, path string, body interface{}, timeout time.Duration) PostResult {
	data, err := json.Marshal(body)
	if err != nil {
		return PostResult{Peer: peerURL, Err: err}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, peerURL+path, bytes.NewReader(data))
	if err != nil {
		return PostResult{Peer: peerURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return PostResult{Peer: peerURL, Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := json.Marshal(map[string]interface{}{})
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err == nil {
		respBody = raw
	}

	return PostResult{Peer: peerURL, StatusCode: resp.StatusCode, Body: respBody}
}

// samplePeers picks k entries from active uniformly at random, without
// replacement.
func samplePeers(active []db.Peer, k int) []db.Peer {
	idx := rand.Perm(len(active))[:k]
	out := make([]db.Peer, k)
	for i, j := range idx {
		out[i] = active[j]
	}
	return out
}
