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
	"context"
	"net/http"
	"time"

	"github.com/blocknet/relayer/internal/logger"
	"github.com/blocknet/relayer/internal/metrics"
)

// RunHeartbeatLoop polls every known peer's /health endpoint on the
// given interval until ctx is cancelled, bumping last_seen on a 200 and
// pruning peers whose last_seen has fallen past the staleness window.
func (r *Registry) RunHeartbeatLoop(ctx context.Context, interval time.Duration, client *http.Client) {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.heartbeatOnce(ctx, client)
		}
	}
}

func (r *Registry) heartbeatOnce(ctx context.Context, client *http.Client) {
	peers, err := r.ListAll(ctx)
	if err != nil {
		logger.Warn("heartbeat: list peers failed", logger.Error(err))
		return
	}

	for _, p := range peers {
		ok := probeHealth(ctx, client, p.URL)
		metrics.GetGlobalCollector().RecordHeartbeat()
		if ok {
			metrics.PeerHeartbeats.WithLabelValues("ok").Inc()
			if err := r.Touch(ctx, p.URL); err != nil {
				logger.Warn("heartbeat: touch peer failed", logger.String("peer", p.URL), logger.Error(err))
			}
		} else {
			metrics.PeerHeartbeats.WithLabelValues("failed").Inc()
		}
	}

	pruned, err := r.store.DeleteStalePeers(ctx, time.Now().Unix()-r.staleAfterSecs)
	if err != nil {
		logger.Warn("heartbeat: prune stale peers failed", logger.Error(err))
	} else if pruned > 0 {
		logger.Info("heartbeat: pruned stale peers", logger.Int("count", int(pruned)))
	}
}

func probeHealth(ctx context.Context, client *http.Client, peerURL string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, peerURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
