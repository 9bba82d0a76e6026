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
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/blocknet/relayer/crypto"
	"github.com/blocknet/relayer/internal/logger"
)

// BootstrapPeer is a single entry of the bootstrap node's /api/peers
// response.
type BootstrapPeer struct {
	URL string `json:"url"`
}

type peersResponse struct {
	OK    bool            `json:"ok"`
	Peers []BootstrapPeer `json:"peers"`
}

// Bootstrap registers this node with bootstrapURL and imports its known
// peer list. bootstrapURL equal to selfURL means no bootstrap peer was
// configured (single-node start) and this is a no-op.
func Bootstrap(ctx context.Context, client *http.Client, bootstrapURL, selfURL string, key *crypto.NodeKey, reg *Registry) {
	bootstrapURL = strings.TrimSuffix(bootstrapURL, "/")
	selfURL = strings.TrimSuffix(selfURL, "/")
	if bootstrapURL == "" || bootstrapURL == selfURL {
		return
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	registerWithBootstrap(ctx, client, bootstrapURL, selfURL, key)
	fetchPeerList(ctx, client, bootstrapURL, selfURL, reg)
}

func registerWithBootstrap(ctx context.Context, client *http.Client, bootstrapURL, selfURL string, key *crypto.NodeKey) {
	ts := time.Now().Unix()
	msg := crypto.RegisterPeerText(selfURL, ts, key.Address)
	sig, err := key.Sign(msg)
	if err != nil {
		logger.Warn("bootstrap: sign registration failed", logger.Error(err))
		return
	}

	body, err := json.Marshal(map[string]interface{}{
		"url":       selfURL,
		"address":   key.Address,
		"timestamp": ts,
		"signature": sig,
	})
	if err != nil {
		logger.Warn("bootstrap: marshal registration failed", logger.Error(err))
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		bootstrapURL+"/api/register_peer", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		logger.Warn("bootstrap: could not reach bootstrap node", logger.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		logger.Info("registered with bootstrap node", logger.String("bootstrap", bootstrapURL))
	} else {
		logger.Warn("bootstrap register failed", logger.Int("status", resp.StatusCode))
	}
}

func fetchPeerList(ctx context.Context, client *http.Client, bootstrapURL, selfURL string, reg *Registry) {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, bootstrapURL+"/api/peers", nil)
	if err != nil {
		return
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Warn("bootstrap: failed to fetch peers", logger.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("bootstrap: failed to fetch peers", logger.Int("status", resp.StatusCode))
		return
	}

	var parsed peersResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		logger.Warn("bootstrap: decode peer list failed", logger.Error(err))
		return
	}

	synced := 0
	for _, p := range parsed.Peers {
		url := strings.TrimSuffix(p.URL, "/")
		if url == "" || url == selfURL {
			continue
		}
		if err := reg.Touch(ctx, url); err != nil {
			continue
		}
		synced++
	}
	logger.Info(fmt.Sprintf("synced %d peers from bootstrap", synced), logger.String("bootstrap", bootstrapURL))
}
