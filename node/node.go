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

// Package node is the composition root: it wires configuration,
// persistence, the content store, the peer registry, the relay
// service, the consensus engine, health checks and metrics into one
// running relayer node.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/blocknet/relayer/config"
	"github.com/blocknet/relayer/consensus"
	"github.com/blocknet/relayer/crypto"
	"github.com/blocknet/relayer/db"
	"github.com/blocknet/relayer/health"
	"github.com/blocknet/relayer/internal/lifecycle"
	"github.com/blocknet/relayer/internal/logger"
	"github.com/blocknet/relayer/internal/metrics"
	"github.com/blocknet/relayer/peer"
	"github.com/blocknet/relayer/relay"
	"github.com/blocknet/relayer/store"
)

// Node owns every long-lived collaborator of a running relayer and the
// HTTP servers exposed over them.
type Node struct {
	cfg *config.Config

	db      *db.Store
	content *store.ContentStore
	key     *crypto.NodeKey

	registry    *peer.Registry
	replication *peer.Client
	hub         *relay.Hub
	relaySvc    *relay.Service
	engine      *consensus.Engine

	httpServer    *http.Server
	metricsServer *http.Server
	healthChecker *health.HealthChecker

	supervisor *lifecycle.Supervisor
}

// New assembles a Node from cfg. It opens the database and content
// store, loads or creates the node's signing key, and wires every
// package documented for a running node, but does not yet start
// listeners or background loops — call Start for that.
func New(cfg *config.Config, nodeKeyPath string) (*Node, error) {
	dbStore, err := db.Open(filepath.Join(cfg.RelayerStoragePath, "relayer.db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	contentStore, err := store.Open(cfg.RelayerStoragePath, cfg.Redundancy, cfg.SlotQuotaBytes)
	if err != nil {
		dbStore.Close()
		return nil, fmt.Errorf("open content store: %w", err)
	}

	key, err := crypto.LoadOrCreateNodeKey(nodeKeyPath)
	if err != nil {
		dbStore.Close()
		return nil, fmt.Errorf("load node key: %w", err)
	}

	registry := peer.New(dbStore, peer.Config{
		SelfURL:        cfg.NodeURL,
		RequireAuth:    cfg.RequirePeerAuth,
		Allowlist:      cfg.PeerAllowlist,
		AllowLocal:     cfg.AllowLocalPeers,
		StaleAfterSecs: int64(cfg.PeerStaleAfterSecs),
	})
	replication := peer.NewClient(registry, &http.Client{Timeout: 10 * time.Second})

	hub := relay.NewHub()
	relaySvc := relay.New(dbStore, contentStore, replication, hub,
		cfg.Redundancy, cfg.MaxPayloadBytes, int64(cfg.SessionWindowSecs))

	engine := consensus.New(dbStore, contentStore, key, replication, cfg.MajorityFraction)

	n := &Node{
		cfg: cfg, db: dbStore, content: contentStore, key: key,
		registry: registry, replication: replication, hub: hub,
		relaySvc: relaySvc, engine: engine,
	}
	n.healthChecker = n.buildHealthChecker()
	return n, nil
}

func (n *Node) buildHealthChecker() *health.HealthChecker {
	hc := health.NewHealthChecker(5 * time.Second)
	hc.RegisterCheck("database", health.DatabaseHealthCheck(n.db.Ping))
	hc.RegisterCheck("chain_head", health.ChainHeadHealthCheck(func(ctx context.Context) error {
		_, err := n.db.LastBlockHash(ctx)
		return err
	}))
	hc.RegisterCheck("node_key", health.NodeKeyHealthCheck(func() error {
		if n.key == nil || n.key.Address == "" {
			return fmt.Errorf("node key not loaded")
		}
		return nil
	}))
	return hc
}

// Start launches the node's HTTP API, the metrics server (if enabled),
// and its background tasks (proposer loop, peer heartbeat); peer seeding
// and bootstrap run inline before the background tasks start.
// It returns once everything is up; call Wait to block until shutdown.
func (n *Node) Start(ctx context.Context) error {
	n.supervisor = lifecycle.New(ctx)

	server := relay.NewServer(n.relaySvc, n.registry, n.engine, n.hub)
	mux := server.Mux()
	if n.cfg.Health == nil || n.cfg.Health.Enabled {
		path := "/health"
		if n.cfg.Health != nil && n.cfg.Health.Path != "" {
			path = n.cfg.Health.Path
		}
		mux.HandleFunc("GET "+path, n.handleHealth)
	}

	n.httpServer = &http.Server{Addr: addrFromURL(n.cfg.NodeURL), Handler: mux}
	n.supervisor.Go("http-server", func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() { errCh <- n.httpServer.ListenAndServe() }()
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return n.httpServer.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		}
	})

	if n.cfg.Metrics != nil && n.cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(n.cfg.Metrics.Path, metrics.Handler())
		n.metricsServer = &http.Server{Addr: fmt.Sprintf(":%d", n.cfg.Metrics.Port), Handler: metricsMux}
		n.supervisor.Go("metrics-server", func(ctx context.Context) error {
			errCh := make(chan error, 1)
			go func() { errCh <- n.metricsServer.ListenAndServe() }()
			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return n.metricsServer.Shutdown(shutdownCtx)
			case err := <-errCh:
				if err == http.ErrServerClosed {
					return nil
				}
				return err
			}
		})
	}

	n.registry.Seed(ctx, n.cfg.Peers)

	bootstrapTarget := config.BootstrapNode()
	if bootstrapTarget == "" {
		bootstrapTarget = n.cfg.NodeURL
	}
	if bootstrapTarget != n.cfg.NodeURL {
		probe := &http.Client{Timeout: 5 * time.Second}
		n.healthChecker.RegisterCheck("bootstrap", health.ServiceHealthCheck(bootstrapTarget,
			func(ctx context.Context, target string) error {
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, target+"/health", nil)
				if err != nil {
					return err
				}
				resp, err := probe.Do(req)
				if err != nil {
					return err
				}
				resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					return fmt.Errorf("bootstrap node returned status %d", resp.StatusCode)
				}
				return nil
			}))
	}
	peer.Bootstrap(ctx, &http.Client{Timeout: 5 * time.Second}, bootstrapTarget, n.cfg.NodeURL, n.key, n.registry)

	n.supervisor.Go("consensus-proposer", func(ctx context.Context) error {
		n.engine.RunProposerLoop(ctx, time.Duration(n.cfg.ProposalIntervalSeconds)*time.Second)
		return nil
	})
	n.supervisor.Go("peer-heartbeat", func(ctx context.Context) error {
		n.registry.RunHeartbeatLoop(ctx, time.Duration(n.cfg.PeerHeartbeatIntervalSec)*time.Second, nil)
		return nil
	})

	logger.Info("relayer node started", logger.String("node_url", n.cfg.NodeURL))
	return nil
}

// Wait blocks until every supervised task has returned and every
// in-flight replication fan-out has drained, then closes the database
// handle.
func (n *Node) Wait() error {
	err := n.supervisor.Shutdown()
	n.relaySvc.WaitBackground()
	if closeErr := n.db.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func (n *Node) handleHealth(w http.ResponseWriter, r *http.Request) {
	sys := n.healthChecker.GetSystemHealth(r.Context())
	ok := sys.Status != health.StatusUnhealthy
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	snapshot := metrics.GetGlobalCollector().GetSnapshot()
	sys.Details = map[string]interface{}{
		"node":        map[string]interface{}{"ok": ok, "node": n.key.Address},
		"connections": n.hub.ConnectionCount(),
		"uptime_secs": int64(snapshot.Uptime.Seconds()),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(sys); err != nil {
		logger.Warn("health: encode response failed", logger.Error(err))
	}
}

func addrFromURL(nodeURL string) string {
	u, err := url.Parse(nodeURL)
	if err != nil || u.Port() == "" {
		return ":3000"
	}
	return ":" + u.Port()
}
