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

// Package peer implements peer admission, the active-peer registry, and
// the replication client used to fan requests out to other nodes.
package peer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/blocknet/relayer/crypto"
	"github.com/blocknet/relayer/db"
	"github.com/blocknet/relayer/internal/logger"
	"github.com/blocknet/relayer/internal/metrics"
)

var (
	// ErrInvalidURL covers malformed, non-http(s), credentialed, or
	// non-root-path peer URLs.
	ErrInvalidURL = errors.New("invalid peer url")
	// ErrAuthRequired is returned when require_peer_auth is set and the
	// request is missing address/timestamp/signature.
	ErrAuthRequired = errors.New("peer authentication required")
	// ErrStaleTimestamp is returned when the signed timestamp is outside
	// the ±300s replay window.
	ErrStaleTimestamp = errors.New("stale registration timestamp")
	// ErrInvalidSignature is returned when the registration signature
	// does not verify against the claimed address.
	ErrInvalidSignature = errors.New("invalid registration signature")
	// ErrPeerNotAllowed is returned when an allowlist is configured and
	// the claimed address is not on it.
	ErrPeerNotAllowed = errors.New("peer address not allowlisted")
	// ErrLocalPeerNotAllowed is returned when the canonical host is
	// localhost/RFC1918 and allow_local_peers is false.
	ErrLocalPeerNotAllowed = errors.New("local peers not allowed")
)

// Registry tracks known peers in the sqlite store and applies admission
// policy on registration.
type Registry struct {
	store *db.Store

	selfURL        string
	requireAuth    bool
	allowlist      map[string]struct{}
	allowLocal     bool
	staleAfterSecs int64
}

// Config carries the admission policy knobs the registry enforces.
type Config struct {
	SelfURL        string
	RequireAuth    bool
	Allowlist      []string
	AllowLocal     bool
	StaleAfterSecs int64
}

// New constructs a Registry backed by store, applying cfg's admission
// policy to future registrations.
func New(store *db.Store, cfg Config) *Registry {
	allow := make(map[string]struct{}, len(cfg.Allowlist))
	for _, a := range cfg.Allowlist {
		allow[strings.ToLower(a)] = struct{}{}
	}
	return &Registry{
		store:          store,
		selfURL:        canonicalizeBestEffort(cfg.SelfURL),
		requireAuth:    cfg.RequireAuth,
		allowlist:      allow,
		allowLocal:     cfg.AllowLocal,
		staleAfterSecs: cfg.StaleAfterSecs,
	}
}

// RegisterRequest is the inbound payload of /api/register_peer.
type RegisterRequest struct {
	URL       string
	Address   string
	Timestamp int64
	Signature string
}

// Register validates and admits a peer, returning its canonicalized URL.
func (r *Registry) Register(ctx context.Context, req RegisterRequest) (string, error) {
	metrics.GetGlobalCollector().RecordPeerRegistration()

	canon, err := canonicalizeURL(req.URL)
	if err != nil {
		metrics.PeerRegistrations.WithLabelValues("rejected").Inc()
		return "", err
	}

	if r.requireAuth {
		if req.Address == "" || req.Timestamp == 0 || req.Signature == "" {
			metrics.PeerRegistrations.WithLabelValues("rejected").Inc()
			return "", ErrAuthRequired
		}
		now := time.Now().Unix()
		if abs64(now-req.Timestamp) > 300 {
			metrics.PeerRegistrations.WithLabelValues("rejected").Inc()
			return "", ErrStaleTimestamp
		}
		msg := crypto.RegisterPeerText(canon, req.Timestamp, req.Address)
		if !crypto.Verify(req.Address, msg, req.Signature) {
			metrics.PeerRegistrations.WithLabelValues("rejected").Inc()
			return "", ErrInvalidSignature
		}
		if len(r.allowlist) > 0 {
			if _, ok := r.allowlist[strings.ToLower(req.Address)]; !ok {
				metrics.PeerRegistrations.WithLabelValues("rejected").Inc()
				return "", ErrPeerNotAllowed
			}
		}
	}

	if !r.allowLocal && isLocalHost(hostOf(canon)) {
		metrics.PeerRegistrations.WithLabelValues("rejected").Inc()
		return "", ErrLocalPeerNotAllowed
	}

	if err := r.store.UpsertPeer(ctx, canon, time.Now().Unix()); err != nil {
		metrics.PeerRegistrations.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("upsert peer: %w", err)
	}

	metrics.PeerRegistrations.WithLabelValues("accepted").Inc()
	return canon, nil
}

// Seed imports the statically configured peer list, marking each entry
// freshly seen so the first replication and proposer ticks can reach
// them before any heartbeat has run.
func (r *Registry) Seed(ctx context.Context, urls []string) {
	for _, raw := range urls {
		canon, err := canonicalizeURL(raw)
		if err != nil {
			logger.Warn("peer: skipping malformed seed peer", logger.String("url", raw), logger.Error(err))
			continue
		}
		if canon == r.selfURL {
			continue
		}
		if err := r.store.UpsertPeer(ctx, canon, time.Now().Unix()); err != nil {
			logger.Warn("peer: seed peer failed", logger.String("url", canon), logger.Error(err))
		}
	}
}

// ListActive returns peers seen within staleAfterSecs of now, excluding
// self.
func (r *Registry) ListActive(ctx context.Context) ([]db.Peer, error) {
	return r.ListActiveWithin(ctx, r.staleAfterSecs)
}

// ListActiveWithin returns peers seen within staleSeconds of now,
// excluding self; used by the /api/peers?staleSeconds override.
func (r *Registry) ListActiveWithin(ctx context.Context, staleSeconds int64) ([]db.Peer, error) {
	if staleSeconds <= 0 {
		staleSeconds = r.staleAfterSecs
	}
	peers, err := r.store.ListPeers(ctx, true, time.Now().Unix(), staleSeconds)
	if err != nil {
		return nil, err
	}
	metrics.PeersActive.Set(float64(len(peers)))
	return r.excludeSelf(peers), nil
}

// ListAll returns every known peer, excluding self.
func (r *Registry) ListAll(ctx context.Context) ([]db.Peer, error) {
	peers, err := r.store.ListPeers(ctx, false, 0, 0)
	if err != nil {
		return nil, err
	}
	return r.excludeSelf(peers), nil
}

// Touch bumps a peer's last_seen, used by the replication client and
// heartbeat loop after a successful request.
func (r *Registry) Touch(ctx context.Context, peerURL string) error {
	return r.store.UpsertPeer(ctx, peerURL, time.Now().Unix())
}

func (r *Registry) excludeSelf(peers []db.Peer) []db.Peer {
	if r.selfURL == "" {
		return peers
	}
	out := peers[:0]
	for _, p := range peers {
		if p.URL != r.selfURL {
			out = append(out, p)
		}
	}
	return out
}

// canonicalizeURL parses raw and returns "scheme://netloc", rejecting
// embedded credentials, query strings, fragments, and non-root paths.
func canonicalizeURL(raw string) (string, error) {
	if raw == "" || len(raw) > 2048 {
		return "", ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidURL
	}
	if u.Host == "" || u.User != nil {
		return "", ErrInvalidURL
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", ErrInvalidURL
	}
	if u.Path != "" && u.Path != "/" {
		return "", ErrInvalidURL
	}

	return fmt.Sprintf("%s://%s", u.Scheme, u.Host), nil
}

func canonicalizeBestEffort(raw string) string {
	canon, err := canonicalizeURL(raw)
	if err != nil {
		return strings.TrimSuffix(raw, "/")
	}
	return canon
}

func hostOf(canonURL string) string {
	u, err := url.Parse(canonURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// isLocalHost reports whether host is loopback or a private (RFC1918)
// address. The prefix check is coarse on purpose: it gates operator
// configuration, not untrusted input.
func isLocalHost(host string) bool {
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}
	if strings.HasPrefix(host, "10.") || strings.HasPrefix(host, "192.168.") {
		return true
	}
	for i := 16; i <= 31; i++ {
		if strings.HasPrefix(host, fmt.Sprintf("172.%d.", i)) {
			return true
		}
	}
	return false
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
