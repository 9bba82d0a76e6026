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

// Package relay implements the node's end-to-end message relay service:
// user registration, encrypted payload upload/replication, signed
// delivery and acknowledgement, conversation history, and WebSocket
// push to online recipients.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blocknet/relayer/crypto"
	"github.com/blocknet/relayer/db"
	"github.com/blocknet/relayer/internal/metrics"
	"github.com/blocknet/relayer/peer"
	"github.com/blocknet/relayer/store"
)

// Errors returned by Service operations, mapped to HTTP status by the
// transport layer.
var (
	ErrMissingFields     = errors.New("missing required fields")
	ErrSignatureMismatch = errors.New("signature does not verify")
	ErrPayloadTooLarge   = errors.New("payload exceeds maximum size")
	ErrCIDMismatch       = store.ErrCIDMismatch
	ErrStorageFull       = store.ErrStorageFull
	ErrNotFound          = errors.New("not found")
)

// Pusher delivers a push event to an online recipient; implemented by
// the WebSocket hub so Service stays transport-agnostic.
type Pusher interface {
	Push(address string, event interface{}) bool
}

// Service implements the relay operations over a persistence store, a
// redundant content store, and a replication client.
type Service struct {
	db              *db.Store
	content         *store.ContentStore
	replication     *peer.Client
	pusher          Pusher
	redundancy      int
	maxPayloadBytes int64
	sessionWindow   int64

	bg sync.WaitGroup
}

// New builds a Service wired to its collaborators.
func New(dbStore *db.Store, content *store.ContentStore, replication *peer.Client, pusher Pusher, redundancy int, maxPayloadBytes int64, sessionWindowSecs int64) *Service {
	return &Service{
		db:              dbStore,
		content:         content,
		replication:     replication,
		pusher:          pusher,
		redundancy:      redundancy,
		maxPayloadBytes: maxPayloadBytes,
		sessionWindow:   sessionWindowSecs,
	}
}

// RegisterUser upserts a user's published encryption/signing keys.
func (s *Service) RegisterUser(ctx context.Context, address, encPub, signPub string) error {
	if address == "" || encPub == "" || signPub == "" {
		return ErrMissingFields
	}
	return s.db.UpsertUser(ctx, address, encPub, signPub, time.Now().Unix())
}

// GetUser returns a registered user's keys.
func (s *Service) GetUser(ctx context.Context, address string) (*db.User, error) {
	u, err := s.db.GetUser(ctx, address)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	return u, err
}

// ListUsers returns every registered user.
func (s *Service) ListUsers(ctx context.Context) ([]db.User, error) {
	return s.db.ListUsers(ctx)
}

// UploadEncrypted stores payload locally under a fresh CID, triggers a
// best-effort background replication fan-out, and returns the CID.
func (s *Service) UploadEncrypted(ctx context.Context, payload interface{}) (string, error) {
	canon, err := crypto.CanonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	if s.maxPayloadBytes > 0 && int64(len(canon)) > s.maxPayloadBytes {
		return "", ErrPayloadTooLarge
	}

	start := time.Now()
	cid, err := s.content.StoreLocal(payload)
	if err != nil {
		return "", err
	}
	metrics.PayloadSize.Observe(float64(len(canon)))
	metrics.MessageProcessingDuration.WithLabelValues("upload").Observe(time.Since(start).Seconds())
	metrics.GetGlobalCollector().RecordUpload(time.Since(start))

	// Replication is best-effort and must not block the caller on peer
	// latency. It is detached from the request's cancellation but tracked
	// in bg, so WaitBackground can drain it at shutdown.
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		s.replication.ReplicateContent(context.WithoutCancel(ctx), s.redundancy, cid, payload)
	}()

	return cid, nil
}

// WaitBackground blocks until every in-flight replication fan-out has
// finished; called once at node shutdown.
func (s *Service) WaitBackground() {
	s.bg.Wait()
}

// Replicate accepts a peer-originated {cid, payload}, verifying the
// declared CID before persisting to slot 0.
func (s *Service) Replicate(ctx context.Context, cid string, payload interface{}) error {
	return s.content.StoreToPath(cid, payload, 0)
}

// DeliverRequest is the inbound payload of /api/deliver.
type DeliverRequest struct {
	CID           string
	Sender        string
	Recipient     string
	Timestamp     int64
	EthSignature  string
	SessionIDHint string
}

// Deliver verifies the sender's signature, inserts a message row with
// derived conversation identifiers, and fires a best-effort WebSocket
// push if the recipient is online. Delivered is never set optimistically
// here — only Ack sets it.
func (s *Service) Deliver(ctx context.Context, req DeliverRequest) (int64, error) {
	if req.CID == "" || req.Sender == "" || req.Recipient == "" || req.Timestamp == 0 || req.EthSignature == "" {
		return 0, ErrMissingFields
	}

	start := time.Now()
	msg := crypto.DeliverMessageText(req.CID, req.Sender, req.Recipient, req.Timestamp)
	if !crypto.Verify(req.Sender, msg, req.EthSignature) {
		metrics.MessagesProcessed.WithLabelValues("deliver", "failure").Inc()
		return 0, ErrSignatureMismatch
	}

	rootID := crypto.RootID(req.Sender, req.Recipient)
	sessionID := req.SessionIDHint
	if sessionID == "" {
		sessionID = crypto.SessionID(rootID, req.Timestamp, s.sessionWindow)
	}

	id, err := s.db.InsertMessage(ctx, db.Message{
		CID: req.CID, Sender: req.Sender, Recipient: req.Recipient,
		Timestamp: req.Timestamp, RootID: rootID, SessionID: sessionID,
	})
	if err != nil {
		metrics.MessagesProcessed.WithLabelValues("deliver", "failure").Inc()
		return 0, err
	}

	metrics.MessagesProcessed.WithLabelValues("deliver", "success").Inc()
	metrics.MessageProcessingDuration.WithLabelValues("deliver").Observe(time.Since(start).Seconds())
	metrics.GetGlobalCollector().RecordDeliver(time.Since(start))

	if s.pusher != nil {
		event := map[string]interface{}{
			"event": "new_message", "cid": req.CID, "sender": req.Sender,
			"recipient": req.Recipient, "timestamp": req.Timestamp,
			"rootId": rootID, "sessionId": sessionID, "id": id,
		}
		if s.pusher.Push(req.Recipient, event) {
			metrics.MessagesPushed.WithLabelValues("sent").Inc()
		} else {
			metrics.MessagesPushed.WithLabelValues("offline").Inc()
		}
	}

	return id, nil
}

// Ack verifies the recipient's signature over the id list and marks
// those messages delivered.
func (s *Service) Ack(ctx context.Context, recipient string, ids []int64, ethSignature string) error {
	if recipient == "" || len(ids) == 0 || ethSignature == "" {
		return ErrMissingFields
	}

	msg := crypto.AckMessageText(recipient, ids)
	if !crypto.Verify(recipient, msg, ethSignature) {
		metrics.MessagesProcessed.WithLabelValues("ack", "failure").Inc()
		return ErrSignatureMismatch
	}

	if err := s.db.MarkDelivered(ctx, ids); err != nil {
		metrics.MessagesProcessed.WithLabelValues("ack", "failure").Inc()
		return err
	}
	metrics.MessagesProcessed.WithLabelValues("ack", "success").Inc()
	metrics.GetGlobalCollector().RecordAck()
	return nil
}

// Undelivered returns every message awaiting delivery to address.
func (s *Service) Undelivered(ctx context.Context, address string) ([]db.Message, error) {
	return s.db.UndeliveredFor(ctx, address)
}

// Fetch returns the raw JSON payload for cid.
func (s *Service) Fetch(ctx context.Context, cid string) (json.RawMessage, error) {
	payload, err := s.content.FetchLocal(cid)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return payload, err
}

// Conversation returns up to limit messages for rootID, clamped to
// [1,500], newest first.
func (s *Service) Conversation(ctx context.Context, rootID string, limit int, before *int64) ([]db.Message, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}
	return s.db.Conversation(ctx, rootID, limit, before)
}
