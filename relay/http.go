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

package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/blocknet/relayer/consensus"
	"github.com/blocknet/relayer/db"
	"github.com/blocknet/relayer/internal/logger"
	"github.com/blocknet/relayer/peer"
)

// Server wires the relay Service, peer Registry, and consensus Engine
// to a net/http mux implementing the external HTTP API.
type Server struct {
	svc      *Service
	registry *peer.Registry
	engine   *consensus.Engine
	hub      *Hub
}

// NewServer builds a Server. Tests that never reach /api/proposal or
// /api/commit pass a nil engine; both of those handlers call into the
// engine unconditionally.
func NewServer(svc *Service, registry *peer.Registry, engine *consensus.Engine, hub *Hub) *Server {
	return &Server{svc: svc, registry: registry, engine: engine, hub: hub}
}

// Mux builds the node's complete HTTP route table.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("GET /api/user/{address}", s.handleGetUser)
	mux.HandleFunc("GET /api/users", s.handleListUsers)
	mux.HandleFunc("POST /api/uploadEncrypted", s.handleUpload)
	mux.HandleFunc("POST /api/replicate", s.handleReplicate)
	mux.HandleFunc("POST /api/deliver", s.handleDeliver)
	mux.HandleFunc("POST /api/ack", s.handleAck)
	mux.HandleFunc("GET /api/messages/{address}", s.handleUndelivered)
	mux.HandleFunc("GET /api/fetch/{cid}", s.handleFetch)
	mux.HandleFunc("GET /api/conversation/{rootId}", s.handleConversation)
	mux.HandleFunc("POST /api/register_peer", s.handleRegisterPeer)
	mux.HandleFunc("GET /api/peers", s.handleListPeers)
	mux.HandleFunc("POST /api/proposal", s.handleProposal)
	mux.HandleFunc("POST /api/commit", s.handleCommit)
	mux.HandleFunc("GET /ws/{address}", s.handleWS)

	return mux
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Address, EncPub, SignPub string
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := s.svc.RegisterUser(r.Context(), body.Address, body.EncPub, body.SignPub); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "address": body.Address})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.svc.GetUser(r.Context(), r.PathValue("address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": u.Address, "encPub": u.EncPub, "signPub": u.SignPub,
	})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.ListUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]interface{}, len(users))
	for i, u := range users {
		out[i] = map[string]interface{}{"address": u.Address, "encPub": u.EncPub}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "users": out})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Payload json.RawMessage `json:"payload"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	var payload interface{}
	if err := json.Unmarshal(body.Payload, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid payload"})
		return
	}
	cid, err := s.svc.UploadEncrypted(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "cid": cid})
}

func (s *Server) handleReplicate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CID     string          `json:"cid"`
		Payload json.RawMessage `json:"payload"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	var payload interface{}
	if err := json.Unmarshal(body.Payload, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid payload"})
		return
	}
	if err := s.svc.Replicate(r.Context(), body.CID, payload); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "cid": body.CID})
}

func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CID          string `json:"cid"`
		Sender       string `json:"sender"`
		Recipient    string `json:"recipient"`
		Timestamp    int64  `json:"timestamp"`
		EthSignature string `json:"ethSignature"`
		SessionID    string `json:"sessionId"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	id, err := s.svc.Deliver(r.Context(), DeliverRequest{
		CID: body.CID, Sender: body.Sender, Recipient: body.Recipient,
		Timestamp: body.Timestamp, EthSignature: body.EthSignature, SessionIDHint: body.SessionID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "id": id})
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Recipient    string  `json:"recipient"`
		MessageIDs   []int64 `json:"messageIds"`
		EthSignature string  `json:"ethSignature"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := s.svc.Ack(r.Context(), body.Recipient, body.MessageIDs, body.EthSignature); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "acknowledged": body.MessageIDs})
}

func (s *Server) handleUndelivered(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.svc.Undelivered(r.Context(), r.PathValue("address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messagesToJSON(msgs)})
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	payload, err := s.svc.Fetch(r.Context(), r.PathValue("cid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payload": payload})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	rootID := r.PathValue("rootId")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	var before *int64
	if v := r.URL.Query().Get("before"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			before = &parsed
		}
	}

	msgs, err := s.svc.Conversation(r.Context(), rootID, limit, before)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rootId": rootID, "messages": messagesToJSON(msgs)})
}

func (s *Server) handleRegisterPeer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL       string `json:"url"`
		Address   string `json:"address"`
		Timestamp int64  `json:"timestamp"`
		Signature string `json:"signature"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	canon, err := s.registry.Register(r.Context(), peer.RegisterRequest{
		URL: body.URL, Address: body.Address, Timestamp: body.Timestamp, Signature: body.Signature,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "peer": canon})
}

func (s *Server) handleListPeers(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("activeOnly") != "false"

	var (
		peers []db.Peer
		err   error
	)
	if activeOnly {
		var staleSeconds int64
		if v := r.URL.Query().Get("staleSeconds"); v != "" {
			if parsed, perr := strconv.ParseInt(v, 10, 64); perr == nil {
				staleSeconds = parsed
			}
		}
		peers, err = s.registry.ListActiveWithin(r.Context(), staleSeconds)
	} else {
		peers, err = s.registry.ListAll(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]interface{}, len(peers))
	for i, p := range peers {
		out[i] = map[string]interface{}{"url": p.URL, "last_seen": p.LastSeen}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "peers": out})
}

func (s *Server) handleProposal(w http.ResponseWriter, r *http.Request) {
	var p consensus.Proposal
	if !decodeJSON(w, r, &p) {
		return
	}
	vote := s.engine.Vote(r.Context(), p)
	writeJSON(w, http.StatusOK, vote)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var env consensus.CommitEnvelope
	if !decodeJSON(w, r, &env) {
		return
	}
	if err := s.engine.ReceiveCommit(r.Context(), env); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.Handler(r.PathValue("address"))(w, r)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("relay: encode response failed", logger.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := logger.ErrCodeBadRequest
	switch {
	case errors.Is(err, ErrNotFound):
		code = logger.ErrCodeNotFound
	case errors.Is(err, peer.ErrAuthRequired),
		errors.Is(err, peer.ErrStaleTimestamp),
		errors.Is(err, peer.ErrInvalidSignature):
		code = logger.ErrCodeUnauthorized
	case errors.Is(err, peer.ErrPeerNotAllowed),
		errors.Is(err, peer.ErrLocalPeerNotAllowed):
		code = logger.ErrCodeForbidden
	case errors.Is(err, ErrStorageFull):
		code = logger.ErrCodeInternal
	}

	status := logger.HTTPStatus(code)
	if errors.Is(err, ErrPayloadTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}

	writeJSON(w, status, map[string]interface{}{
		"ok":    false,
		"error": logger.NewRelayError(code, err.Error(), nil),
	})
}

func messagesToJSON(msgs []db.Message) []map[string]interface{} {
	out := make([]map[string]interface{}, len(msgs))
	for i, m := range msgs {
		out[i] = map[string]interface{}{
			"id": m.ID, "cid": m.CID, "sender": m.Sender, "recipient": m.Recipient,
			"timestamp": m.Timestamp, "delivered": m.Delivered,
			"rootId": m.RootID, "sessionId": m.SessionID, "committed": m.Committed,
		}
	}
	return out
}
