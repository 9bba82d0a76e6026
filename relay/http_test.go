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
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/blocknet/relayer/crypto"
	"github.com/blocknet/relayer/db"
	"github.com/blocknet/relayer/peer"
	"github.com/blocknet/relayer/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *crypto.NodeKey) {
	t.Helper()
	dbStore, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbStore.Close() })

	content, err := store.Open(t.TempDir(), 1, 0)
	require.NoError(t, err)

	key, err := crypto.LoadOrCreateNodeKey(filepath.Join(t.TempDir(), "node.key"))
	require.NoError(t, err)

	registry := peer.New(dbStore, peer.Config{AllowLocal: true, StaleAfterSecs: 300})
	client := peer.NewClient(registry, nil)
	hub := NewHub()

	svc := New(dbStore, content, client, hub, 3, 0, 300)
	return NewServer(svc, registry, nil, hub), key
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	return rec
}

func TestHTTPRegisterAndGetUser(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, "POST", "/api/register", map[string]interface{}{
		"address": "0xAAA", "encPub": "enc", "signPub": "sign",
	})
	assert.Equal(t, 200, rec.Code)

	rec = doJSON(t, s, "GET", "/api/user/0xAAA", nil)
	assert.Equal(t, 200, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "enc", resp["encPub"])
}

func TestHTTPGetUserNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, "GET", "/api/user/0xMISSING", nil)
	assert.Equal(t, 404, rec.Code)
}

func TestHTTPUploadAndFetch(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, "POST", "/api/uploadEncrypted", map[string]interface{}{
		"payload": map[string]interface{}{"ciphertext": "xyz"},
	})
	require.Equal(t, 200, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	cid, _ := resp["cid"].(string)
	require.NotEmpty(t, cid)

	rec = doJSON(t, s, "GET", "/api/fetch/"+cid, nil)
	assert.Equal(t, 200, rec.Code)
}

func TestHTTPDeliverAndListMessages(t *testing.T) {
	s, key := newTestServer(t)

	msg := crypto.DeliverMessageText("cid1", key.Address, "0xRECIPIENT", 1000)
	sig, err := key.Sign(msg)
	require.NoError(t, err)

	rec := doJSON(t, s, "POST", "/api/deliver", map[string]interface{}{
		"cid": "cid1", "sender": key.Address, "recipient": "0xRECIPIENT",
		"timestamp": 1000, "ethSignature": sig,
	})
	require.Equal(t, 200, rec.Code)

	rec = doJSON(t, s, "GET", "/api/messages/0xRECIPIENT", nil)
	assert.Equal(t, 200, rec.Code)
}

func TestHTTPDeliverRejectsBadSignature(t *testing.T) {
	s, key := newTestServer(t)
	rec := doJSON(t, s, "POST", "/api/deliver", map[string]interface{}{
		"cid": "cid1", "sender": key.Address, "recipient": "0xRECIPIENT",
		"timestamp": 1000, "ethSignature": "0xbad",
	})
	assert.Equal(t, 400, rec.Code)
}

func TestHTTPRegisterPeerAndListPeers(t *testing.T) {
	s, key := newTestServer(t)

	ts := int64(1700000000)
	canonURL := "http://peer.example.com"
	sig, err := key.Sign(crypto.RegisterPeerText(canonURL, ts, key.Address))
	require.NoError(t, err)

	rec := doJSON(t, s, "POST", "/api/register_peer", map[string]interface{}{
		"url": canonURL, "address": key.Address, "timestamp": ts, "signature": sig,
	})
	assert.Equal(t, 200, rec.Code)

	rec = doJSON(t, s, "GET", "/api/peers", nil)
	assert.Equal(t, 200, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	peers, _ := resp["peers"].([]interface{})
	assert.Len(t, peers, 1)
}
