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

type stubPusher struct {
	pushed bool
	online bool
}

func (p *stubPusher) Push(address string, event interface{}) bool {
	p.pushed = true
	return p.online
}

func newTestService(t *testing.T, pusher Pusher) (*Service, *crypto.NodeKey) {
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

	svc := New(dbStore, content, client, pusher, 3, 0, 300)
	return svc, key
}

func TestRegisterAndGetUser(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.RegisterUser(ctx, "0xAAA", "enc-pub", "sign-pub"))

	u, err := svc.GetUser(ctx, "0xAAA")
	require.NoError(t, err)
	assert.Equal(t, "enc-pub", u.EncPub)
}

func TestGetUserNotFound(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.GetUser(context.Background(), "0xMISSING")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUploadAndFetchEncrypted(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	cid, err := svc.UploadEncrypted(ctx, map[string]interface{}{"ciphertext": "abc"})
	require.NoError(t, err)
	require.NotEmpty(t, cid)

	payload, err := svc.Fetch(ctx, cid)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "ciphertext")
}

func TestFetchNotFound(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.Fetch(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUploadRejectsOversizedPayload(t *testing.T) {
	dbStore, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbStore.Close() })
	content, err := store.Open(t.TempDir(), 1, 0)
	require.NoError(t, err)
	registry := peer.New(dbStore, peer.Config{AllowLocal: true})
	client := peer.NewClient(registry, nil)

	svc := New(dbStore, content, client, nil, 3, 8, 300)
	_, err = svc.UploadEncrypted(context.Background(), map[string]interface{}{"ciphertext": "this is definitely too long"})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestDeliverVerifiesSignatureAndPushes(t *testing.T) {
	pusher := &stubPusher{online: true}
	svc, key := newTestService(t, pusher)
	ctx := context.Background()

	msg := crypto.DeliverMessageText("cid123", key.Address, "0xRECIPIENT", 1000)
	sig, err := key.Sign(msg)
	require.NoError(t, err)

	id, err := svc.Deliver(ctx, DeliverRequest{
		CID: "cid123", Sender: key.Address, Recipient: "0xRECIPIENT",
		Timestamp: 1000, EthSignature: sig,
	})
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))
	assert.True(t, pusher.pushed)

	undelivered, err := svc.Undelivered(ctx, "0xRECIPIENT")
	require.NoError(t, err)
	require.Len(t, undelivered, 1)
	assert.Equal(t, "cid123", undelivered[0].CID)
}

func TestDeliverRejectsBadSignature(t *testing.T) {
	svc, key := newTestService(t, nil)
	_, err := svc.Deliver(context.Background(), DeliverRequest{
		CID: "cid123", Sender: key.Address, Recipient: "0xRECIPIENT",
		Timestamp: 1000, EthSignature: "0xbad",
	})
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestDeliverRejectsMissingFields(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.Deliver(context.Background(), DeliverRequest{CID: "cid123"})
	assert.ErrorIs(t, err, ErrMissingFields)
}

func TestAckMarksDelivered(t *testing.T) {
	svc, key := newTestService(t, nil)
	ctx := context.Background()

	msg := crypto.DeliverMessageText("cid1", key.Address, "0xRECIPIENT", 1000)
	sig, err := key.Sign(msg)
	require.NoError(t, err)
	id, err := svc.Deliver(ctx, DeliverRequest{
		CID: "cid1", Sender: key.Address, Recipient: "0xRECIPIENT",
		Timestamp: 1000, EthSignature: sig,
	})
	require.NoError(t, err)

	recipientKey, err := crypto.LoadOrCreateNodeKey(filepath.Join(t.TempDir(), "recipient.key"))
	require.NoError(t, err)
	ackMsg := crypto.AckMessageText(recipientKey.Address, []int64{id})
	ackSig, err := recipientKey.Sign(ackMsg)
	require.NoError(t, err)

	err = svc.Ack(ctx, recipientKey.Address, []int64{id}, ackSig)
	require.NoError(t, err)

	undelivered, err := svc.Undelivered(ctx, "0xRECIPIENT")
	require.NoError(t, err)
	assert.Empty(t, undelivered)
}

func TestConversationClampsLimit(t *testing.T) {
	svc, _ := newTestService(t, nil)
	msgs, err := svc.Conversation(context.Background(), "some-root", 10000, nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
