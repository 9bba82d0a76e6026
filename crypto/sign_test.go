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

package crypto

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(priv.PublicKey).Hex()

	t.Run("VerifyValidSignature", func(t *testing.T) {
		text := "hello world"
		sig, err := Sign(priv, text)
		require.NoError(t, err)
		assert.True(t, Verify(addr, text, sig))
	})

	t.Run("VerifyRejectsTamperedText", func(t *testing.T) {
		sig, err := Sign(priv, "original")
		require.NoError(t, err)
		assert.False(t, Verify(addr, "tampered", sig))
	})

	t.Run("VerifyRejectsWrongAddress", func(t *testing.T) {
		other, err := crypto.GenerateKey()
		require.NoError(t, err)
		otherAddr := crypto.PubkeyToAddress(other.PublicKey).Hex()

		sig, err := Sign(priv, "hello")
		require.NoError(t, err)
		assert.False(t, Verify(otherAddr, "hello", sig))
	})

	t.Run("RecoverAddressIsCaseInsensitiveMatch", func(t *testing.T) {
		sig, err := Sign(priv, "hello")
		require.NoError(t, err)

		recovered, err := RecoverAddress("hello", sig)
		require.NoError(t, err)
		assert.True(t, strings.EqualFold(addr, recovered))
	})

	t.Run("RecoverAddressRejectsMalformedSignature", func(t *testing.T) {
		_, err := RecoverAddress("hello", "0xdeadbeef")
		assert.Error(t, err)
	})
}

func TestCanonicalSignedTexts(t *testing.T) {
	t.Run("DeliverMessageText", func(t *testing.T) {
		text := DeliverMessageText("cid123", "0xAAA", "0xBBB", 1700000000)
		assert.Equal(t, "cid123|0xAAA|0xBBB|1700000000", text)
	})

	t.Run("AckMessageText", func(t *testing.T) {
		text := AckMessageText("0xBBB", []int64{1, 2, 3})
		assert.Equal(t, "ack|0xBBB|1,2,3", text)
	})

	t.Run("AckMessageTextEmpty", func(t *testing.T) {
		text := AckMessageText("0xBBB", nil)
		assert.Equal(t, "ack|0xBBB|", text)
	})

	t.Run("RegisterPeerText", func(t *testing.T) {
		text := RegisterPeerText("http://peer:3000", 1700000000, "0xCCC")
		assert.Equal(t, "register|http://peer:3000|1700000000|0xCCC", text)
	})
}
