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

// Package crypto implements the node's signing, content-addressing, and
// conversation-identifier primitives.
package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/blocknet/relayer/internal/metrics"
)

// personalSignEnvelope builds the "Ethereum personal_sign" hash of text:
// keccak256("\x19Ethereum Signed Message:\n" || len(text) || text).
func personalSignEnvelope(text string) []byte {
	msg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(text), text)
	return crypto.Keccak256([]byte(msg))
}

// Sign produces a 65-byte (r,s,v) recoverable signature over text's
// personal_sign envelope, hex-encoded with a 0x prefix.
func Sign(priv *ecdsa.PrivateKey, text string) (string, error) {
	start := time.Now()
	metrics.CryptoOperations.WithLabelValues("sign").Inc()

	hash := personalSignEnvelope(text)
	sig, err := crypto.Sign(hash, priv)

	metrics.CryptoOperationDuration.WithLabelValues("sign").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("sign").Inc()
		return "", fmt.Errorf("sign: %w", err)
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// Verify recovers the address behind sig over text's personal_sign
// envelope and compares it case-insensitively to claimedAddr.
func Verify(claimedAddr, text, sig string) bool {
	start := time.Now()
	metrics.CryptoOperations.WithLabelValues("verify").Inc()

	addr, err := RecoverAddress(text, sig)

	metrics.CryptoOperationDuration.WithLabelValues("verify").Observe(time.Since(start).Seconds())
	if err != nil || !strings.EqualFold(addr, claimedAddr) {
		metrics.CryptoErrors.WithLabelValues("verify").Inc()
		return false
	}
	return true
}

// RecoverAddress recovers the hex address that produced sig over text's
// personal_sign envelope.
func RecoverAddress(text, sig string) (string, error) {
	sigBytes, err := decodeSignature(sig)
	if err != nil {
		return "", err
	}
	if len(sigBytes) != 65 {
		return "", fmt.Errorf("recover address: signature must be 65 bytes, got %d", len(sigBytes))
	}

	// go-ethereum's SigToPub expects the recovery id in the last byte as
	// 0 or 1; personal_sign signatures commonly carry 27/28.
	normalized := make([]byte, 65)
	copy(normalized, sigBytes)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	hash := personalSignEnvelope(text)
	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return "", fmt.Errorf("recover address: %w", err)
	}

	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

func decodeSignature(sig string) ([]byte, error) {
	s := strings.TrimPrefix(sig, "0x")
	s = strings.TrimPrefix(s, "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	return b, nil
}

// DeliverMessageText is the canonical string signed by a sender's
// deliver call: "{cid}|{sender}|{recipient}|{timestamp}".
func DeliverMessageText(cid, sender, recipient string, timestamp int64) string {
	return fmt.Sprintf("%s|%s|%s|%d", cid, sender, recipient, timestamp)
}

// AckMessageText is the canonical string signed by a recipient's ack
// call: "ack|{recipient}|{id1,id2,...}".
func AckMessageText(recipient string, ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("ack|%s|%s", recipient, strings.Join(parts, ","))
}

// RegisterPeerText is the canonical string signed during signed peer
// admission: "register|{canonical_url}|{ts}|{address}".
func RegisterPeerText(canonicalURL string, ts int64, address string) string {
	return fmt.Sprintf("register|%s|%d|%s", canonicalURL, ts, address)
}
