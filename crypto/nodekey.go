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
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// NodeKey is the node's long-lived identity: a secp256k1 key whose
// address signs proposals (reused in commit broadcasts) and
// peer-registration envelopes.
type NodeKey struct {
	Private *ecdsa.PrivateKey
	Address string
}

// LoadOrCreateNodeKey reads the hex-encoded private key at path, or
// generates and persists a fresh one if the file does not exist yet.
func LoadOrCreateNodeKey(path string) (*NodeKey, error) {
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		return nodeKeyFromHex(strings.TrimSpace(string(raw)))
	case os.IsNotExist(err):
		return generateNodeKey(path)
	default:
		return nil, fmt.Errorf("load node key: %w", err)
	}
}

func generateNodeKey(path string) (*NodeKey, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate node key: %w", err)
	}

	hexKey := hex.EncodeToString(crypto.FromECDSA(priv))
	if err := os.WriteFile(path, []byte(hexKey), 0o600); err != nil {
		return nil, fmt.Errorf("persist node key: %w", err)
	}

	return &NodeKey{
		Private: priv,
		Address: crypto.PubkeyToAddress(priv.PublicKey).Hex(),
	}, nil
}

func nodeKeyFromHex(hexKey string) (*NodeKey, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	priv, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse node key: %w", err)
	}
	return &NodeKey{
		Private: priv,
		Address: crypto.PubkeyToAddress(priv.PublicKey).Hex(),
	}, nil
}

// Sign signs text's personal_sign envelope with the node's own key.
func (k *NodeKey) Sign(text string) (string, error) {
	return Sign(k.Private, text)
}
