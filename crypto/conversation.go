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
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// RootID returns the deterministic, order-independent identifier for the
// 1:1 conversation between a and b: sha256 of their lowercased addresses
// sorted and joined with "|".
func RootID(a, b string) string {
	addrs := []string{strings.ToLower(a), strings.ToLower(b)}
	sort.Strings(addrs)
	sum := sha256.Sum256([]byte(addrs[0] + "|" + addrs[1]))
	return hex.EncodeToString(sum[:])
}

// SessionID rotates a conversation's root id by a fixed time window:
// sha256(rootID|windowStart), where windowStart is ts rounded down to
// the nearest multiple of windowSecs.
func SessionID(rootID string, ts int64, windowSecs int64) string {
	if windowSecs <= 0 {
		windowSecs = 1
	}
	windowStart := ts - (ts % windowSecs)
	sum := sha256.Sum256([]byte(rootID + "|" + strconv.FormatInt(windowStart, 10)))
	return hex.EncodeToString(sum[:])
}
