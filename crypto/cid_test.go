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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCID(t *testing.T) {
	t.Run("DeterministicAcrossKeyOrder", func(t *testing.T) {
		a, err := CID(map[string]interface{}{"cid": "x", "sender": "0xAAA", "ts": 1})
		require.NoError(t, err)

		b, err := CID(map[string]interface{}{"ts": 1, "sender": "0xAAA", "cid": "x"})
		require.NoError(t, err)

		assert.Equal(t, a, b)
	})

	t.Run("DifferentPayloadsDifferentCID", func(t *testing.T) {
		a, err := CID(map[string]interface{}{"text": "hello"})
		require.NoError(t, err)

		b, err := CID(map[string]interface{}{"text": "goodbye"})
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
	})

	t.Run("IsLowercaseHexSHA256", func(t *testing.T) {
		id, err := CID(map[string]interface{}{"a": 1})
		require.NoError(t, err)
		assert.Len(t, id, 64)
		assert.Regexp(t, "^[0-9a-f]{64}$", id)
	})

	t.Run("AcceptsRawJSON", func(t *testing.T) {
		a, err := CID([]byte(`{"b":2,"a":1}`))
		require.NoError(t, err)

		b, err := CID(map[string]interface{}{"a": 1, "b": 2})
		require.NoError(t, err)

		assert.Equal(t, a, b)
	})
}

func TestCanonicalJSON_NestedSorting(t *testing.T) {
	canon, err := CanonicalJSON(map[string]interface{}{
		"z": 1,
		"a": map[string]interface{}{"y": 2, "b": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"b":3,"y":2},"z":1}`, string(canon))
}
