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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateNodeKey(t *testing.T) {
	t.Run("CreatesAndPersistsOnFirstLoad", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "node_key.hex")

		key, err := LoadOrCreateNodeKey(path)
		require.NoError(t, err)
		assert.NotEmpty(t, key.Address)
		assert.FileExists(t, path)
	})

	t.Run("ReloadsSameKeyFromDisk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "node_key.hex")

		first, err := LoadOrCreateNodeKey(path)
		require.NoError(t, err)

		second, err := LoadOrCreateNodeKey(path)
		require.NoError(t, err)

		assert.Equal(t, first.Address, second.Address)
	})

	t.Run("SignRoundTripsThroughVerify", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "node_key.hex")
		key, err := LoadOrCreateNodeKey(path)
		require.NoError(t, err)

		sig, err := key.Sign("ping")
		require.NoError(t, err)
		assert.True(t, Verify(key.Address, "ping", sig))
	})
}
