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
)

func TestRootID(t *testing.T) {
	t.Run("OrderIndependent", func(t *testing.T) {
		assert.Equal(t, RootID("0xAAA", "0xBBB"), RootID("0xBBB", "0xAAA"))
	})

	t.Run("CaseInsensitive", func(t *testing.T) {
		assert.Equal(t, RootID("0xAAA", "0xBBB"), RootID("0xaaa", "0xbbb"))
	})

	t.Run("DifferentPairsDiffer", func(t *testing.T) {
		assert.NotEqual(t, RootID("0xAAA", "0xBBB"), RootID("0xAAA", "0xCCC"))
	})
}

func TestSessionID(t *testing.T) {
	root := RootID("0xAAA", "0xBBB")

	t.Run("StableWithinWindow", func(t *testing.T) {
		assert.Equal(t, SessionID(root, 1000, 3600), SessionID(root, 3599, 3600))
	})

	t.Run("RotatesAcrossWindow", func(t *testing.T) {
		assert.NotEqual(t, SessionID(root, 1000, 3600), SessionID(root, 3601, 3600))
	})

	t.Run("DifferentRootsDiffer", func(t *testing.T) {
		other := RootID("0xAAA", "0xCCC")
		assert.NotEqual(t, SessionID(root, 1000, 3600), SessionID(other, 1000, 3600))
	})
}
