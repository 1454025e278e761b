// Copyright 2021 PairMesh, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vl1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zerotier/vl1core/constant"
	"github.com/zerotier/vl1core/security"
)

func newTestPeer(t *testing.T) *Peer {
	t.Helper()
	a, err := security.GenerateLegacy()
	require.NoError(t, err)
	b, err := security.GenerateLegacy()
	require.NoError(t, err)
	rawKey, err := a.Agree(b)
	require.NoError(t, err)
	return newPeer(b, rawKey)
}

// TestDedupSeenOnce: a packet ID is accepted exactly once; replaying it is
// always rejected, even after the dedup ring has wrapped (§3 invariants).
func TestDedupSeenOnce(t *testing.T) {
	p := newTestPeer(t)

	assert.False(t, p.DeduplicateIncomingPacket(1))
	assert.True(t, p.DeduplicateIncomingPacket(1))

	// Wrap the ring fully; the original id (now evicted) may be reaccepted,
	// but every id actually seen within the still-live window must not be.
	for id := uint64(2); id < 2+constant.DedupWindow; id++ {
		assert.False(t, p.DeduplicateIncomingPacket(id))
	}
	for id := uint64(2); id < 2+constant.DedupWindow; id++ {
		assert.True(t, p.DeduplicateIncomingPacket(id))
	}
}

// TestReplayDedup: resubmitting the exact same packet ID many times in a row
// is rejected every time after the first.
func TestReplayDedup(t *testing.T) {
	p := newTestPeer(t)
	const id = 0xabc
	require.False(t, p.DeduplicateIncomingPacket(id))
	for i := 0; i < 100; i++ {
		assert.True(t, p.DeduplicateIncomingPacket(id))
	}
}
