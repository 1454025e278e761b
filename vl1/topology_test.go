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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zerotier/vl1core/constant"
	"github.com/zerotier/vl1core/security"
	"github.com/zerotier/vl1core/store"
	"inet.af/netaddr"
)

type fakeTrustStore struct {
	roots []*security.Identity
}

func (f *fakeTrustStore) Roots() []*security.Identity { return f.roots }

// TestTrustStoreChangedRebuildsRoots: calling TrustStoreChanged creates a
// Peer for every reported root identity and exposes it via Root()/AllPeers
// (§4.5 Open Question decision: roots are rebuilt wholesale on every call).
func TestTrustStoreChangedRebuildsRoots(t *testing.T) {
	self, err := security.GenerateLegacy()
	require.NoError(t, err)
	topo := NewTopology(self, store.NewMemStore())

	rootA, err := security.GenerateLegacy()
	require.NoError(t, err)
	rootB, err := security.GenerateLegacy()
	require.NoError(t, err)

	topo.TrustStoreChanged(&fakeTrustStore{roots: []*security.Identity{rootA, rootB}})

	_, roots := topo.AllPeers()
	require.Len(t, roots, 2)
	assert.NotNil(t, topo.Root())

	addrs := map[string]bool{}
	for _, r := range roots {
		addrs[r.Address.String()] = true
	}
	assert.True(t, addrs[rootA.Address().String()])
	assert.True(t, addrs[rootB.Address().String()])

	// Rebuilding with a smaller set drops the one no longer reported.
	topo.TrustStoreChanged(&fakeTrustStore{roots: []*security.Identity{rootA}})
	_, roots = topo.AllPeers()
	require.Len(t, roots, 1)
	assert.Equal(t, rootA.Address(), roots[0].Address)
}

// TestPeriodicNeverDropsRoot: Periodic's staleness GC must never evict a
// peer that's currently in the root list, no matter how long since it was
// last heard from (§4.5, §5).
func TestPeriodicNeverDropsRoot(t *testing.T) {
	self, err := security.GenerateLegacy()
	require.NoError(t, err)
	topo := NewTopology(self, store.NewMemStore())

	root, err := security.GenerateLegacy()
	require.NoError(t, err)
	topo.TrustStoreChanged(&fakeTrustStore{roots: []*security.Identity{root}})

	farFuture := time.Now().Add(constant.PeerAliveTimeout * 100)
	topo.Periodic(farFuture)

	all, roots := topo.AllPeers()
	require.Len(t, all, 1)
	require.Len(t, roots, 1)
	assert.Equal(t, root.Address(), all[0].Address)
}

// TestRankRootsPrefersLowerLatencyOnTie: when two roots last received at
// the same quantized instant, the one with the lower measured latency
// ranks first; an unmeasured (negative) latency always loses to a known
// one (§4.5 root ranking).
func TestRankRootsPrefersLowerLatencyOnTie(t *testing.T) {
	self, err := security.GenerateLegacy()
	require.NoError(t, err)
	topo := NewTopology(self, store.NewMemStore())

	rootA, err := security.GenerateLegacy()
	require.NoError(t, err)
	rootB, err := security.GenerateLegacy()
	require.NoError(t, err)
	ts := &fakeTrustStore{roots: []*security.Identity{rootA, rootB}}
	topo.TrustStoreChanged(ts)

	peerA := topo.Peer(rootA.Address(), false)
	peerB := topo.Peer(rootB.Address(), false)
	require.NotNil(t, peerA)
	require.NotNil(t, peerB)

	now := time.Now()
	path := topo.Path(0, "", netaddr.MustParseIPPort("203.0.113.1:9993"))
	peerA.Received(path, now)
	peerB.Received(path, now)

	peerA.RecordLatency(50 * time.Millisecond)
	peerB.RecordLatency(10 * time.Millisecond)
	topo.TrustStoreChanged(ts)
	assert.Equal(t, peerB.Address, topo.Root().Address)

	// An unmeasured latency never beats a measured one, regardless of order.
	peerA.RecordLatency(-1)
	topo.TrustStoreChanged(ts)
	assert.Equal(t, peerB.Address, topo.Root().Address)
}

// TestPeriodicGCWithActiveRoot: a stale non-root peer is reaped by Periodic
// even while a root is present and itself exempt from the same pass.
func TestPeriodicGCWithActiveRoot(t *testing.T) {
	self, err := security.GenerateLegacy()
	require.NoError(t, err)
	topo := NewTopology(self, store.NewMemStore())

	root, err := security.GenerateLegacy()
	require.NoError(t, err)
	topo.TrustStoreChanged(&fakeTrustStore{roots: []*security.Identity{root}})

	stranger, err := security.GenerateLegacy()
	require.NoError(t, err)
	rawKey, err := self.Agree(stranger)
	require.NoError(t, err)
	topo.Add(newPeer(stranger, rawKey))

	all, _ := topo.AllPeers()
	require.Len(t, all, 2)

	farFuture := time.Now().Add(constant.PeerAliveTimeout * 2)
	topo.Periodic(farFuture)

	all, roots := topo.AllPeers()
	require.Len(t, all, 1)
	require.Len(t, roots, 1)
	assert.Equal(t, root.Address(), all[0].Address)
}
