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
	"github.com/zerotier/vl1core/protocol"
	"github.com/zerotier/vl1core/security"
	"inet.af/netaddr"
)

func newTestEngine(t *testing.T) (*Engine, *Context, *recordingSender) {
	t.Helper()
	self, err := security.GenerateLegacy()
	require.NoError(t, err)
	ctx := newTestContext(t, self)
	engine := NewEngine(ctx)
	return engine, ctx, ctx.Sender.(*recordingSender)
}

func addAliveRoot(t *testing.T, ctx *Context) *Peer {
	t.Helper()
	rootID, err := security.GenerateLegacy()
	require.NoError(t, err)
	ctx.Topology.TrustStoreChanged(&fakeTrustStore{roots: []*security.Identity{rootID}})
	root := ctx.Topology.Root()
	require.NotNil(t, root)

	path := ctx.Topology.Path(0, "", netaddr.MustParseIPPort("198.51.100.1:9993"))
	root.AddPath(path)
	path.receiveOther(time.Now())
	return root
}

// TestUnknownSourceTriggersWHOIS: an authenticated-layer packet from a
// source address with no known Peer must not be dispatched, and must kick
// off exactly one outbound WHOIS query to the current root (§4.7.1 step 6,
// §4.7.4).
func TestUnknownSourceTriggersWHOIS(t *testing.T) {
	engine, ctx, sender := newTestEngine(t)
	root := addAliveRoot(t, ctx)

	unknown := protocol.Address(9999)
	buf := make([]byte, protocol.OffsetPayload+4)
	protocol.NewPacket(buf, 555, ctx.Identity.Address(), unknown, protocol.VerbECHO)

	engine.OnRemotePacket(0, "", netaddr.MustParseIPPort("203.0.113.9:4000"), buf)

	require.Len(t, sender.sent, 1)
	header, err := protocol.ParseHeader(sender.sent[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.VerbWHOIS, header.Verb)

	// The WHOIS is armored with the root's key and cipher; unarmor it as the
	// root would before reading the queried address.
	require.NoError(t, unarmorPoly1305(sender.sent[0], protocol.OffsetPayload, header, root.RawIdentityKey()))
	body := sender.sent[0][protocol.OffsetPayload:]
	gotAddr, err := protocol.AddressFromBytes(body)
	require.NoError(t, err)
	assert.Equal(t, unknown, gotAddr)

	assert.Nil(t, ctx.Topology.Peer(unknown, false))
}

// TestPeriodicGCWithActiveRootViaEngine exercises Engine.Periodic end to end:
// the WHOIS retry loop must not panic or send when nothing is pending, and
// Topology GC still runs underneath it.
func TestPeriodicGCWithActiveRootViaEngine(t *testing.T) {
	engine, ctx, _ := newTestEngine(t)
	addAliveRoot(t, ctx)
	assert.NotPanics(t, func() { engine.Periodic(time.Now()) })
}
