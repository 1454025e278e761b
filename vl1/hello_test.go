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
	"crypto/rand"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zerotier/vl1core/constant"
	"github.com/zerotier/vl1core/errcode"
	"github.com/zerotier/vl1core/protocol"
	"github.com/zerotier/vl1core/security"
	"github.com/zerotier/vl1core/store"
	"github.com/zerotier/vl1core/trace"
	"github.com/zerotier/vl1core/vl2"
	"inet.af/netaddr"
)

// recordingSender collects every packet handed to Send, for assertions
// without standing up a real UDP socket.
type recordingSender struct {
	sent [][]byte
}

func (s *recordingSender) Send(path *Path, data []byte) error {
	s.sent = append(s.sent, append([]byte(nil), data...))
	return nil
}

// silentTrace discards every event; tests that don't care about drop
// reasons use it so a nil Trace isn't required everywhere.
type silentTrace struct{}

func (silentTrace) IncomingPacketDropped(uint64, protocol.Address, errcode.DropReason) {}
func (silentTrace) UnexpectedError(string, error)                                      {}
func (silentTrace) TryingNewPath(protocol.Address, string)                             {}

var _ trace.Trace = silentTrace{}

func newTestContext(t *testing.T, self *security.Identity) *Context {
	t.Helper()
	return &Context{
		Identity: self,
		Topology: NewTopology(self, store.NewMemStore()),
		Expect:   NewExpect(),
		Trace:    silentTrace{},
		Store:    store.NewMemStore(),
		VL2:      vl2.NewNopVL2(),
		Sender:   &recordingSender{},
	}
}

// buildHelloPacket constructs a wire-exact proto>=11 HELLO from sender to
// dest, matching the layout parseHelloBody expects (§6 HELLO body).
func buildHelloPacket(t *testing.T, sender, destIdentity *security.Identity, packetID uint64, protoVersion uint8) []byte {
	t.Helper()

	idWire := sender.Marshal()
	buf := make([]byte, protocol.OffsetPayload+1+1+1+2+8+len(idWire)+1+4+constant.AESCTRNonceLen+4+constant.HMACSHA384Len)
	n := protocol.NewPacket(buf, packetID, destIdentity.Address(), sender.Address(), protocol.VerbHELLO)
	protocol.SetCipher(buf, protocol.CipherPOLY1305_NONE)

	off := n
	buf[off] = protoVersion
	off++
	buf[off] = 1 // major
	off++
	buf[off] = 2 // minor
	off++
	binary.BigEndian.PutUint16(buf[off:], 3) // rev
	off += 2
	binary.BigEndian.PutUint64(buf[off:], uint64(time.Now().UnixMilli()))
	off += 8

	copy(buf[off:], idWire)
	off += len(idWire)

	off += putInetAddress(buf[off:], netaddr.IPPort{})

	rawKey, err := sender.Agree(destIdentity)
	require.NoError(t, err)
	hmacKey := security.HelloHMACKey(rawKey)
	dictKey := security.HelloDictKey(rawKey)

	binary.BigEndian.PutUint32(buf[off:], 0) // reserved
	off += 4

	var nonce [constant.AESCTRNonceLen]byte
	_, err = rand.Read(nonce[:])
	require.NoError(t, err)
	copy(buf[off:], nonce[:])
	off += constant.AESCTRNonceLen

	enc := make([]byte, 4) // reserved(2) + dict_len(2) = 0, empty dictionary
	require.NoError(t, security.AESCTRCrypt(dictKey, nonce[:], enc))
	copy(buf[off:], enc)
	off += len(enc)

	total := off
	hmacVal := hmacAuth(buf[:total], hmacKey)
	copy(buf[total:], hmacVal[:])
	total += constant.HMACSHA384Len

	return buf[:total]
}

// TestHELLOHandshakeProto12 drives a full proto-12 HELLO through
// Context.HandleHello and asserts an authenticated OK(HELLO) is produced and
// the Peer gets created with the claimed identity and version triple.
func TestHELLOHandshakeProto12(t *testing.T) {
	selfID, err := security.GenerateLegacy()
	require.NoError(t, err)
	remoteID, err := security.GenerateLegacy()
	require.NoError(t, err)

	ctx := newTestContext(t, selfID)
	pkt := buildHelloPacket(t, remoteID, selfID, 777, 12)

	header, err := protocol.ParseHeader(pkt)
	require.NoError(t, err)
	payload := pkt[protocol.OffsetPayload:]
	path := ctx.Topology.Path(0, "", netaddr.MustParseIPPort("203.0.113.5:9000"))

	peer, err := ctx.HandleHello(path, header, payload, pkt, time.Now())
	require.NoError(t, err)
	require.NotNil(t, peer)
	assert.Equal(t, remoteID.Address(), peer.Address)
	assert.Equal(t, RemoteVersion{Proto: 12, Major: 1, Minor: 2, Rev: 3}, peer.RemoteVersion())

	sender := ctx.Sender.(*recordingSender)
	require.Len(t, sender.sent, 1)

	reply := sender.sent[0]
	replyHeader, err := protocol.ParseHeader(reply)
	require.NoError(t, err)
	assert.Equal(t, protocol.VerbOK, replyHeader.Verb)
	assert.Equal(t, remoteID.Address(), replyHeader.Destination)
	assert.Equal(t, selfID.Address(), replyHeader.Source)

	body := reply[protocol.OffsetPayload:]
	assert.Equal(t, byte(protocol.VerbHELLO), body[0])
	assert.Equal(t, uint64(777), binary.BigEndian.Uint64(body[1:9]))
}

// TestTamperedMACDropped: corrupting the HMAC trailer of an otherwise valid
// HELLO must make HandleHello fail rather than create a Peer (§7 MAC_FAILED).
func TestTamperedMACDropped(t *testing.T) {
	selfID, err := security.GenerateLegacy()
	require.NoError(t, err)
	remoteID, err := security.GenerateLegacy()
	require.NoError(t, err)

	ctx := newTestContext(t, selfID)
	pkt := buildHelloPacket(t, remoteID, selfID, 1, constant.ProtoVersionHMAC)
	pkt[len(pkt)-1] ^= 0xff

	header, err := protocol.ParseHeader(pkt)
	require.NoError(t, err)
	path := ctx.Topology.Path(0, "", netaddr.MustParseIPPort("203.0.113.5:9000"))

	_, err = ctx.HandleHello(path, header, pkt[protocol.OffsetPayload:], pkt, time.Now())
	assert.ErrorIs(t, err, errMACFailed)
	assert.Nil(t, ctx.Topology.Peer(remoteID.Address(), false))
}
