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

package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zerotier/vl1core/protocol"
)

func TestAddressRoundTrip(t *testing.T) {
	a := assert.New(t)

	addr := protocol.Address(0x0102030405)
	b := addr.Bytes()
	a.Equal([5]byte{0x01, 0x02, 0x03, 0x04, 0x05}, b)

	got, err := protocol.AddressFromBytes(b[:])
	a.NoError(err)
	a.Equal(addr, got)
	a.True(got.IsValid())
	a.False(protocol.NilAddress.IsValid())
}

func TestNewPacketAndParseHeader(t *testing.T) {
	a := assert.New(t)

	buf := make([]byte, 64)
	n := protocol.NewPacket(buf, 0xdeadbeefcafebabe, protocol.Address(2), protocol.Address(1), protocol.VerbHELLO)
	a.Equal(protocol.OffsetPayload, n)

	protocol.SetCipher(buf, protocol.CipherPOLY1305_SALSA2012)
	protocol.SetFragmented(buf, true)
	protocol.SetVerbFlags(buf, protocol.VerbFlagCompressed)

	h, err := protocol.ParseHeader(buf)
	a.NoError(err)
	a.Equal(uint64(0xdeadbeefcafebabe), h.PacketID)
	a.Equal(protocol.Address(2), h.Destination)
	a.Equal(protocol.Address(1), h.Source)
	a.Equal(protocol.CipherPOLY1305_SALSA2012, h.Cipher)
	a.True(h.Fragmented)
	a.Equal(protocol.VerbHELLO, h.Verb)
	a.Equal(protocol.VerbFlagCompressed, h.VerbFlags)
}

func TestFragmentHeaderRoundTrip(t *testing.T) {
	a := assert.New(t)

	buf := make([]byte, 20)
	protocol.PutFragmentHeader(buf, 0x0102030405060708, protocol.Address(9), 2, 4)
	a.False(protocol.IsFragmentHead(buf))

	fh, err := protocol.ParseFragmentHeader(buf)
	a.NoError(err)
	a.Equal(uint64(0x0102030405060708), fh.PacketID)
	a.Equal(protocol.Address(9), fh.Destination)
	a.Equal(uint8(2), fh.FragmentNo)
	a.Equal(uint8(4), fh.TotalFrags)
}

func TestMaskHopsAndMAC(t *testing.T) {
	a := assert.New(t)

	buf := make([]byte, 64)
	protocol.NewPacket(buf, 1, protocol.Address(2), protocol.Address(1), protocol.VerbHELLO)
	buf[protocol.OffsetFlags] = 0x07 // hops=7
	for i := 0; i < 8; i++ {
		buf[protocol.OffsetMAC+i] = 0xff
	}

	masked := protocol.MaskHopsAndMAC(buf)
	a.Equal(byte(0), masked[protocol.OffsetFlags]&0x07)
	for i := 0; i < 8; i++ {
		a.Equal(byte(0), masked[protocol.OffsetMAC+i])
	}
	// original buffer is untouched
	a.Equal(byte(0x07), buf[protocol.OffsetFlags]&0x07)
}
