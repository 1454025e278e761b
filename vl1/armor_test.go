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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zerotier/vl1core/protocol"
)

func makeTestPacket(t *testing.T, cipher protocol.Cipher, payloadLen int) ([]byte, protocol.Header) {
	t.Helper()
	buf := make([]byte, protocol.OffsetPayload+payloadLen)
	n := protocol.NewPacket(buf, 0xdeadbeef, protocol.Address(2), protocol.Address(1), protocol.VerbECHO)
	require.Equal(t, protocol.OffsetPayload, n)
	protocol.SetCipher(buf, cipher)
	_, err := rand.Read(buf[protocol.OffsetPayload:])
	require.NoError(t, err)
	header, err := protocol.ParseHeader(buf)
	require.NoError(t, err)
	return buf, header
}

// TestPoly1305RoundTrip: armoring then unarmoring with the same key leaves
// the payload readable and passes the MAC check, for both POLY1305_NONE and
// POLY1305_SALSA2012.
func TestPoly1305RoundTrip(t *testing.T) {
	for _, cipher := range []protocol.Cipher{protocol.CipherPOLY1305_NONE, protocol.CipherPOLY1305_SALSA2012} {
		buf, header := makeTestPacket(t, cipher, 64)
		plaintext := append([]byte(nil), buf[protocol.OffsetPayload:]...)

		var key [32]byte
		_, err := rand.Read(key[:])
		require.NoError(t, err)
		sk := newSymmetricKey(key)

		armor(buf, protocol.OffsetPayload, header.PacketID, sk, cipher)
		err = unarmorPoly1305(buf, protocol.OffsetPayload, header, key)
		require.NoError(t, err)

		if cipher == protocol.CipherPOLY1305_SALSA2012 {
			assert.Equal(t, plaintext, buf[protocol.OffsetPayload:])
		}
	}
}

// TestArmorRoundTrip exercises armor/unarmor as above but also asserts the
// MAC field was actually filled in (not left zero).
func TestArmorRoundTrip(t *testing.T) {
	buf, header := makeTestPacket(t, protocol.CipherPOLY1305_SALSA2012, 32)

	var key [32]byte
	_, err := rand.Read(key[:])
	require.NoError(t, err)
	sk := newSymmetricKey(key)

	armor(buf, protocol.OffsetPayload, header.PacketID, sk, protocol.CipherPOLY1305_SALSA2012)

	var zero [8]byte
	assert.NotEqual(t, zero[:], buf[protocol.OffsetMAC:protocol.OffsetMAC+8])
	require.NoError(t, unarmorPoly1305(buf, protocol.OffsetPayload, header, key))
}

// TestArmorTamperEvidence: flipping any payload or MAC byte after armoring
// must cause unarmorPoly1305 to reject the packet (§7 MAC_FAILED).
func TestArmorTamperEvidence(t *testing.T) {
	buf, header := makeTestPacket(t, protocol.CipherPOLY1305_SALSA2012, 48)

	var key [32]byte
	_, err := rand.Read(key[:])
	require.NoError(t, err)
	sk := newSymmetricKey(key)
	armor(buf, protocol.OffsetPayload, header.PacketID, sk, protocol.CipherPOLY1305_SALSA2012)

	tampered := append([]byte(nil), buf...)
	tampered[protocol.OffsetPayload] ^= 0x01
	assert.ErrorIs(t, unarmorPoly1305(tampered, protocol.OffsetPayload, header, key), errMACFailed)

	tamperedMAC := append([]byte(nil), buf...)
	tamperedMAC[protocol.OffsetMAC] ^= 0x01
	assert.ErrorIs(t, unarmorPoly1305(tamperedMAC, protocol.OffsetPayload, header, key), errMACFailed)
}

// TestSymmetricKeyMonotonic: NextMessage never repeats and always increases
// for the lifetime of a SymmetricKey (§5 ordering, §8 testable property).
func TestSymmetricKeyMonotonic(t *testing.T) {
	var secret [32]byte
	_, err := rand.Read(secret[:])
	require.NoError(t, err)
	sk := newSymmetricKey(secret)

	prev := sk.NextMessage()
	for i := 0; i < 10000; i++ {
		next := sk.NextMessage()
		assert.Greater(t, next, prev)
		prev = next
	}
}
