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
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/zerotier/vl1core/protocol"
	"github.com/zerotier/vl1core/security"
)

// errMACFailed is returned by unarmor when the packet's MAC doesn't match.
var errMACFailed = errors.New("vl1: mac check failed")

// armor records cipher in the header's flags byte, encrypts/authenticates
// buf[headerLen:] in place per cipher, deriving the per-packet Salsa20/12
// key from the session key's secret, the packet's leading header bytes
// (packet id, destination, source), and the total packet length, then
// fills the header's MAC field (§4.1 armor, §4.7.1 step 8, §6 cipher
// primitives).
func armor(buf []byte, headerLen int, packetID uint64, key *SymmetricKey, cipher protocol.Cipher) {
	protocol.SetCipher(buf, cipher)
	payload := buf[headerLen:]
	salsaKey := security.DeriveSalsaKey(key.Secret, buf[:protocol.OffsetFlags], len(buf))

	if cipher == protocol.CipherPOLY1305_SALSA2012 {
		security.Salsa2012XORKeyStream(payload, payload, packetID, &salsaKey)
	}

	macKeyBlock := security.Salsa2012Zero(packetID, &salsaKey)
	tag := security.Poly1305Tag(buf[headerLen:], &macKeyBlock)
	copy(buf[protocol.OffsetMAC:protocol.OffsetMAC+8], tag[:8])
}

// unarmorPoly1305 authenticates (and, for POLY1305_SALSA2012, decrypts)
// buf[headerLen:] in place, returning an error if the MAC doesn't match
// (§4.7.1 step 8). The per-packet key is derived from the same inputs armor
// uses, so a packet armored with a key wrapping rawIdentityKey verifies.
func unarmorPoly1305(buf []byte, headerLen int, header protocol.Header, rawIdentityKey [32]byte) error {
	payload := buf[headerLen:]
	salsaKey := security.DeriveSalsaKey(rawIdentityKey, buf[:protocol.OffsetFlags], len(buf))

	macKeyBlock := security.Salsa2012Zero(header.PacketID, &salsaKey)
	tag := security.Poly1305Tag(payload, &macKeyBlock)

	wantMAC := buf[protocol.OffsetMAC : protocol.OffsetMAC+8]
	if !security.SecureEqual(tag[:8], wantMAC) {
		return errMACFailed
	}

	if header.Cipher == protocol.CipherPOLY1305_SALSA2012 {
		security.Salsa2012XORKeyStream(payload, payload, header.PacketID, &salsaKey)
	}
	return nil
}

// hmacAuth computes the HMAC-SHA-384 over buf with hops and the MAC field
// masked to zero, as used by v11+ HELLO/OK(HELLO) (§4.7.2 step 6, §6).
func hmacAuth(buf []byte, key [48]byte) [48]byte {
	masked := protocol.MaskHopsAndMAC(buf)
	return security.HMACSHA384(key[:], masked)
}

func putUint64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }
func putUint32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func putUint16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
