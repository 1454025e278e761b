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

package security

import "golang.org/x/crypto/poly1305"

// Poly1305Tag computes the 16-byte Poly1305 authenticator over msg, keyed by
// the first 32 bytes of Salsa20/12(zeros) under the per-packet key (§6).
func Poly1305Tag(msg []byte, macKey *[64]byte) [16]byte {
	var key [32]byte
	copy(key[:], macKey[:32])
	var tag [16]byte
	poly1305.Sum(&tag, msg, &key)
	return tag
}

// Poly1305Verify8 reports whether the first 8 bytes of the computed
// Poly1305 tag match the packet's 8-byte MAC field, per §4.7.1's
// truncated-MAC framing.
func Poly1305Verify8(msg []byte, macKey *[64]byte, mac []byte) bool {
	if len(mac) < 8 {
		return false
	}
	tag := Poly1305Tag(msg, macKey)
	var diff byte
	for i := 0; i < 8; i++ {
		diff |= tag[i] ^ mac[i]
	}
	return diff == 0
}
