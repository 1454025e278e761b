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

import "encoding/binary"

// Salsa20/12 is Salsa20 reduced to 12 rounds (6 double-rounds), the variant
// this protocol uses for both keystream generation and Poly1305 key
// derivation (§6). golang.org/x/crypto/salsa20/salsa hardcodes 20 rounds, so
// the reduced-round core is implemented here directly from the public-domain
// Salsa20 specification (same quarter-round structure, parameterized round
// count).
const salsaRounds12 = 12

var sigma = *(*[16]byte)([]byte("expand 32-byte k"))

func rotl32(x uint32, n uint) uint32 {
	return (x << n) | (x >> (32 - n))
}

// salsa2012Block runs the Salsa20/12 core on a 64-byte input block with the
// given 32-byte key and 16-byte nonce||counter block, writing 64 bytes of
// keystream to out.
func salsa2012Block(out *[64]byte, nonceCounter *[16]byte, key *[32]byte) {
	var x [16]uint32
	x[0] = binary.LittleEndian.Uint32(sigma[0:4])
	x[1] = binary.LittleEndian.Uint32(key[0:4])
	x[2] = binary.LittleEndian.Uint32(key[4:8])
	x[3] = binary.LittleEndian.Uint32(key[8:12])
	x[4] = binary.LittleEndian.Uint32(key[12:16])
	x[5] = binary.LittleEndian.Uint32(sigma[4:8])
	x[6] = binary.LittleEndian.Uint32(nonceCounter[0:4])
	x[7] = binary.LittleEndian.Uint32(nonceCounter[4:8])
	x[8] = binary.LittleEndian.Uint32(nonceCounter[8:12])
	x[9] = binary.LittleEndian.Uint32(nonceCounter[12:16])
	x[10] = binary.LittleEndian.Uint32(sigma[8:12])
	x[11] = binary.LittleEndian.Uint32(key[16:20])
	x[12] = binary.LittleEndian.Uint32(key[20:24])
	x[13] = binary.LittleEndian.Uint32(key[24:28])
	x[14] = binary.LittleEndian.Uint32(key[28:32])
	x[15] = binary.LittleEndian.Uint32(sigma[12:16])

	orig := x

	for i := 0; i < salsaRounds12; i += 2 {
		x[4] ^= rotl32(x[0]+x[12], 7)
		x[8] ^= rotl32(x[4]+x[0], 9)
		x[12] ^= rotl32(x[8]+x[4], 13)
		x[0] ^= rotl32(x[12]+x[8], 18)

		x[9] ^= rotl32(x[5]+x[1], 7)
		x[13] ^= rotl32(x[9]+x[5], 9)
		x[1] ^= rotl32(x[13]+x[9], 13)
		x[5] ^= rotl32(x[1]+x[13], 18)

		x[14] ^= rotl32(x[10]+x[6], 7)
		x[2] ^= rotl32(x[14]+x[10], 9)
		x[6] ^= rotl32(x[2]+x[14], 13)
		x[10] ^= rotl32(x[6]+x[2], 18)

		x[3] ^= rotl32(x[15]+x[11], 7)
		x[7] ^= rotl32(x[3]+x[15], 9)
		x[11] ^= rotl32(x[7]+x[3], 13)
		x[15] ^= rotl32(x[11]+x[7], 18)

		x[1] ^= rotl32(x[0]+x[3], 7)
		x[2] ^= rotl32(x[1]+x[0], 9)
		x[3] ^= rotl32(x[2]+x[1], 13)
		x[0] ^= rotl32(x[3]+x[2], 18)

		x[6] ^= rotl32(x[5]+x[4], 7)
		x[7] ^= rotl32(x[6]+x[5], 9)
		x[4] ^= rotl32(x[7]+x[6], 13)
		x[5] ^= rotl32(x[4]+x[7], 18)

		x[11] ^= rotl32(x[10]+x[9], 7)
		x[8] ^= rotl32(x[11]+x[10], 9)
		x[9] ^= rotl32(x[8]+x[11], 13)
		x[10] ^= rotl32(x[9]+x[8], 18)

		x[12] ^= rotl32(x[15]+x[14], 7)
		x[13] ^= rotl32(x[12]+x[15], 9)
		x[14] ^= rotl32(x[13]+x[12], 13)
		x[15] ^= rotl32(x[14]+x[13], 18)
	}

	for i := range x {
		x[i] += orig[i]
	}
	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint32(out[i*4:], x[i])
	}
}

// Salsa2012XORKeyStream XORs a Salsa20/12 keystream, keyed by key and seeded
// by the 64-bit nonce (the packet id), into dst. len(dst) must equal
// len(src).
func Salsa2012XORKeyStream(dst, src []byte, nonce uint64, key *[32]byte) {
	var nonceCounter [16]byte
	binary.LittleEndian.PutUint64(nonceCounter[0:8], nonce)

	var block [64]byte
	counter := uint64(0)
	for len(src) > 0 {
		binary.LittleEndian.PutUint64(nonceCounter[8:16], counter)
		salsa2012Block(&block, &nonceCounter, key)
		n := len(src)
		if n > 64 {
			n = 64
		}
		for i := 0; i < n; i++ {
			dst[i] = src[i] ^ block[i]
		}
		dst = dst[n:]
		src = src[n:]
		counter++
	}
}

// Salsa2012Zero returns Salsa20/12(zeros) under key/nonce — the mac-key
// derivation step used by both POLY1305_NONE and POLY1305_SALSA2012 (§6:
// "Poly1305 keyed by first 32 bytes of Salsa20/12(zeros)").
func Salsa2012Zero(nonce uint64, key *[32]byte) [64]byte {
	var zeros [64]byte
	var out [64]byte
	Salsa2012XORKeyStream(out[:], zeros[:], nonce, key)
	return out
}
