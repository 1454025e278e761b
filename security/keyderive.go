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

import (
	"encoding/binary"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// label distinguishes the several keys this package derives from the same
// raw identity key, following the HKDF "info" idiom used by
// internal/crypto.crypto.go's key derivation in the retrieved examples.
type label string

const (
	labelPerPacketSalsa label = "vl1-salsa2012-per-packet"
	labelHelloHMAC      label = "vl1-hello-hmac-sha384"
	labelHelloDict      label = "vl1-hello-dict-aes-ctr"
)

func hkdfExpand(secret []byte, l label, extra []byte, out []byte) {
	info := append([]byte(l), extra...)
	r := hkdf.New(sha3.New256, secret, nil, info)
	if _, err := io.ReadFull(r, out); err != nil {
		panic(err) // hkdf.Reader only fails if the output is absurdly long
	}
}

// DeriveSalsaKey implements salsa2012_derive_key (§6): a deterministic
// mixing function producing the 256-bit per-packet Salsa20/12 key from the
// peer's raw identity key, the first slice of assembled packet bytes, and
// the total assembled length.
func DeriveSalsaKey(rawIdentityKey [32]byte, firstSliceBytes []byte, totalLen int) [32]byte {
	extra := make([]byte, 8+len(firstSliceBytes))
	binary.BigEndian.PutUint64(extra[:8], uint64(totalLen))
	copy(extra[8:], firstSliceBytes)

	var out [32]byte
	hkdfExpand(rawIdentityKey[:], labelPerPacketSalsa, extra, out[:])
	return out
}

// HelloHMACKey derives the 48-byte key used to authenticate v11+ HELLO and
// OK(HELLO) packets (§4.3 identity_hello_hmac_key).
func HelloHMACKey(rawIdentityKey [32]byte) [48]byte {
	var out [48]byte
	hkdfExpand(rawIdentityKey[:], labelHelloHMAC, nil, out[:])
	return out
}

// HelloDictKey derives the AES-128 key used to encrypt the HELLO metadata
// dictionary (§4.3 identity_hello_dictionary_encryption_cipher).
func HelloDictKey(rawIdentityKey [32]byte) [16]byte {
	var out [16]byte
	hkdfExpand(rawIdentityKey[:], labelHelloDict, nil, out[:])
	return out
}
