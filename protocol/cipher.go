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

package protocol

// Cipher selects the per-packet authenticated-encryption mode (§4.1). It is
// stored in bits 3..5 of the flags byte.
type Cipher byte

const (
	CipherNONE               Cipher = 0
	CipherPOLY1305_NONE      Cipher = 1
	CipherPOLY1305_SALSA2012 Cipher = 2
	CipherAES_GMAC_SIV       Cipher = 3
)

func (c Cipher) String() string {
	switch c {
	case CipherNONE:
		return "NONE"
	case CipherPOLY1305_NONE:
		return "POLY1305_NONE"
	case CipherPOLY1305_SALSA2012:
		return "POLY1305_SALSA2012"
	case CipherAES_GMAC_SIV:
		return "AES_GMAC_SIV"
	default:
		return "UNKNOWN_CIPHER"
	}
}
