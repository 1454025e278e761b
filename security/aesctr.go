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
	"crypto/aes"
	"crypto/cipher"

	"github.com/pkg/errors"
)

// AESCTRCrypt encrypts or decrypts data in place using AES-128 in CTR mode
// (§6), used for the HELLO metadata dictionary. AES-CTR is symmetric: the
// same call both encrypts and decrypts.
func AESCTRCrypt(key [16]byte, nonce []byte, data []byte) error {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return errors.Wrap(err, "construct aes block cipher")
	}
	iv := make([]byte, aes.BlockSize)
	copy(iv, nonce)
	stream := cipher.NewCTR(block, iv)
	stream.XORKeyStream(data, data)
	return nil
}
