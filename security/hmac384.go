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
	"crypto/hmac"
	"crypto/sha512"
)

// HMACSHA384 computes the 48-byte HMAC-SHA-384 over msg keyed by key (§6),
// used to authenticate v11+ HELLO and OK(HELLO) packets.
func HMACSHA384(key []byte, msg []byte) [48]byte {
	mac := hmac.New(sha512.New384, key)
	mac.Write(msg)
	var out [48]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// SecureEqual performs a constant-time comparison, matching the reference
// source's Utils::secureEq usage for HMAC verification.
func SecureEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}
