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

	"go.uber.org/atomic"
)

// SymmetricKey is a derived 256-bit key plus a monotonically increasing
// message counter used to generate outgoing packet IDs (§3). For a peer
// that has never completed an ephemeral exchange this wraps the static key
// derived from the two identities' Curve25519 agreement, the raw identity
// key.
type SymmetricKey struct {
	Secret  [32]byte
	counter atomic.Uint64
}

// newSymmetricKey seeds the counter from the low 64 bits of the key
// material so restarts don't trivially replay small counter values, while
// still guaranteeing strict monotonicity for the lifetime of the process.
func newSymmetricKey(secret [32]byte) *SymmetricKey {
	k := &SymmetricKey{Secret: secret}
	k.counter.Store(binary.BigEndian.Uint64(secret[:8]) &^ 0xff)
	return k
}

// NextMessage returns the next packet ID to use when sending to this peer.
// It is strictly increasing and never returns the same value twice for the
// lifetime of the key (§5 ordering guarantees, §8 testable property).
func (k *SymmetricKey) NextMessage() uint64 {
	return k.counter.Add(1)
}
