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

// Package buf implements the fixed-capacity, shared-by-handle byte buffer
// (§3 "Buf", §9 "Shared object graphs") used to hold one datagram end to end
// through the ingress pipeline, the Defragmenter, and the WHOIS wait-list
// without copying.
package buf

import (
	"sync"

	"github.com/zerotier/vl1core/constant"
	"go.uber.org/atomic"
)

var pool = sync.Pool{
	New: func() interface{} {
		return &Buf{data: make([]byte, constant.MaxBufferSize)}
	},
}

// Buf is a reference-counted, fixed-capacity byte region. A freshly obtained
// Buf is exclusively owned by its caller; Retain/Release make it safe to
// hand a handle to a second owner (e.g. a fragment-set or the WHOIS
// wait-list) without copying the backing array. No field is mutated while
// the refcount is above one.
type Buf struct {
	data []byte
	len  int
	refs atomic.Int32
}

// Get returns a Buf with refcount 1 and Len() == 0.
func Get() *Buf {
	b := pool.Get().(*Buf)
	b.len = 0
	b.refs.Store(1)
	return b
}

// Retain increments the reference count and returns b, for call-site clarity
// at a hand-off (e.g. `frag.slices[i] = b.Retain()`).
func (b *Buf) Retain() *Buf {
	b.refs.Inc()
	return b
}

// Release decrements the reference count, returning the Buf to the pool
// once it reaches zero.
func (b *Buf) Release() {
	if b.refs.Dec() <= 0 {
		pool.Put(b)
	}
}

// Bytes returns the occupied region of the buffer.
func (b *Buf) Bytes() []byte {
	return b.data[:b.len]
}

// Cap returns the full backing capacity.
func (b *Buf) Cap() int {
	return len(b.data)
}

// Len returns the occupied length.
func (b *Buf) Len() int {
	return b.len
}

// SetLen sets the occupied length; n must not exceed Cap().
func (b *Buf) SetLen(n int) {
	if n > len(b.data) {
		n = len(b.data)
	}
	b.len = n
}

// Append copies p into the buffer starting at the current length, growing
// the occupied length, and returns the number of bytes actually copied
// (truncated at capacity).
func (b *Buf) Append(p []byte) int {
	n := copy(b.data[b.len:], p)
	b.len += n
	return n
}

// Raw exposes the full backing array for in-place codec operations
// (header writes, armor, decrypt-in-place). Callers must respect Len().
func (b *Buf) Raw() []byte {
	return b.data
}
