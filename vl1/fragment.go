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
	"time"

	"github.com/zerotier/vl1core/buf"
	"github.com/zerotier/vl1core/constant"
)

// FragmentOutcome is the Defragmenter's per-fragment result taxonomy (§4.2).
type FragmentOutcome int

const (
	// FragmentOK means the fragment was accepted and the set is still
	// incomplete.
	FragmentOK FragmentOutcome = iota
	// FragmentComplete means this was the last fragment needed; the caller
	// should retrieve the assembled packet.
	FragmentComplete
	// FragmentErrDuplicateFragment means this fragment index was already
	// filled for this packet ID.
	FragmentErrDuplicateFragment
	// FragmentErrInvalidFragment means the fragment's index or declared
	// total_frags is out of bounds, or conflicts with a total_frags value
	// already recorded for this packet ID.
	FragmentErrInvalidFragment
	// FragmentErrTooManyFragmentsForPath means accepting this fragment
	// would exceed the owning Path's concurrent fragment-set bound.
	FragmentErrTooManyFragmentsForPath
	// FragmentErrOutOfMemory is reserved for allocation failure. The Go
	// buf pool never fails to produce a Buf, so this core never returns
	// it; it exists so the outcome enum matches the full taxonomy.
	FragmentErrOutOfMemory
)

// fragmentSet is a packet's in-progress reassembly state (§4.2). It is only
// ever touched while its owning path's mutex is held.
type fragmentSet struct {
	deadline time.Time
	frags    [constant.MaxFragments]*buf.Buf
	have     uint8
	expect   uint8
}

// addFragment stores a fragment at its declared offset and reports the
// outcome per the §4.2 taxonomy. expecting is the fragment's declared
// total_frags, or 0 when the sender (a fragment head) doesn't yet know it;
// once a nonzero total_frags has been recorded, a later fragment declaring
// a different nonzero total_frags is a protocol violation (rule b).
func (f *fragmentSet) addFragment(b *buf.Buf, no uint8, expecting uint8) FragmentOutcome {
	if no >= constant.MaxFragments || expecting > constant.MaxFragments {
		b.Release()
		return FragmentErrInvalidFragment
	}
	if expecting != 0 {
		if f.expect != 0 && f.expect != expecting {
			b.Release()
			return FragmentErrInvalidFragment
		}
		f.expect = expecting
	}
	if (expecting == 0 && no != 0) || (f.expect != 0 && no >= f.expect) {
		b.Release()
		return FragmentErrInvalidFragment
	}
	if f.frags[no] != nil {
		b.Release()
		return FragmentErrDuplicateFragment
	}
	f.frags[no] = b
	f.have++
	if f.expect != 0 && f.have == f.expect {
		return FragmentComplete
	}
	return FragmentOK
}

// release returns every stored fragment buffer to the pool; called once a
// fragmentSet is discarded, whether by completion, eviction, or GC timeout.
func (f *fragmentSet) release() {
	for i, b := range f.frags {
		if b != nil {
			b.Release()
			f.frags[i] = nil
		}
	}
}

// assembled concatenates the fragments in order 0..expect-1 into a single
// contiguous payload. addFragment's (have == expect) check guarantees every
// index below expect is populated before assembled is called.
func (f *fragmentSet) assembled() []byte {
	var total int
	for i := uint8(0); i < f.expect; i++ {
		total += f.frags[i].Len()
	}
	out := make([]byte, 0, total)
	for i := uint8(0); i < f.expect; i++ {
		out = append(out, f.frags[i].Bytes()...)
	}
	return out
}
