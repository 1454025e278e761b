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
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zerotier/vl1core/buf"
	"github.com/zerotier/vl1core/constant"
)

// fragmentsOf splits a synthetic packet into a head chunk (full header +
// first slice) and a set of tail chunks (payload-only continuations),
// mirroring how Engine.classifyAndReassemble builds the Bufs it hands to
// Path.receiveFragment for each fragment kind.
func fragmentsOf(header []byte, payload []byte, total uint8) (headBuf *buf.Buf, tails [][]byte) {
	chunk := len(payload) / int(total)
	headBuf = buf.Get()
	headBuf.Append(header)
	headBuf.Append(payload[:chunk])

	for i := 1; i < int(total); i++ {
		start := i * chunk
		end := start + chunk
		if i == int(total)-1 {
			end = len(payload)
		}
		tails = append(tails, payload[start:end])
	}
	return headBuf, tails
}

// TestDefragmenterAnyPermutation: a packet's fragments assemble to the exact
// original bytes regardless of arrival order (§4.2).
func TestDefragmenterAnyPermutation(t *testing.T) {
	const packetID = 0x1122334455667788
	header := make([]byte, constant.PacketHeaderSize)
	payload := make([]byte, 90)
	rnd := rand.New(rand.NewSource(1))
	rnd.Read(payload)

	const total = 3
	headBuf, tails := fragmentsOf(header, payload, total)

	want := append(append([]byte(nil), header...), payload...)

	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}}
	for _, order := range orders {
		d := newDefragmenter()
		now := time.Now()

		type piece struct {
			no        uint8
			expecting uint8
			b         *buf.Buf
		}
		pieces := []piece{{0, 0, cloneBuf(headBuf)}}
		for i, tail := range tails {
			b := buf.Get()
			b.Append(tail)
			pieces = append(pieces, piece{uint8(i + 1), total, b})
		}

		var out []byte
		var outcome FragmentOutcome
		for _, idx := range order {
			p := pieces[idx]
			out, outcome = d.receiveFragment(packetID, p.no, p.expecting, p.b, now)
			if outcome == FragmentComplete {
				break
			}
		}
		require.Equal(t, FragmentComplete, outcome)
		assert.Equal(t, want, out)
	}
	headBuf.Release()
}

func cloneBuf(b *buf.Buf) *buf.Buf {
	c := buf.Get()
	c.Append(b.Bytes())
	return c
}

// TestDuplicateFragmentFlood: resending the same fragment index repeatedly
// is reported as ERR_DUPLICATE_FRAGMENT, never completes the set, and never
// panics; a later genuine fragment still completes it normally.
func TestDuplicateFragmentFlood(t *testing.T) {
	const packetID = 42
	d := newDefragmenter()
	now := time.Now()

	header := make([]byte, constant.PacketHeaderSize)
	payload := []byte("duplicate-fragment-flood-payload")
	headBuf, tails := fragmentsOf(header, payload, 2)
	defer headBuf.Release()

	b := buf.Get()
	b.Append(tails[0])
	_, outcome := d.receiveFragment(packetID, 1, 2, b, now)
	require.Equal(t, FragmentOK, outcome)

	for i := 0; i < 49; i++ {
		dup := buf.Get()
		dup.Append(tails[0])
		_, outcome := d.receiveFragment(packetID, 1, 2, dup, now)
		assert.Equal(t, FragmentErrDuplicateFragment, outcome)
	}

	hb := cloneBuf(headBuf)
	out, outcome := d.receiveFragment(packetID, 0, 0, hb, now)
	require.Equal(t, FragmentComplete, outcome)
	assert.Equal(t, append(append([]byte(nil), header...), payload...), out)
}

// TestDefragmenterDuplicateFragmentScenario reproduces spec.md §8 scenario
// 2 verbatim: a 3-fragment packet arrives as frag0, frag1, frag2, frag1,
// frag1, and the Defragmenter must report OK, OK, COMPLETE,
// ERR_DUPLICATE_FRAGMENT, ERR_DUPLICATE_FRAGMENT in order.
func TestDefragmenterDuplicateFragmentScenario(t *testing.T) {
	const packetID = 7
	d := newDefragmenter()
	now := time.Now()

	header := make([]byte, constant.PacketHeaderSize)
	payload := make([]byte, 90)
	rand.New(rand.NewSource(2)).Read(payload)
	headBuf, tails := fragmentsOf(header, payload, 3)
	defer headBuf.Release()

	frag1 := func() *buf.Buf {
		b := buf.Get()
		b.Append(tails[0])
		return b
	}
	frag2 := func() *buf.Buf {
		b := buf.Get()
		b.Append(tails[1])
		return b
	}

	_, outcome := d.receiveFragment(packetID, 0, 0, cloneBuf(headBuf), now)
	assert.Equal(t, FragmentOK, outcome)

	_, outcome = d.receiveFragment(packetID, 1, 3, frag1(), now)
	assert.Equal(t, FragmentOK, outcome)

	out, outcome := d.receiveFragment(packetID, 2, 3, frag2(), now)
	require.Equal(t, FragmentComplete, outcome)
	assert.Equal(t, append(append([]byte(nil), header...), payload...), out)

	_, outcome = d.receiveFragment(packetID, 1, 3, frag1(), now)
	assert.Equal(t, FragmentErrDuplicateFragment, outcome)

	_, outcome = d.receiveFragment(packetID, 1, 3, frag1(), now)
	assert.Equal(t, FragmentErrDuplicateFragment, outcome)
}

// TestDefragmenterConflictingTotalFrags: a second fragment declaring a
// different nonzero total_frags than one already recorded for the same
// packet ID is rejected as ERR_INVALID_FRAGMENT (§4.2 rule b), never
// silently OR'd together.
func TestDefragmenterConflictingTotalFrags(t *testing.T) {
	const packetID = 99
	d := newDefragmenter()
	now := time.Now()

	b1 := buf.Get()
	b1.Append([]byte("first"))
	_, outcome := d.receiveFragment(packetID, 1, 3, b1, now)
	require.Equal(t, FragmentOK, outcome)

	b2 := buf.Get()
	b2.Append([]byte("second"))
	_, outcome = d.receiveFragment(packetID, 2, 5, b2, now)
	assert.Equal(t, FragmentErrInvalidFragment, outcome)
}

// TestDefragmenterTooManyFragmentsForPath: once a path has
// MaxFragmentsPerPath concurrent fragment sets open, a fragment for a new
// packet ID is rejected as ERR_TOO_MANY_FRAGMENTS_FOR_PATH and the oldest
// open set is evicted (§4.2 rule d).
func TestDefragmenterTooManyFragmentsForPath(t *testing.T) {
	d := newDefragmenter()
	now := time.Now()

	for i := 0; i < constant.MaxFragmentsPerPath; i++ {
		b := buf.Get()
		b.Append([]byte("x"))
		_, outcome := d.receiveFragment(uint64(i), 0, 3, b, now.Add(time.Duration(i)*time.Millisecond))
		require.Equal(t, FragmentOK, outcome)
	}
	require.Len(t, d.sets, constant.MaxFragmentsPerPath)

	overflow := buf.Get()
	overflow.Append([]byte("y"))
	_, outcome := d.receiveFragment(uint64(1000), 0, 3, overflow, now.Add(time.Second))
	assert.Equal(t, FragmentErrTooManyFragmentsForPath, outcome)
	assert.Len(t, d.sets, constant.MaxFragmentsPerPath-1)
}
