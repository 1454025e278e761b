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
	"sort"
	"sync"
	"time"

	"github.com/zerotier/vl1core/buf"
	"github.com/zerotier/vl1core/constant"
)

// defragmenter reassembles a single path's in-flight fragmented packets
// (§4.2). Each Path owns one, guarded by its own mutex so that fragment
// floods on one path cannot stall another.
type defragmenter struct {
	mu   sync.Mutex
	sets map[uint64]*fragmentSet
}

func newDefragmenter() *defragmenter {
	return &defragmenter{sets: make(map[uint64]*fragmentSet, 8)}
}

// receiveFragment stores a fragment and reports the §4.2 outcome, returning
// the assembled payload alongside FragmentComplete once every expected
// fragment has arrived. This is a defense against denial-of-service by
// broken or hostile peers: a brand-new packet ID arriving while this path
// already has MaxFragmentsPerPath concurrent sets open evicts the single
// oldest set and is itself rejected with FragmentErrTooManyFragmentsForPath
// (rule d), rather than silently growing the map without bound.
func (d *defragmenter) receiveFragment(packetID uint64, no, expecting uint8, b *buf.Buf, now time.Time) ([]byte, FragmentOutcome) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fs, ok := d.sets[packetID]
	if !ok {
		if len(d.sets) >= constant.MaxFragmentsPerPath {
			d.evictOldestLocked(1)
			b.Release()
			return nil, FragmentErrTooManyFragmentsForPath
		}
		fs = &fragmentSet{deadline: now.Add(constant.FragmentAssemblyTimeout)}
		d.sets[packetID] = fs
	}

	outcome := fs.addFragment(b, no, expecting)
	if outcome == FragmentComplete {
		delete(d.sets, packetID)
		out := fs.assembled()
		fs.release()
		return out, FragmentComplete
	}
	return nil, outcome
}

func (d *defragmenter) evictOldestLocked(n int) {
	if n <= 0 {
		return
	}
	type entry struct {
		id       uint64
		deadline time.Time
	}
	entries := make([]entry, 0, len(d.sets))
	for id, fs := range d.sets {
		entries = append(entries, entry{id, fs.deadline})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].deadline.Before(entries[j].deadline) })
	if n > len(entries) {
		n = len(entries)
	}
	for i := 0; i < n; i++ {
		fs := d.sets[entries[i].id]
		fs.release()
		delete(d.sets, entries[i].id)
	}
}

// gc drops any fragment set that has been incomplete past its assembly
// timeout, releasing its partial fragments.
func (d *defragmenter) gc(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, fs := range d.sets {
		if now.After(fs.deadline) {
			fs.release()
			delete(d.sets, id)
		}
	}
}
