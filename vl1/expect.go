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
	"sync"
	"time"

	"github.com/zerotier/vl1core/constant"
)

const expectCapacity = 4096

// Expect is a sliding registry of outgoing packet IDs we're waiting on a
// reply for (§4.6), used to reject unsolicited OK and ERROR replies. Reads
// dominate writes only slightly, so a sync.Map (as used for the session
// registry in the retrieved relay server code) fits better than a
// RWMutex-guarded map here.
type Expect struct {
	entries sync.Map // uint64 packetID -> time.Time sendTime
	count   int32
	mu      sync.Mutex
}

// NewExpect constructs an empty Expect table.
func NewExpect() *Expect {
	return &Expect{}
}

// Sending records that we just sent a packet with the given id and are
// awaiting a reply.
func (e *Expect) Sending(id uint64, now time.Time) {
	e.mu.Lock()
	if e.count >= expectCapacity {
		e.evictOldestLocked()
	}
	if _, loaded := e.entries.LoadOrStore(id, now); !loaded {
		e.count++
	}
	e.mu.Unlock()
}

// Expecting reports whether id is a pending reply we're waiting on, and if
// so removes it (a reply is consumed at most once) and checks it hasn't
// aged out past ExpectTTL. The returned duration is the round-trip time
// since the original packet was sent, valid only when ok is true; callers
// use it to feed a Peer's measured latency (§4.5 root ranking).
func (e *Expect) Expecting(id uint64, now time.Time) (ok bool, rtt time.Duration) {
	v, loaded := e.entries.LoadAndDelete(id)
	if !loaded {
		return false, 0
	}
	e.mu.Lock()
	e.count--
	e.mu.Unlock()

	sendTime := v.(time.Time)
	rtt = now.Sub(sendTime)
	return rtt < constant.ExpectTTL, rtt
}

// evictOldestLocked drops entries older than the TTL to make room; called
// with mu held. If nothing has expired yet it does nothing further, letting
// the table temporarily exceed capacity rather than dropping a still-valid
// expectation.
func (e *Expect) evictOldestLocked() {
	now := time.Now()
	e.entries.Range(func(key, value interface{}) bool {
		if now.Sub(value.(time.Time)) >= constant.ExpectTTL {
			e.entries.Delete(key)
			e.count--
		}
		return true
	})
}
