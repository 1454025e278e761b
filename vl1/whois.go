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

	"github.com/zerotier/vl1core/buf"
	"github.com/zerotier/vl1core/constant"
	"github.com/zerotier/vl1core/protocol"
)

// pendingPacket is one datagram held for replay once its unknown source
// address resolves to a Peer.
type pendingPacket struct {
	data *buf.Buf
	path *Path
}

// whoisEntry tracks one outstanding WHOIS query (§4.7.1 step 10, §4.7.4).
type whoisEntry struct {
	queue     []pendingPacket
	retries   int
	lastRetry time.Time
}

// whoisQueue is the process-wide table of addresses we don't yet have a
// Peer for, each holding a short ring of packets to replay on resolution
// (§4.6 design note's sibling structure; spec.md's own whois_queue).
type whoisQueue struct {
	mu      sync.Mutex
	pending map[protocol.Address]*whoisEntry
}

func newWhoisQueue() *whoisQueue {
	return &whoisQueue{pending: make(map[protocol.Address]*whoisEntry)}
}

// enqueue holds pkt for replay once addr resolves, dropping the oldest
// queued packet for addr if its ring is already full. It reports whether a
// WHOIS should be (re)sent for addr right now.
func (w *whoisQueue) enqueue(addr protocol.Address, pkt pendingPacket, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.pending[addr]
	if !ok {
		e = &whoisEntry{}
		w.pending[addr] = e
	}
	if len(e.queue) >= constant.MaxWhoisWaitingPackets {
		e.queue[0].data.Release()
		e.queue = e.queue[1:]
	}
	e.queue = append(e.queue, pkt)

	if now.Sub(e.lastRetry) < constant.WhoisRetryDelay {
		return false
	}
	if e.retries >= constant.WhoisRetryMax {
		return false
	}
	e.retries++
	e.lastRetry = now
	return true
}

// dueAddresses returns every address whose retry delay has elapsed and
// which hasn't exceeded WhoisRetryMax, bumping their retry bookkeeping
// (§4.7.4 send_pending_whois).
func (w *whoisQueue) dueAddresses(now time.Time) []protocol.Address {
	w.mu.Lock()
	defer w.mu.Unlock()

	var due []protocol.Address
	for addr, e := range w.pending {
		if len(e.queue) == 0 {
			continue
		}
		if e.retries >= constant.WhoisRetryMax {
			continue
		}
		if now.Sub(e.lastRetry) < constant.WhoisRetryDelay {
			continue
		}
		e.retries++
		e.lastRetry = now
		due = append(due, addr)
	}
	return due
}

// resolve removes and returns every packet queued for addr, for replay now
// that a Peer exists (§4.7.1 step 10 "replayed once the peer arrives").
func (w *whoisQueue) resolve(addr protocol.Address) []pendingPacket {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.pending[addr]
	if !ok {
		return nil
	}
	delete(w.pending, addr)
	return e.queue
}
