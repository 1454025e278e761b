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
	"strconv"
	"time"

	"github.com/zerotier/vl1core/buf"
	"go.uber.org/atomic"
	"inet.af/netaddr"
)

// Path is a concrete network route to a peer: a UDP endpoint reachable from
// a particular local socket (§4.4). Paths are interned by (localSocket,
// endpoint) so that two packets arriving over the same route always find
// the same Path object.
type Path struct {
	Endpoint       netaddr.IPPort
	LocalSocket    int
	LocalInterface string

	lastSend    atomic.Int64 // unix nanos
	lastReceive atomic.Int64 // unix nanos

	defrag *defragmenter
}

func newPath(endpoint netaddr.IPPort, localSocket int, localInterface string) *Path {
	return &Path{
		Endpoint:       endpoint,
		LocalSocket:    localSocket,
		LocalInterface: localInterface,
		defrag:         newDefragmenter(),
	}
}

// LastSendTime returns the last time we transmitted over this path.
func (p *Path) LastSendTime() time.Time {
	return time.Unix(0, p.lastSend.Load())
}

// LastReceiveTime returns the last time we received anything over this
// path, fragment or otherwise.
func (p *Path) LastReceiveTime() time.Time {
	return time.Unix(0, p.lastReceive.Load())
}

// markSend records an outbound transmission.
func (p *Path) markSend(now time.Time) {
	p.lastSend.Store(now.UnixNano())
}

// receiveFragment hands an inbound fragment to this path's defragmenter,
// returning the reassembled payload alongside the §4.2 outcome.
func (p *Path) receiveFragment(packetID uint64, no, expecting uint8, b *buf.Buf, now time.Time) ([]byte, FragmentOutcome) {
	p.lastReceive.Store(now.UnixNano())
	return p.defrag.receiveFragment(packetID, no, expecting, b, now)
}

// receiveOther records receipt of anything that isn't a fragment: a
// complete unfragmented packet, or a bare keepalive.
func (p *Path) receiveOther(now time.Time) {
	p.lastReceive.Store(now.UnixNano())
}

// backgroundTasks runs this path's periodic fragment-set GC (§4.2, §5).
func (p *Path) backgroundTasks(now time.Time) {
	p.defrag.gc(now)
}

// Alive reports whether this path has had traffic within the keepalive
// window used by Topology's path-retention GC (§5).
func (p *Path) Alive(now time.Time, timeout time.Duration) bool {
	last := p.lastReceive.Load()
	if s := p.lastSend.Load(); s > last {
		last = s
	}
	return now.Sub(time.Unix(0, last)) < timeout
}

func pathKey(localSocket int, endpoint netaddr.IPPort) string {
	return endpoint.String() + "|" + strconv.Itoa(localSocket)
}
