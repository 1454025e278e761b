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
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-semver/semver"
	"github.com/zerotier/vl1core/constant"
	"github.com/zerotier/vl1core/protocol"
	"github.com/zerotier/vl1core/security"
)

// RemoteVersion is the software/protocol version a peer last announced in
// its HELLO (§4.3 set_remote_version).
type RemoteVersion struct {
	Proto uint8
	Major uint8
	Minor uint8
	Rev   uint16
}

// SemVer parses the announced Major.Minor.Rev triple as a semantic version,
// letting callers compare peer software versions (e.g. to gate a feature on
// a minimum remote release) the same way the portal gates plugin versions.
func (v RemoteVersion) SemVer() *semver.Version {
	return semver.New(fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Rev))
}

// OlderThan reports whether v announces a strictly older software version
// than other.
func (v RemoteVersion) OlderThan(other RemoteVersion) bool {
	return v.SemVer().LessThan(*other.SemVer())
}

// Peer holds per-remote-node state: identity, session keys, dedup ring,
// known paths, remote version, and rate-gate counters (§3, §4.3). Readonly
// fields are set once at construction; every field that mutates after that
// lives behind mu, except the dedup ring (behind dedupMu) and the rate gates
// (each with its own mutex), following the same shape as a conventional mutable-state
// object with a read-write lock guarding a handful of hot fields.
type Peer struct {
	Address        protocol.Address
	identity       *security.Identity
	rawIdentityKey [32]byte
	helloHMACKey   [48]byte
	helloDictKey   [16]byte

	mu            sync.RWMutex
	sessionKey    *SymmetricKey
	cipher        protocol.Cipher
	paths         []*Path
	remoteVersion RemoteVersion
	lastReceive   time.Time
	lastSend      time.Time
	locator       []byte
	latency       time.Duration

	dedupMu  sync.Mutex
	dedupSet map[uint64]struct{}
	dedupIdx int
	dedupIDs [constant.DedupWindow]uint64

	whoisGate rateGate
	echoGate  rateGate
}

func newPeer(id *security.Identity, rawIdentityKey [32]byte) *Peer {
	p := &Peer{
		Address:        id.Address(),
		identity:       id,
		rawIdentityKey: rawIdentityKey,
		helloHMACKey:   security.HelloHMACKey(rawIdentityKey),
		helloDictKey:   security.HelloDictKey(rawIdentityKey),
		sessionKey:     newSymmetricKey(rawIdentityKey),
		cipher:         protocol.CipherPOLY1305_SALSA2012,
		dedupSet:       make(map[uint64]struct{}, constant.DedupWindow),
		whoisGate:      newRateGate(4, time.Second),
		echoGate:       newRateGate(8, time.Second),
		latency:        -1,
	}
	return p
}

// Identity returns the peer's validated Identity.
func (p *Peer) Identity() *security.Identity { return p.identity }

// RawIdentityKey returns the static Curve25519 agreement key used to derive
// per-packet Salsa20/Poly1305 keys and the HELLO HMAC/dictionary keys.
func (p *Peer) RawIdentityKey() [32]byte { return p.rawIdentityKey }

// HelloHMACKey returns the key used to authenticate v11+ HELLO exchanges.
func (p *Peer) HelloHMACKey() [48]byte { return p.helloHMACKey }

// HelloDictKey returns the AES-128 key used to encrypt the HELLO metadata
// dictionary.
func (p *Peer) HelloDictKey() [16]byte { return p.helloDictKey }

// Key returns the peer's current outbound session key.
func (p *Peer) Key() *SymmetricKey {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sessionKey
}

// Cipher returns the peer's current outbound cipher.
func (p *Peer) Cipher() protocol.Cipher {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cipher
}

// SetRemoteVersion records the software/protocol version the peer last
// announced.
func (p *Peer) SetRemoteVersion(v RemoteVersion) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remoteVersion = v
}

// RemoteVersion returns the peer's last announced version.
func (p *Peer) RemoteVersion() RemoteVersion {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.remoteVersion
}

// Locator returns the peer's optional signed endpoint bundle, opaque to
// VL1 beyond storage and forwarding.
func (p *Peer) Locator() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.locator
}

// SetLocator stores the peer's signed endpoint bundle.
func (p *Peer) SetLocator(loc []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locator = loc
}

// LastReceiveTime returns the last time any packet was received from this
// peer, over any path.
func (p *Peer) LastReceiveTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastReceive
}

// Latency returns the most recently measured round-trip time to this peer,
// or a negative value if no round trip has been measured yet (§4.5 root
// ranking treats a negative latency as worse than any known value).
func (p *Peer) Latency() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latency
}

// RecordLatency updates the measured round-trip time to this peer, taken
// from an OK or ERROR reply's elapsed time since the original request was
// sent (§4.6 Expect).
func (p *Peer) RecordLatency(rtt time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latency = rtt
}

// Received updates liveness and records path as the most-recently-received
// path, promoting it to the front of the small known-paths set (§4.3).
func (p *Peer) Received(path *Path, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastReceive = now
	p.promotePathLocked(path)
}

// Send hands bytes to the peer's best usable path, falling back to an
// explicit path when the caller supplies one (e.g. a HELLO reply or WHOIS
// fan-out to a root that has no qualifying "best" path yet).
func (p *Peer) Send(sender Sender, data []byte, explicit *Path, now time.Time) error {
	path := explicit
	if path == nil {
		path = p.BestPath(now)
	}
	if path == nil {
		return errNoPath
	}
	p.mu.Lock()
	p.lastSend = now
	p.mu.Unlock()
	path.markSend(now)
	return sender.Send(path, data)
}

// BestPath returns the most-recently-received-on path that is still within
// PathAliveTimeout, or nil if none qualifies (§4.3 path selection).
func (p *Peer) BestPath(now time.Time) *Path {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, path := range p.paths {
		if path.Alive(now, constant.PathAliveTimeout) {
			return path
		}
	}
	return nil
}

// AddPath records a newly discovered candidate path for this peer, bounded
// to a small set by evicting the least-recently-used entry.
func (p *Peer) AddPath(path *Path) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.promotePathLocked(path)
}

const maxPeerPaths = 8

func (p *Peer) promotePathLocked(path *Path) {
	for i, existing := range p.paths {
		if existing == path {
			copy(p.paths[1:i+1], p.paths[:i])
			p.paths[0] = path
			return
		}
	}
	p.paths = append([]*Path{path}, p.paths...)
	if len(p.paths) > maxPeerPaths {
		p.paths = p.paths[:maxPeerPaths]
	}
}

// DeduplicateIncomingPacket reports whether id was seen within the dedup
// window and records it if not (§3 invariants, §4.3).
func (p *Peer) DeduplicateIncomingPacket(id uint64) bool {
	p.dedupMu.Lock()
	defer p.dedupMu.Unlock()

	if _, seen := p.dedupSet[id]; seen {
		return true
	}

	evicted := p.dedupIDs[p.dedupIdx]
	delete(p.dedupSet, evicted)
	p.dedupIDs[p.dedupIdx] = id
	p.dedupSet[id] = struct{}{}
	p.dedupIdx = (p.dedupIdx + 1) % constant.DedupWindow
	return false
}

// RateGateInboundWHOIS reports whether an inbound WHOIS request from this
// peer should be honoured right now.
func (p *Peer) RateGateInboundWHOIS(now time.Time) bool { return p.whoisGate.allow(now) }

// RateGateInboundEcho reports whether an inbound ECHO request from this
// peer should be honoured right now.
func (p *Peer) RateGateInboundEcho(now time.Time) bool { return p.echoGate.allow(now) }

var errNoPath = pathError("no usable path to peer")

type pathError string

func (e pathError) Error() string { return string(e) }
