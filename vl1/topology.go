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
	"sort"
	"sync"
	"time"

	"github.com/zerotier/vl1core/constant"
	"github.com/zerotier/vl1core/protocol"
	"github.com/zerotier/vl1core/security"
	"github.com/zerotier/vl1core/store"
	"inet.af/netaddr"
)

// TrustStore reports the current set of root identities, mirroring the
// reference TrustStore collaborator. Topology.TrustStoreChanged consults it
// to rebuild the ranked root list.
type TrustStore interface {
	Roots() []*security.Identity
}

// Topology is the process-wide registry of known peers and paths, and the
// ranked root list (§4.5). Peer/path maps use a read-write lock since reads
// vastly outnumber writes; the root list uses its own short exclusive lock
// plus a separately-guarded best-root pointer so ranking writes never
// block the read path.
type Topology struct {
	peersMu sync.RWMutex
	peers   map[protocol.Address]*Peer

	pathsMu sync.RWMutex
	paths   map[string]*Path

	rootsMu sync.Mutex
	roots   []*Peer

	bestRootMu sync.Mutex
	bestRoot   *Peer

	store store.Store
	self  *security.Identity
}

// NewTopology constructs an empty Topology backed by the given persistent
// Store (may be store.NewMemStore() for tests or ephemeral deployments).
// self is this node's own identity, used to compute the raw identity key
// (the static Curve25519 agreement) whenever Topology itself needs to
// construct a Peer, e.g. while loading a cached identity or adding a root.
func NewTopology(self *security.Identity, st store.Store) *Topology {
	return &Topology{
		peers: make(map[protocol.Address]*Peer),
		paths: make(map[string]*Path),
		store: st,
		self:  self,
	}
}

// newPeerFor constructs a Peer for id, deriving its raw identity key via
// this node's own private key (§4.3 raw_identity_key).
func (t *Topology) newPeerFor(id *security.Identity) (*Peer, error) {
	rawKey, err := t.self.Agree(id)
	if err != nil {
		return nil, err
	}
	return newPeer(id, rawKey), nil
}

// Path interns (or creates) the Path for (localSocket, endpoint), so every
// packet arriving over the same physical route resolves to the same
// object (§4.4).
func (t *Topology) Path(localSocket int, localInterface string, endpoint netaddr.IPPort) *Path {
	key := pathKey(localSocket, endpoint)

	t.pathsMu.RLock()
	p, ok := t.paths[key]
	t.pathsMu.RUnlock()
	if ok {
		return p
	}

	candidate := newPath(endpoint, localSocket, localInterface)
	t.pathsMu.Lock()
	defer t.pathsMu.Unlock()
	if existing, ok := t.paths[key]; ok {
		return existing
	}
	t.paths[key] = candidate
	return candidate
}

// Peer returns the in-memory Peer for address, loading it from the
// persistent store when createIfMissing is set and it's absent from
// memory, mirroring Topology::m_loadCached (§4.5).
func (t *Topology) Peer(address protocol.Address, createIfMissing bool) *Peer {
	t.peersMu.RLock()
	p, ok := t.peers[address]
	t.peersMu.RUnlock()
	if ok {
		return p
	}
	if !createIfMissing {
		return nil
	}
	return t.loadCached(address)
}

func (t *Topology) loadCached(address protocol.Address) *Peer {
	if t.store == nil {
		return nil
	}
	addrBytes := address.Bytes()
	data, err := t.store.Get(store.ObjectTypeIdentity, addrBytes[:])
	if err != nil || len(data) <= 8 {
		return nil
	}

	ts := int64(binary.BigEndian.Uint64(data[:8]))
	if time.Since(time.Unix(0, ts)) >= constant.PeerGlobalTimeout {
		return nil
	}

	id, _, err := security.UnmarshalIdentity(data[8:])
	if err != nil {
		return nil
	}

	t.peersMu.Lock()
	defer t.peersMu.Unlock()
	if existing, ok := t.peers[address]; ok {
		return existing
	}
	p, err := t.newPeerFor(id)
	if err != nil {
		return nil
	}
	t.peers[address] = p
	return p
}

// Add inserts peer under its own address unless one already exists there,
// in which case the existing Peer is returned. Two live Peer objects for
// the same Address are never permitted.
func (t *Topology) Add(peer *Peer) *Peer {
	t.peersMu.Lock()
	defer t.peersMu.Unlock()
	if existing, ok := t.peers[peer.Address]; ok {
		return existing
	}
	if cached := t.loadCachedLocked(peer.Address); cached != nil {
		return cached
	}
	t.peers[peer.Address] = peer
	return peer
}

func (t *Topology) loadCachedLocked(address protocol.Address) *Peer {
	if t.store == nil {
		return nil
	}
	addrBytes := address.Bytes()
	data, err := t.store.Get(store.ObjectTypeIdentity, addrBytes[:])
	if err != nil || len(data) <= 8 {
		return nil
	}
	ts := int64(binary.BigEndian.Uint64(data[:8]))
	if time.Since(time.Unix(0, ts)) >= constant.PeerGlobalTimeout {
		return nil
	}
	id, _, err := security.UnmarshalIdentity(data[8:])
	if err != nil {
		return nil
	}
	p, err := t.newPeerFor(id)
	if err != nil {
		return nil
	}
	return p
}

// Root returns the current best root by ranking, or nil if there are none.
func (t *Topology) Root() *Peer {
	t.bestRootMu.Lock()
	defer t.bestRootMu.Unlock()
	return t.bestRoot
}

// AllPeers returns a snapshot of every known peer and, separately, the
// current root list.
func (t *Topology) AllPeers() (all []*Peer, roots []*Peer) {
	t.peersMu.RLock()
	all = make([]*Peer, 0, len(t.peers))
	for _, p := range t.peers {
		all = append(all, p)
	}
	t.peersMu.RUnlock()

	t.rootsMu.Lock()
	roots = append(roots, t.roots...)
	t.rootsMu.Unlock()
	return all, roots
}

// TrustStoreChanged recomputes the root list from ts, creating or loading
// a Peer for every reported root identity (§4.5, §4.7.2 Open Question).
func (t *Topology) TrustStoreChanged(ts TrustStore) {
	identities := ts.Roots()
	newRoots := make([]*Peer, 0, len(identities))

	for _, id := range identities {
		root := t.Peer(id.Address(), true)
		if root == nil {
			candidate, err := t.newPeerFor(id)
			if err != nil {
				continue
			}
			root = t.Add(candidate)
		}
		newRoots = append(newRoots, root)
	}

	t.rootsMu.Lock()
	t.roots = newRoots
	t.rankRootsLocked()
	t.rootsMu.Unlock()
}

// rankRootsLocked re-sorts m.roots by the reference ranking comparator and
// republishes the best-root pointer. Called with rootsMu held.
//
// Primary key: most-recent last_receive, quantized to
// PathKeepalivePeriod/2 so recently-alive roots tie. Secondary key: lowest
// measured latency, with a negative (unmeasured) latency sorting worse than
// any known value.
func (t *Topology) rankRootsLocked() {
	if len(t.roots) == 0 {
		t.bestRootMu.Lock()
		t.bestRoot = nil
		t.bestRootMu.Unlock()
		return
	}

	quantum := constant.PathKeepalivePeriod / 2
	sort.SliceStable(t.roots, func(i, j int) bool {
		a, b := t.roots[i], t.roots[j]
		alr := a.LastReceiveTime().UnixNano() / int64(quantum)
		blr := b.LastReceiveTime().UnixNano() / int64(quantum)
		if alr != blr {
			return alr > blr
		}
		al, bl := a.Latency(), b.Latency()
		if al < 0 {
			return false // a's latency unknown: never better than b
		}
		if bl < 0 {
			return true // b's latency unknown: a (known) is better
		}
		return al < bl
	})

	t.bestRootMu.Lock()
	t.bestRoot = t.roots[0]
	t.bestRootMu.Unlock()
}

// Periodic runs the two-phase GC pass (§4.5, §5): a read-locked snapshot of
// candidate (non-root, stale) addresses, then a write-locked erase. A
// single write-locked pass over a large peer table would stall packet
// processing, so the structure is mandatory, not an optimization.
func (t *Topology) Periodic(now time.Time) {
	t.rootsMu.Lock()
	rootSet := make(map[*Peer]struct{}, len(t.roots))
	for _, r := range t.roots {
		rootSet[r] = struct{}{}
	}
	t.rootsMu.Unlock()

	var stale []protocol.Address
	t.peersMu.RLock()
	for addr, p := range t.peers {
		if _, isRoot := rootSet[p]; isRoot {
			continue
		}
		if now.Sub(p.LastReceiveTime()) > constant.PeerAliveTimeout {
			stale = append(stale, addr)
		}
	}
	t.peersMu.RUnlock()

	for _, addr := range stale {
		t.peersMu.Lock()
		p, ok := t.peers[addr]
		if ok {
			delete(t.peers, addr)
		}
		t.peersMu.Unlock()
		if ok {
			t.savePeer(p)
		}
	}

	t.pathsMu.Lock()
	for key, p := range t.paths {
		p.backgroundTasks(now)
		if !p.Alive(now, constant.PeerGlobalTimeout) {
			delete(t.paths, key)
		}
	}
	t.pathsMu.Unlock()
}

func (t *Topology) savePeer(p *Peer) {
	if t.store == nil {
		return
	}
	wire := p.Identity().Marshal()
	data := make([]byte, 8+len(wire))
	binary.BigEndian.PutUint64(data[:8], uint64(time.Now().UnixNano()))
	copy(data[8:], wire)
	addrBytes := p.Address.Bytes()
	_ = t.store.Put(store.ObjectTypeIdentity, addrBytes[:], data)
}
