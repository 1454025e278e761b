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

// Package vl1 implements the wire-level peer-to-peer packet engine: packet
// header parsing, fragmentation and reassembly, per-packet armor, the HELLO
// handshake, the WHOIS/Expect bookkeeping, and the ranked root/peer
// Topology (§4). Everything above the authenticated-and-delivered payload
// boundary belongs to the vl2 collaborator.
package vl1

import (
	"errors"
	"time"

	"github.com/zerotier/vl1core/buf"
	"github.com/zerotier/vl1core/constant"
	"github.com/zerotier/vl1core/errcode"
	"github.com/zerotier/vl1core/protocol"
	"github.com/zerotier/vl1core/security"
	"inet.af/netaddr"
)

// Engine is the entry point a socket layer calls into for every received
// datagram, and on a periodic tick for background maintenance (§4.7). It
// wraps a Context, whose outbound WHOIS wait-list and reprocess hook it
// initializes so a resolved WHOIS reply can feed straight back into the
// ingress pipeline.
type Engine struct {
	*Context
}

// NewEngine constructs an Engine over ctx. ctx.Topology, ctx.Expect,
// ctx.Identity and ctx.Sender must be non-nil; ctx.VL2 and ctx.Trace default
// to no-ops when nil at call time.
func NewEngine(ctx *Context) *Engine {
	e := &Engine{Context: ctx}
	ctx.whois = newWhoisQueue()
	ctx.replayFn = func(path *Path, data []byte) {
		e.OnRemotePacket(path.LocalSocket, path.LocalInterface, path.Endpoint, data)
	}
	return e
}

// OnRemotePacket runs the full ingress pipeline for one datagram received
// on localSocket from remoteAddr (§4.7.1). It never panics or returns an
// error that the caller needs to act on beyond logging; every drop is
// local and reported via Trace, matching the "no in-band retry" policy.
func (e *Engine) OnRemotePacket(localSocket int, localInterface string, remoteAddr netaddr.IPPort, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			if e.Trace != nil {
				e.Trace.UnexpectedError("on_remote_packet panic recovered", panicError{r})
			}
		}
	}()

	now := time.Now()
	path := e.Topology.Path(localSocket, localInterface, remoteAddr)

	assembled, ok := e.classifyAndReassemble(path, data, now)
	if !ok {
		return
	}

	header, err := protocol.ParseHeader(assembled)
	if err != nil {
		if e.Trace != nil {
			e.Trace.IncomingPacketDropped(0, protocol.NilAddress, errcode.MalformedPacket)
		}
		return
	}

	if header.Destination != e.Identity.Address() {
		// Relaying to a third party is out of scope; this core only speaks
		// to peers directly addressed to it.
		if e.Trace != nil {
			e.Trace.IncomingPacketDropped(header.PacketID, header.Source, errcode.Unspecified)
		}
		return
	}

	payload := assembled[protocol.OffsetPayload:]

	if header.Verb == protocol.VerbHELLO && (header.Cipher == protocol.CipherNONE || header.Cipher == protocol.CipherPOLY1305_NONE) {
		if _, err := e.HandleHello(path, header, payload, assembled, now); err != nil {
			if e.Trace != nil {
				e.Trace.IncomingPacketDropped(header.PacketID, header.Source, classifyDropReason(err))
			}
		}
		return
	}

	peer := e.Topology.Peer(header.Source, true)
	if peer == nil {
		e.enqueueWhois(header.Source, path, assembled, now)
		return
	}

	if err := e.authenticate(peer, header, assembled); err != nil {
		if e.Trace != nil {
			e.Trace.IncomingPacketDropped(header.PacketID, header.Source, classifyDropReason(err))
		}
		return
	}

	if peer.DeduplicateIncomingPacket(header.PacketID) {
		return
	}

	if header.VerbFlags&protocol.VerbFlagCompressed != 0 {
		decompressed, err := security.LZ4Decompress(payload, constant.MaxBufferSize)
		if err != nil {
			if e.Trace != nil {
				e.Trace.IncomingPacketDropped(header.PacketID, header.Source, errcode.InvalidCompressedData)
			}
			return
		}
		payload = decompressed
	}

	e.dispatchVerb(peer, path, header, payload, now)
	peer.Received(path, now)
}

// classifyAndReassemble runs step 4 of the pipeline: telling a fragment
// head, a fragment tail, and a single unfragmented packet apart, and
// handing each to the owning Path's Defragmenter. It returns the fully
// assembled packet bytes and true once every expected fragment has
// arrived, or false while reassembly is still pending or the fragment was
// rejected (§4.2) — every rejection is reported through Trace before
// returning.
func (e *Engine) classifyAndReassemble(path *Path, data []byte, now time.Time) ([]byte, bool) {
	if protocol.IsFragmentHead(data) {
		if len(data) < constant.MinPacketLen {
			if e.Trace != nil {
				e.Trace.IncomingPacketDropped(0, protocol.NilAddress, errcode.MalformedPacket)
			}
			return nil, false
		}
		header, err := protocol.ParseHeader(data)
		if err != nil {
			return nil, false
		}
		if !header.Fragmented {
			path.receiveOther(now)
			return data, true
		}
		b := buf.Get()
		b.Append(data)
		out, outcome := path.receiveFragment(header.PacketID, 0, 0, b, now)
		return e.resolveFragmentOutcome(header.PacketID, header.Source, out, outcome)
	}

	if len(data) < constant.MinFragmentLen {
		if e.Trace != nil {
			e.Trace.IncomingPacketDropped(0, protocol.NilAddress, errcode.MalformedPacket)
		}
		return nil, false
	}
	fh, err := protocol.ParseFragmentHeader(data)
	if err != nil {
		return nil, false
	}
	b := buf.Get()
	b.Append(data[constant.FragmentHeaderSize:])
	out, outcome := path.receiveFragment(fh.PacketID, fh.FragmentNo, fh.TotalFrags, b, now)
	return e.resolveFragmentOutcome(fh.PacketID, protocol.NilAddress, out, outcome)
}

// resolveFragmentOutcome adapts a Defragmenter outcome (§4.2) to the
// (assembled bytes, proceed) contract the ingress pipeline needs: COMPLETE
// hands back the assembled packet, OK means keep waiting silently, and
// every error outcome is traced as a drop before returning false.
func (e *Engine) resolveFragmentOutcome(packetID uint64, source protocol.Address, out []byte, outcome FragmentOutcome) ([]byte, bool) {
	switch outcome {
	case FragmentComplete:
		return out, true
	case FragmentOK:
		return nil, false
	default:
		if e.Trace != nil {
			e.Trace.IncomingPacketDropped(packetID, source, fragmentDropReason(outcome))
		}
		return nil, false
	}
}

// fragmentDropReason maps a Defragmenter error outcome onto the §7 drop
// reason taxonomy.
func fragmentDropReason(outcome FragmentOutcome) errcode.DropReason {
	switch outcome {
	case FragmentErrInvalidFragment:
		return errcode.MalformedPacket
	case FragmentErrTooManyFragmentsForPath:
		return errcode.RateLimitExceeded
	default:
		return errcode.Unspecified
	}
}

// authenticate runs step 7: MAC/decrypt verification appropriate to the
// packet's declared cipher (§4.7.1, §6). NONE and AES_GMAC_SIV are reserved
// in this core (never produced, always rejected on receipt).
func (e *Engine) authenticate(peer *Peer, header protocol.Header, assembled []byte) error {
	switch header.Cipher {
	case protocol.CipherPOLY1305_NONE, protocol.CipherPOLY1305_SALSA2012:
		return unarmorPoly1305(assembled, protocol.OffsetPayload, header, peer.RawIdentityKey())
	default:
		return errUnsupportedCipher
	}
}

// enqueueWhois implements step 10: hold the packet for replay and kick off
// (or extend) an outbound WHOIS query for its unknown source address
// (§4.7.1, §4.7.4).
func (e *Engine) enqueueWhois(source protocol.Address, path *Path, assembled []byte, now time.Time) {
	b := buf.Get()
	b.Append(assembled)
	shouldSend := e.whois.enqueue(source, pendingPacket{data: b, path: path}, now)
	if shouldSend {
		e.sendWhois(source, now)
	}
}

// sendWhois transmits a WHOIS query for addr to the current root, per
// send_pending_whois (§4.7.4). WHOIS queries are unauthenticated-by-identity
// in the sense that they're just armored with the root's own session key,
// same as any other outbound packet to it.
func (e *Engine) sendWhois(addr protocol.Address, now time.Time) {
	root := e.Topology.Root()
	if root == nil {
		return
	}
	path := root.BestPath(now)
	if path == nil {
		return
	}

	buf := make([]byte, protocol.OffsetPayload+constant.AddressSize)
	id := root.Key().NextMessage()
	n := protocol.NewPacket(buf, id, root.Address, e.Identity.Address(), protocol.VerbWHOIS)
	addrBytes := addr.Bytes()
	copy(buf[n:], addrBytes[:])
	armor(buf, protocol.OffsetPayload, id, root.Key(), root.Cipher())

	e.Expect.Sending(id, now)
	_ = root.Send(e.Sender, buf, path, now)
}

// Periodic runs all of the engine's background maintenance: topology GC,
// per-path fragment-set GC, and retrying due WHOIS queries (§4.5, §4.7.4,
// §5). Callers should invoke this on a steady tick (a few seconds is
// plenty; nothing here is latency sensitive).
func (e *Engine) Periodic(now time.Time) {
	e.Topology.Periodic(now)
	for _, addr := range e.whois.dueAddresses(now) {
		e.sendWhois(addr, now)
	}
}

// classifyDropReason maps an error returned from the ingress pipeline's
// HELLO or authenticate steps onto the §7 drop-reason taxonomy.
func classifyDropReason(err error) errcode.DropReason {
	switch {
	case errors.Is(err, errMACFailed), errors.Is(err, errIdentityMismatch):
		return errcode.MACFailed
	case errors.Is(err, errPeerTooOld):
		return errcode.PeerTooOld
	case errors.Is(err, errHelloTruncated), errors.Is(err, errMalformedInetAddr):
		return errcode.MalformedPacket
	case errors.Is(err, errUnsupportedCipher):
		return errcode.InvalidObject
	default:
		return errcode.Unspecified
	}
}

var errUnsupportedCipher = cipherError("vl1: unsupported or reserved cipher")

type cipherError string

func (e cipherError) Error() string { return string(e) }

// panicError adapts a recover() value to the error interface for Trace.
type panicError struct{ v interface{} }

func (p panicError) Error() string {
	if err, ok := p.v.(error); ok {
		return err.Error()
	}
	return "panic: unknown"
}
