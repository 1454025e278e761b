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
	"time"

	"github.com/pkg/errors"
	"github.com/zerotier/vl1core/constant"
	"github.com/zerotier/vl1core/errcode"
	"github.com/zerotier/vl1core/protocol"
	"github.com/zerotier/vl1core/security"
	"github.com/zerotier/vl1core/vl2"
	"inet.af/netaddr"
)

// dispatchVerb routes an authenticated, decompressed payload to the
// appropriate verb handler (§4.7.3). peer, path and payload have already
// passed dedup and MAC verification; payload starts right after the verb
// byte.
func (c *Context) dispatchVerb(peer *Peer, path *Path, header protocol.Header, payload []byte, now time.Time) {
	switch header.Verb {
	case protocol.VerbNOP:
		// no-op, used purely to keep a path's dedup/liveness state warm.
	case protocol.VerbOK:
		c.handleOK(peer, header, payload, now)
	case protocol.VerbERROR:
		c.handleError(peer, header, payload)
	case protocol.VerbWHOIS:
		c.handleWhois(peer, path, header, payload, now)
	case protocol.VerbRENDEZVOUS:
		c.handleRendezvous(peer, payload)
	case protocol.VerbECHO:
		c.handleEcho(peer, path, header, payload, now)
	case protocol.VerbPUSH_DIRECT_PATHS:
		c.handlePushDirectPaths(peer, payload)
	case protocol.VerbUSER_MESSAGE, protocol.VerbENCAP:
		// Surfaced to the API layer; VL1 itself doesn't interpret these.
	case protocol.VerbFRAME:
		c.forwardFrame(peer, payload)
	case protocol.VerbEXT_FRAME:
		c.forwardExtFrame(peer, payload)
	case protocol.VerbMULTICAST_LIKE:
		c.forwardMulticastLike(peer, payload)
	case protocol.VerbNETWORK_CREDENTIALS:
		c.VL2.HandleNetworkCredentials(peer.Address, payload)
	case protocol.VerbNETWORK_CONFIG_REQUEST:
		c.forwardNetworkConfigRequest(peer, payload)
	case protocol.VerbNETWORK_CONFIG:
		c.forwardNetworkConfig(peer, payload)
	case protocol.VerbMULTICAST_GATHER:
		c.forwardMulticastGather(peer, payload)
	case protocol.VerbMULTICAST:
		c.forwardMulticast(peer, payload)
	default:
		if c.Trace != nil {
			c.Trace.IncomingPacketDropped(header.PacketID, header.Source, errcode.UnrecognizedVerb)
		}
	}
}

// handleOK processes an OK reply, dropping it unless we're actually
// expecting a reply to in_re_packet_id (§4.7.3). The in-re-verb switch is
// kept as explicit, named no-op branches rather than a bare default so a
// future per-verb finalization hook has a defined seam, matching the
// reference source's structure.
func (c *Context) handleOK(peer *Peer, header protocol.Header, payload []byte, now time.Time) {
	if len(payload) < 9 {
		return
	}
	inReVerb := protocol.Verb(payload[0])
	inRePacketID := binary.BigEndian.Uint64(payload[1:9])
	ok, rtt := c.Expect.Expecting(inRePacketID, now)
	if !ok {
		if c.Trace != nil {
			c.Trace.IncomingPacketDropped(header.PacketID, header.Source, errcode.ReplyNotExpected)
		}
		return
	}
	peer.RecordLatency(rtt)

	switch inReVerb {
	case protocol.VerbHELLO:
		// The handshake state (remote version, path liveness) was already
		// recorded by HandleHello's counterpart on the initiating side once
		// the reply arrives via Received; nothing further to do here.
	case protocol.VerbWHOIS:
		c.handleOKWhois(payload[9:])
	case protocol.VerbNETWORK_CONFIG_REQUEST:
		// Surfaced to the API layer; VL1 itself doesn't interpret network
		// config bodies.
	case protocol.VerbMULTICAST_GATHER:
		// Gathered member lists are opaque to VL1; VL2 owns interpretation.
	}
}

// handleOKWhois parses the list of self-delimited identities carried by an
// OK(WHOIS) reply, adds each as a Peer, and replays whatever packets were
// waiting on that address (§4.7.1 step 10, §4.7.3).
func (c *Context) handleOKWhois(body []byte) {
	for len(body) > 0 {
		id, n, err := security.UnmarshalIdentity(body)
		if err != nil || n == 0 {
			return
		}
		body = body[n:]

		peer := c.Topology.Peer(id.Address(), false)
		if peer == nil {
			candidate, cerr := c.Topology.newPeerFor(id)
			if cerr != nil {
				continue
			}
			peer = c.Topology.Add(candidate)
		}
		if c.whois != nil && c.replayFn != nil {
			for _, p := range c.whois.resolve(id.Address()) {
				replay := append([]byte(nil), p.data.Bytes()...)
				p.data.Release()
				c.replayFn(p.path, replay)
			}
		}
		_ = peer
	}
}

// handleError processes an ERROR reply, subject to the same expectancy
// check as OK (§4.7.3). The error-code switch is kept as explicit, named
// no-op branches rather than a bare default, matching handleOK's in-re-verb
// structure and the reference source.
func (c *Context) handleError(peer *Peer, header protocol.Header, payload []byte) {
	if len(payload) < 10 {
		return
	}
	inRePacketID := binary.BigEndian.Uint64(payload[1:9])
	code := protocol.ErrorCode(payload[9])
	ok, rtt := c.Expect.Expecting(inRePacketID, time.Now())
	if !ok {
		if c.Trace != nil {
			c.Trace.IncomingPacketDropped(header.PacketID, header.Source, errcode.ReplyNotExpected)
		}
		return
	}
	peer.RecordLatency(rtt)

	switch code {
	case protocol.ErrorObjNotFound:
		// The requested identity/network is unknown to the peer; nothing
		// further to do beyond surfacing it below.
	case protocol.ErrorUnsupportedOperation:
		// The peer doesn't implement the verb we sent it.
	case protocol.ErrorNeedMembershipCertificate:
		// VL2 network membership is out of scope for VL1 to act on.
	case protocol.ErrorNetworkAccessDenied:
		// VL2 network membership is out of scope for VL1 to act on.
	}

	if c.Trace != nil {
		c.Trace.UnexpectedError("remote error", errors.New(errorCodeString(code)))
	}
}

// handleWhois answers an inbound WHOIS query with an OK(WHOIS) carrying
// every identity we have on hand for the requested addresses, paged to stay
// under MaxPacketLen (§4.7.3).
func (c *Context) handleWhois(peer *Peer, path *Path, header protocol.Header, payload []byte, now time.Time) {
	if !peer.RateGateInboundWHOIS(now) {
		if c.Trace != nil {
			c.Trace.IncomingPacketDropped(header.PacketID, header.Source, errcode.RateLimitExceeded)
		}
		return
	}

	const addrLen = constant.AddressSize
	var identities [][]byte
	for off := 0; off+addrLen <= len(payload); off += addrLen {
		addr, err := protocol.AddressFromBytes(payload[off : off+addrLen])
		if err != nil {
			continue
		}
		p := c.Topology.Peer(addr, true)
		if p == nil {
			continue
		}
		identities = append(identities, p.Identity().Marshal())
	}
	if len(identities) == 0 {
		return
	}

	page := make([]byte, 0, constant.MaxPacketLen-protocol.OffsetPayload)
	for _, idBytes := range identities {
		if len(page)+len(idBytes) > constant.MaxPacketLen-protocol.OffsetPayload-9 {
			c.sendOKWhois(peer, path, header.PacketID, page, now)
			page = page[:0]
		}
		page = append(page, idBytes...)
	}
	if len(page) > 0 {
		c.sendOKWhois(peer, path, header.PacketID, page, now)
	}
}

func (c *Context) sendOKWhois(peer *Peer, path *Path, inRePacketID uint64, identities []byte, now time.Time) {
	buf := make([]byte, protocol.OffsetPayload+9+len(identities))
	replyID := peer.Key().NextMessage()
	n := protocol.NewPacket(buf, replyID, peer.Address, c.Identity.Address(), protocol.VerbOK)
	buf[n] = byte(protocol.VerbWHOIS)
	binary.BigEndian.PutUint64(buf[n+1:], inRePacketID)
	copy(buf[n+9:], identities)
	armor(buf, protocol.OffsetPayload, replyID, peer.Key(), peer.Cipher())
	_ = peer.Send(c.Sender, buf, path, now)
}

// handleRendezvous relays a NAT hole-punch hint from a trusted root to the
// named peer, if we know one (§4.7.3). Only a current root is honored.
func (c *Context) handleRendezvous(peer *Peer, payload []byte) {
	root := c.Topology.Root()
	if root == nil || root != peer {
		return
	}
	if len(payload) < 5+1+1 {
		return
	}
	targetAddr, err := protocol.AddressFromBytes(payload[0:5])
	if err != nil {
		return
	}
	target := c.Topology.Peer(targetAddr, false)
	if target == nil {
		return
	}
	port := binary.BigEndian.Uint16(payload[5:7])
	addrLen := payload[7]
	rest := payload[8:]

	var hint netaddr.IPPort
	switch addrLen {
	case 4:
		if len(rest) < 4 {
			return
		}
		var b [4]byte
		copy(b[:], rest[:4])
		hint = netaddr.IPPortFrom(netaddr.IPFrom4(b), port)
	case 16:
		if len(rest) < 16 {
			return
		}
		var b [16]byte
		copy(b[:], rest[:16])
		hint = netaddr.IPPortFrom(netaddr.IPFrom16(b), port)
	case 255:
		ep, usable, err := parseEndpoint(rest)
		if err != nil || !usable {
			return
		}
		hint = ep
	default:
		return
	}
	target.AddPath(c.Topology.Path(0, "", hint))
}

// handleEcho answers an ECHO with an OK(ECHO) that echoes the payload
// verbatim, subject to a rate gate (§4.7.3).
func (c *Context) handleEcho(peer *Peer, path *Path, header protocol.Header, payload []byte, now time.Time) {
	if !peer.RateGateInboundEcho(now) {
		if c.Trace != nil {
			c.Trace.IncomingPacketDropped(header.PacketID, header.Source, errcode.RateLimitExceeded)
		}
		return
	}
	buf := make([]byte, protocol.OffsetPayload+9+len(payload))
	replyID := peer.Key().NextMessage()
	n := protocol.NewPacket(buf, replyID, peer.Address, c.Identity.Address(), protocol.VerbOK)
	buf[n] = byte(protocol.VerbECHO)
	binary.BigEndian.PutUint64(buf[n+1:], header.PacketID)
	copy(buf[n+9:], payload)
	armor(buf, protocol.OffsetPayload, replyID, peer.Key(), peer.Cipher())
	_ = peer.Send(c.Sender, buf, path, now)
}

// handlePushDirectPaths parses the variable-length list of candidate
// addresses a peer is advertising and records each as a known path so
// BestPath selection can try it once it starts receiving traffic (§4.7.3).
func (c *Context) handlePushDirectPaths(peer *Peer, payload []byte) {
	off := 0
	for off < len(payload) {
		if off+2 > len(payload) {
			return
		}
		flags := payload[off]
		extAttrsLen := int(payload[off+1])
		off += 2
		if off+extAttrsLen > len(payload) {
			return
		}
		off += extAttrsLen // extended attributes are opaque to VL1

		if off+2 > len(payload) {
			return
		}
		addrType := payload[off]
		addrLen := int(payload[off+1])
		off += 2
		if off+addrLen > len(payload) {
			return
		}
		addrBytes := payload[off : off+addrLen]
		off += addrLen

		var endpoint netaddr.IPPort
		switch addrType {
		case 0:
			ep, usable, err := parseEndpoint(addrBytes)
			if err != nil || !usable {
				continue
			}
			endpoint = ep
		case 4:
			if len(addrBytes) != 4 {
				continue
			}
			if off+2 > len(payload) {
				return
			}
			var b [4]byte
			copy(b[:], addrBytes)
			endpoint = netaddr.IPPortFrom(netaddr.IPFrom4(b), binary.BigEndian.Uint16(payload[off:off+2]))
			off += 2
		case 6:
			if len(addrBytes) != 16 {
				continue
			}
			if off+2 > len(payload) {
				return
			}
			var b [16]byte
			copy(b[:], addrBytes)
			endpoint = netaddr.IPPortFrom(netaddr.IPFrom16(b), binary.BigEndian.Uint16(payload[off:off+2]))
			off += 2
		default:
			continue
		}

		peer.AddPath(c.Topology.Path(0, "", endpoint))
		_ = flags
	}
}

func (c *Context) forwardFrame(peer *Peer, payload []byte) {
	if len(payload) < 10 {
		return
	}
	networkID := binary.BigEndian.Uint64(payload[0:8])
	etherType := binary.BigEndian.Uint16(payload[8:10])
	c.VL2.HandleFrame(peer.Address, networkID, etherType, payload[10:])
}

func (c *Context) forwardExtFrame(peer *Peer, payload []byte) {
	if len(payload) < 11 {
		return
	}
	networkID := binary.BigEndian.Uint64(payload[0:8])
	flags := payload[8]
	etherType := binary.BigEndian.Uint16(payload[9:11])
	c.VL2.HandleExtFrame(peer.Address, networkID, flags, etherType, payload[11:])
}

func (c *Context) forwardMulticastLike(peer *Peer, payload []byte) {
	const recLen = 8 + 6 + 4
	var groups []vl2.MulticastGroup
	for off := 0; off+recLen <= len(payload); off += recLen {
		g := vl2.MulticastGroup{
			NetworkID: binary.BigEndian.Uint64(payload[off : off+8]),
			ADI:       binary.BigEndian.Uint32(payload[off+14 : off+18]),
		}
		copy(g.MAC[:], payload[off+8:off+14])
		groups = append(groups, g)
	}
	c.VL2.HandleMulticastLike(peer.Address, groups)
}

func (c *Context) forwardNetworkConfigRequest(peer *Peer, payload []byte) {
	if len(payload) < 8 {
		return
	}
	networkID := binary.BigEndian.Uint64(payload[0:8])
	c.VL2.HandleNetworkConfigRequest(peer.Address, networkID, payload[8:])
}

func (c *Context) forwardNetworkConfig(peer *Peer, payload []byte) {
	if len(payload) < 8 {
		return
	}
	networkID := binary.BigEndian.Uint64(payload[0:8])
	c.VL2.HandleNetworkConfig(peer.Address, networkID, payload[8:])
}

func (c *Context) forwardMulticastGather(peer *Peer, payload []byte) {
	if len(payload) < 8+6+4+4 {
		return
	}
	networkID := binary.BigEndian.Uint64(payload[0:8])
	var mac [6]byte
	copy(mac[:], payload[8:14])
	adi := binary.BigEndian.Uint32(payload[14:18])
	limit := binary.BigEndian.Uint32(payload[18:22])
	c.VL2.HandleMulticastGather(peer.Address, networkID, mac, adi, limit)
}

func (c *Context) forwardMulticast(peer *Peer, payload []byte) {
	if len(payload) < 8+6+4+2 {
		return
	}
	networkID := binary.BigEndian.Uint64(payload[0:8])
	var mac [6]byte
	copy(mac[:], payload[8:14])
	adi := binary.BigEndian.Uint32(payload[14:18])
	etherType := binary.BigEndian.Uint16(payload[18:20])
	c.VL2.HandleMulticast(peer.Address, networkID, mac, adi, etherType, payload[20:])
}

func errorCodeString(code protocol.ErrorCode) string {
	switch code {
	case protocol.ErrorInvalidRequest:
		return "invalid request"
	case protocol.ErrorBadProtocolVersion:
		return "bad protocol version"
	case protocol.ErrorObjNotFound:
		return "object not found"
	case protocol.ErrorUnsupportedOperation:
		return "unsupported operation"
	case protocol.ErrorNeedMembershipCertificate:
		return "need membership certificate"
	case protocol.ErrorNetworkAccessDenied:
		return "network access denied"
	default:
		return "unknown error code"
	}
}
