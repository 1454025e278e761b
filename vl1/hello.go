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
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	"github.com/zerotier/vl1core/constant"
	"github.com/zerotier/vl1core/protocol"
	"github.com/zerotier/vl1core/security"
	"github.com/zerotier/vl1core/version"
)

var (
	errPeerTooOld       = errors.New("vl1: hello proto version below minimum")
	errIdentityMismatch = errors.New("vl1: hello address bound to a different identity")
	errHelloTruncated   = errors.New("vl1: hello body truncated")
)

// helloBody is the parsed view of a HELLO payload (§4.7.2 step 2, §6).
type helloBody struct {
	protoVersion uint8
	versionMajor uint8
	versionMinor uint8
	versionRev   uint16
	timestampMs  uint64
	identity     *security.Identity
	identityLen  int
	sentTo       int // byte offset in buf right after the self-delimited InetAddress
	dictionary   map[string]string
}

// parseHelloBody reads proto_version, the version triple, the timestamp, the
// self-delimited Identity and sent_to InetAddress, and — for proto>=11 — the
// encrypted dictionary region, authenticating it with the HMAC trailer
// (§4.7.2 steps 2-6, §6 HELLO body layout). key is the peer's (possibly
// freshly constructed) identity_hello_hmac_key / identity_hello_dictionary_
// encryption_cipher pair.
func parseHelloBody(payload []byte, fullPacket []byte, hmacKey [48]byte, dictKey [16]byte) (helloBody, error) {
	var hb helloBody
	if len(payload) < 1+1+1+2+8 {
		return hb, errHelloTruncated
	}
	off := 0
	hb.protoVersion = payload[off]
	off++
	if hb.protoVersion < constant.ProtoVersionMin {
		return hb, errPeerTooOld
	}
	hb.versionMajor = payload[off]
	off++
	hb.versionMinor = payload[off]
	off++
	hb.versionRev = binary.BigEndian.Uint16(payload[off:])
	off += 2
	hb.timestampMs = binary.BigEndian.Uint64(payload[off:])
	off += 8

	id, n, err := security.UnmarshalIdentity(payload[off:])
	if err != nil {
		return hb, err
	}
	hb.identity = id
	hb.identityLen = n
	off += n

	_, n, err = parseInetAddress(payload[off:])
	if err != nil {
		return hb, err
	}
	off += n
	hb.sentTo = off

	if hb.protoVersion < constant.ProtoVersionHMAC {
		return hb, nil
	}

	if len(payload) < off+4+constant.AESCTRNonceLen {
		return hb, errHelloTruncated
	}
	off += 4 // reserved
	nonce := append([]byte(nil), payload[off:off+constant.AESCTRNonceLen]...)
	off += constant.AESCTRNonceLen

	if len(fullPacket) < constant.HMACSHA384Len {
		return hb, errHelloTruncated
	}
	trailerStart := len(fullPacket) - constant.HMACSHA384Len
	gotHMAC := fullPacket[trailerStart:]
	signed := fullPacket[:trailerStart]
	wantHMAC := hmacAuth(signed, hmacKey)
	if !security.SecureEqual(wantHMAC[:], gotHMAC) {
		return hb, errMACFailed
	}

	// payload is fullPacket[OffsetPayload:], so the trailer's position in
	// payload coordinates is offset by OffsetPayload.
	encStart := off
	encEnd := trailerStart - protocol.OffsetPayload
	if encEnd < encStart || encEnd > len(payload) {
		return hb, errHelloTruncated
	}
	enc := append([]byte(nil), payload[encStart:encEnd]...)
	if err := security.AESCTRCrypt(dictKey, nonce, enc); err != nil {
		return hb, err
	}
	if len(enc) < 4 {
		return hb, errHelloTruncated
	}
	dictLen := binary.BigEndian.Uint16(enc[2:4])
	if len(enc) < 4+int(dictLen) {
		return hb, errHelloTruncated
	}
	hb.dictionary = decodeDict(enc[4 : 4+int(dictLen)])
	return hb, nil
}

// HandleHello processes an inbound HELLO per §4.7.2: it bypasses the normal
// peer/cipher lookup (HELLO is how a Peer first comes to exist), validates
// the claimed identity against the claimed address, finds or creates the
// Peer, authenticates the packet, and sends back an OK(HELLO).
//
// packetID/header is the already-parsed packet header; payload is
// buf[OffsetPayload:]; fullPacket is the entire received datagram (needed
// for HMAC, which covers the whole packet with hops/MAC masked).
func (c *Context) HandleHello(path *Path, header protocol.Header, payload []byte, fullPacket []byte, now time.Time) (*Peer, error) {
	// Steps 1-3: parse proto version, software version, timestamp, identity.
	// The HMAC/dict keys depend on the raw identity key, which in turn
	// depends on the claimed identity, so the body is parsed twice: once
	// loosely (to recover the identity for key derivation, proto<11 case)
	// and authenticated inline for proto>=11 once the keys are known.
	idOnly, _, err := security.UnmarshalIdentity(payload[1+1+1+2+8:])
	if err != nil {
		return nil, err
	}
	if idOnly.Address() != header.Source {
		return nil, errIdentityMismatch
	}
	if !idOnly.LocallyValidate() {
		return nil, errors.New("vl1: hello identity fails local validation")
	}

	existing := c.Topology.Peer(header.Source, false)
	if existing != nil && !existing.Identity().Equal(idOnly) {
		return nil, errIdentityMismatch
	}

	rawKey, err := c.Identity.Agree(idOnly)
	if err != nil {
		return nil, err
	}
	hmacKey := security.HelloHMACKey(rawKey)
	dictKey := security.HelloDictKey(rawKey)

	hb, err := parseHelloBody(payload, fullPacket, hmacKey, dictKey)
	if err != nil {
		return nil, err
	}

	if hb.protoVersion < constant.ProtoVersionHMAC {
		if err := unarmorPoly1305(fullPacket, protocol.OffsetPayload, header, rawKey); err != nil {
			return nil, err
		}
	}

	peer := existing
	if peer == nil {
		candidate, cerr := c.Topology.newPeerFor(idOnly)
		if cerr != nil {
			return nil, cerr
		}
		peer = c.Topology.Add(candidate)
	}

	if peer.DeduplicateIncomingPacket(header.PacketID) {
		return peer, nil
	}

	peer.SetRemoteVersion(RemoteVersion{
		Proto: hb.protoVersion,
		Major: hb.versionMajor,
		Minor: hb.versionMinor,
		Rev:   hb.versionRev,
	})
	peer.AddPath(path)
	peer.Received(path, now)

	reply := buildOKHello(c.Identity.Address(), peer, header.PacketID, hb.timestampMs, path, hmacKey, dictKey, hb.protoVersion >= constant.ProtoVersionHMAC)
	if err := peer.Send(c.Sender, reply, path, now); err != nil {
		return peer, err
	}
	return peer, nil
}

// buildOKHello constructs the OK(HELLO) reply body: echoed in_re_packet_id
// and timestamp, our own version triple, the remote address we saw the
// HELLO arrive from, and (for proto>=11) an encrypted empty dictionary plus
// HMAC trailer (§4.7.2 step 11, §6).
func buildOKHello(selfAddress protocol.Address, peer *Peer, inRePacketID uint64, inReTimestamp uint64, path *Path, hmacKey [48]byte, dictKey [16]byte, authenticated bool) []byte {
	replyID := peer.Key().NextMessage()

	buf := make([]byte, constant.MaxPacketLen)
	n := protocol.NewPacket(buf, replyID, peer.Address, selfAddress, protocol.VerbOK)
	protocol.SetCipher(buf, protocol.CipherNONE)

	body := buf[n:]
	off := 0
	body[off] = byte(protocol.VerbHELLO)
	off++
	binary.BigEndian.PutUint64(body[off:], inRePacketID)
	off += 8
	binary.BigEndian.PutUint64(body[off:], inReTimestamp)
	off += 8

	body[off] = ownProtoVersion
	off++
	body[off] = byte(version.MajorVersion)
	off++
	body[off] = byte(version.MinorVersion)
	off++
	binary.BigEndian.PutUint16(body[off:], uint16(version.PatchVersion))
	off += 2

	off += putInetAddress(body[off:], path.Endpoint)

	binary.BigEndian.PutUint16(body[off:], 0) // reserved moons slot
	off += 2

	total := n + off
	if authenticated {
		binary.BigEndian.PutUint32(buf[total:], 0) // reserved
		total += 4

		var nonce [constant.AESCTRNonceLen]byte
		_, _ = rand.Read(nonce[:])
		copy(buf[total:], nonce[:])
		total += constant.AESCTRNonceLen

		enc := make([]byte, 4) // reserved(2) + dict_len(2), empty dictionary
		_ = security.AESCTRCrypt(dictKey, nonce[:], enc)
		copy(buf[total:], enc)
		total += len(enc)

		hmacVal := hmacAuth(buf[:total], hmacKey)
		copy(buf[total:], hmacVal[:])
		total += constant.HMACSHA384Len
	} else {
		key := newSymmetricKey(peer.RawIdentityKey())
		armor(buf[:total], protocol.OffsetPayload, replyID, key, protocol.CipherPOLY1305_NONE)
	}

	return buf[:total]
}

// ownProtoVersion is the highest HELLO protocol version this core speaks.
const ownProtoVersion = constant.ProtoVersionHMAC
