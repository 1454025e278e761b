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

// Package protocol defines the bit-exact wire layout of a VL1 packet header,
// its fragment variant, the verb and cipher enumerations, and the 40-bit
// node Address (§4.1).
package protocol

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/zerotier/vl1core/constant"
)

// ErrShortPacket is returned when a buffer is too small to hold a header.
var ErrShortPacket = errors.New("packet shorter than minimum header length")

// Header offsets, per §4.1:
//
//	0  8  Packet ID
//	8  5  Destination address
//	13 5  Source address
//	18 1  Flags (bits 0-2 hops | bits 3-5 cipher | bit 6 fragmented | bit 7 reserved)
//	19 8  MAC (first 8 bytes of Poly1305 tag, or 0 if HMAC-authed)
//	27 1  Verb (low 5 bits) + verb-flags (high bits: compressed=0x80)
//	28 .. Payload
const (
	OffsetPacketID    = 0
	OffsetDestination = 8
	OffsetSource      = 13
	OffsetFlags       = 18
	OffsetMAC         = 19
	OffsetVerb        = 27
	OffsetPayload     = 28
)

const (
	flagsFragmentedBit = 1 << 6
	flagsCipherShift   = 3
	flagsCipherMask    = 0x07
	flagsHopsMask      = 0x07
)

// Header is a parsed view over a packet's fixed prefix. It does not own the
// backing bytes.
type Header struct {
	PacketID    uint64
	Destination Address
	Source      Address
	Hops        uint8
	Fragmented  bool
	Cipher      Cipher
	Verb        Verb
	VerbFlags   VerbFlags
}

// ParseHeader reads the fixed packet prefix from buf. buf must be at least
// MinPacketLen bytes.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < constant.MinPacketLen {
		return Header{}, ErrShortPacket
	}
	var h Header
	h.PacketID = binary.BigEndian.Uint64(buf[OffsetPacketID:])
	dst, err := AddressFromBytes(buf[OffsetDestination:])
	if err != nil {
		return Header{}, err
	}
	h.Destination = dst
	src, err := AddressFromBytes(buf[OffsetSource:])
	if err != nil {
		return Header{}, err
	}
	h.Source = src

	flags := buf[OffsetFlags]
	h.Hops = flags & flagsHopsMask
	h.Fragmented = flags&flagsFragmentedBit != 0
	h.Cipher = Cipher((flags >> flagsCipherShift) & flagsCipherMask)

	verbByte := buf[OffsetVerb]
	h.Verb = Verb(verbByte & verbMask)
	h.VerbFlags = VerbFlags(verbByte &^ verbMask)
	return h, nil
}

// flagsByte packs hops/fragmented/cipher into the wire flags byte.
func flagsByte(hops uint8, fragmented bool, cipher Cipher) byte {
	b := hops & flagsHopsMask
	if fragmented {
		b |= flagsFragmentedBit
	}
	b |= byte(cipher&flagsCipherMask) << flagsCipherShift
	return b
}

// NewPacket writes the fixed header prefix into buf (which must be at least
// MinPacketLen bytes) and returns the header length. The MAC field is left
// zeroed for Armor to fill in.
func NewPacket(buf []byte, id uint64, dst, src Address, verb Verb) int {
	binary.BigEndian.PutUint64(buf[OffsetPacketID:], id)
	dst.PutBytes(buf[OffsetDestination:])
	src.PutBytes(buf[OffsetSource:])
	buf[OffsetFlags] = flagsByte(0, false, CipherNONE)
	for i := 0; i < constant.MACSize; i++ {
		buf[OffsetMAC+i] = 0
	}
	buf[OffsetVerb] = byte(verb)
	return OffsetPayload
}

// SetCipher rewrites the cipher sub-field of the flags byte in place.
func SetCipher(buf []byte, cipher Cipher) {
	flags := buf[OffsetFlags]
	flags &^= flagsCipherMask << flagsCipherShift
	flags |= byte(cipher&flagsCipherMask) << flagsCipherShift
	buf[OffsetFlags] = flags
}

// SetFragmented rewrites the fragmented-flag sub-field in place.
func SetFragmented(buf []byte, fragmented bool) {
	if fragmented {
		buf[OffsetFlags] |= flagsFragmentedBit
	} else {
		buf[OffsetFlags] &^= flagsFragmentedBit
	}
}

// SetVerbFlags ORs extra verb-flag bits (e.g. VerbFlagCompressed) into the
// verb byte.
func SetVerbFlags(buf []byte, f VerbFlags) {
	buf[OffsetVerb] |= byte(f)
}

// MaskHopsAndMAC returns a copy of the whole of buf with the hops sub-field
// and MAC field zeroed, as required before computing the v11+ HMAC over a
// HELLO/OK(HELLO) packet.
func MaskHopsAndMAC(buf []byte) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)
	out[OffsetFlags] &^= flagsHopsMask
	for i := 0; i < constant.MACSize; i++ {
		out[OffsetMAC+i] = 0
	}
	return out
}

// IsFragmentHead reports whether buf is a packet head, i.e. byte 13 (the
// fragment indicator byte, §4.1) does not mark it as a non-head fragment.
func IsFragmentHead(buf []byte) bool {
	return len(buf) <= constant.FragmentIndicatorOffset || buf[constant.FragmentIndicatorOffset] != constant.FragmentIndicatorByte
}

// FragmentHeader is the parsed view of a non-head fragment's fixed prefix:
// shares bytes 0..8 (packet id) and 8..13 (destination) with the head, then
// a fragment-indicator byte (0xff) and a (total<<4|no) byte.
type FragmentHeader struct {
	PacketID    uint64
	Destination Address
	FragmentNo  uint8
	TotalFrags  uint8
}

// ParseFragmentHeader reads a non-head fragment's prefix.
func ParseFragmentHeader(buf []byte) (FragmentHeader, error) {
	if len(buf) < constant.FragmentHeaderSize {
		return FragmentHeader{}, ErrShortPacket
	}
	var fh FragmentHeader
	fh.PacketID = binary.BigEndian.Uint64(buf[OffsetPacketID:])
	dst, err := AddressFromBytes(buf[OffsetDestination:])
	if err != nil {
		return FragmentHeader{}, err
	}
	fh.Destination = dst
	b := buf[constant.FragmentHeaderSize-1]
	fh.TotalFrags = b >> 4
	fh.FragmentNo = b & 0x0f
	return fh, nil
}

// PutFragmentHeader writes a non-head fragment's prefix into buf.
func PutFragmentHeader(buf []byte, id uint64, dst Address, fragNo, totalFrags uint8) {
	binary.BigEndian.PutUint64(buf[OffsetPacketID:], id)
	dst.PutBytes(buf[OffsetDestination:])
	buf[constant.FragmentIndicatorOffset] = constant.FragmentIndicatorByte
	buf[constant.FragmentHeaderSize-1] = (totalFrags << 4) | (fragNo & 0x0f)
}
