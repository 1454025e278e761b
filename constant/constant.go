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

package constant

import "time"

// EnvLogLevel is the environment variable that selects the verbose trace
// domains to enable at startup.
const EnvLogLevel = "VL1_LOG_VERBOSE"

// MachineIDProtect salts the machine-id derived default node name.
const MachineIDProtect = "vl1core"

// Packet header format (§4.1):
// | PacketID(8) | Dest(5) | Source(5) | Flags(1) | MAC(8) | Verb(1) | payload |
const (
	PacketIDSize     = 8
	AddressSize      = 5
	FlagsSize        = 1
	MACSize          = 8
	VerbSize         = 1
	PacketHeaderSize = PacketIDSize + AddressSize + AddressSize + FlagsSize + MACSize + VerbSize // 28

	// FragmentIndicatorOffset is byte 13 of the wire form; fragments set it
	// to FragmentIndicatorByte to distinguish themselves from a packet head.
	FragmentIndicatorOffset = 13
	FragmentIndicatorByte   = 0xff
	FragmentHeaderSize      = PacketIDSize + AddressSize + 1 + 1 // id + dest + indicator + (total<<4|no)

	MinFragmentLen = FragmentHeaderSize
	MinPacketLen   = PacketHeaderSize
)

// MaxBufferSize is the capacity of a pooled Buf: largest possible datagram
// plus headroom for in-place decompression/decryption.
const MaxBufferSize = 16384

// MaxPacketLen bounds outbound packet construction (WHOIS paging, etc).
const MaxPacketLen = 1444

// MaxFragments is the hard cap on fragments composing one packet.
const MaxFragments = 16

// MaxFragmentsPerPath bounds concurrently open fragment-sets per Path.
const MaxFragmentsPerPath = 8

// DedupWindow is the size of a Peer's inbound packet-id dedup ring.
const DedupWindow = 32

// MaxWhoisWaitingPackets bounds the per-address WHOIS queue ring.
const MaxWhoisWaitingPackets = 8

// ProtoVersionMin is the lowest HELLO protocol version this core accepts.
const ProtoVersionMin = 9

// ProtoVersionHMAC is the protocol version at/after which HELLO is
// authenticated with HMAC-SHA-384 instead of legacy Poly1305.
const ProtoVersionHMAC = 11

// Timeouts (§5).
const (
	FragmentAssemblyTimeout = 500 * time.Millisecond
	WhoisRetryDelay         = 1000 * time.Millisecond
	WhoisRetryMax           = 5
	PathAliveTimeout        = 45 * time.Second
	PeerAliveTimeout        = 10 * time.Minute
	PeerGlobalTimeout       = 30 * 24 * time.Hour
	ExpectTTL               = 2 * time.Second
	PathKeepalivePeriod     = 20 * time.Second
)

// HMACSHA384Len is the trailer size of a v11+ authenticated HELLO/OK(HELLO).
const HMACSHA384Len = 48

// AESCTRNonceLen is the nonce size for the HELLO dictionary encryption cipher.
const AESCTRNonceLen = 12
