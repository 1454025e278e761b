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

// Package vl2 defines the upper-layer collaborator interface (§6) that the
// VL1 engine forwards virtual-network verbs to. VL1 itself never
// interprets network membership, multicast group membership, or Ethernet
// frame contents; it only authenticates and delivers.
package vl2

import "github.com/zerotier/vl1core/protocol"

// VL2 receives the subset of VL1 verbs that carry virtual-network-layer
// payloads (§4.7.3 forwarding table). Every method receives the already
// MAC-verified, decrypted, decompressed payload bytes following the verb
// byte. Implementations must be safe for concurrent use.
type VL2 interface {
	// HandleFrame processes a FRAME verb: network id, ethertype, and a raw
	// Ethernet payload for a network the sender and we both belong to.
	HandleFrame(from protocol.Address, networkID uint64, etherType uint16, frame []byte)
	// HandleExtFrame processes an EXT_FRAME verb, which additionally
	// carries source/destination MACs and a flags byte (e.g. "want
	// credentials" requests).
	HandleExtFrame(from protocol.Address, networkID uint64, flags byte, etherType uint16, frame []byte)
	// HandleMulticastLike processes a MULTICAST_LIKE verb: a set of
	// (network, MAC, ADI) multicast group memberships the sender wants to
	// join.
	HandleMulticastLike(from protocol.Address, groups []MulticastGroup)
	// HandleNetworkCredentials processes a NETWORK_CREDENTIALS verb
	// carrying a signed membership certificate and/or capability/tag
	// records for a network.
	HandleNetworkCredentials(from protocol.Address, payload []byte)
	// HandleNetworkConfigRequest processes a NETWORK_CONFIG_REQUEST verb
	// asking us (as a network controller) for configuration.
	HandleNetworkConfigRequest(from protocol.Address, networkID uint64, requestMeta []byte)
	// HandleNetworkConfig processes a NETWORK_CONFIG verb delivering
	// network configuration to us (as a member).
	HandleNetworkConfig(from protocol.Address, networkID uint64, payload []byte)
	// HandleMulticastGather processes a MULTICAST_GATHER verb requesting a
	// page of a multicast group's membership.
	HandleMulticastGather(from protocol.Address, networkID uint64, mac [6]byte, adi uint32, limit uint32)
	// HandleMulticast processes a MULTICAST verb: a multicast Ethernet
	// frame to be replicated to group members.
	HandleMulticast(from protocol.Address, networkID uint64, mac [6]byte, adi uint32, etherType uint16, frame []byte)
}

// MulticastGroup identifies a (network, MAC, ADI) multicast membership.
type MulticastGroup struct {
	NetworkID uint64
	MAC       [6]byte
	ADI       uint32
}

// NopVL2 is a VL2 that does nothing, letting a vl1.Engine be constructed and
// exercised without a real upper layer.
type NopVL2 struct{}

// NewNopVL2 constructs a NopVL2.
func NewNopVL2() *NopVL2 { return &NopVL2{} }

func (*NopVL2) HandleFrame(protocol.Address, uint64, uint16, []byte)                      {}
func (*NopVL2) HandleExtFrame(protocol.Address, uint64, byte, uint16, []byte)             {}
func (*NopVL2) HandleMulticastLike(protocol.Address, []MulticastGroup)                    {}
func (*NopVL2) HandleNetworkCredentials(protocol.Address, []byte)                         {}
func (*NopVL2) HandleNetworkConfigRequest(protocol.Address, uint64, []byte)               {}
func (*NopVL2) HandleNetworkConfig(protocol.Address, uint64, []byte)                      {}
func (*NopVL2) HandleMulticastGather(protocol.Address, uint64, [6]byte, uint32, uint32)   {}
func (*NopVL2) HandleMulticast(protocol.Address, uint64, [6]byte, uint32, uint16, []byte) {}
