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

// Package trace defines the diagnostic-event collaborator interface (§6)
// the engine reports drops, errors, and path-discovery events to.
package trace

import (
	"github.com/zerotier/vl1core/errcode"
	"github.com/zerotier/vl1core/protocol"
)

// Trace receives diagnostic events from the engine. Implementations must be
// safe for concurrent use; the engine may call these from any number of
// goroutines processing inbound datagrams.
type Trace interface {
	// IncomingPacketDropped is called whenever the ingress pipeline (§4.7.1)
	// discards a packet, carrying the drop reason taxonomy from §7.
	IncomingPacketDropped(packetID uint64, source protocol.Address, reason errcode.DropReason)
	// UnexpectedError reports an internal error not tied to a specific
	// inbound packet (e.g. a Store failure).
	UnexpectedError(context string, err error)
	// TryingNewPath is called when the engine learns of and begins probing
	// a newly discovered candidate path to a peer.
	TryingNewPath(peer protocol.Address, path string)
}
