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
	"github.com/zerotier/vl1core/security"
	"github.com/zerotier/vl1core/store"
	"github.com/zerotier/vl1core/trace"
	"github.com/zerotier/vl1core/vl2"
)

// Sender is the socket collaborator a Path uses to actually put bytes on
// the wire (§4.4 Path.send). cmd/vl1node supplies the concrete
// implementation over a UDP socket; tests supply an in-memory fake.
type Sender interface {
	Send(path *Path, data []byte) error
}

// Context bundles the collaborators every ingress-pipeline call needs:
// this node's own identity, the process-wide Topology, the WHOIS/Expect
// tables, and the pluggable Trace/Store/VL2/Sender collaborators (§6, §9
// "global mutable Context"). It is constructed once at startup and shared,
// read-mostly, across every goroutine calling Engine.OnRemotePacket.
type Context struct {
	Identity *security.Identity
	Topology *Topology
	Expect   *Expect
	Trace    trace.Trace
	Store    store.Store
	VL2      vl2.VL2
	Sender   Sender

	whois    *whoisQueue
	replayFn func(path *Path, data []byte)
}
