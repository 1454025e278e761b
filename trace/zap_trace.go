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

package trace

import (
	"github.com/google/uuid"
	"github.com/zerotier/vl1core/errcode"
	"github.com/zerotier/vl1core/pkg/logutil"
	"github.com/zerotier/vl1core/protocol"
	"go.uber.org/zap"
)

// ZapTrace is the default Trace implementation, logging events through the
// global zap logger gated by the pkg/logutil verbosity bitmask.
type ZapTrace struct{}

// NewZapTrace constructs a ZapTrace.
func NewZapTrace() *ZapTrace { return &ZapTrace{} }

// IncomingPacketDropped implements Trace.
func (*ZapTrace) IncomingPacketDropped(packetID uint64, source protocol.Address, reason errcode.DropReason) {
	if !logutil.IsEnableEngine() {
		return
	}
	zap.L().Debug("incoming packet dropped",
		zap.String("event", uuid.New().String()),
		zap.Uint64("packetID", packetID),
		zap.Stringer("source", source),
		zap.Stringer("reason", reason))
}

// UnexpectedError implements Trace.
func (*ZapTrace) UnexpectedError(context string, err error) {
	zap.L().Error("unexpected error",
		zap.String("event", uuid.New().String()),
		zap.String("context", context),
		zap.Error(err))
}

// TryingNewPath implements Trace.
func (*ZapTrace) TryingNewPath(peer protocol.Address, path string) {
	if !logutil.IsEnableTopology() {
		return
	}
	zap.L().Debug("trying new path",
		zap.String("event", uuid.New().String()),
		zap.Stringer("peer", peer),
		zap.String("path", path))
}
