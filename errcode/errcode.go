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

package errcode

// ErrCode is a stable, loggable classification for an internal failure.
type ErrCode int

// NOTE: don't delete any item and resort the order.
const (
	InternalError ErrCode = 1 + iota
	InvalidConfig
	InvalidIdentity
	StoreUnavailable
)

// DropReason classifies why an inbound datagram was discarded (§7 of the
// design document). Surfaced through Trace, never raised as an exception.
type DropReason int

// NOTE: don't delete any item and resort the order.
const (
	MalformedPacket DropReason = 1 + iota
	InvalidObject
	MACFailed
	InvalidCompressedData
	PeerTooOld
	ReplyNotExpected
	RateLimitExceeded
	UnrecognizedVerb
	Unspecified
)

// String implements fmt.Stringer.
func (r DropReason) String() string {
	switch r {
	case MalformedPacket:
		return "MALFORMED_PACKET"
	case InvalidObject:
		return "INVALID_OBJECT"
	case MACFailed:
		return "MAC_FAILED"
	case InvalidCompressedData:
		return "INVALID_COMPRESSED_DATA"
	case PeerTooOld:
		return "PEER_TOO_OLD"
	case ReplyNotExpected:
		return "REPLY_NOT_EXPECTED"
	case RateLimitExceeded:
		return "RATE_LIMIT_EXCEEDED"
	case UnrecognizedVerb:
		return "UNRECOGNIZED_VERB"
	default:
		return "UNSPECIFIED"
	}
}
