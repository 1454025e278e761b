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

package protocol

// Verb identifies the semantic type of a packet (§4.1). It occupies the low
// 5 bits of the verb byte; the high bits carry VerbFlags.
type Verb byte

const verbMask = 0x1f

// Verb values, selected per §4.1.
const (
	VerbNOP                        Verb = 0
	VerbHELLO                      Verb = 1
	VerbERROR                      Verb = 2
	VerbOK                         Verb = 3
	VerbWHOIS                      Verb = 4
	VerbRENDEZVOUS                 Verb = 5
	VerbFRAME                      Verb = 6
	VerbEXT_FRAME                  Verb = 7
	VerbECHO                       Verb = 8
	VerbMULTICAST_LIKE             Verb = 9
	VerbNETWORK_CREDENTIALS        Verb = 10
	VerbNETWORK_CONFIG_REQUEST     Verb = 11
	VerbNETWORK_CONFIG             Verb = 12
	VerbMULTICAST_GATHER           Verb = 13
	VerbMULTICAST_FRAME_deprecated Verb = 14
	VerbPUSH_DIRECT_PATHS          Verb = 16
	VerbUSER_MESSAGE               Verb = 20
	VerbMULTICAST                  Verb = 22
	VerbENCAP                      Verb = 23
)

// VerbFlags occupies the high bits of the verb byte.
type VerbFlags byte

// VerbFlagCompressed marks the payload as LZ4-compressed.
const VerbFlagCompressed VerbFlags = 0x80

func (v Verb) String() string {
	switch v {
	case VerbNOP:
		return "NOP"
	case VerbHELLO:
		return "HELLO"
	case VerbERROR:
		return "ERROR"
	case VerbOK:
		return "OK"
	case VerbWHOIS:
		return "WHOIS"
	case VerbRENDEZVOUS:
		return "RENDEZVOUS"
	case VerbFRAME:
		return "FRAME"
	case VerbEXT_FRAME:
		return "EXT_FRAME"
	case VerbECHO:
		return "ECHO"
	case VerbMULTICAST_LIKE:
		return "MULTICAST_LIKE"
	case VerbNETWORK_CREDENTIALS:
		return "NETWORK_CREDENTIALS"
	case VerbNETWORK_CONFIG_REQUEST:
		return "NETWORK_CONFIG_REQUEST"
	case VerbNETWORK_CONFIG:
		return "NETWORK_CONFIG"
	case VerbMULTICAST_GATHER:
		return "MULTICAST_GATHER"
	case VerbMULTICAST_FRAME_deprecated:
		return "MULTICAST_FRAME_deprecated"
	case VerbPUSH_DIRECT_PATHS:
		return "PUSH_DIRECT_PATHS"
	case VerbUSER_MESSAGE:
		return "USER_MESSAGE"
	case VerbMULTICAST:
		return "MULTICAST"
	case VerbENCAP:
		return "ENCAP"
	default:
		return "UNKNOWN_VERB"
	}
}

// ErrorCode enumerates ERROR verb payload codes (§4.7.3).
type ErrorCode byte

const (
	ErrorInvalidRequest            ErrorCode = 1
	ErrorBadProtocolVersion        ErrorCode = 2
	ErrorObjNotFound               ErrorCode = 3
	ErrorUnsupportedOperation      ErrorCode = 4
	ErrorNeedMembershipCertificate ErrorCode = 6
	ErrorNetworkAccessDenied       ErrorCode = 7
)
