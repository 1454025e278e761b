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
	"github.com/pkg/errors"
	"inet.af/netaddr"
)

// Self-delimited socket address encoding used by the HELLO body's sent_to
// field and the OK(HELLO) reply's echoed remote address (§6): a one-byte
// address family (0 = none, 4 = IPv4, 6 = IPv6) followed by the address
// bytes and a big-endian port.
const (
	addrFamilyNone = 0
	addrFamilyV4   = 4
	addrFamilyV6   = 6
)

var errMalformedInetAddr = errors.New("vl1: malformed inet address")

func putInetAddress(buf []byte, addr netaddr.IPPort) int {
	ip := addr.IP()
	switch {
	case !ip.IsValid():
		buf[0] = addrFamilyNone
		return 1
	case ip.Is4():
		buf[0] = addrFamilyV4
		b := ip.As4()
		copy(buf[1:5], b[:])
		putUint16(buf[5:7], addr.Port())
		return 7
	default:
		buf[0] = addrFamilyV6
		b := ip.As16()
		copy(buf[1:17], b[:])
		putUint16(buf[17:19], addr.Port())
		return 19
	}
}

func parseInetAddress(buf []byte) (netaddr.IPPort, int, error) {
	if len(buf) < 1 {
		return netaddr.IPPort{}, 0, errMalformedInetAddr
	}
	switch buf[0] {
	case addrFamilyNone:
		return netaddr.IPPort{}, 1, nil
	case addrFamilyV4:
		if len(buf) < 7 {
			return netaddr.IPPort{}, 0, errMalformedInetAddr
		}
		var b [4]byte
		copy(b[:], buf[1:5])
		port := beUint16(buf[5:7])
		return netaddr.IPPortFrom(netaddr.IPFrom4(b), port), 7, nil
	case addrFamilyV6:
		if len(buf) < 19 {
			return netaddr.IPPort{}, 0, errMalformedInetAddr
		}
		var b [16]byte
		copy(b[:], buf[1:17])
		port := beUint16(buf[17:19])
		return netaddr.IPPortFrom(netaddr.IPFrom16(b), port), 19, nil
	default:
		return netaddr.IPPort{}, 0, errMalformedInetAddr
	}
}

func beUint16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }

// Endpoint type tags, carried in the 255-length-prefixed form of RENDEZVOUS
// and the addr_type==0 form of PUSH_DIRECT_PATHS (§4.7.3). A tag below 16 is
// a naked IP address (4 = v4, 6 = v6, address bytes then a big-endian port);
// a tag of 16+n names one of the richer endpoint kinds, of which only the
// IP-based ones carry a usable hole-punch address.
const (
	endpointTypeIP    = 16 + 5
	endpointTypeIPUDP = 16 + 6
	endpointTypeIPTCP = 16 + 7
)

// parseEndpoint decodes a self-delimited Endpoint object, reporting the
// dialable address when the endpoint is IP-based. A well-formed but
// non-IP endpoint (e.g. relayed-via-ZeroTier, Ethernet, Bluetooth) is not an
// error; it simply carries no usable address, mirroring the reference
// source's no-op default case for such types.
func parseEndpoint(buf []byte) (addr netaddr.IPPort, usable bool, err error) {
	if len(buf) < 1 {
		return netaddr.IPPort{}, false, errMalformedInetAddr
	}
	switch buf[0] {
	case 4:
		if len(buf) < 7 {
			return netaddr.IPPort{}, false, errMalformedInetAddr
		}
		var b [4]byte
		copy(b[:], buf[1:5])
		return netaddr.IPPortFrom(netaddr.IPFrom4(b), beUint16(buf[5:7])), true, nil
	case 6:
		if len(buf) < 19 {
			return netaddr.IPPort{}, false, errMalformedInetAddr
		}
		var b [16]byte
		copy(b[:], buf[1:17])
		return netaddr.IPPortFrom(netaddr.IPFrom16(b), beUint16(buf[17:19])), true, nil
	case endpointTypeIP, endpointTypeIPUDP, endpointTypeIPTCP:
		a, _, err := parseInetAddress(buf[1:])
		if err != nil {
			return netaddr.IPPort{}, false, err
		}
		return a, a.IP().IsValid(), nil
	default:
		return netaddr.IPPort{}, false, nil
	}
}
