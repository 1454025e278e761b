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

import (
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
	"github.com/zerotier/vl1core/constant"
)

// ErrMalformedAddress is returned when a 5-byte wire address can't be parsed.
var ErrMalformedAddress = errors.New("malformed address")

// Address is the 40-bit node identifier (§3). The all-zero address is
// reserved and never assigned to a live node.
type Address uint64

// NilAddress is the reserved all-zero address.
const NilAddress Address = 0

const addressMask = 0xffffffffff // 40 bits

// AddressFromBytes parses the 5-byte big-endian wire form of an Address.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) < constant.AddressSize {
		return NilAddress, ErrMalformedAddress
	}
	var a uint64
	for i := 0; i < constant.AddressSize; i++ {
		a = (a << 8) | uint64(b[i])
	}
	return Address(a), nil
}

// PutBytes writes the 5-byte big-endian wire form of a into b.
func (a Address) PutBytes(b []byte) {
	v := uint64(a) & addressMask
	b[0] = byte(v >> 32)
	b[1] = byte(v >> 24)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 8)
	b[4] = byte(v)
}

// Bytes returns the 5-byte big-endian wire form of a.
func (a Address) Bytes() [constant.AddressSize]byte {
	var b [constant.AddressSize]byte
	a.PutBytes(b[:])
	return b
}

// IsValid reports whether a is not the reserved nil address.
func (a Address) IsValid() bool {
	return a != NilAddress
}

// String renders the address as 10 hex digits, matching the on-wire width.
func (a Address) String() string {
	b := a.Bytes()
	return hex.EncodeToString(b[:])
}

// GoString implements fmt.GoStringer for debug printing.
func (a Address) GoString() string {
	return fmt.Sprintf("protocol.Address(%s)", a.String())
}
