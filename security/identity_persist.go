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

package security

import (
	"crypto/ecdsa"
	"math/big"

	"crypto/ed25519"

	"github.com/pkg/errors"
)

// MarshalSecret serializes the full identity including private key material,
// so a node's local identity can be persisted across restarts the way a
// relay persists its DHKey. Layout mirrors Marshal but appends the private
// scalars after the public wire form: dh_priv(32) | ed25519_priv(64)
// [| p384_priv_d(48)].
func (id *Identity) MarshalSecret() ([]byte, error) {
	if id.secrets == nil {
		return nil, errors.New("identity: no private key material to marshal")
	}
	out := id.Marshal()
	out = append(out, id.secrets.dh.Bytes()...)
	out = append(out, id.secrets.ed25519...)
	if id.typ == IdentityTypeP384 {
		d := make([]byte, p384FieldLen)
		id.secrets.p384.D.FillBytes(d)
		out = append(out, d...)
	}
	return out, nil
}

// UnmarshalIdentitySecret parses the output of MarshalSecret back into a
// fully private-key-bearing Identity.
func UnmarshalIdentitySecret(buf []byte) (*Identity, error) {
	id, n, err := UnmarshalIdentity(buf)
	if err != nil {
		return nil, err
	}
	rest := buf[n:]
	if len(rest) < 32+64 {
		return nil, errors.New("identity: truncated secret")
	}
	secrets := &identitySecrets{
		dh:      NewDHPrivate(rest[:32]),
		ed25519: append(ed25519.PrivateKey(nil), rest[32:96]...),
	}
	rest = rest[96:]

	if id.typ == IdentityTypeP384 {
		if len(rest) < p384FieldLen {
			return nil, errors.New("identity: truncated p384 secret")
		}
		d := new(big.Int).SetBytes(rest[:p384FieldLen])
		secrets.p384 = &ecdsa.PrivateKey{
			PublicKey: *id.p384Pub,
			D:         d,
		}
	}
	id.secrets = secrets
	return id, nil
}
