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
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha512"
	"math/big"

	"crypto/ed25519"

	"github.com/pkg/errors"
	"github.com/zerotier/vl1core/protocol"
)

// IdentityType distinguishes the two identity algorithms (§3).
type IdentityType byte

const (
	// IdentityTypeC25519 is the legacy Curve25519 + Ed25519 identity.
	IdentityTypeC25519 IdentityType = 0
	// IdentityTypeP384 adds a NIST-P384 key pair to the legacy pair.
	IdentityTypeP384 IdentityType = 1
)

const p384FieldLen = 48
const p384PointLen = 1 + 2*p384FieldLen // uncompressed SEC1 point

// identitySecrets holds the private-key material of a locally-owned identity.
type identitySecrets struct {
	dh      DHPrivate
	ed25519 ed25519.PrivateKey
	p384    *ecdsa.PrivateKey
}

// Identity is an (address, algorithm, public key material, optional private
// key) tuple (§3). It is immutable once constructed.
type Identity struct {
	address protocol.Address
	typ     IdentityType
	c25519  DHPublic
	ed25519 ed25519.PublicKey
	p384Pub *ecdsa.PublicKey
	p384Sig []byte
	secrets *identitySecrets
}

// GenerateLegacy creates a fresh Curve25519+Ed25519 identity with a locally
// valid derived address.
func GenerateLegacy() (*Identity, error) {
	dh, err := GenerateDHKey()
	if err != nil {
		return nil, err
	}
	edPub, edPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	id := &Identity{
		typ:     IdentityTypeC25519,
		c25519:  dh.Public,
		ed25519: edPub,
		secrets: &identitySecrets{dh: dh.Private, ed25519: edPriv},
	}
	id.address = addressFromDigest(id.publicDigest())
	return id, nil
}

// GenerateV2 creates a fresh identity carrying both the legacy pair and an
// additional NIST-P384 keypair, the P384 key signing the legacy public keys
// to bind the two algorithm generations together.
func GenerateV2() (*Identity, error) {
	legacy, err := GenerateLegacy()
	if err != nil {
		return nil, err
	}
	p384Priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, err
	}

	msg := legacy.publicDigest()
	r, s, err := ecdsa.Sign(rand.Reader, p384Priv, msg[:])
	if err != nil {
		return nil, err
	}
	sig := make([]byte, 2*p384FieldLen)
	r.FillBytes(sig[:p384FieldLen])
	s.FillBytes(sig[p384FieldLen:])

	legacy.typ = IdentityTypeP384
	legacy.p384Pub = &p384Priv.PublicKey
	legacy.p384Sig = sig
	legacy.secrets.p384 = p384Priv
	return legacy, nil
}

// publicDigest hashes the identity's public key material; the trailing 5
// bytes of this digest, after a memory-hardening mix, become the address.
// This is a self-consistent adaptation of the reference "frankenhash"/balloon
// work function (network-hypervisor/src/vl1/identity.rs): exact
// wire-compatibility with the real ZeroTier network is explicitly out of
// scope (§1 non-goals), so the mix here trades PoW cost for determinism and
// bounded runtime while preserving the collision-resistance property §8
// tests for.
func (id *Identity) publicDigest() [64]byte {
	h := sha512.New()
	h.Write(id.c25519.Bytes())
	h.Write(id.ed25519)
	var d [64]byte
	copy(d[:], h.Sum(nil))
	return memoryHardMix(d)
}

const balloonSpaceCost = 256

// memoryHardMix adapts the balloon-hash structure used by the reference
// work function: expand the seed digest across a small buffer, mix each
// block back in via Salsa20/12, and fold the buffer back into a single
// 64-byte digest.
func memoryHardMix(seed [64]byte) [64]byte {
	var key [32]byte
	copy(key[:], seed[:32])

	buf := make([][64]byte, balloonSpaceCost)
	buf[0] = Salsa2012Zero(0, &key)
	for i := 1; i < balloonSpaceCost; i++ {
		var nonce uint64
		for j := 0; j < 8; j++ {
			nonce |= uint64(buf[i-1][j]) << (8 * j)
		}
		buf[i] = Salsa2012Zero(nonce, &key)
	}

	var out [64]byte
	copy(out[:], seed[:])
	for i := 0; i < balloonSpaceCost; i++ {
		for j := 0; j < 64; j++ {
			out[j] ^= buf[i][j]
		}
	}
	return out
}

func addressFromDigest(d [64]byte) protocol.Address {
	addr, _ := protocol.AddressFromBytes(d[59:64])
	if addr == protocol.NilAddress {
		// vanishingly unlikely; perturb deterministically rather than loop.
		addr = protocol.Address(1)
	}
	return addr
}

// Address returns the identity's 40-bit node address.
func (id *Identity) Address() protocol.Address { return id.address }

// Type returns the identity's algorithm generation.
func (id *Identity) Type() IdentityType { return id.typ }

// HasPrivate reports whether this Identity carries private key material.
func (id *Identity) HasPrivate() bool { return id.secrets != nil }

// DHPublicKey returns the Curve25519 public key used for raw identity key
// agreement (§4.3).
func (id *Identity) DHPublicKey() DHPublic { return id.c25519 }

// LocallyValidate recomputes the address digest from the public key material
// and checks it against the declared address (§3 Identity, §4.7.2 step 4).
func (id *Identity) LocallyValidate() bool {
	return addressFromDigest(id.publicDigest()) == id.address
}

// Agree performs the Curve25519 static-static agreement between this
// identity's private key and other's public key, producing the peer's raw
// identity key (§4.3 raw_identity_key). Requires HasPrivate().
func (id *Identity) Agree(other *Identity) ([32]byte, error) {
	if id.secrets == nil {
		return [32]byte{}, errors.New("identity: agree requires private key material")
	}
	priv := DHKey{Public: id.c25519, Private: id.secrets.dh}
	return priv.Agree(other.c25519)
}

// Equal reports whether two identities carry the same address, type,
// Curve25519 key and Ed25519 key; a V2 identity's P-384 key is not compared
// (used to detect a HELLO claiming an address already bound to
// a different identity, §4.7.2 step 4).
func (id *Identity) Equal(other *Identity) bool {
	if other == nil || id.address != other.address || id.typ != other.typ {
		return false
	}
	if id.c25519 != other.c25519 {
		return false
	}
	if !ed25519EqualBytes(id.ed25519, other.ed25519) {
		return false
	}
	return true
}

func ed25519EqualBytes(a, b ed25519.PublicKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Marshal writes the self-delimited wire form of the identity and returns
// it. Layout: type(1) | address(5) | c25519(32) | ed25519(32) [| p384pub(97)
// | p384sig(96)].
func (id *Identity) Marshal() []byte {
	out := make([]byte, 0, 70+p384PointLen+2*p384FieldLen)
	out = append(out, byte(id.typ))
	addrBytes := id.address.Bytes()
	out = append(out, addrBytes[:]...)
	out = append(out, id.c25519.Bytes()...)
	out = append(out, id.ed25519...)
	if id.typ == IdentityTypeP384 {
		out = append(out, elliptic.Marshal(elliptic.P384(), id.p384Pub.X, id.p384Pub.Y)...)
		out = append(out, id.p384Sig...)
	}
	return out
}

// UnmarshalIdentity parses a self-delimited Identity from buf and returns the
// number of bytes consumed (§6 HELLO body "identity // self-delimited").
func UnmarshalIdentity(buf []byte) (*Identity, int, error) {
	const fixedLen = 1 + 5 + 32 + 32
	if len(buf) < fixedLen {
		return nil, 0, errors.New("identity: truncated")
	}
	typ := IdentityType(buf[0])
	addr, err := protocol.AddressFromBytes(buf[1:6])
	if err != nil {
		return nil, 0, err
	}
	id := &Identity{
		typ:     typ,
		address: addr,
		c25519:  NewDHPublic(buf[6:38]),
		ed25519: append(ed25519.PublicKey(nil), buf[38:70]...),
	}

	n := fixedLen
	if typ == IdentityTypeP384 {
		if len(buf) < n+p384PointLen+2*p384FieldLen {
			return nil, 0, errors.New("identity: truncated p384 fields")
		}
		x, y := elliptic.Unmarshal(elliptic.P384(), buf[n:n+p384PointLen])
		if x == nil {
			return nil, 0, errors.New("identity: invalid p384 point")
		}
		id.p384Pub = &ecdsa.PublicKey{Curve: elliptic.P384(), X: x, Y: y}
		n += p384PointLen
		id.p384Sig = append([]byte(nil), buf[n:n+2*p384FieldLen]...)
		n += 2 * p384FieldLen
	} else if typ != IdentityTypeC25519 {
		return nil, 0, errors.New("identity: unknown type")
	}
	return id, n, nil
}

// VerifyP384Binding checks the P384 key's signature over the legacy public
// key digest, for v2 identities.
func (id *Identity) VerifyP384Binding() bool {
	if id.typ != IdentityTypeP384 || id.p384Pub == nil || len(id.p384Sig) != 2*p384FieldLen {
		return false
	}
	msg := id.publicDigestLegacyOnly()
	r := new(big.Int).SetBytes(id.p384Sig[:p384FieldLen])
	s := new(big.Int).SetBytes(id.p384Sig[p384FieldLen:])
	return ecdsa.Verify(id.p384Pub, msg[:], r, s)
}

func (id *Identity) publicDigestLegacyOnly() [64]byte {
	h := sha512.New()
	h.Write(id.c25519.Bytes())
	h.Write(id.ed25519)
	var d [64]byte
	copy(d[:], h.Sum(nil))
	return memoryHardMix(d)
}
