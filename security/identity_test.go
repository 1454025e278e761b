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

package security_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zerotier/vl1core/security"
)

func TestGenerateLegacyLocallyValid(t *testing.T) {
	id, err := security.GenerateLegacy()
	require.NoError(t, err)
	assert.True(t, id.LocallyValidate())
	assert.True(t, id.HasPrivate())
	assert.Equal(t, security.IdentityTypeC25519, id.Type())
}

func TestGenerateV2LocallyValidAndBound(t *testing.T) {
	id, err := security.GenerateV2()
	require.NoError(t, err)
	assert.True(t, id.LocallyValidate())
	assert.True(t, id.VerifyP384Binding())
	assert.Equal(t, security.IdentityTypeP384, id.Type())
}

func TestIdentityMarshalRoundTrip(t *testing.T) {
	id, err := security.GenerateV2()
	require.NoError(t, err)

	wire := id.Marshal()
	got, n, err := security.UnmarshalIdentity(wire)
	require.NoError(t, err)
	assert.Equal(t, len(wire), n)
	assert.True(t, got.Equal(id))
	assert.Equal(t, id.Address(), got.Address())
	assert.True(t, got.LocallyValidate())
}

func TestIdentityAgreeSymmetric(t *testing.T) {
	a, err := security.GenerateLegacy()
	require.NoError(t, err)
	b, err := security.GenerateLegacy()
	require.NoError(t, err)

	wireA, _, err := security.UnmarshalIdentity(a.Marshal())
	require.NoError(t, err)
	wireB, _, err := security.UnmarshalIdentity(b.Marshal())
	require.NoError(t, err)

	sharedAB, err := a.Agree(wireB)
	require.NoError(t, err)
	sharedBA, err := b.Agree(wireA)
	require.NoError(t, err)
	assert.Equal(t, sharedAB, sharedBA)
}

// TestIdentityAddressCollisionRate exercises the §8 testable property: a
// large population of independently generated identities must not collide
// on their derived 40-bit address.
func TestIdentityAddressCollisionRate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping large population test in short mode")
	}
	const n = 100000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id, err := security.GenerateLegacy()
		require.NoError(t, err)
		b := id.Address().Bytes()
		key := string(b[:])
		_, dup := seen[key]
		require.False(t, dup, "address collision at iteration %d", i)
		seen[key] = struct{}{}
	}
}
