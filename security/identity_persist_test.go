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

func TestMarshalSecretRoundTripLegacy(t *testing.T) {
	id, err := security.GenerateLegacy()
	require.NoError(t, err)

	secret, err := id.MarshalSecret()
	require.NoError(t, err)

	got, err := security.UnmarshalIdentitySecret(secret)
	require.NoError(t, err)
	assert.True(t, got.HasPrivate())
	assert.True(t, got.Equal(id))
	assert.Equal(t, id.Address(), got.Address())

	other, err := security.GenerateLegacy()
	require.NoError(t, err)
	sharedOriginal, err := id.Agree(other)
	require.NoError(t, err)
	sharedReloaded, err := got.Agree(other)
	require.NoError(t, err)
	assert.Equal(t, sharedOriginal, sharedReloaded)
}

func TestMarshalSecretRoundTripV2(t *testing.T) {
	id, err := security.GenerateV2()
	require.NoError(t, err)

	secret, err := id.MarshalSecret()
	require.NoError(t, err)

	got, err := security.UnmarshalIdentitySecret(secret)
	require.NoError(t, err)
	assert.True(t, got.Equal(id))
	assert.True(t, got.VerifyP384Binding())
}

func TestMarshalSecretRequiresPrivateKey(t *testing.T) {
	id, err := security.GenerateLegacy()
	require.NoError(t, err)

	wire := id.Marshal()
	public, _, err := security.UnmarshalIdentity(wire)
	require.NoError(t, err)

	_, err = public.MarshalSecret()
	assert.Error(t, err)
}
