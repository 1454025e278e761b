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

package config

import (
	"encoding/base64"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zerotier/vl1core/security"
)

func TestFromPathGeneratesIdentity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, fmt.Sprintf("%s.yaml", uuid.New().String()))
	data := []byte(`
name: test-node
listen: ":9993"
`)
	require.NoError(t, ioutil.WriteFile(path, data, os.ModePerm))

	cfg, err := FromPath(path)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.IdentitySecret)

	id, err := cfg.Identity()
	require.NoError(t, err)
	assert.True(t, id.HasPrivate())
	assert.True(t, id.LocallyValidate())

	onDisk, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(onDisk), "identitySecret")

	// Loading again must not regenerate the identity.
	cfg2, err := FromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.IdentitySecret, cfg2.IdentitySecret)
}

func TestFromPathMissingFileGeneratesFresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.yaml")

	cfg, err := FromPath(path)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.IdentitySecret)
	assert.Equal(t, ":9993", cfg.Listen)
	assert.FileExists(t, path)
}

func TestTrustedRootsDecodesPublicIdentities(t *testing.T) {
	root, err := security.GenerateLegacy()
	require.NoError(t, err)

	cfg := New()
	cfg.Roots = []string{base64.StdEncoding.EncodeToString(root.Marshal())}

	roots, err := cfg.TrustedRoots()
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, root.Address(), roots[0].Address())
}

func TestIdentityErrorsWithoutSecret(t *testing.T) {
	cfg := New()
	_, err := cfg.Identity()
	assert.Error(t, err)
}
