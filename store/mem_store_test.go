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

package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zerotier/vl1core/store"
)

func TestMemStoreGetPut(t *testing.T) {
	s := store.NewMemStore()

	_, err := s.Get(store.ObjectTypeIdentity, []byte{1, 2, 3})
	assert.ErrorIs(t, err, store.ErrNotFound)

	require := assert.New(t)
	require.NoError(s.Put(store.ObjectTypeIdentity, []byte{1, 2, 3}, []byte("hello")))
	got, err := s.Get(store.ObjectTypeIdentity, []byte{1, 2, 3})
	require.NoError(err)
	require.Equal([]byte("hello"), got)

	// distinct object types don't collide even with the same id.
	_, err = s.Get(store.ObjectTypeNetworkConfig, []byte{1, 2, 3})
	require.ErrorIs(err, store.ErrNotFound)
}

func TestMemStoreOverwrite(t *testing.T) {
	s := store.NewMemStore()
	assert.NoError(t, s.Put(store.ObjectTypePeerMeta, []byte("k"), []byte("a")))
	assert.NoError(t, s.Put(store.ObjectTypePeerMeta, []byte("k"), []byte("b")))
	got, err := s.Get(store.ObjectTypePeerMeta, []byte("k"))
	assert.NoError(t, err)
	assert.Equal(t, []byte("b"), got)
}
