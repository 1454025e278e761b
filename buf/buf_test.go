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

package buf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zerotier/vl1core/buf"
)

func TestBufAppendAndShare(t *testing.T) {
	a := assert.New(t)

	b := buf.Get()
	a.Equal(0, b.Len())

	n := b.Append([]byte{1, 2, 3})
	a.Equal(3, n)
	a.Equal([]byte{1, 2, 3}, b.Bytes())

	// Share the handle without copying.
	h := b.Retain()
	a.Same(b, h)

	h.Release()
	// still owned by the original reference
	a.Equal([]byte{1, 2, 3}, b.Bytes())

	b.Release()
}
