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
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// ErrDecompressTooLarge is returned when a decompressed payload would exceed
// the caller-supplied output bound (§4.7.1 step 9.2, §7 InvalidCompressedData).
var ErrDecompressTooLarge = errors.New("decompressed payload exceeds output bound")

// LZ4Decompress performs a safe, explicitly-bounded LZ4 block decompression
// of src into a freshly allocated buffer no larger than maxLen.
func LZ4Decompress(src []byte, maxLen int) ([]byte, error) {
	dst := make([]byte, maxLen)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, errors.Wrap(err, "lz4 decompress")
	}
	if n > maxLen {
		return nil, ErrDecompressTooLarge
	}
	return dst[:n], nil
}

// LZ4Compress performs a block compression of src, used by outbound framing
// when it chooses to set VerbFlagCompressed.
func LZ4Compress(src []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	var c lz4.Compressor
	n, err := c.CompressBlock(src, dst)
	if err != nil {
		return nil, errors.Wrap(err, "lz4 compress")
	}
	if n == 0 {
		// incompressible; caller should send uncompressed
		return nil, errors.New("lz4: incompressible input")
	}
	return dst[:n], nil
}
