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

import "strings"

// HELLO metadata dictionary keys (§6). Only a subset is produced or
// consumed by this core; the rest are forwarded opaquely when present.
const (
	DictKeyProtoVersion = "pv"
	DictKeyVendor       = "vend"
	DictKeyVersionMajor = "majv"
	DictKeyVersionMinor = "minv"
	DictKeyVersionRev   = "revv"
)

// encodeDict packs a metadata dictionary into the `key=value\n` wire form
// (§6), escaping backslashes and newlines within values so the record
// framing stays unambiguous.
func encodeDict(m map[string]string) []byte {
	var b strings.Builder
	for k, v := range m {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(escapeDictValue(v))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// decodeDict parses the `key=value\n` wire form into a map.
func decodeDict(data []byte) map[string]string {
	m := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		m[line[:eq]] = unescapeDictValue(line[eq+1:])
	}
	return m
}

func escapeDictValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, "\n", `\n`)
	return v
}

func unescapeDictValue(v string) string {
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] == '\\' && i+1 < len(v) {
			switch v[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(v[i])
	}
	return b.String()
}
