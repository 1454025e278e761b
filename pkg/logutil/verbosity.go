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

package logutil

import (
	"os"
	"strings"

	"github.com/zerotier/vl1core/constant"
	"go.uber.org/zap/zapcore"
)

// bits are used to check whether output verbose log.
var bits = 0

func init() {
	v, ok := os.LookupEnv(constant.EnvLogLevel)
	if ok {
		v = strings.ToLower(v)
		if v == "all" {
			EnableAll()
		} else {
			parts := strings.Split(v, ",")
			for _, p := range parts {
				p = strings.TrimSpace(p)
				switch p {
				case "engine":
					Enable(DebugEngineLevel)
				case "handshake":
					Enable(DebugHandshakeLevel)
				case "topology":
					Enable(DebugTopologyLevel)
				case "crypto":
					Enable(DebugCryptoLevel)
				}
			}
		}
	}
}

type Type byte

const (
	// DebugEngineLevel traces ingress-pipeline classification decisions.
	DebugEngineLevel Type = 0
	// DebugHandshakeLevel traces HELLO/WHOIS handshake steps.
	DebugHandshakeLevel Type = 1
	// DebugTopologyLevel traces peer/path/root lifecycle and GC.
	DebugTopologyLevel Type = 2
	// DebugCryptoLevel traces MAC/armor failures and key derivation.
	DebugCryptoLevel Type = 3
)

// Enable enables the output of some types of verbose log.
func Enable(t Type) {
	bits |= 1 << t
}

func EnableAll() {
	for _, l := range []Type{DebugEngineLevel, DebugHandshakeLevel, DebugTopologyLevel, DebugCryptoLevel} {
		Enable(l)
	}
}

// Level returns the log level corresponding to the verbosity level
func Level() zapcore.Level {
	if bits > 0 {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// IsEnableEngine checks if ingress-pipeline debug logs are enabled.
func IsEnableEngine() bool {
	return bits&(1<<DebugEngineLevel) > 0
}

// IsEnableHandshake checks if HELLO/WHOIS debug logs are enabled.
func IsEnableHandshake() bool {
	return bits&(1<<DebugHandshakeLevel) > 0
}

// IsEnableTopology checks if peer/path/root GC debug logs are enabled.
func IsEnableTopology() bool {
	return bits&(1<<DebugTopologyLevel) > 0
}

// IsEnableCrypto checks if MAC/armor debug logs are enabled.
func IsEnableCrypto() bool {
	return bits&(1<<DebugCryptoLevel) > 0
}
