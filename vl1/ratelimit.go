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

import (
	"sync"
	"time"
)

// rateGate is a small per-peer token bucket used to gate inbound WHOIS and
// ECHO requests (§4.7.3, §7 RATE_LIMIT_EXCEEDED).
type rateGate struct {
	mu       sync.Mutex
	tokens   float64
	max      float64
	refill   float64 // tokens per second
	lastFill time.Time
}

func newRateGate(burst int, per time.Duration) rateGate {
	return rateGate{
		tokens:   float64(burst),
		max:      float64(burst),
		refill:   float64(burst) / per.Seconds(),
		lastFill: time.Time{},
	}
}

func (g *rateGate) allow(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.lastFill.IsZero() {
		elapsed := now.Sub(g.lastFill).Seconds()
		g.tokens += elapsed * g.refill
		if g.tokens > g.max {
			g.tokens = g.max
		}
	}
	g.lastFill = now

	if g.tokens < 1 {
		return false
	}
	g.tokens--
	return true
}
