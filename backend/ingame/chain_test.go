// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingame

import (
	"fmt"
	"testing"
)

func TestResolveOriginalStarter_StartersResolveToThemselves(t *testing.T) {
	initial := testLineup().Assignment
	for p, id := range initial {
		got, ok := ChainHistory{}.ResolveOriginalStarter(id, initial)
		if !ok || got != id {
			t.Errorf("%s: ResolveOriginalStarter(%s) = %q, %v; want %q", p, id, got, ok, id)
		}
	}
}

func TestChainTraversal(t *testing.T) {
	c := ChainHistory{}
	c.Link("a", "b")
	c.Link("b", "c")
	initial := Assignment{PosThird: "a"}

	if got := c.ResolveLatestOccupant("a"); got != "c" {
		t.Errorf("ResolveLatestOccupant(a) = %q, want c", got)
	}
	if got, ok := c.ResolveOriginalStarter("c", initial); !ok || got != "a" {
		t.Errorf("ResolveOriginalStarter(c) = %q, %v; want a", got, ok)
	}
	// b is in the middle of the chain: nobody's chain ends there.
	if got, ok := c.ResolveOriginalStarter("b", initial); ok {
		t.Errorf("ResolveOriginalStarter(b) = %q, want no result", got)
	}
	if got, ok := c.ResolveOriginalStarter("nobody", initial); ok {
		t.Errorf("ResolveOriginalStarter(nobody) = %q, want no result", got)
	}
	if got := c.ResolveLatestOccupant("z"); got != "z" {
		t.Errorf("ResolveLatestOccupant(z) = %q, want z", got)
	}
}

func TestChainCycleIsBounded(t *testing.T) {
	c := ChainHistory{}
	c.Link("a", "b")
	c.Link("b", "a")

	if got := c.ResolveLatestOccupant("a"); got != "b" {
		t.Errorf("ResolveLatestOccupant(a) = %q, want b", got)
	}
	if got, ok := c.ResolveOriginalStarter("b", Assignment{PosFirst: "a"}); ok {
		t.Errorf("ResolveOriginalStarter over a cycle = %q, want no result", got)
	}
}

func TestChainHopLimit(t *testing.T) {
	c := ChainHistory{}
	for i := 0; i < 100; i++ {
		c.Link(fmt.Sprintf("s%d", i), fmt.Sprintf("s%d", i+1))
	}
	if got := c.ResolveLatestOccupant("s0"); got != "s100" {
		t.Errorf("ResolveLatestOccupant(s0) = %q, want s100", got)
	}
	if got := c.ResolveLatestOccupant(fmt.Sprintf("s%d", MaxChainHops+1)); got != "s100" {
		t.Errorf("ResolveLatestOccupant(s%d) = %q, want s100", MaxChainHops+1, got)
	}
	if got, ok := c.ResolveOriginalStarter("s100", Assignment{PosLeft: "s0"}); ok {
		t.Errorf("ResolveOriginalStarter beyond hop limit = %q, want no result", got)
	}

	short := ChainHistory{}
	for i := 0; i < 10; i++ {
		short.Link(fmt.Sprintf("s%d", i), fmt.Sprintf("s%d", i+1))
	}
	if got, ok := short.ResolveOriginalStarter("s10", Assignment{PosLeft: "s0"}); !ok || got != "s0" {
		t.Errorf("ResolveOriginalStarter(s10) = %q, %v; want s0", got, ok)
	}
}

func TestLinkKeepsReentryFlag(t *testing.T) {
	c := ChainHistory{"7": {HasReentered: true}}
	c.Link("7", "23")
	if !c.HasReentered("7") || c["7"].ReplacementID != "23" {
		t.Errorf("Link lost state: %+v", c["7"])
	}
	if !c.Replaced("7") || c.Replaced("23") {
		t.Errorf("Replaced: 7=%v 23=%v", c.Replaced("7"), c.Replaced("23"))
	}
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in   string
		want Position
		ok   bool
	}{
		{"三", PosThird, true},
		{" 三 ", PosThird, true},
		{"5", PosThird, true},
		{"５", PosThird, true},
		{"3b", PosThird, true},
		{"ＳＳ", PosShortstop, true},
		{"1", PosPitcher, true},
		{"dh", PosDH, true},
		{"指", PosDH, true},
		{"10", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := ParsePosition(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParsePosition(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
