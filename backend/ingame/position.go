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
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Position is a fielding position symbol.
type Position string

// Fielding positions, plus the designated hitter.
const (
	PosPitcher   Position = "投"
	PosCatcher   Position = "捕"
	PosFirst     Position = "一"
	PosSecond    Position = "二"
	PosThird     Position = "三"
	PosShortstop Position = "遊"
	PosLeft      Position = "左"
	PosCenter    Position = "中"
	PosRight     Position = "右"
	PosDH        Position = "指"
)

// Positions lists every assignable position in scorebook order.
// Traversals that must be deterministic iterate in this order.
var Positions = []Position{
	PosPitcher, PosCatcher, PosFirst, PosSecond, PosThird,
	PosShortstop, PosLeft, PosCenter, PosRight, PosDH,
}

var positionAliases = map[string]Position{
	"1": PosPitcher, "P": PosPitcher,
	"2": PosCatcher, "C": PosCatcher,
	"3": PosFirst, "1B": PosFirst,
	"4": PosSecond, "2B": PosSecond,
	"5": PosThird, "3B": PosThird,
	"6": PosShortstop, "SS": PosShortstop,
	"7": PosLeft, "LF": PosLeft,
	"8": PosCenter, "CF": PosCenter,
	"9": PosRight, "RF": PosRight,
	"DH": PosDH, "D": PosDH,
}

// Valid reports whether p is one of Positions.
func (p Position) Valid() bool {
	for _, q := range Positions {
		if p == q {
			return true
		}
	}
	return false
}

// ParsePosition accepts a canonical symbol, a scorebook number, or an English
// abbreviation, in half-width or full-width form.
func ParsePosition(raw string) (Position, bool) {
	s := strings.ToUpper(strings.TrimSpace(norm.NFKC.String(raw)))
	if p := Position(s); p.Valid() {
		return p, true
	}
	if p, ok := positionAliases[s]; ok {
		return p, true
	}
	return "", false
}
