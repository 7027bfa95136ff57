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

// Player is a roster entry. The core only ever stores the ID.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
}

// Roster is the read-only roster source.
type Roster interface {
	GetByID(id string) (Player, bool)
}

// MapRoster is a Roster backed by a map. Useful for tests and fixed squads.
type MapRoster map[string]Player

func (m MapRoster) GetByID(id string) (Player, bool) {
	p, ok := m[id]
	return p, ok
}

// Reason records why a batting slot holds its current occupant.
type Reason string

const (
	ReasonStarter      Reason = "starter"
	ReasonPinchHit     Reason = "pinch-hit"
	ReasonPinchRun     Reason = "pinch-run"
	ReasonTemporaryRun Reason = "temporary-run"
)

// Valid reports whether r is a known reason.
func (r Reason) Valid() bool {
	switch r {
	case ReasonStarter, ReasonPinchHit, ReasonPinchRun, ReasonTemporaryRun:
		return true
	}
	return false
}

// LineupSize is the fixed number of batting slots.
const LineupSize = 9

// BattingSlot is one entry of the batting order.
type BattingSlot struct {
	OccupantID string `json:"occupantId"`
	Reason     Reason `json:"reason"`
}

// BattingOrder always holds exactly LineupSize slots. Index is the batting position.
type BattingOrder [LineupSize]BattingSlot

// IndexOf returns the slot index occupied by id.
func (b *BattingOrder) IndexOf(id string) (int, bool) {
	for i, s := range b {
		if s.OccupantID == id {
			return i, true
		}
	}
	return -1, false
}

// Assignment maps a position to its occupant. A missing or empty entry is a vacant position.
type Assignment map[Position]string

// PositionOf returns the position held by id, scanning in scorebook order.
func (a Assignment) PositionOf(id string) (Position, bool) {
	if id == "" {
		return "", false
	}
	for _, p := range Positions {
		if a[p] == id {
			return p, true
		}
	}
	return "", false
}

// Holds reports whether id currently holds any position.
func (a Assignment) Holds(id string) bool {
	_, ok := a.PositionOf(id)
	return ok
}

// Clone returns a copy of a.
func (a Assignment) Clone() Assignment {
	c := make(Assignment, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}
