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
	"sort"
)

// LineupState is the canonical lineup of our team for one game.
type LineupState struct {
	Batting    BattingOrder
	Assignment Assignment
	BenchOut   map[string]bool
	Chain      ChainHistory

	// Game-start snapshot used to resolve original starters.
	StartingBatting    BattingOrder
	StartingAssignment Assignment

	TempRunners    map[int]string
	StashedReasons map[int]Reason
}

// NewLineupState returns an empty lineup with every map allocated.
func NewLineupState() *LineupState {
	return &LineupState{
		Assignment:         make(Assignment),
		BenchOut:           make(map[string]bool),
		Chain:              make(ChainHistory),
		StartingAssignment: make(Assignment),
		TempRunners:        make(map[int]string),
		StashedReasons:     make(map[int]Reason),
	}
}

// StartingLineup is the input of a new game.
type StartingLineup struct {
	// Batting lists the nine starters in batting order.
	Batting    [LineupSize]string `json:"batting"`
	Assignment Assignment         `json:"assignment"`
}

func validSlot(slot int) error {
	if slot < 0 || slot >= LineupSize {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	return nil
}

func requirePlayer(r Roster, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrUnknownPlayer)
	}
	if _, ok := r.GetByID(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, id)
	}
	return nil
}

// validateStart checks a starting lineup against the roster without touching state.
func validateStart(r Roster, in StartingLineup) error {
	seen := make(map[string]bool)
	for i, id := range in.Batting {
		if err := requirePlayer(r, id); err != nil {
			return fmt.Errorf("batting slot %d: %w", i, err)
		}
		if seen[id] {
			return fmt.Errorf("%w: %s bats twice", ErrInvalidLineup, id)
		}
		seen[id] = true
	}
	fielded := make(map[string]Position)
	for p, id := range in.Assignment {
		if !p.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidPosition, p)
		}
		if id == "" {
			continue
		}
		if err := requirePlayer(r, id); err != nil {
			return fmt.Errorf("position %s: %w", p, err)
		}
		if other, dup := fielded[id]; dup {
			return fmt.Errorf("%w: %s holds %s and %s", ErrInvalidLineup, id, other, p)
		}
		fielded[id] = p
	}
	return nil
}

// reset discards the previous game and installs the starters.
func (l *LineupState) reset(in StartingLineup) {
	*l = *NewLineupState()
	for i, id := range in.Batting {
		l.Batting[i] = BattingSlot{OccupantID: id, Reason: ReasonStarter}
	}
	for p, id := range in.Assignment {
		if id != "" {
			l.Assignment[p] = id
		}
	}
	l.StartingBatting = l.Batting
	l.StartingAssignment = l.Assignment.Clone()
}

// substitute replaces the occupant of slot with incoming. The incoming player also
// takes over the outgoing player's field position, if any.
func (l *LineupState) substitute(r Roster, slot int, incoming string, reason Reason) (outgoing string, pos Position, err error) {
	if err := validSlot(slot); err != nil {
		return "", "", err
	}
	if reason != ReasonPinchHit && reason != ReasonPinchRun {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidReason, reason)
	}
	if err := requirePlayer(r, incoming); err != nil {
		return "", "", err
	}
	if _, active := l.TempRunners[slot]; active || l.Batting[slot].Reason == ReasonTemporaryRun {
		return "", "", fmt.Errorf("%w: slot %d", ErrTemporaryRunnerActive, slot)
	}
	if l.BenchOut[incoming] || l.Chain.Replaced(incoming) {
		return "", "", &RuleViolationError{Rule: RuleRemovedPlayer, PlayerID: incoming}
	}
	if i, ok := l.Batting.IndexOf(incoming); ok {
		return "", "", fmt.Errorf("%w: %s already bats in slot %d", ErrInvalidLineup, incoming, i)
	}
	if l.Assignment.Holds(incoming) {
		return "", "", fmt.Errorf("%w: %s is already on the field", ErrInvalidLineup, incoming)
	}

	outgoing = l.Batting[slot].OccupantID
	l.Chain.Link(outgoing, incoming)
	l.BenchOut[outgoing] = true
	if p, ok := l.Assignment.PositionOf(outgoing); ok {
		l.Assignment[p] = incoming
		pos = p
	}
	l.Batting[slot] = BattingSlot{OccupantID: incoming, Reason: reason}
	return outgoing, pos, nil
}

// assignPosition moves id to pos, vacating any position id held before.
// It returns the displaced occupant of pos and the position id left.
func (l *LineupState) assignPosition(r Roster, pos Position, id string) (displaced string, from Position, err error) {
	if !pos.Valid() {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPosition, pos)
	}
	if err := requirePlayer(r, id); err != nil {
		return "", "", err
	}
	if l.BenchOut[id] {
		return "", "", &RuleViolationError{Rule: RuleRemovedPlayer, PlayerID: id}
	}
	if p, ok := l.Assignment.PositionOf(id); ok {
		if p == pos {
			return "", "", nil
		}
		delete(l.Assignment, p)
		from = p
	}
	displaced = l.Assignment[pos]
	l.Assignment[pos] = id
	return displaced, from, nil
}

// NonStarterSlots returns, in ascending order, every slot whose reason is not starter.
func (l *LineupState) NonStarterSlots() []int {
	var out []int
	for i, s := range l.Batting {
		if s.Reason != ReasonStarter {
			out = append(out, i)
		}
	}
	return out
}

// tempRunnerSlots returns slots with an active temporary runner in ascending order.
func (l *LineupState) tempRunnerSlots() []int {
	seen := make(map[int]bool)
	var out []int
	for slot := range l.TempRunners {
		seen[slot] = true
		out = append(out, slot)
	}
	for i, s := range l.Batting {
		if s.Reason == ReasonTemporaryRun && !seen[i] {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

// BenchOutIDs returns the bench-out set sorted, for stable serialization.
func (l *LineupState) BenchOutIDs() []string {
	out := make([]string, 0, len(l.BenchOut))
	for id, removed := range l.BenchOut {
		if removed {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
