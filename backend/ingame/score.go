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
	"encoding/json"
	"fmt"
)

// Half is the top or bottom of an inning.
type Half int

const (
	Top Half = iota
	Bottom
)

func (h Half) String() string {
	if h == Bottom {
		return "bottom"
	}
	return "top"
}

func (h Half) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *Half) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "top":
		*h = Top
	case "bottom":
		*h = Bottom
	default:
		return fmt.Errorf("invalid half %q", s)
	}
	return nil
}

// InningScore holds the runs of one inning.
type InningScore struct {
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
}

func (s *InningScore) at(h Half) *int {
	if h == Bottom {
		return &s.Bottom
	}
	return &s.Top
}

// ProgressPointer is the half-inning currently being played.
type ProgressPointer struct {
	Inning    int  `json:"inning"`
	Half      Half `json:"half"`
	IsDefense bool `json:"isDefense"`
}

// compare orders half-inning positions: -1 if (inning, half) is behind p, 0 at p, 1 ahead.
func (p ProgressPointer) compare(inning int, half Half) int {
	a := inning*2 + int(half)
	b := p.Inning*2 + int(p.Half)
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// ScoreLedger holds the runs per inning and half, indexed by 0-based inning.
// No entry is ever ahead of Progress.
type ScoreLedger struct {
	Innings  []InningScore
	Progress ProgressPointer
	// BattingHalf is the half in which our team bats.
	BattingHalf Half
}

// NewScoreLedger starts at the top of the first inning.
func NewScoreLedger(battingHalf Half) *ScoreLedger {
	return &ScoreLedger{
		Progress:    ProgressPointer{Inning: 0, Half: Top, IsDefense: battingHalf != Top},
		BattingHalf: battingHalf,
	}
}

func (sl *ScoreLedger) grow(inning int) {
	for len(sl.Innings) <= inning {
		sl.Innings = append(sl.Innings, InningScore{})
	}
}

// Runs returns the recorded runs, zero when the entry does not exist.
func (sl *ScoreLedger) Runs(inning int, half Half) int {
	if inning < 0 || inning >= len(sl.Innings) {
		return 0
	}
	return *sl.Innings[inning].at(half)
}

// AddRun adjusts the current half-inning by delta, clamped at zero. It reports false
// and changes nothing when (inning, half) is not the current progress position.
func (sl *ScoreLedger) AddRun(inning int, half Half, delta int) bool {
	if inning < 0 || sl.Progress.compare(inning, half) != 0 {
		return false
	}
	sl.grow(inning)
	v := sl.Innings[inning].at(half)
	*v = max(*v+delta, 0)
	return true
}

// CommitHalfInningScore sets an absolute value. At the progress position it also
// advances the pointer and flips offense and defense; behind it, it only edits.
func (sl *ScoreLedger) CommitHalfInningScore(inning int, half Half, value int) (advanced bool, err error) {
	if inning < 0 || value < 0 {
		return false, fmt.Errorf("%w: inning %d value %d", ErrInvalidDelta, inning, value)
	}
	switch sl.Progress.compare(inning, half) {
	case 1:
		return false, fmt.Errorf("%w: inning %d %s", ErrAheadOfProgress, inning+1, half)
	case -1:
		sl.grow(inning)
		*sl.Innings[inning].at(half) = value
		return false, nil
	}
	sl.grow(inning)
	*sl.Innings[inning].at(half) = value
	if half == Top {
		sl.Progress.Half = Bottom
	} else {
		sl.Progress.Inning++
		sl.Progress.Half = Top
	}
	sl.Progress.IsDefense = !sl.Progress.IsDefense
	return true, nil
}

// RollbackToInning keeps innings 1..n (1-based) and discards the rest. The pointer
// moves back to the top of inning n+1 if it was further ahead.
func (sl *ScoreLedger) RollbackToInning(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: inning %d", ErrInvalidDelta, n)
	}
	if len(sl.Innings) > n {
		sl.Innings = sl.Innings[:n]
	}
	if sl.Progress.compare(n, Top) < 0 {
		sl.Progress = ProgressPointer{Inning: n, Half: Top, IsDefense: sl.BattingHalf != Top}
	}
	return nil
}

// Totals returns the game totals for the top and bottom halves.
func (sl *ScoreLedger) Totals() (top, bottom int) {
	for _, s := range sl.Innings {
		top += s.Top
		bottom += s.Bottom
	}
	return top, bottom
}
