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

// Snapshot is the strict serialized form of a Session.
type Snapshot struct {
	SessionID          string              `json:"sessionId"`
	Seq                uint64              `json:"seq"`
	BattingHalf        Half                `json:"battingHalf"`
	PitchLimit         int                 `json:"pitchLimit"`
	Batting            BattingOrder        `json:"batting"`
	StartingBatting    BattingOrder        `json:"startingBatting"`
	Assignment         Assignment          `json:"assignment"`
	StartingAssignment Assignment          `json:"startingAssignment"`
	BenchOut           []string            `json:"benchOut"`
	Chain              ChainHistory        `json:"chain"`
	TempRunners        map[int]string      `json:"tempRunners"`
	StashedReasons     map[int]Reason      `json:"stashedReasons"`
	PitcherTotals      map[string]int      `json:"pitcherTotals"`
	ThisHalfInning     HalfInningCount     `json:"thisHalfInning"`
	PitchThresholds    map[string][]string `json:"pitchThresholds"`
	Innings            []InningScore       `json:"innings"`
	Progress           ProgressPointer     `json:"progress"`
	ReviewDeclined     []int               `json:"reviewDeclined"`
}

// Snapshot captures the full session state. The result shares no memory with s.
func (s *Session) Snapshot() Snapshot {
	l := s.Lineup
	snap := Snapshot{
		SessionID:          s.ID,
		Seq:                s.seq,
		BattingHalf:        s.Score.BattingHalf,
		PitchLimit:         s.Pitches.Limit,
		Batting:            l.Batting,
		StartingBatting:    l.StartingBatting,
		Assignment:         l.Assignment.Clone(),
		StartingAssignment: l.StartingAssignment.Clone(),
		BenchOut:           l.BenchOutIDs(),
		Chain:              make(ChainHistory, len(l.Chain)),
		TempRunners:        make(map[int]string, len(l.TempRunners)),
		StashedReasons:     make(map[int]Reason, len(l.StashedReasons)),
		PitcherTotals:      make(map[string]int, len(s.Pitches.Totals)),
		ThisHalfInning:     s.Pitches.ThisHalf,
		PitchThresholds:    make(map[string][]string, len(s.Pitches.Fired)),
		Innings:            append([]InningScore{}, s.Score.Innings...),
		Progress:           s.Score.Progress,
		ReviewDeclined:     []int{},
	}
	for k, v := range l.Chain {
		snap.Chain[k] = v
	}
	for k, v := range l.TempRunners {
		snap.TempRunners[k] = v
	}
	for k, v := range l.StashedReasons {
		snap.StashedReasons[k] = v
	}
	for k, v := range s.Pitches.Totals {
		snap.PitcherTotals[k] = v
	}
	for id, kinds := range s.Pitches.Fired {
		var fired []string
		for kind, ok := range kinds {
			if ok {
				fired = append(fired, kind)
			}
		}
		sort.Strings(fired)
		snap.PitchThresholds[id] = fired
	}
	for slot, declined := range s.Review.Declined {
		if declined {
			snap.ReviewDeclined = append(snap.ReviewDeclined, slot)
		}
	}
	sort.Ints(snap.ReviewDeclined)
	return snap
}

// RestoreSession rebuilds a session from a snapshot. Every occupant must exist in
// the roster.
func RestoreSession(roster Roster, snap Snapshot) (*Session, error) {
	s := NewSession(roster, snap.PitchLimit)
	if snap.SessionID != "" {
		s.ID = snap.SessionID
	}
	s.seq = snap.Seq

	l := s.Lineup
	l.Batting = snap.Batting
	l.StartingBatting = snap.StartingBatting
	for i, slot := range l.StartingBatting {
		if slot.OccupantID == "" {
			continue
		}
		if err := requirePlayer(roster, slot.OccupantID); err != nil {
			return nil, fmt.Errorf("starting batting slot %d: %w", i, err)
		}
	}
	for i, slot := range l.Batting {
		if slot.OccupantID == "" {
			continue
		}
		if !slot.Reason.Valid() {
			return nil, fmt.Errorf("%w: slot %d reason %q", ErrInvalidReason, i, slot.Reason)
		}
		if err := requirePlayer(roster, slot.OccupantID); err != nil {
			return nil, fmt.Errorf("batting slot %d: %w", i, err)
		}
	}
	for _, m := range []struct {
		src Assignment
		dst Assignment
	}{{snap.Assignment, l.Assignment}, {snap.StartingAssignment, l.StartingAssignment}} {
		for p, id := range m.src {
			if !p.Valid() {
				return nil, fmt.Errorf("%w: %q", ErrInvalidPosition, p)
			}
			if id == "" {
				continue
			}
			if err := requirePlayer(roster, id); err != nil {
				return nil, fmt.Errorf("position %s: %w", p, err)
			}
			m.dst[p] = id
		}
	}
	for _, id := range snap.BenchOut {
		if err := requirePlayer(roster, id); err != nil {
			return nil, fmt.Errorf("bench: %w", err)
		}
		l.BenchOut[id] = true
	}
	for k, v := range snap.Chain {
		if err := requirePlayer(roster, k); err != nil {
			return nil, fmt.Errorf("chain: %w", err)
		}
		if v.ReplacementID != "" {
			if err := requirePlayer(roster, v.ReplacementID); err != nil {
				return nil, fmt.Errorf("chain of %s: %w", k, err)
			}
		}
		l.Chain[k] = v
	}
	for slot, id := range snap.TempRunners {
		if err := validSlot(slot); err != nil {
			return nil, err
		}
		if err := requirePlayer(roster, id); err != nil {
			return nil, fmt.Errorf("temporary runner slot %d: %w", slot, err)
		}
		l.TempRunners[slot] = id
	}
	for slot, r := range snap.StashedReasons {
		if err := validSlot(slot); err != nil {
			return nil, err
		}
		l.StashedReasons[slot] = r
	}

	for id, n := range snap.PitcherTotals {
		s.Pitches.Totals[id] = n
	}
	s.Pitches.ThisHalf = snap.ThisHalfInning
	for id, kinds := range snap.PitchThresholds {
		s.Pitches.Fired[id] = make(map[string]bool, len(kinds))
		for _, k := range kinds {
			s.Pitches.Fired[id][k] = true
		}
	}

	s.Score = NewScoreLedger(snap.BattingHalf)
	s.Score.Innings = append([]InningScore{}, snap.Innings...)
	s.Score.Progress = snap.Progress
	for i, in := range s.Score.Innings {
		ahead := s.Score.Progress.compare(i, Top) > 0
		if !ahead && s.Score.Progress.compare(i, Bottom) > 0 && in.Bottom != 0 {
			ahead = true
		}
		if ahead {
			return nil, fmt.Errorf("%w: score entry for inning %d", ErrAheadOfProgress, i+1)
		}
	}
	for _, slot := range snap.ReviewDeclined {
		s.Review.Declined[slot] = true
	}
	return s, nil
}
