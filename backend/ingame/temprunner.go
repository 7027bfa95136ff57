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

import "fmt"

// ReturnOffer asks to send a temporary runner back and return the slot to its batter.
type ReturnOffer struct {
	Slot     int    `json:"slot"`
	RunnerID string `json:"runnerId"`
	BatterID string `json:"batterId"`
	// FromPosition is where the batter's original starter started. Empty when the
	// batter does not resolve to a starter with a position.
	FromPosition Position `json:"fromPosition,omitempty"`
}

// activateTemporaryRunner puts runner on base for slot. The batter of record is not
// touched; only the reason changes, and the previous one is stashed.
func (l *LineupState) activateTemporaryRunner(r Roster, slot int, runner string) (Reason, error) {
	if err := validSlot(slot); err != nil {
		return "", err
	}
	if err := requirePlayer(r, runner); err != nil {
		return "", err
	}
	if _, active := l.TempRunners[slot]; active || l.Batting[slot].Reason == ReasonTemporaryRun {
		return "", fmt.Errorf("%w: slot %d", ErrTemporaryRunnerActive, slot)
	}
	if l.Batting[slot].OccupantID == runner {
		return "", fmt.Errorf("%w: %s cannot run for themselves", ErrInvalidLineup, runner)
	}
	prev := l.Batting[slot].Reason
	l.StashedReasons[slot] = prev
	l.TempRunners[slot] = runner
	l.Batting[slot].Reason = ReasonTemporaryRun
	return prev, nil
}

// buildReturnOffer describes the pending return for slot, if it has a temporary runner.
func (l *LineupState) buildReturnOffer(slot int) (ReturnOffer, bool) {
	if slot < 0 || slot >= LineupSize {
		return ReturnOffer{}, false
	}
	runner, active := l.TempRunners[slot]
	if !active && l.Batting[slot].Reason != ReasonTemporaryRun {
		return ReturnOffer{}, false
	}
	batter := l.Batting[slot].OccupantID
	if runner == "" {
		runner = batter
	}
	o := ReturnOffer{Slot: slot, RunnerID: runner, BatterID: batter}
	if starter, ok := l.Chain.ResolveOriginalStarter(batter, l.StartingAssignment); ok {
		if p, ok := l.StartingAssignment.PositionOf(starter); ok {
			o.FromPosition = p
		}
	}
	return o, true
}

// restoredReason is the reason slot goes back to once its temporary runner is resolved.
func (l *LineupState) restoredReason(slot int) Reason {
	if r, ok := l.StashedReasons[slot]; ok && r.Valid() && r != ReasonTemporaryRun {
		return r
	}
	// Only reachable with a mirror that lost the stash.
	if l.StartingBatting[slot].OccupantID == l.Batting[slot].OccupantID {
		return ReasonStarter
	}
	return ReasonPinchHit
}

// resolveTemporaryRunner clears the runner of slot and restores the stashed reason.
func (l *LineupState) resolveTemporaryRunner(slot int) Reason {
	reason := l.restoredReason(slot)
	delete(l.TempRunners, slot)
	delete(l.StashedReasons, slot)
	l.Batting[slot].Reason = reason
	return reason
}
