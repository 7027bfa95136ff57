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

// ReentryOffer proposes returning a substituted starter to the field.
type ReentryOffer struct {
	Slot             int      `json:"slot"`
	StarterID        string   `json:"starterId"`
	VacatedPosition  Position `json:"vacatedPosition"`
	SubstituteID     string   `json:"substituteId"`
	SubstituteReason Reason   `json:"substituteReason"`
}

// reentryOfferFor evaluates a single slot. The second result is false when the slot
// has nothing to offer.
func (l *LineupState) reentryOfferFor(slot int) (ReentryOffer, bool) {
	s := l.Batting[slot]
	if s.Reason != ReasonPinchHit && s.Reason != ReasonPinchRun {
		return ReentryOffer{}, false
	}
	starter, ok := l.Chain.ResolveOriginalStarter(s.OccupantID, l.StartingAssignment)
	if !ok || starter == s.OccupantID {
		return ReentryOffer{}, false
	}
	if l.Chain.HasReentered(starter) || l.Assignment.Holds(starter) {
		return ReentryOffer{}, false
	}
	pos, ok := l.StartingAssignment.PositionOf(starter)
	if !ok {
		return ReentryOffer{}, false
	}
	return ReentryOffer{
		Slot:             slot,
		StarterID:        starter,
		VacatedPosition:  pos,
		SubstituteID:     s.OccupantID,
		SubstituteReason: s.Reason,
	}, true
}

// detectReentry returns the offer for the lowest eligible slot not in skip.
func (l *LineupState) detectReentry(skip map[int]bool) (ReentryOffer, bool) {
	for _, slot := range l.NonStarterSlots() {
		if skip[slot] {
			continue
		}
		if o, ok := l.reentryOfferFor(slot); ok {
			return o, true
		}
	}
	return ReentryOffer{}, false
}

// checkReentry enforces the reentry rules for o without mutating anything.
func (l *LineupState) checkReentry(o ReentryOffer) error {
	if l.Chain.HasReentered(o.StarterID) {
		return &RuleViolationError{Rule: RuleAlreadyReentered, PlayerID: o.StarterID, Position: o.VacatedPosition}
	}
	if o.VacatedPosition == PosPitcher {
		return &RuleViolationError{Rule: RulePitcherReentry, PlayerID: o.StarterID, Position: o.VacatedPosition}
	}
	return nil
}

// applyReentry puts the starter back at the vacated position. The substitute keeps
// the batting slot.
func (l *LineupState) applyReentry(o ReentryOffer) (displaced string) {
	displaced = l.Assignment[o.VacatedPosition]
	l.Assignment[o.VacatedPosition] = o.StarterID
	link := l.Chain[o.StarterID]
	link.HasReentered = true
	l.Chain[o.StarterID] = link
	delete(l.BenchOut, o.StarterID)
	return displaced
}
