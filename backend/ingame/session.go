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
	"time"

	"github.com/google/uuid"
)

// Session is the in-game state of one live game. Every exported mutation either
// applies completely and returns a Transition, or returns an error and changes
// nothing. A Session is not safe for concurrent use.
type Session struct {
	ID string

	Lineup  *LineupState
	Pitches *PitchLedger
	Score   *ScoreLedger
	Review  ReviewQueue

	roster Roster
	seq    uint64

	// Now is the clock used for transition timestamps.
	Now func() time.Time
}

// NewSession returns a session with no game started.
func NewSession(roster Roster, pitchLimit int) *Session {
	return &Session{
		ID:      uuid.NewString(),
		Lineup:  NewLineupState(),
		Pitches: NewPitchLedger(pitchLimit),
		Score:   NewScoreLedger(Top),
		Review:  newReviewQueue(),
		roster:  roster,
		Now:     time.Now,
	}
}

// Seq returns the sequence number of the last applied transition.
func (s *Session) Seq() uint64 {
	return s.seq
}

// Started reports whether StartGame has been applied.
func (s *Session) Started() bool {
	return s.Lineup.StartingBatting[0].OccupantID != ""
}

// SetRoster replaces the roster source.
func (s *Session) SetRoster(r Roster) {
	s.roster = r
}

func (s *Session) emit(typ string, payload any) Transition {
	s.seq++
	return Transition{
		Seq:       s.seq,
		ID:        uuid.NewString(),
		SessionID: s.ID,
		Type:      typ,
		Timestamp: s.Now().UnixNano(),
		Payload:   payload,
	}
}

func (s *Session) requireStarted() error {
	if !s.Started() {
		return ErrGameNotStarted
	}
	return nil
}

// StartGame discards all state and starts a new game with the given starters.
func (s *Session) StartGame(in StartingLineup, battingHalf Half) (Transition, error) {
	if err := validateStart(s.roster, in); err != nil {
		return Transition{}, err
	}
	s.Lineup.reset(in)
	s.Pitches = NewPitchLedger(s.Pitches.Limit)
	s.Score = NewScoreLedger(battingHalf)
	s.Review.Restart()
	return s.emit(ActionGameStart, GameStartPayload{
		Lineup:      in,
		BattingHalf: battingHalf,
		PitchLimit:  s.Pitches.Limit,
	}), nil
}

// Substitute replaces the batter of slot with a pinch hitter or pinch runner.
func (s *Session) Substitute(slot int, incomingID string, reason Reason) (Transition, error) {
	if err := s.requireStarted(); err != nil {
		return Transition{}, err
	}
	outgoing, pos, err := s.Lineup.substitute(s.roster, slot, incomingID, reason)
	if err != nil {
		return Transition{}, err
	}
	delete(s.Review.Declined, slot)
	return s.emit(ActionSubstitution, SubstitutionPayload{
		Slot:       slot,
		OutgoingID: outgoing,
		IncomingID: incomingID,
		Reason:     reason,
		Position:   pos,
	}), nil
}

// AssignPosition moves a player to a fielding position.
func (s *Session) AssignPosition(pos Position, playerID string) (Transition, error) {
	if err := s.requireStarted(); err != nil {
		return Transition{}, err
	}
	displaced, from, err := s.Lineup.assignPosition(s.roster, pos, playerID)
	if err != nil {
		return Transition{}, err
	}
	return s.emit(ActionPositionUpdate, PositionPayload{
		Position:    pos,
		PlayerID:    playerID,
		DisplacedID: displaced,
		From:        from,
	}), nil
}

// PendingReview returns the single offer currently waiting for a decision.
func (s *Session) PendingReview() (Review, bool) {
	if !s.Started() {
		return Review{}, false
	}
	return s.Review.Head(s.Lineup)
}

// PendingReviews lists every queued offer in surfacing order.
func (s *Session) PendingReviews() []Review {
	if !s.Started() {
		return nil
	}
	return s.Review.Pending(s.Lineup)
}

func (s *Session) pendingReentry(o ReentryOffer) error {
	head, ok := s.PendingReview()
	if !ok {
		return ErrNoPendingReview
	}
	if head.Kind != ReviewReentry || *head.Reentry != o {
		return fmt.Errorf("%w: reentry of %s at %s", ErrStaleOffer, o.StarterID, o.VacatedPosition)
	}
	return nil
}

// ConfirmReentry returns the starter of o to the field. Rule violations are reported
// before anything else and leave the state untouched.
func (s *Session) ConfirmReentry(o ReentryOffer) (Transition, error) {
	if err := s.requireStarted(); err != nil {
		return Transition{}, err
	}
	if err := s.Lineup.checkReentry(o); err != nil {
		return Transition{}, err
	}
	if err := s.pendingReentry(o); err != nil {
		return Transition{}, err
	}
	displaced := s.Lineup.applyReentry(o)
	return s.emit(ActionReentryConfirm, ReentryPayload{Offer: o, DisplacedID: displaced}), nil
}

// CancelReentry declines o for the current review. The lineup is not changed.
func (s *Session) CancelReentry(o ReentryOffer) (Transition, error) {
	if err := s.requireStarted(); err != nil {
		return Transition{}, err
	}
	if err := s.pendingReentry(o); err != nil {
		return Transition{}, err
	}
	s.Review.Declined[o.Slot] = true
	return s.emit(ActionReentryCancel, ReentryPayload{Offer: o}), nil
}

// ActivateTemporaryRunner sends a courtesy runner in for the batter of slot.
func (s *Session) ActivateTemporaryRunner(slot int, runnerID string) (Transition, error) {
	if err := s.requireStarted(); err != nil {
		return Transition{}, err
	}
	prev, err := s.Lineup.activateTemporaryRunner(s.roster, slot, runnerID)
	if err != nil {
		return Transition{}, err
	}
	return s.emit(ActionTempRunner, TempRunnerPayload{
		Slot:          slot,
		RunnerID:      runnerID,
		BatterID:      s.Lineup.Batting[slot].OccupantID,
		StashedReason: prev,
	}), nil
}

// BuildReturnOffer describes the return of the temporary runner on slot.
func (s *Session) BuildReturnOffer(slot int) (ReturnOffer, bool) {
	return s.Lineup.buildReturnOffer(slot)
}

func (s *Session) resolveReturn(slot int, typ string) (Transition, error) {
	if err := s.requireStarted(); err != nil {
		return Transition{}, err
	}
	head, ok := s.PendingReview()
	if !ok {
		return Transition{}, ErrNoPendingReview
	}
	if head.Kind != ReviewTemporaryRunner || head.Return.Slot != slot {
		return Transition{}, fmt.Errorf("%w: temporary runner return for slot %d", ErrStaleOffer, slot)
	}
	offer := *head.Return
	restored := s.Lineup.resolveTemporaryRunner(slot)
	return s.emit(typ, ReturnPayload{Offer: offer, RestoredReason: restored}), nil
}

// ConfirmReturn sends the temporary runner of slot back and restores the slot's reason.
func (s *Session) ConfirmReturn(slot int) (Transition, error) {
	return s.resolveReturn(slot, ActionTempRunnerReturn)
}

// CancelReturn clears the temporary runner of slot without an announced return.
// The stored state ends up identical to ConfirmReturn.
func (s *Session) CancelReturn(slot int) (Transition, error) {
	return s.resolveReturn(slot, ActionTempRunnerCancel)
}

// RecordPitch adds +1 or -1 to a pitcher's count.
func (s *Session) RecordPitch(pitcherID string, delta int) (Transition, error) {
	if err := s.requireStarted(); err != nil {
		return Transition{}, err
	}
	if err := requirePlayer(s.roster, pitcherID); err != nil {
		return Transition{}, err
	}
	f, err := s.Pitches.RecordPitch(pitcherID, delta)
	if err != nil {
		return Transition{}, err
	}
	return s.emit(ActionPitch, f), nil
}

// EndHalfInning resets the half-inning pitch count.
func (s *Session) EndHalfInning() (Transition, error) {
	if err := s.requireStarted(); err != nil {
		return Transition{}, err
	}
	s.Pitches.OnHalfInningEnd()
	return s.emit(ActionHalfInningEnd, s.Pitches.ThisHalf), nil
}

// OverridePitchCount sets a pitcher's cumulative total.
func (s *Session) OverridePitchCount(pitcherID string, total int) (Transition, error) {
	if err := s.requireStarted(); err != nil {
		return Transition{}, err
	}
	if err := requirePlayer(s.roster, pitcherID); err != nil {
		return Transition{}, err
	}
	if err := s.Pitches.ManualOverride(pitcherID, total); err != nil {
		return Transition{}, err
	}
	return s.emit(ActionPitchOverride, PitchOverridePayload{PitcherID: pitcherID, Total: total}), nil
}

// PitchFigures returns a pitcher's current numbers.
func (s *Session) PitchFigures(pitcherID string) PitchFigures {
	return s.Pitches.Figures(pitcherID)
}

// AddRun adjusts the runs of the half-inning in progress.
func (s *Session) AddRun(inning int, half Half, delta int) (Transition, error) {
	if err := s.requireStarted(); err != nil {
		return Transition{}, err
	}
	if !s.Score.AddRun(inning, half, delta) {
		return Transition{}, fmt.Errorf("%w: inning %d %s", ErrNotCurrentHalf, inning+1, half)
	}
	return s.emit(ActionRunAdd, ScorePayload{
		Inning:   inning,
		Half:     half,
		Runs:     s.Score.Runs(inning, half),
		Progress: s.Score.Progress,
	}), nil
}

// CommitHalfInningScore records the final runs of a half-inning. Committing the
// half-inning in progress ends it: the pitch count of the half resets and, when our
// team takes the field, a new review of pending offers begins.
func (s *Session) CommitHalfInningScore(inning int, half Half, value int) (Transition, error) {
	if err := s.requireStarted(); err != nil {
		return Transition{}, err
	}
	advanced, err := s.Score.CommitHalfInningScore(inning, half, value)
	if err != nil {
		return Transition{}, err
	}
	if advanced {
		s.Pitches.OnHalfInningEnd()
		if s.Score.Progress.IsDefense {
			s.Review.Restart()
		}
	}
	return s.emit(ActionScoreCommit, ScorePayload{
		Inning:   inning,
		Half:     half,
		Runs:     value,
		Progress: s.Score.Progress,
		Advanced: advanced,
	}), nil
}

// RollbackToInning discards every inning after n (1-based).
func (s *Session) RollbackToInning(n int) (Transition, error) {
	if err := s.requireStarted(); err != nil {
		return Transition{}, err
	}
	if err := s.Score.RollbackToInning(n); err != nil {
		return Transition{}, err
	}
	return s.emit(ActionScoreRollback, RollbackPayload{Inning: n, Progress: s.Score.Progress}), nil
}

// OccupantAt returns who plays pos right now.
func (s *Session) OccupantAt(pos Position) (string, bool) {
	id := s.Lineup.Assignment[pos]
	return id, id != ""
}

// ResolveOriginalStarter resolves id against the game-start assignment.
func (s *Session) ResolveOriginalStarter(id string) (string, bool) {
	return s.Lineup.Chain.ResolveOriginalStarter(id, s.Lineup.StartingAssignment)
}

// ResolveLatestOccupant follows the chain of starterID to its current end.
func (s *Session) ResolveLatestOccupant(starterID string) string {
	return s.Lineup.Chain.ResolveLatestOccupant(starterID)
}
