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

package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/ttbt-io/lineupkeeper/backend/ingame"
)

// ErrBadAction is returned for malformed action requests.
var ErrBadAction = errors.New("bad action")

// idRegex matches game and team ids: UUIDs or short slugs.
var idRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

func isValidID(id string) bool {
	return idRegex.MatchString(id)
}

// ActionRequest is the body of the action endpoint.
type ActionRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// action is a decoded request, ready to run against a session.
type action interface {
	apply(s *ingame.Session) (ingame.Transition, error)
}

type lineupInput struct {
	Batting    [ingame.LineupSize]string `json:"batting"`
	Assignment map[string]string         `json:"assignment"`
}

type gameStartAction struct {
	Lineup      lineupInput `json:"lineup"`
	BattingHalf ingame.Half `json:"battingHalf"`
	TeamID      string      `json:"teamId"`
	PitchLimit  int         `json:"pitchLimit"`

	lineup ingame.StartingLineup
}

func (a *gameStartAction) validate() error {
	if !isValidID(a.TeamID) {
		return fmt.Errorf("%w: teamId is missing or invalid", ErrBadAction)
	}
	if a.PitchLimit < 0 {
		return fmt.Errorf("%w: pitchLimit %d", ingame.ErrInvalidDelta, a.PitchLimit)
	}
	a.lineup = ingame.StartingLineup{
		Batting:    a.Lineup.Batting,
		Assignment: make(ingame.Assignment, len(a.Lineup.Assignment)),
	}
	for k, id := range a.Lineup.Assignment {
		p, ok := ingame.ParsePosition(k)
		if !ok {
			return fmt.Errorf("%w: %q", ingame.ErrInvalidPosition, k)
		}
		if _, dup := a.lineup.Assignment[p]; dup {
			return fmt.Errorf("%w: %s given twice", ingame.ErrInvalidLineup, p)
		}
		a.lineup.Assignment[p] = id
	}
	return nil
}

// apply starts the game. The hub installs the team roster and pitch limit first.
func (a *gameStartAction) apply(s *ingame.Session) (ingame.Transition, error) {
	return s.StartGame(a.lineup, a.BattingHalf)
}

type substitutionAction struct {
	Slot       int           `json:"slot"`
	IncomingID string        `json:"incomingId"`
	Reason     ingame.Reason `json:"reason"`
}

func (a *substitutionAction) apply(s *ingame.Session) (ingame.Transition, error) {
	return s.Substitute(a.Slot, a.IncomingID, a.Reason)
}

type positionAction struct {
	Position string `json:"position"`
	PlayerID string `json:"playerId"`
}

func (a *positionAction) apply(s *ingame.Session) (ingame.Transition, error) {
	p, ok := ingame.ParsePosition(a.Position)
	if !ok {
		return ingame.Transition{}, fmt.Errorf("%w: %q", ingame.ErrInvalidPosition, a.Position)
	}
	return s.AssignPosition(p, a.PlayerID)
}

type reentryAction struct {
	Offer   ingame.ReentryOffer `json:"offer"`
	confirm bool
}

func (a *reentryAction) apply(s *ingame.Session) (ingame.Transition, error) {
	if a.confirm {
		return s.ConfirmReentry(a.Offer)
	}
	return s.CancelReentry(a.Offer)
}

type tempRunnerAction struct {
	Slot     int    `json:"slot"`
	RunnerID string `json:"runnerId"`
}

func (a *tempRunnerAction) apply(s *ingame.Session) (ingame.Transition, error) {
	return s.ActivateTemporaryRunner(a.Slot, a.RunnerID)
}

type returnAction struct {
	Slot    int `json:"slot"`
	confirm bool
}

func (a *returnAction) apply(s *ingame.Session) (ingame.Transition, error) {
	if a.confirm {
		return s.ConfirmReturn(a.Slot)
	}
	return s.CancelReturn(a.Slot)
}

type pitchAction struct {
	PitcherID string `json:"pitcherId"`
	Delta     int    `json:"delta"`
}

func (a *pitchAction) apply(s *ingame.Session) (ingame.Transition, error) {
	return s.RecordPitch(a.PitcherID, a.Delta)
}

type halfInningEndAction struct{}

func (halfInningEndAction) apply(s *ingame.Session) (ingame.Transition, error) {
	return s.EndHalfInning()
}

type pitchOverrideAction struct {
	PitcherID string `json:"pitcherId"`
	Total     int    `json:"total"`
}

func (a *pitchOverrideAction) apply(s *ingame.Session) (ingame.Transition, error) {
	return s.OverridePitchCount(a.PitcherID, a.Total)
}

// runAddAction and scoreCommitAction address innings by 0-based index.
type runAddAction struct {
	Inning int         `json:"inning"`
	Half   ingame.Half `json:"half"`
	Delta  int         `json:"delta"`
}

func (a *runAddAction) apply(s *ingame.Session) (ingame.Transition, error) {
	return s.AddRun(a.Inning, a.Half, a.Delta)
}

type scoreCommitAction struct {
	Inning int         `json:"inning"`
	Half   ingame.Half `json:"half"`
	Runs   int         `json:"runs"`
}

func (a *scoreCommitAction) apply(s *ingame.Session) (ingame.Transition, error) {
	return s.CommitHalfInningScore(a.Inning, a.Half, a.Runs)
}

// scoreRollbackAction keeps innings 1..Inning.
type scoreRollbackAction struct {
	Inning int `json:"inning"`
}

func (a *scoreRollbackAction) apply(s *ingame.Session) (ingame.Transition, error) {
	return s.RollbackToInning(a.Inning)
}

// decodeAction validates the envelope and decodes the payload of req.
func decodeAction(req ActionRequest) (action, error) {
	var a action
	switch req.Type {
	case ingame.ActionGameStart:
		a = &gameStartAction{}
	case ingame.ActionSubstitution:
		a = &substitutionAction{}
	case ingame.ActionPositionUpdate:
		a = &positionAction{}
	case ingame.ActionReentryConfirm:
		a = &reentryAction{confirm: true}
	case ingame.ActionReentryCancel:
		a = &reentryAction{}
	case ingame.ActionTempRunner:
		a = &tempRunnerAction{}
	case ingame.ActionTempRunnerReturn:
		a = &returnAction{confirm: true}
	case ingame.ActionTempRunnerCancel:
		a = &returnAction{}
	case ingame.ActionPitch:
		a = &pitchAction{}
	case ingame.ActionHalfInningEnd:
		return halfInningEndAction{}, nil
	case ingame.ActionPitchOverride:
		a = &pitchOverrideAction{}
	case ingame.ActionRunAdd:
		a = &runAddAction{}
	case ingame.ActionScoreCommit:
		a = &scoreCommitAction{}
	case ingame.ActionScoreRollback:
		a = &scoreRollbackAction{}
	case "":
		return nil, fmt.Errorf("%w: missing action type", ErrBadAction)
	default:
		return nil, fmt.Errorf("%w: unknown action type %q", ErrBadAction, req.Type)
	}

	if len(bytes.TrimSpace(req.Payload)) == 0 {
		return nil, fmt.Errorf("%w: %s requires a payload", ErrBadAction, req.Type)
	}
	dec := json.NewDecoder(bytes.NewReader(req.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(a); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrBadAction, req.Type, err)
	}
	if gs, ok := a.(*gameStartAction); ok {
		if err := gs.validate(); err != nil {
			return nil, err
		}
	}
	return a, nil
}
