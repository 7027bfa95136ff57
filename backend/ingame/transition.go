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

// Action types. A Transition carries one of these.
const (
	ActionGameStart        = "GAME_START"
	ActionSubstitution     = "SUBSTITUTION"
	ActionPositionUpdate   = "POSITION_UPDATE"
	ActionReentryConfirm   = "REENTRY_CONFIRM"
	ActionReentryCancel    = "REENTRY_CANCEL"
	ActionTempRunner       = "TEMP_RUNNER"
	ActionTempRunnerReturn = "TEMP_RUNNER_RETURN"
	ActionTempRunnerCancel = "TEMP_RUNNER_CANCEL"
	ActionPitch            = "PITCH"
	ActionHalfInningEnd    = "HALF_INNING_END"
	ActionPitchOverride    = "PITCH_OVERRIDE"
	ActionRunAdd           = "RUN_ADD"
	ActionScoreCommit      = "SCORE_COMMIT"
	ActionScoreRollback    = "SCORE_ROLLBACK"
)

// Transition is the record of one applied mutation. Seq is scoped to the session and
// increases by one per applied mutation.
type Transition struct {
	Seq       uint64 `json:"seq"`
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

// GameStartPayload is carried by ActionGameStart.
type GameStartPayload struct {
	Lineup      StartingLineup `json:"lineup"`
	BattingHalf Half           `json:"battingHalf"`
	PitchLimit  int            `json:"pitchLimit"`
}

// SubstitutionPayload is carried by ActionSubstitution.
type SubstitutionPayload struct {
	Slot       int      `json:"slot"`
	OutgoingID string   `json:"outgoingId"`
	IncomingID string   `json:"incomingId"`
	Reason     Reason   `json:"reason"`
	Position   Position `json:"position,omitempty"`
}

// PositionPayload is carried by ActionPositionUpdate.
type PositionPayload struct {
	Position    Position `json:"position"`
	PlayerID    string   `json:"playerId"`
	DisplacedID string   `json:"displacedId,omitempty"`
	From        Position `json:"from,omitempty"`
}

// ReentryPayload is carried by ActionReentryConfirm and ActionReentryCancel.
type ReentryPayload struct {
	Offer       ReentryOffer `json:"offer"`
	DisplacedID string       `json:"displacedId,omitempty"`
}

// TempRunnerPayload is carried by ActionTempRunner.
type TempRunnerPayload struct {
	Slot          int    `json:"slot"`
	RunnerID      string `json:"runnerId"`
	BatterID      string `json:"batterId"`
	StashedReason Reason `json:"stashedReason"`
}

// ReturnPayload is carried by ActionTempRunnerReturn and ActionTempRunnerCancel.
type ReturnPayload struct {
	Offer          ReturnOffer `json:"offer"`
	RestoredReason Reason      `json:"restoredReason"`
}

// PitchOverridePayload is carried by ActionPitchOverride.
type PitchOverridePayload struct {
	PitcherID string `json:"pitcherId"`
	Total     int    `json:"total"`
}

// ScorePayload is carried by ActionRunAdd and ActionScoreCommit.
type ScorePayload struct {
	Inning   int             `json:"inning"`
	Half     Half            `json:"half"`
	Runs     int             `json:"runs"`
	Progress ProgressPointer `json:"progress"`
	Advanced bool            `json:"advanced,omitempty"`
}

// RollbackPayload is carried by ActionScoreRollback.
type RollbackPayload struct {
	Inning   int             `json:"inning"`
	Progress ProgressPointer `json:"progress"`
}
