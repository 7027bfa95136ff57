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
	"errors"
	"fmt"
)

var (
	// ErrRuleViolation is matched by every *RuleViolationError.
	ErrRuleViolation = errors.New("rule violation")

	ErrUnknownPlayer         = errors.New("unknown player")
	ErrInvalidSlot           = errors.New("invalid batting slot")
	ErrInvalidPosition       = errors.New("invalid position")
	ErrInvalidReason         = errors.New("invalid substitution reason")
	ErrInvalidDelta          = errors.New("invalid delta")
	ErrInvalidLineup         = errors.New("invalid lineup")
	ErrStaleOffer            = errors.New("offer is not the pending review")
	ErrNoPendingReview       = errors.New("no pending review")
	ErrTemporaryRunnerActive = errors.New("temporary runner active on slot")
	ErrNotCurrentHalf        = errors.New("half-inning is not the current progress position")
	ErrAheadOfProgress       = errors.New("half-inning is ahead of progress")
	ErrGameNotStarted        = errors.New("game not started")
)

// Rule names carried by RuleViolationError.
const (
	RulePitcherReentry   = "pitcher-reentry"
	RuleAlreadyReentered = "already-reentered"
	RuleRemovedPlayer    = "removed-player"
)

// RuleViolationError is an action the rules forbid. It is always surfaced to the caller
// and never applied.
type RuleViolationError struct {
	Rule     string
	PlayerID string
	Position Position
}

func (e *RuleViolationError) Error() string {
	switch e.Rule {
	case RulePitcherReentry:
		return fmt.Sprintf("rule violation: starter %s cannot reenter at pitcher position %s", e.PlayerID, e.Position)
	case RuleAlreadyReentered:
		return fmt.Sprintf("rule violation: starter %s has already reentered", e.PlayerID)
	case RuleRemovedPlayer:
		return fmt.Sprintf("rule violation: player %s was already removed from the game", e.PlayerID)
	}
	return fmt.Sprintf("rule violation: %s (%s)", e.Rule, e.PlayerID)
}

func (e *RuleViolationError) Unwrap() error {
	return ErrRuleViolation
}
