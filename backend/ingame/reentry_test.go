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
	"testing"
)

func TestReentry_ThirdBaseScenario(t *testing.T) {
	s := newStartedSession(t)

	if _, err := s.Substitute(4, "23", ReasonPinchHit); err != nil {
		t.Fatalf("Substitute: %v", err)
	}
	if got, ok := s.ResolveOriginalStarter("23"); !ok || got != "7" {
		t.Fatalf("ResolveOriginalStarter(23) = %q, %v; want 7", got, ok)
	}
	if !s.Lineup.BenchOut["7"] {
		t.Error("starter 7 should be on the bench-out set")
	}

	r := mustReview(t, s, ReviewReentry)
	want := ReentryOffer{Slot: 4, StarterID: "7", VacatedPosition: PosThird, SubstituteID: "23", SubstituteReason: ReasonPinchHit}
	if *r.Reentry != want {
		t.Fatalf("offer = %+v, want %+v", *r.Reentry, want)
	}

	tr, err := s.ConfirmReentry(want)
	if err != nil {
		t.Fatalf("ConfirmReentry: %v", err)
	}
	if tr.Type != ActionReentryConfirm {
		t.Errorf("transition type = %s", tr.Type)
	}
	if got := s.Lineup.Assignment[PosThird]; got != "7" {
		t.Errorf("Assignment[三] = %q, want 7", got)
	}
	if got := s.Lineup.Batting[4]; got.OccupantID != "23" || got.Reason != ReasonPinchHit {
		t.Errorf("slot 4 = %+v, want 23 pinch-hit", got)
	}
	if !s.Lineup.Chain.HasReentered("7") {
		t.Error("hasReentered should be set for 7")
	}
	if s.Lineup.BenchOut["7"] {
		t.Error("7 should be back in the game")
	}
	if r, ok := s.PendingReview(); ok {
		t.Errorf("no review expected after reentry, got %+v", r)
	}

	seq := s.Seq()
	_, err = s.ConfirmReentry(want)
	var rv *RuleViolationError
	if !errors.As(err, &rv) || rv.Rule != RuleAlreadyReentered {
		t.Fatalf("second reentry: err = %v, want already-reentered violation", err)
	}
	if s.Seq() != seq {
		t.Errorf("rejected reentry advanced seq to %d", s.Seq())
	}
}

func TestReentry_PitcherPositionRejected(t *testing.T) {
	s := newStartedSession(t)
	if _, err := s.Substitute(8, "15", ReasonPinchHit); err != nil {
		t.Fatalf("Substitute: %v", err)
	}
	before := s.Lineup.Assignment.Clone()

	r := mustReview(t, s, ReviewReentry)
	if r.Reentry.VacatedPosition != PosPitcher || r.Reentry.StarterID != "10" {
		t.Fatalf("offer = %+v", *r.Reentry)
	}

	_, err := s.ConfirmReentry(*r.Reentry)
	if !errors.Is(err, ErrRuleViolation) {
		t.Fatalf("err = %v, want rule violation", err)
	}
	var rv *RuleViolationError
	if !errors.As(err, &rv) || rv.Rule != RulePitcherReentry {
		t.Fatalf("err = %v, want pitcher-reentry", err)
	}
	for _, p := range Positions {
		if s.Lineup.Assignment[p] != before[p] {
			t.Errorf("Assignment[%s] changed from %q to %q", p, before[p], s.Lineup.Assignment[p])
		}
	}
	if s.Lineup.Chain.HasReentered("10") {
		t.Error("hasReentered must not be set on a rejected reentry")
	}

	// The offer stays surfaced until the user cancels it.
	mustReview(t, s, ReviewReentry)
	if _, err := s.CancelReentry(*r.Reentry); err != nil {
		t.Fatalf("CancelReentry: %v", err)
	}
	if r, ok := s.PendingReview(); ok {
		t.Errorf("expected empty queue, got %+v", r)
	}
}

func TestReentry_OffersAreSerialized(t *testing.T) {
	s := newStartedSession(t)
	if _, err := s.Substitute(1, "20", ReasonPinchRun); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Substitute(4, "23", ReasonPinchHit); err != nil {
		t.Fatal(err)
	}

	if n := len(s.PendingReviews()); n != 2 {
		t.Fatalf("PendingReviews = %d, want 2", n)
	}
	first := mustReview(t, s, ReviewReentry)
	if first.Reentry.Slot != 1 || first.Reentry.StarterID != "4" || first.Reentry.VacatedPosition != PosSecond {
		t.Fatalf("first offer = %+v", *first.Reentry)
	}

	later := ReentryOffer{Slot: 4, StarterID: "7", VacatedPosition: PosThird, SubstituteID: "23", SubstituteReason: ReasonPinchHit}
	if _, err := s.ConfirmReentry(later); !errors.Is(err, ErrStaleOffer) {
		t.Fatalf("confirming a queued offer: err = %v, want ErrStaleOffer", err)
	}

	before := s.Snapshot()
	if _, err := s.CancelReentry(*first.Reentry); err != nil {
		t.Fatalf("CancelReentry: %v", err)
	}
	after := s.Snapshot()
	if after.Assignment[PosSecond] != before.Assignment[PosSecond] || after.Batting != before.Batting {
		t.Error("cancel must not change the lineup")
	}

	second := mustReview(t, s, ReviewReentry)
	if *second.Reentry != later {
		t.Fatalf("second offer = %+v, want %+v", *second.Reentry, later)
	}
	if _, err := s.ConfirmReentry(later); err != nil {
		t.Fatalf("ConfirmReentry: %v", err)
	}
	if _, ok := s.PendingReview(); ok {
		t.Error("queue should be empty")
	}
}

func TestReentry_DeclinedOfferReturnsOnNextDefense(t *testing.T) {
	s := newStartedSession(t)
	if _, err := s.Substitute(4, "23", ReasonPinchHit); err != nil {
		t.Fatal(err)
	}
	r := mustReview(t, s, ReviewReentry)
	if _, err := s.CancelReentry(*r.Reentry); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.PendingReview(); ok {
		t.Fatal("declined offer should not resurface in the same review")
	}

	// Our team bats in the top; committing it puts us on defense.
	if _, err := s.CommitHalfInningScore(0, Top, 1); err != nil {
		t.Fatal(err)
	}
	if !s.Score.Progress.IsDefense {
		t.Fatal("expected to be on defense")
	}
	again := mustReview(t, s, ReviewReentry)
	if *again.Reentry != *r.Reentry {
		t.Errorf("offer = %+v, want %+v", *again.Reentry, *r.Reentry)
	}
}

func TestSubstitute_RemovedPlayerCannotReturn(t *testing.T) {
	s := newStartedSession(t)
	if _, err := s.Substitute(4, "23", ReasonPinchHit); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Substitute(0, "7", ReasonPinchRun); !errors.Is(err, ErrRuleViolation) {
		t.Errorf("re-using removed starter: err = %v, want rule violation", err)
	}
	if _, err := s.Substitute(0, "99", ReasonPinchRun); !errors.Is(err, ErrUnknownPlayer) {
		t.Errorf("unknown player: err = %v", err)
	}
	if _, err := s.Substitute(9, "24", ReasonPinchRun); !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("bad slot: err = %v", err)
	}
	if _, err := s.Substitute(0, "24", ReasonStarter); !errors.Is(err, ErrInvalidReason) {
		t.Errorf("bad reason: err = %v", err)
	}
	if _, err := s.Substitute(0, "23", ReasonPinchRun); err == nil {
		t.Error("player already batting should be rejected")
	}
}

func TestSubstitute_ChainOfThree(t *testing.T) {
	s := newStartedSession(t)
	if _, err := s.Substitute(4, "23", ReasonPinchHit); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Substitute(4, "24", ReasonPinchRun); err != nil {
		t.Fatal(err)
	}
	if got := s.ResolveLatestOccupant("7"); got != "24" {
		t.Errorf("ResolveLatestOccupant(7) = %q, want 24", got)
	}
	r := mustReview(t, s, ReviewReentry)
	if r.Reentry.StarterID != "7" || r.Reentry.SubstituteID != "24" || r.Reentry.SubstituteReason != ReasonPinchRun {
		t.Errorf("offer = %+v", *r.Reentry)
	}
	if got := s.Lineup.Assignment[PosThird]; got != "24" {
		t.Errorf("Assignment[三] = %q, want 24", got)
	}
}
