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

func TestTemporaryRunner_RestoresStashedReason(t *testing.T) {
	tests := []struct {
		name    string
		pinch   bool
		confirm bool
		want    Reason
	}{
		{"starter confirm", false, true, ReasonStarter},
		{"starter cancel", false, false, ReasonStarter},
		{"pinch-hit confirm", true, true, ReasonPinchHit},
		{"pinch-hit cancel", true, false, ReasonPinchHit},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newStartedSession(t)
			batter := "7"
			if tc.pinch {
				if _, err := s.Substitute(4, "23", ReasonPinchHit); err != nil {
					t.Fatal(err)
				}
				batter = "23"
			}
			tr, err := s.ActivateTemporaryRunner(4, "16")
			if err != nil {
				t.Fatalf("ActivateTemporaryRunner: %v", err)
			}
			if p := tr.Payload.(TempRunnerPayload); p.StashedReason != tc.want || p.BatterID != batter {
				t.Errorf("payload = %+v", p)
			}
			if got := s.Lineup.Batting[4]; got.Reason != ReasonTemporaryRun || got.OccupantID != batter {
				t.Fatalf("slot 4 = %+v, want %s temporary-run", got, batter)
			}

			if tc.confirm {
				_, err = s.ConfirmReturn(4)
			} else {
				_, err = s.CancelReturn(4)
			}
			if err != nil {
				t.Fatalf("resolve return: %v", err)
			}
			if got := s.Lineup.Batting[4].Reason; got != tc.want {
				t.Errorf("restored reason = %s, want %s", got, tc.want)
			}
			if len(s.Lineup.TempRunners) != 0 || len(s.Lineup.StashedReasons) != 0 {
				t.Errorf("temporary runner maps not cleared: %v %v", s.Lineup.TempRunners, s.Lineup.StashedReasons)
			}
		})
	}
}

func TestTemporaryRunner_ReturnOfferThenReentry(t *testing.T) {
	s := newStartedSession(t)
	if _, err := s.Substitute(4, "23", ReasonPinchHit); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ActivateTemporaryRunner(4, "16"); err != nil {
		t.Fatal(err)
	}

	r := mustReview(t, s, ReviewTemporaryRunner)
	want := ReturnOffer{Slot: 4, RunnerID: "16", BatterID: "23", FromPosition: PosThird}
	if *r.Return != want {
		t.Fatalf("return offer = %+v, want %+v", *r.Return, want)
	}
	if got, ok := s.BuildReturnOffer(4); !ok || got != want {
		t.Errorf("BuildReturnOffer(4) = %+v, %v", got, ok)
	}

	if _, err := s.ConfirmReturn(3); !errors.Is(err, ErrStaleOffer) {
		t.Errorf("wrong slot: err = %v, want ErrStaleOffer", err)
	}
	if _, err := s.ConfirmReturn(4); err != nil {
		t.Fatalf("ConfirmReturn: %v", err)
	}

	// Reentry detection runs next for the remaining non-starter slot.
	next := mustReview(t, s, ReviewReentry)
	if next.Reentry.StarterID != "7" || next.Reentry.SubstituteID != "23" {
		t.Errorf("offer = %+v", *next.Reentry)
	}
}

func TestTemporaryRunner_OneAtATime(t *testing.T) {
	s := newStartedSession(t)
	if _, err := s.ActivateTemporaryRunner(7, "16"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ActivateTemporaryRunner(2, "20"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ActivateTemporaryRunner(2, "21"); !errors.Is(err, ErrTemporaryRunnerActive) {
		t.Errorf("second runner on slot 2: err = %v", err)
	}
	if _, err := s.Substitute(2, "21", ReasonPinchRun); !errors.Is(err, ErrTemporaryRunnerActive) {
		t.Errorf("substitute during temporary run: err = %v", err)
	}
	if _, err := s.ActivateTemporaryRunner(0, "8"); err == nil {
		t.Error("a batter cannot run for themselves")
	}

	first := mustReview(t, s, ReviewTemporaryRunner)
	if first.Return.Slot != 2 {
		t.Fatalf("first surfaced slot = %d, want 2", first.Return.Slot)
	}
	if _, err := s.CancelReturn(2); err != nil {
		t.Fatal(err)
	}
	second := mustReview(t, s, ReviewTemporaryRunner)
	if second.Return.Slot != 7 || second.Return.RunnerID != "16" || second.Return.FromPosition != PosCatcher {
		t.Fatalf("second = %+v", *second.Return)
	}
	if _, err := s.ConfirmReturn(7); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.PendingReview(); ok {
		t.Error("queue should be empty")
	}
	if _, err := s.ConfirmReturn(7); !errors.Is(err, ErrNoPendingReview) {
		t.Errorf("err = %v, want ErrNoPendingReview", err)
	}
}

func TestTemporaryRunner_FallsBackToOccupant(t *testing.T) {
	l := NewLineupState()
	l.reset(testLineup())
	l.Batting[2].Reason = ReasonTemporaryRun

	o, ok := l.buildReturnOffer(2)
	if !ok {
		t.Fatal("expected a return offer")
	}
	if o.RunnerID != "3" || o.BatterID != "3" || o.FromPosition != PosFirst {
		t.Errorf("offer = %+v", o)
	}
	if got := l.resolveTemporaryRunner(2); got != ReasonStarter {
		t.Errorf("restored = %s, want starter", got)
	}
	if _, ok := l.buildReturnOffer(2); ok {
		t.Error("no offer expected after resolving")
	}
}
