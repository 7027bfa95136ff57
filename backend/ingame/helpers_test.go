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
	"testing"
	"time"
)

// testRoster holds the starters and a bench. IDs are uniform numbers.
func testRoster() MapRoster {
	r := MapRoster{}
	for _, id := range []string{
		"2", "3", "4", "6", "7", "8", "9", "10", "11",
		"15", "16", "20", "21", "22", "23", "24", "25",
	} {
		r[id] = Player{ID: id, Name: "Player " + id, Number: id}
	}
	return r
}

// testLineup: #7 plays third and bats fifth (slot 4), #10 pitches and bats ninth.
func testLineup() StartingLineup {
	return StartingLineup{
		Batting: [LineupSize]string{"8", "4", "3", "9", "7", "6", "11", "2", "10"},
		Assignment: Assignment{
			PosPitcher:   "10",
			PosCatcher:   "2",
			PosFirst:     "3",
			PosSecond:    "4",
			PosThird:     "7",
			PosShortstop: "6",
			PosLeft:      "8",
			PosCenter:    "9",
			PosRight:     "11",
		},
	}
}

func newStartedSession(t *testing.T) *Session {
	t.Helper()
	s := NewSession(testRoster(), 75)
	s.Now = func() time.Time { return time.Unix(1700000000, 0) }
	if _, err := s.StartGame(testLineup(), Top); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	return s
}

func mustReview(t *testing.T, s *Session, kind string) Review {
	t.Helper()
	r, ok := s.PendingReview()
	if !ok {
		t.Fatalf("expected a pending %s review, got none", kind)
	}
	if r.Kind != kind {
		t.Fatalf("expected pending %s review, got %s", kind, r.Kind)
	}
	return r
}
