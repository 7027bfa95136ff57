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
	"encoding/json"
	"errors"
	"testing"
)

func playThrough(t *testing.T, sl *ScoreLedger, innings int) {
	t.Helper()
	for i := 0; i < innings; i++ {
		if _, err := sl.CommitHalfInningScore(i, Top, 1); err != nil {
			t.Fatalf("commit %d top: %v", i, err)
		}
		if _, err := sl.CommitHalfInningScore(i, Bottom, 2); err != nil {
			t.Fatalf("commit %d bottom: %v", i, err)
		}
	}
}

func TestScoreLedger_Rollback(t *testing.T) {
	sl := NewScoreLedger(Top)
	playThrough(t, sl, 5)
	if len(sl.Innings) != 5 || sl.Progress.Inning != 5 || sl.Progress.Half != Top {
		t.Fatalf("after 5 innings: %d entries, progress %+v", len(sl.Innings), sl.Progress)
	}

	if err := sl.RollbackToInning(2); err != nil {
		t.Fatal(err)
	}
	if len(sl.Innings) != 2 {
		t.Fatalf("entries = %d, want 2", len(sl.Innings))
	}
	if top, bottom := sl.Totals(); top != 2 || bottom != 4 {
		t.Errorf("totals = %d-%d, want 2-4", top, bottom)
	}
	if sl.AddRun(3, Top, 1) {
		t.Error("AddRun on inning 4 should be a no-op")
	}
	if len(sl.Innings) != 2 {
		t.Error("no-op AddRun created an entry")
	}

	want := ProgressPointer{Inning: 2, Half: Top, IsDefense: false}
	if sl.Progress != want {
		t.Errorf("progress = %+v, want %+v", sl.Progress, want)
	}
	if !sl.AddRun(2, Top, 1) {
		t.Error("AddRun at progress should apply")
	}
	if _, err := sl.CommitHalfInningScore(3, Top, 0); !errors.Is(err, ErrAheadOfProgress) {
		t.Fatalf("err = %v", err)
	}

	// Walk forward again until inning 4 is current.
	if _, err := sl.CommitHalfInningScore(2, Top, 1); err != nil {
		t.Fatal(err)
	}
	if sl.AddRun(3, Top, 1) {
		t.Error("inning 4 top is still ahead")
	}
	if _, err := sl.CommitHalfInningScore(2, Bottom, 0); err != nil {
		t.Fatal(err)
	}
	if !sl.AddRun(3, Top, 1) || sl.Runs(3, Top) != 1 {
		t.Errorf("AddRun on inning 4 after progress returned: runs = %d", sl.Runs(3, Top))
	}
}

func TestScoreLedger_RollbackBehindIsNoop(t *testing.T) {
	sl := NewScoreLedger(Bottom)
	playThrough(t, sl, 1)
	before := sl.Progress
	if err := sl.RollbackToInning(7); err != nil {
		t.Fatal(err)
	}
	if sl.Progress != before || len(sl.Innings) != 1 {
		t.Errorf("progress %+v entries %d", sl.Progress, len(sl.Innings))
	}
	if err := sl.RollbackToInning(-1); !errors.Is(err, ErrInvalidDelta) {
		t.Errorf("err = %v", err)
	}
}

func TestScoreLedger_AddRunClampsAndCommitFlipsRole(t *testing.T) {
	sl := NewScoreLedger(Bottom)
	if !sl.Progress.IsDefense {
		t.Fatal("home team starts on defense")
	}
	if !sl.AddRun(0, Top, -1) || sl.Runs(0, Top) != 0 {
		t.Errorf("clamp: runs = %d", sl.Runs(0, Top))
	}
	sl.AddRun(0, Top, 1)
	sl.AddRun(0, Top, 1)
	if sl.AddRun(0, Bottom, 1) {
		t.Error("bottom is ahead of progress")
	}

	advanced, err := sl.CommitHalfInningScore(0, Top, 3)
	if err != nil || !advanced {
		t.Fatalf("commit: %v %v", advanced, err)
	}
	if sl.Runs(0, Top) != 3 || sl.Progress.Half != Bottom || sl.Progress.IsDefense {
		t.Errorf("after commit: runs %d progress %+v", sl.Runs(0, Top), sl.Progress)
	}

	// Editing a finished half does not advance.
	advanced, err = sl.CommitHalfInningScore(0, Top, 4)
	if err != nil || advanced {
		t.Fatalf("edit: %v %v", advanced, err)
	}
	if sl.Runs(0, Top) != 4 || sl.Progress.Half != Bottom {
		t.Errorf("after edit: runs %d progress %+v", sl.Runs(0, Top), sl.Progress)
	}
	if _, err := sl.CommitHalfInningScore(0, Bottom, -2); !errors.Is(err, ErrInvalidDelta) {
		t.Errorf("err = %v", err)
	}
}

func TestHalfJSON(t *testing.T) {
	b, err := json.Marshal(ProgressPointer{Inning: 3, Half: Bottom, IsDefense: true})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"inning":3,"half":"bottom","isDefense":true}` {
		t.Errorf("json = %s", b)
	}
	var p ProgressPointer
	if err := json.Unmarshal(b, &p); err != nil || p.Half != Bottom {
		t.Errorf("unmarshal: %+v %v", p, err)
	}
	if err := json.Unmarshal([]byte(`{"half":"middle"}`), &p); err == nil {
		t.Error("expected error for unknown half")
	}
}

func TestSession_AddRunRejectedIsNoop(t *testing.T) {
	s := newStartedSession(t)
	seq := s.Seq()
	if _, err := s.AddRun(1, Top, 1); !errors.Is(err, ErrNotCurrentHalf) {
		t.Fatalf("err = %v", err)
	}
	if s.Seq() != seq {
		t.Error("rejected AddRun advanced seq")
	}
	tr, err := s.AddRun(0, Top, 2)
	if err != nil {
		t.Fatal(err)
	}
	if p := tr.Payload.(ScorePayload); p.Runs != 2 || tr.Seq != seq+1 {
		t.Errorf("transition = %+v", tr)
	}
}
