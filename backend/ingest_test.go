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
	"context"
	"encoding/json"
	"errors"
	"os"
	"slices"
	"testing"

	"github.com/c2FmZQ/storage"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/ttbt-io/lineupkeeper/backend/ingame"
)

// diffJSON returns a unified diff of the indented JSON of want and got, or "".
func diffJSON(t *testing.T, want, got any) string {
	t.Helper()
	w, err := json.MarshalIndent(want, "", "  ")
	if err != nil {
		t.Fatalf("json.MarshalIndent: %v", err)
	}
	g, err := json.MarshalIndent(got, "", "  ")
	if err != nil {
		t.Fatalf("json.MarshalIndent: %v", err)
	}
	if string(w) == string(g) {
		return ""
	}
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(w)),
		B:        difflib.SplitLines(string(g)),
		FromFile: "want",
		ToFile:   "got",
		Context:  3,
	})
	return diff
}

// writeLegacyGame stores a game the way an older client did: no meta, legacy key
// names and loose encodings. #20 pinch-hit for #4 and took over second base.
func writeLegacyGame(t *testing.T, m *Mirror, gameId string) {
	t.Helper()
	values := map[string]string{
		"battingOrder":         `["8", {"id": "20", "reason": "PH"}, "3", "9", "7", "6", "11", "2", "10"]`,
		"positions":            `{"P": "10", "2": "2", "１Ｂ": "3", "2B": "20", "三": "7", "SS": "6", "LF": "8", "CF": "9", "RF": "11"}`,
		"removedPlayers":       `{"4": true}`,
		"subChain":             `{"4": {"next": "20"}}`,
		"pitchCounts":          `{"10": 57}`,
		"currentInningPitches": `{"pitcher": "10", "count": 12}`,
		"scores":               `[[1, 0], [0, 2], [3]]`,
		"currentInning":        `{"inning": 2, "isTop": false}`,
	}
	for key, v := range values {
		if _, err := m.Set(context.Background(), gameId, key, json.RawMessage(v)); err != nil {
			t.Fatalf("Set(%s): %v", key, err)
		}
	}
}

func legacyGameSnapshot() ingame.Snapshot {
	starters := [ingame.LineupSize]string{"8", "4", "3", "9", "7", "6", "11", "2", "10"}
	snap := ingame.Snapshot{
		BattingHalf: ingame.Top,
		PitchLimit:  100,
		Assignment: ingame.Assignment{
			ingame.PosPitcher: "10", ingame.PosCatcher: "2", ingame.PosFirst: "3",
			ingame.PosSecond: "20", ingame.PosThird: "7", ingame.PosShortstop: "6",
			ingame.PosLeft: "8", ingame.PosCenter: "9", ingame.PosRight: "11",
		},
		StartingAssignment: ingame.Assignment{
			ingame.PosPitcher: "10", ingame.PosCatcher: "2", ingame.PosFirst: "3",
			ingame.PosSecond: "4", ingame.PosThird: "7", ingame.PosShortstop: "6",
			ingame.PosLeft: "8", ingame.PosCenter: "9", ingame.PosRight: "11",
		},
		BenchOut:        []string{"4"},
		Chain:           ingame.ChainHistory{"4": {ReplacementID: "20"}},
		TempRunners:     map[int]string{},
		StashedReasons:  map[int]ingame.Reason{},
		PitcherTotals:   map[string]int{"10": 57},
		ThisHalfInning:  ingame.HalfInningCount{PitcherID: "10", Count: 12},
		PitchThresholds: map[string][]string{},
		Innings:         []ingame.InningScore{{Top: 1}, {Bottom: 2}, {Top: 3}},
		Progress:        ingame.ProgressPointer{Inning: 2, Half: ingame.Bottom, IsDefense: true},
		ReviewDeclined:  []int{},
	}
	for i, id := range starters {
		snap.StartingBatting[i] = ingame.BattingSlot{OccupantID: id, Reason: ingame.ReasonStarter}
		snap.Batting[i] = snap.StartingBatting[i]
	}
	snap.Batting[1] = ingame.BattingSlot{OccupantID: "20", Reason: ingame.ReasonPinchHit}
	return snap
}

func TestLoadGameMigratesLegacyKeys(t *testing.T) {
	tempDir := t.TempDir()
	m := NewMirror(tempDir, storage.New(tempDir, nil))
	ctx := context.Background()
	writeLegacyGame(t, m, "legacy-1")

	meta, snap, err := m.LoadGame(ctx, "legacy-1", 100)
	if err != nil {
		t.Fatalf("LoadGame: %v", err)
	}
	if diff := diffJSON(t, legacyGameSnapshot(), snap); diff != "" {
		t.Errorf("Ingested snapshot mismatch:\n%s", diff)
	}
	if meta.ID != "legacy-1" || meta.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("meta = %+v", meta)
	}

	keys, err := m.Keys("legacy-1")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	for _, k := range keys {
		if !slices.Contains(MirrorKeys, k) {
			t.Errorf("Legacy key %q was not removed", k)
		}
	}
	if !slices.Contains(keys, KeyMeta) {
		t.Errorf("meta was not written: %v", keys)
	}

	// The second load reads the canonical keys only.
	_, again, err := m.LoadGame(ctx, "legacy-1", 100)
	if err != nil {
		t.Fatalf("LoadGame (2): %v", err)
	}
	if diff := diffJSON(t, snap, again); diff != "" {
		t.Errorf("Snapshot changed on reload:\n%s", diff)
	}

	s, err := ingame.RestoreSession(snapshotRoster(again), again)
	if err != nil {
		t.Fatalf("RestoreSession: %v", err)
	}
	r, ok := s.PendingReview()
	if !ok || r.Kind != ingame.ReviewReentry || r.Reentry.StarterID != "4" || r.Reentry.VacatedPosition != ingame.PosSecond {
		t.Errorf("PendingReview = %+v, %v", r, ok)
	}
}

func TestSaveGameRoundTrip(t *testing.T) {
	tempDir := t.TempDir()
	m := NewMirror(tempDir, storage.New(tempDir, nil))
	ctx := context.Background()

	roster := testTeam("t1", "").PlayerRoster()
	s := ingame.NewSession(roster, 80)
	lineup := ingame.StartingLineup{
		Batting: [ingame.LineupSize]string{"8", "4", "3", "9", "7", "6", "11", "2", "10"},
		Assignment: ingame.Assignment{
			ingame.PosPitcher: "10", ingame.PosCatcher: "2", ingame.PosFirst: "3",
			ingame.PosSecond: "4", ingame.PosThird: "7", ingame.PosShortstop: "6",
			ingame.PosLeft: "8", ingame.PosCenter: "9", ingame.PosRight: "11",
		},
	}
	mustApply := func(tr ingame.Transition, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	mustApply(s.StartGame(lineup, ingame.Bottom))
	mustApply(s.Substitute(4, "15", ingame.ReasonPinchRun))
	mustApply(s.ActivateTemporaryRunner(0, "16"))
	mustApply(s.RecordPitch("10", 1))
	mustApply(s.AddRun(0, ingame.Top, 2))

	meta := GameMeta{ID: "g1", OwnerID: "owner@example.com", TeamID: "t1"}
	n, err := m.SaveGame(ctx, meta, s.Snapshot())
	if err != nil {
		t.Fatalf("SaveGame: %v", err)
	}
	if n != len(MirrorKeys) {
		t.Errorf("SaveGame wrote %d keys, want %d", n, len(MirrorKeys))
	}
	// Nothing changed: nothing is written.
	if n, err := m.SaveGame(ctx, meta, s.Snapshot()); err != nil || n != 0 {
		t.Errorf("SaveGame of an unchanged game = %d, %v", n, err)
	}

	gotMeta, snap, err := m.LoadGame(ctx, "g1", 100)
	if err != nil {
		t.Fatalf("LoadGame: %v", err)
	}
	if diff := diffJSON(t, s.Snapshot(), snap); diff != "" {
		t.Errorf("Snapshot mismatch:\n%s", diff)
	}
	if gotMeta.OwnerID != "owner@example.com" || gotMeta.TeamID != "t1" || gotMeta.PitchLimit != 80 || gotMeta.Seq != s.Seq() {
		t.Errorf("meta = %+v", gotMeta)
	}
}

func TestLoadGameMissing(t *testing.T) {
	tempDir := t.TempDir()
	m := NewMirror(tempDir, storage.New(tempDir, nil))
	if _, _, err := m.LoadGame(context.Background(), "none", 100); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist, got %v", err)
	}
}

func TestIngestEncodings(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		check  func(t *testing.T, snap ingame.Snapshot)
	}{
		{
			name: "SlotObjects",
			values: map[string]string{
				KeyBattingOrder: `[{"occupantId": "8", "reason": "starter"}, {"playerId": "15", "reason": "pinch_run"}, null]`,
			},
			check: func(t *testing.T, snap ingame.Snapshot) {
				if snap.Batting[1] != (ingame.BattingSlot{OccupantID: "15", Reason: ingame.ReasonPinchRun}) {
					t.Errorf("slot 1 = %+v", snap.Batting[1])
				}
				if snap.Batting[2].OccupantID != "" {
					t.Errorf("slot 2 = %+v", snap.Batting[2])
				}
			},
		},
		{
			name:   "BareProgress",
			values: map[string]string{KeyProgress: `4`},
			check: func(t *testing.T, snap ingame.Snapshot) {
				want := ingame.ProgressPointer{Inning: 3, Half: ingame.Top, IsDefense: false}
				if snap.Progress != want {
					t.Errorf("progress = %+v, want %+v", snap.Progress, want)
				}
			},
		},
		{
			name:   "DefaultProgress",
			values: map[string]string{KeyScoreLedger: `[{"top": 1, "bottom": 0}, {"top": 0, "bottom": 4}]`},
			check: func(t *testing.T, snap ingame.Snapshot) {
				want := ingame.ProgressPointer{Inning: 1, Half: ingame.Bottom, IsDefense: true}
				if snap.Progress != want {
					t.Errorf("progress = %+v, want %+v", snap.Progress, want)
				}
			},
		},
		{
			name: "ChainAliases",
			values: map[string]string{
				KeyChainHistory: `{"4": {"replacement": "20", "reentered": true}, "7": {"replacementId": "15"}}`,
				KeyBenchOut:     `["7", "20"]`,
			},
			check: func(t *testing.T, snap ingame.Snapshot) {
				if l := snap.Chain["4"]; l.ReplacementID != "20" || !l.HasReentered {
					t.Errorf("chain[4] = %+v", l)
				}
				if l := snap.Chain["7"]; l.ReplacementID != "15" || l.HasReentered {
					t.Errorf("chain[7] = %+v", l)
				}
				if !slices.Equal(snap.BenchOut, []string{"20", "7"}) {
					t.Errorf("benchOut = %v", snap.BenchOut)
				}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			values := make(map[string]json.RawMessage)
			for k, v := range tc.values {
				values[k] = json.RawMessage(v)
			}
			_, snap, err := Ingest("g1", values, 100)
			if err != nil {
				t.Fatalf("Ingest: %v", err)
			}
			tc.check(t, snap)
		})
	}
}

func TestIngestRejects(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		want   error
	}{
		{"UnknownPosition", map[string]string{KeyAssignment: `{"ZZ": "7"}`}, ingame.ErrInvalidPosition},
		{"DuplicatePosition", map[string]string{KeyAssignment: `{"三": "7", "3B": "8"}`}, ingame.ErrInvalidLineup},
		{"UnknownReason", map[string]string{KeyBattingOrder: `[{"id": "7", "reason": "bunt"}]`}, ingame.ErrInvalidReason},
		{"TooManySlots", map[string]string{KeyBattingOrder: `["1","2","3","4","5","6","7","8","9","10"]`}, ingame.ErrInvalidLineup},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			values := make(map[string]json.RawMessage)
			for k, v := range tc.values {
				values[k] = json.RawMessage(v)
			}
			if _, _, err := Ingest("g1", values, 100); !errors.Is(err, tc.want) {
				t.Errorf("Ingest: expected %v, got %v", tc.want, err)
			}
		})
	}
}
