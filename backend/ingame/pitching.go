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

import "fmt"

// DefaultPitchLimit is used when a session is created without a limit.
const DefaultPitchLimit = 100

// WarningMargin is how many pitches before the limit the warning fires.
const WarningMargin = 10

// Threshold kinds.
const (
	ThresholdWarning = "warning"
	ThresholdLimit   = "limit"
)

// HalfInningCount is the pitch count of the current pitcher in the current half-inning.
type HalfInningCount struct {
	PitcherID string `json:"pitcherId"`
	Count     int    `json:"count"`
}

// ThresholdEvent is emitted once per pitcher per threshold.
type ThresholdEvent struct {
	Kind      string `json:"kind"`
	PitcherID string `json:"pitcherId"`
	Total     int    `json:"total"`
	Limit     int    `json:"limit"`
}

// PitchFigures are the numbers shown and announced for a pitcher.
type PitchFigures struct {
	PitcherID      string           `json:"pitcherId"`
	Total          int              `json:"total"`
	ThisHalfInning int              `json:"thisHalfInning"`
	Thresholds     []ThresholdEvent `json:"thresholds,omitempty"`
}

// PitchLedger tracks cumulative pitches per pitcher for the whole game.
type PitchLedger struct {
	Limit    int
	Totals   map[string]int
	ThisHalf HalfInningCount
	// Fired records which thresholds already fired per pitcher.
	Fired map[string]map[string]bool
}

// NewPitchLedger returns an empty ledger. A non-positive limit selects DefaultPitchLimit.
func NewPitchLedger(limit int) *PitchLedger {
	if limit <= 0 {
		limit = DefaultPitchLimit
	}
	return &PitchLedger{
		Limit:  limit,
		Totals: make(map[string]int),
		Fired:  make(map[string]map[string]bool),
	}
}

// RecordPitch adds delta (+1 or -1) to the pitcher's totals.
func (pl *PitchLedger) RecordPitch(pitcherID string, delta int) (PitchFigures, error) {
	if delta != 1 && delta != -1 {
		return PitchFigures{}, fmt.Errorf("%w: pitch delta %d", ErrInvalidDelta, delta)
	}
	if pitcherID == "" {
		return PitchFigures{}, fmt.Errorf("%w: empty pitcher id", ErrUnknownPlayer)
	}
	if pl.ThisHalf.PitcherID != pitcherID {
		pl.ThisHalf = HalfInningCount{PitcherID: pitcherID}
	}

	total := max(pl.Totals[pitcherID]+delta, 0)
	pl.Totals[pitcherID] = total
	pl.ThisHalf.Count = max(pl.ThisHalf.Count+delta, 0)

	f := PitchFigures{
		PitcherID:      pitcherID,
		Total:          total,
		ThisHalfInning: pl.ThisHalf.Count,
	}
	if delta > 0 {
		f.Thresholds = pl.crossed(pitcherID, total)
	}
	return f, nil
}

// crossed marks and returns the thresholds reached for the first time.
func (pl *PitchLedger) crossed(pitcherID string, total int) []ThresholdEvent {
	var events []ThresholdEvent
	marks := []struct {
		kind string
		at   int
	}{
		{ThresholdWarning, pl.Limit - WarningMargin},
		{ThresholdLimit, pl.Limit},
	}
	for _, m := range marks {
		if total < m.at || pl.Fired[pitcherID][m.kind] {
			continue
		}
		if pl.Fired[pitcherID] == nil {
			pl.Fired[pitcherID] = make(map[string]bool)
		}
		pl.Fired[pitcherID][m.kind] = true
		events = append(events, ThresholdEvent{Kind: m.kind, PitcherID: pitcherID, Total: total, Limit: pl.Limit})
	}
	return events
}

// OnHalfInningEnd resets the half-inning count. Cumulative totals are kept.
func (pl *PitchLedger) OnHalfInningEnd() {
	pl.ThisHalf.Count = 0
}

// ManualOverride sets a pitcher's cumulative total. The half-inning count is
// deliberately not recomputed.
func (pl *PitchLedger) ManualOverride(pitcherID string, total int) error {
	if total < 0 {
		return fmt.Errorf("%w: negative total %d", ErrInvalidDelta, total)
	}
	if pitcherID == "" {
		return fmt.Errorf("%w: empty pitcher id", ErrUnknownPlayer)
	}
	pl.Totals[pitcherID] = total
	return nil
}

// Figures returns the current numbers for a pitcher without changing anything.
// The half-inning count is only non-zero for the pitcher currently tracked.
func (pl *PitchLedger) Figures(pitcherID string) PitchFigures {
	f := PitchFigures{PitcherID: pitcherID, Total: pl.Totals[pitcherID]}
	if pl.ThisHalf.PitcherID == pitcherID {
		f.ThisHalfInning = pl.ThisHalf.Count
	}
	return f
}
