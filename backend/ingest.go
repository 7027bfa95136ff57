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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ttbt-io/lineupkeeper/backend/ingame"
)

// Permissions defines access control for a game.
type Permissions struct {
	Public string            `json:"public"` // "none", "read"
	Users  map[string]string `json:"users"`  // "email": "read"|"write"
}

// GameMeta is stored under the meta key of every game.
type GameMeta struct {
	ID            string      `json:"id"`
	SchemaVersion int         `json:"schemaVersion"`
	SessionID     string      `json:"sessionId,omitempty"`
	Seq           uint64      `json:"seq"`
	OwnerID       string      `json:"ownerId"`
	TeamID        string      `json:"teamId,omitempty"`
	BattingHalf   ingame.Half `json:"battingHalf"`
	PitchLimit    int         `json:"pitchLimit"`
	Permissions   Permissions `json:"permissions"`
	UpdatedAt     int64       `json:"updatedAt,omitempty"`
}

func (g *GameMeta) normalize(defaultPitchLimit int) {
	if g.PitchLimit <= 0 {
		g.PitchLimit = defaultPitchLimit
	}
	if g.PitchLimit <= 0 {
		g.PitchLimit = ingame.DefaultPitchLimit
	}
	if g.Permissions.Users == nil {
		g.Permissions.Users = make(map[string]string)
	}
}

// snapshotValues splits a snapshot into mirror keys.
func snapshotValues(meta GameMeta, snap ingame.Snapshot) map[string]any {
	meta.SchemaVersion = CurrentSchemaVersion
	meta.SessionID = snap.SessionID
	meta.Seq = snap.Seq
	meta.BattingHalf = snap.BattingHalf
	meta.PitchLimit = snap.PitchLimit
	return map[string]any{
		KeyBattingOrder:         snap.Batting,
		KeyStartingBattingOrder: snap.StartingBatting,
		KeyAssignment:           snap.Assignment,
		KeyStartingAssignment:   snap.StartingAssignment,
		KeyBenchOut:             snap.BenchOut,
		KeyChainHistory:         snap.Chain,
		KeyTempRunners:          snap.TempRunners,
		KeyStashedReasons:       snap.StashedReasons,
		KeyPitcherTotals:        snap.PitcherTotals,
		KeyThisHalfInning:       snap.ThisHalfInning,
		KeyPitchThresholds:      snap.PitchThresholds,
		KeyScoreLedger:          snap.Innings,
		KeyProgress:             snap.Progress,
		KeyReviewDeclined:       snap.ReviewDeclined,
		KeyMeta:                 meta,
	}
}

// SaveGame writes the snapshot of a game. Unchanged keys are skipped.
func (m *Mirror) SaveGame(ctx context.Context, meta GameMeta, snap ingame.Snapshot) (int, error) {
	meta.UpdatedAt = time.Now().UnixNano()
	values := snapshotValues(meta, snap)
	// UpdatedAt alone does not justify rewriting meta.
	if prev, err := m.lastMeta(ctx, meta.ID); err == nil && prev.Seq == snap.Seq && prev.SessionID == snap.SessionID {
		meta.UpdatedAt = prev.UpdatedAt
		values = snapshotValues(meta, snap)
	}
	return m.SetAll(ctx, meta.ID, MirrorKeys, values)
}

func (m *Mirror) lastMeta(ctx context.Context, gameId string) (GameMeta, error) {
	var meta GameMeta
	err := m.Get(ctx, gameId, KeyMeta, &meta)
	return meta, err
}

// LoadGame reads a game from the mirror, accepting legacy key names and encodings.
// Legacy contents are rewritten under the canonical keys and the legacy files are
// removed, so normalization happens once. It returns os.ErrNotExist when the
// mirror holds nothing for the game.
func (m *Mirror) LoadGame(ctx context.Context, gameId string, defaultPitchLimit int) (GameMeta, ingame.Snapshot, error) {
	values := make(map[string]json.RawMessage)
	var legacy []string
	for _, key := range MirrorKeys {
		raw, err := m.GetRaw(ctx, gameId, key)
		if err == nil {
			values[key] = raw
			continue
		}
		if !errors.Is(err, os.ErrNotExist) {
			return GameMeta{}, ingame.Snapshot{}, err
		}
		for _, alias := range legacyKeyAliases[key] {
			raw, err := m.GetRaw(ctx, gameId, alias)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err != nil {
				return GameMeta{}, ingame.Snapshot{}, err
			}
			values[key] = raw
			legacy = append(legacy, alias)
			break
		}
	}
	if len(values) == 0 {
		return GameMeta{}, ingame.Snapshot{}, os.ErrNotExist
	}

	meta, snap, err := Ingest(gameId, values, defaultPitchLimit)
	if err != nil {
		return GameMeta{}, ingame.Snapshot{}, err
	}
	if len(legacy) == 0 && meta.SchemaVersion == CurrentSchemaVersion {
		return meta, snap, nil
	}

	if _, err := m.SaveGame(ctx, meta, snap); err != nil {
		log.Printf("[MIRROR] Failed to migrate game %s: %v", gameId, err)
		return meta, snap, nil
	}
	for _, alias := range legacy {
		if err := m.Remove(gameId, alias); err != nil {
			log.Printf("[MIRROR] %v", err)
		}
	}
	log.Printf("[MIRROR] Migrated game %s from schema %d (legacy keys: %s)", gameId, meta.SchemaVersion, strings.Join(legacy, ", "))
	meta.SchemaVersion = CurrentSchemaVersion
	return meta, snap, nil
}

// Ingest builds the strict snapshot of a game from mirror values keyed by canonical
// key. Values may use any encoding older clients wrote. Missing values get their
// defaults here and nowhere else.
func Ingest(gameId string, values map[string]json.RawMessage, defaultPitchLimit int) (GameMeta, ingame.Snapshot, error) {
	var meta GameMeta
	if raw, ok := values[KeyMeta]; ok {
		if err := json.Unmarshal(raw, &meta); err != nil {
			return GameMeta{}, ingame.Snapshot{}, fmt.Errorf("%s: %w", KeyMeta, err)
		}
	} else {
		meta.SchemaVersion = SchemaVersionLegacy
	}
	meta.ID = gameId
	meta.normalize(defaultPitchLimit)

	snap := ingame.Snapshot{
		SessionID:       meta.SessionID,
		Seq:             meta.Seq,
		BattingHalf:     meta.BattingHalf,
		PitchLimit:      meta.PitchLimit,
		Chain:           make(ingame.ChainHistory),
		TempRunners:     make(map[int]string),
		StashedReasons:  make(map[int]ingame.Reason),
		PitcherTotals:   make(map[string]int),
		PitchThresholds: make(map[string][]string),
		BenchOut:        []string{},
		Innings:         []ingame.InningScore{},
		ReviewDeclined:  []int{},
	}

	var err error
	decode := func(key string, fn func(json.RawMessage) error) {
		raw, ok := values[key]
		if !ok || err != nil || isNull(raw) {
			return
		}
		if e := fn(raw); e != nil {
			err = fmt.Errorf("%s: %w", key, e)
		}
	}

	var current, starting []legacySlot
	decode(KeyBattingOrder, func(raw json.RawMessage) (e error) {
		current, e = decodeBattingOrder(raw)
		return e
	})
	decode(KeyStartingBattingOrder, func(raw json.RawMessage) (e error) {
		starting, e = decodeBattingOrder(raw)
		return e
	})
	var assignment, startingAssignment ingame.Assignment
	decode(KeyAssignment, func(raw json.RawMessage) (e error) {
		assignment, e = decodeAssignment(raw)
		return e
	})
	decode(KeyStartingAssignment, func(raw json.RawMessage) (e error) {
		startingAssignment, e = decodeAssignment(raw)
		return e
	})
	decode(KeyBenchOut, func(raw json.RawMessage) (e error) {
		snap.BenchOut, e = decodeIDSet(raw)
		return e
	})
	decode(KeyChainHistory, func(raw json.RawMessage) (e error) {
		snap.Chain, e = decodeChain(raw)
		return e
	})
	decode(KeyTempRunners, func(raw json.RawMessage) error {
		return json.Unmarshal(raw, &snap.TempRunners)
	})
	decode(KeyStashedReasons, func(raw json.RawMessage) error {
		var m map[int]string
		if e := json.Unmarshal(raw, &m); e != nil {
			return e
		}
		for slot, s := range m {
			r, ok := parseReason(s)
			if !ok {
				return fmt.Errorf("%w: slot %d reason %q", ingame.ErrInvalidReason, slot, s)
			}
			snap.StashedReasons[slot] = r
		}
		return nil
	})
	decode(KeyPitcherTotals, func(raw json.RawMessage) error {
		return json.Unmarshal(raw, &snap.PitcherTotals)
	})
	decode(KeyThisHalfInning, func(raw json.RawMessage) error {
		var h struct {
			PitcherID string `json:"pitcherId"`
			Pitcher   string `json:"pitcher"`
			Count     int    `json:"count"`
		}
		if e := json.Unmarshal(raw, &h); e != nil {
			return e
		}
		snap.ThisHalfInning = ingame.HalfInningCount{PitcherID: firstNonEmpty(h.PitcherID, h.Pitcher), Count: max(h.Count, 0)}
		return nil
	})
	decode(KeyPitchThresholds, func(raw json.RawMessage) error {
		return json.Unmarshal(raw, &snap.PitchThresholds)
	})
	decode(KeyScoreLedger, func(raw json.RawMessage) (e error) {
		snap.Innings, e = decodeScoreLedger(raw)
		return e
	})
	progressSet := false
	decode(KeyProgress, func(raw json.RawMessage) (e error) {
		snap.Progress, e = decodeProgress(raw, meta.BattingHalf)
		progressSet = e == nil
		return e
	})
	decode(KeyReviewDeclined, func(raw json.RawMessage) error {
		return json.Unmarshal(raw, &snap.ReviewDeclined)
	})
	if err != nil {
		return GameMeta{}, ingame.Snapshot{}, err
	}

	// Defaults.
	if assignment == nil {
		assignment = make(ingame.Assignment)
	}
	if startingAssignment == nil {
		startingAssignment = make(ingame.Assignment, len(assignment))
		for p, id := range assignment {
			startingAssignment[p] = chainRoot(snap.Chain, id)
		}
	}
	if starting == nil {
		starting = make([]legacySlot, len(current))
		for i, s := range current {
			starting[i] = legacySlot{ID: chainRoot(snap.Chain, s.id())}
		}
	}
	for i := 0; i < ingame.LineupSize; i++ {
		if i < len(starting) && starting[i].id() != "" {
			snap.StartingBatting[i] = ingame.BattingSlot{OccupantID: starting[i].id(), Reason: ingame.ReasonStarter}
		}
		if i >= len(current) || current[i].id() == "" {
			continue
		}
		id := current[i].id()
		reason, ok := parseReason(current[i].Reason)
		if !ok {
			return GameMeta{}, ingame.Snapshot{}, fmt.Errorf("%s: %w: slot %d reason %q", KeyBattingOrder, ingame.ErrInvalidReason, i, current[i].Reason)
		}
		if reason == "" {
			reason = ingame.ReasonPinchHit
			if id == snap.StartingBatting[i].OccupantID {
				reason = ingame.ReasonStarter
			}
		}
		snap.Batting[i] = ingame.BattingSlot{OccupantID: id, Reason: reason}
	}
	snap.Assignment = assignment
	snap.StartingAssignment = startingAssignment
	if !progressSet {
		snap.Progress = defaultProgress(snap.Innings, meta.BattingHalf)
	}
	sort.Strings(snap.BenchOut)
	sort.Ints(snap.ReviewDeclined)
	return meta, snap, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}

// legacySlot is a batting slot in any of the encodings clients have written:
// a bare id string, {occupantId, reason}, {id, reason} or {playerId, reason}.
type legacySlot struct {
	OccupantID string `json:"occupantId"`
	ID         string `json:"id"`
	PlayerID   string `json:"playerId"`
	Reason     string `json:"reason"`
}

func (s legacySlot) id() string {
	return firstNonEmpty(s.OccupantID, s.ID, s.PlayerID)
}

func decodeBattingOrder(raw json.RawMessage) ([]legacySlot, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	if len(items) > ingame.LineupSize {
		return nil, fmt.Errorf("%w: %d batting slots", ingame.ErrInvalidLineup, len(items))
	}
	out := make([]legacySlot, len(items))
	for i, item := range items {
		if isNull(item) {
			continue
		}
		var id string
		if err := json.Unmarshal(item, &id); err == nil {
			out[i] = legacySlot{ID: id}
			continue
		}
		if err := json.Unmarshal(item, &out[i]); err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
	}
	return out, nil
}

// parseReason accepts the canonical reasons and the spellings older clients used.
// The empty string maps to the empty reason, for the caller to default.
func parseReason(s string) (ingame.Reason, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", true
	case "starter", "start", "st":
		return ingame.ReasonStarter, true
	case "pinch-hit", "pinch_hit", "pinchhit", "ph":
		return ingame.ReasonPinchHit, true
	case "pinch-run", "pinch_run", "pinchrun", "pr":
		return ingame.ReasonPinchRun, true
	case "temporary-run", "temporary_run", "temporaryrun", "temp", "courtesy", "tr":
		return ingame.ReasonTemporaryRun, true
	}
	return "", false
}

func decodeAssignment(raw json.RawMessage) (ingame.Assignment, error) {
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	out := make(ingame.Assignment, len(m))
	for k, id := range m {
		p, ok := ingame.ParsePosition(k)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ingame.ErrInvalidPosition, k)
		}
		if id == "" {
			continue
		}
		if prev, dup := out[p]; dup && prev != id {
			return nil, fmt.Errorf("%w: %s held by %s and %s", ingame.ErrInvalidLineup, p, prev, id)
		}
		out[p] = id
	}
	return out, nil
}

// decodeIDSet accepts a list of ids or an id -> bool map.
func decodeIDSet(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var m map[string]bool
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	out := []string{}
	for id, ok := range m {
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func decodeChain(raw json.RawMessage) (ingame.ChainHistory, error) {
	var m map[string]struct {
		ReplacementID string `json:"replacementId"`
		Replacement   string `json:"replacement"`
		Next          string `json:"next"`
		HasReentered  bool   `json:"hasReentered"`
		Reentered     bool   `json:"reentered"`
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	out := make(ingame.ChainHistory, len(m))
	for id, l := range m {
		out[id] = ingame.ChainLink{
			ReplacementID: firstNonEmpty(l.ReplacementID, l.Replacement, l.Next),
			HasReentered:  l.HasReentered || l.Reentered,
		}
	}
	return out, nil
}

// chainRoot walks replacement links backwards from id to the player who started
// the chain.
func chainRoot(chain ingame.ChainHistory, id string) string {
	if id == "" {
		return ""
	}
	prev := make(map[string]string, len(chain))
	for from, l := range chain {
		if l.ReplacementID != "" {
			prev[l.ReplacementID] = from
		}
	}
	cur := id
	for hops := 0; hops < ingame.MaxChainHops; hops++ {
		p, ok := prev[cur]
		if !ok || p == id {
			break
		}
		cur = p
	}
	return cur
}

// decodeScoreLedger accepts {top, bottom} objects or [top, bottom] pairs.
func decodeScoreLedger(raw json.RawMessage) ([]ingame.InningScore, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]ingame.InningScore, len(items))
	for i, item := range items {
		var pair []int
		if err := json.Unmarshal(item, &pair); err == nil {
			if len(pair) > 0 {
				out[i].Top = pair[0]
			}
			if len(pair) > 1 {
				out[i].Bottom = pair[1]
			}
		} else if err := json.Unmarshal(item, &out[i]); err != nil {
			return nil, fmt.Errorf("inning %d: %w", i+1, err)
		}
		out[i].Top = max(out[i].Top, 0)
		out[i].Bottom = max(out[i].Bottom, 0)
	}
	return out, nil
}

// decodeProgress accepts the canonical pointer, the {inning, isTop} form, or a bare
// 1-based inning number.
func decodeProgress(raw json.RawMessage, battingHalf ingame.Half) (ingame.ProgressPointer, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		if n < 1 {
			n = 1
		}
		return progressAt(n-1, ingame.Top, battingHalf), nil
	}
	var p struct {
		Inning    int          `json:"inning"`
		Half      *ingame.Half `json:"half"`
		IsTop     *bool        `json:"isTop"`
		IsDefense *bool        `json:"isDefense"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return ingame.ProgressPointer{}, err
	}
	if p.Inning < 0 {
		return ingame.ProgressPointer{}, fmt.Errorf("negative inning %d", p.Inning)
	}
	half := ingame.Top
	switch {
	case p.Half != nil:
		half = *p.Half
	case p.IsTop != nil && !*p.IsTop:
		half = ingame.Bottom
	}
	out := progressAt(p.Inning, half, battingHalf)
	if p.IsDefense != nil {
		out.IsDefense = *p.IsDefense
	}
	return out, nil
}

func progressAt(inning int, half, battingHalf ingame.Half) ingame.ProgressPointer {
	return ingame.ProgressPointer{Inning: inning, Half: half, IsDefense: half != battingHalf}
}

// defaultProgress places the pointer on the last half-inning with an entry.
func defaultProgress(innings []ingame.InningScore, battingHalf ingame.Half) ingame.ProgressPointer {
	if len(innings) == 0 {
		return progressAt(0, ingame.Top, battingHalf)
	}
	last := len(innings) - 1
	if innings[last].Bottom != 0 {
		return progressAt(last, ingame.Bottom, battingHalf)
	}
	return progressAt(last, ingame.Top, battingHalf)
}
