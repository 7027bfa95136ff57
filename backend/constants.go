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

// Schema Versions
const (
	// SchemaVersionLegacy marks mirror contents written before the meta key existed.
	SchemaVersionLegacy  = 0
	CurrentSchemaVersion = 1
)

const CurrentAppVersion = "0.1.0"

// Mirror keys. Every key holds one JSON document per game.
const (
	KeyBattingOrder         = "batting_order"
	KeyStartingBattingOrder = "starting_batting_order"
	KeyAssignment           = "assignment"
	KeyStartingAssignment   = "starting_assignment"
	KeyBenchOut             = "bench_out"
	KeyChainHistory         = "chain_history"
	KeyTempRunners          = "temp_runners"
	KeyStashedReasons       = "stashed_reasons"
	KeyPitcherTotals        = "pitcher_totals"
	KeyThisHalfInning       = "this_half_inning"
	KeyPitchThresholds      = "pitch_thresholds"
	KeyScoreLedger          = "score_ledger"
	KeyProgress             = "progress"
	KeyReviewDeclined       = "review_declined"
	KeyMeta                 = "meta"
)

// MirrorKeys lists the canonical keys in write order. meta is written last so a
// reader that finds it can trust the other keys of the same save.
var MirrorKeys = []string{
	KeyBattingOrder,
	KeyStartingBattingOrder,
	KeyAssignment,
	KeyStartingAssignment,
	KeyBenchOut,
	KeyChainHistory,
	KeyTempRunners,
	KeyStashedReasons,
	KeyPitcherTotals,
	KeyThisHalfInning,
	KeyPitchThresholds,
	KeyScoreLedger,
	KeyProgress,
	KeyReviewDeclined,
	KeyMeta,
}

// legacyKeyAliases maps a canonical key to the names older clients wrote it under,
// in lookup order. They are only ever read.
var legacyKeyAliases = map[string][]string{
	KeyBattingOrder:         {"battingOrder", "lineup", "order"},
	KeyStartingBattingOrder: {"startingBattingOrder", "initialLineup", "startingOrder"},
	KeyAssignment:           {"positions", "defense", "fieldPositions"},
	KeyStartingAssignment:   {"startingPositions", "initialPositions", "initialDefense"},
	KeyBenchOut:             {"benchOut", "removedPlayers", "benched"},
	KeyChainHistory:         {"substitutionChain", "subChain", "chain"},
	KeyTempRunners:          {"tempRunners", "courtesyRunners"},
	KeyStashedReasons:       {"tempRunnerReasons", "savedReasons"},
	KeyPitcherTotals:        {"pitchCounts", "pitcherCounts", "pitches"},
	KeyThisHalfInning:       {"currentInningPitches", "halfInningPitches"},
	KeyPitchThresholds:      {"pitchAlerts"},
	KeyScoreLedger:          {"scores", "scoreboard", "inningScores"},
	KeyProgress:             {"currentInning", "gameProgress"},
	KeyReviewDeclined:       {"declinedReentries"},
}

// Query helpers
const (
	// maxActionBodyBytes bounds the body of a single action request.
	maxActionBodyBytes = 64 * 1024
	// defaultTransitionPage is the default page size of the journal listing.
	defaultTransitionPage = 100
	maxTransitionPage     = 500
)
