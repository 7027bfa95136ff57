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
	"encoding/json"
	"fmt"
	"testing"

	"github.com/ttbt-io/lineupkeeper/backend/ingame"
)

// testTeam has a bench of eight behind the nine starters. IDs are uniform numbers.
func testTeam(id, owner string) *Team {
	t := &Team{ID: id, Name: "Test Team", OwnerID: owner}
	for _, n := range []string{
		"2", "3", "4", "6", "7", "8", "9", "10", "11",
		"15", "16", "20", "21", "22", "23", "24", "25",
	} {
		t.Roster = append(t.Roster, ingame.Player{ID: n, Name: "Player " + n, Number: n})
	}
	return t
}

// gameStartBody starts a game where #7 plays third and bats fifth (slot 4) and #10
// pitches and bats ninth.
func gameStartBody(teamId string, pitchLimit int) string {
	return fmt.Sprintf(`{"type":"GAME_START","payload":{
		"teamId":%q,
		"pitchLimit":%d,
		"battingHalf":"top",
		"lineup":{
			"batting":["8","4","3","9","7","6","11","2","10"],
			"assignment":{"P":"10","2":"2","一":"3","二":"4","三":"7","SS":"6","左":"8","中":"9","右":"11"}
		}}}`, teamId, pitchLimit)
}

func actionBody(t *testing.T, typ string, payload any) string {
	t.Helper()
	b, err := json.Marshal(ActionRequest{Type: typ, Payload: mustJSON(t, payload)})
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	return string(b)
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	return b
}
