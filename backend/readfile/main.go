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

// readfile dumps the stored state of games and teams as JSON.
//
//	readfile -data-dir data game1 game2
//	readfile -team team1
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/c2FmZQ/storage"
	"github.com/ttbt-io/lineupkeeper/backend"
)

var (
	dataDir = flag.String("data-dir", "data", "Directory for game and team data")
	teams   = flag.Bool("team", false, "Arguments are team ids instead of game ids")
	journal = flag.Bool("journal", false, "Also dump the transition journal of each game")
)

func main() {
	flag.Parse()
	masterKey, err := backend.LoadMasterKey(*dataDir, os.Getenv("LK_MASTER_KEY"))
	if err != nil {
		log.Fatalf("Critical Security Error: %v. Refusing to read encrypted data in unencrypted mode.", err)
	}
	store := storage.New(*dataDir, masterKey)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *teams {
		rs := backend.NewRosterStore(*dataDir, store)
		for _, id := range flag.Args() {
			t, err := rs.LoadTeam(id)
			if err != nil {
				log.Printf("%s: %v", id, err)
				continue
			}
			fmt.Printf("=========== team %s ===========\n", id)
			enc.Encode(t)
		}
		return
	}

	var jm *backend.JournalManager
	if *journal {
		var ring *backend.KeyRing
		if masterKey != nil {
			if ring, err = backend.LoadKeyRing(*dataDir, masterKey); err != nil {
				log.Fatalf("Failed to load journal keys: %v", err)
			}
			defer ring.Wipe()
		}
		jm = backend.NewJournalManager(*dataDir, ring)
		defer jm.CloseAll()
	}

	ctx := context.Background()
	mirror := backend.NewMirror(*dataDir, store)
	for _, id := range flag.Args() {
		keys, err := mirror.Keys(id)
		if err != nil {
			log.Printf("%s: %v", id, err)
			continue
		}
		fmt.Printf("=========== game %s ===========\n", id)
		for _, key := range keys {
			raw, err := mirror.GetRaw(ctx, id, key)
			if err != nil {
				log.Printf("%s/%s: %v", id, key, err)
				continue
			}
			fmt.Printf("--- %s\n", key)
			enc.Encode(raw)
		}
		if jm == nil {
			continue
		}
		j, err := jm.Open(id)
		if err != nil {
			log.Printf("%s: journal: %v", id, err)
			continue
		}
		var from uint64 = 1
		for {
			entries, err := j.List(from, 500)
			if err != nil {
				log.Printf("%s: journal: %v", id, err)
				break
			}
			if len(entries) == 0 {
				break
			}
			for _, e := range entries {
				enc.Encode(e)
			}
			from = entries[len(entries)-1].Seq + 1
		}
	}
}
