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
	"errors"
	"fmt"
	"iter"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/c2FmZQ/storage"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ttbt-io/lineupkeeper/backend/ingame"
)

var ErrInvalidRoster = errors.New("invalid roster")

// Team is a persistent roster and the users allowed to edit it.
type Team struct {
	ID            string          `json:"id"`
	SchemaVersion int             `json:"schemaVersion"`
	Name          string          `json:"name,omitempty"`
	Roster        []ingame.Player `json:"roster"`
	OwnerID       string          `json:"ownerId"`
	Admins        []string        `json:"admins"`
	UpdatedAt     int64           `json:"updatedAt,omitempty"`

	// Status can be "active" (default/empty) or "deleted"
	Status    string `json:"status,omitempty"`
	DeletedAt int64  `json:"deletedAt,omitempty"`
}

func (t *Team) normalize() {
	if t.SchemaVersion == 0 {
		t.SchemaVersion = CurrentSchemaVersion
	}
	if t.Roster == nil {
		t.Roster = make([]ingame.Player, 0)
	}
	if t.Admins == nil {
		t.Admins = make([]string, 0)
	}
}

func (t *Team) validate() error {
	seen := make(map[string]bool, len(t.Roster))
	for i, p := range t.Roster {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("%w: player %d has no id", ErrInvalidRoster, i)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate player id %s", ErrInvalidRoster, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// PlayerRoster returns the read-only roster view of the team.
func (t *Team) PlayerRoster() ingame.MapRoster {
	m := make(ingame.MapRoster, len(t.Roster))
	for _, p := range t.Roster {
		m[p.ID] = p
	}
	return m
}

// RosterStore persists teams and serves their rosters.
type RosterStore struct {
	DataDir string
	storage *storage.Storage
	mu      sync.Map // Stores *sync.Mutex for each teamId to protect writes
	cache   *lru.Cache[string, *Team]
}

// NewRosterStore creates a new RosterStore.
func NewRosterStore(dataDir string, s *storage.Storage) *RosterStore {
	cache, _ := lru.New[string, *Team](500)
	return &RosterStore{
		DataDir: dataDir,
		storage: s,
		cache:   cache,
	}
}

func teamFile(teamId string) string {
	return filepath.Join("teams", fmt.Sprintf("%s.json", url.PathEscape(teamId)))
}

func (rs *RosterStore) lock(teamId string) *sync.Mutex {
	m, _ := rs.mu.LoadOrStore(teamId, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// SaveTeam validates and stores a team.
func (rs *RosterStore) SaveTeam(team *Team) error {
	team.normalize()
	if err := team.validate(); err != nil {
		return err
	}
	team.UpdatedAt = time.Now().UnixNano()

	mutex := rs.lock(team.ID)
	mutex.Lock()
	defer mutex.Unlock()

	if err := rs.storage.SaveDataFile(teamFile(team.ID), team); err != nil {
		rs.cache.Remove(team.ID)
		return fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	saved := *team
	rs.cache.Add(team.ID, &saved)
	return nil
}

// LoadTeam returns a team, or os.ErrNotExist. Deleted teams are returned with their
// tombstone status.
func (rs *RosterStore) LoadTeam(teamId string) (*Team, error) {
	if t, ok := rs.cache.Get(teamId); ok {
		return t, nil
	}
	var t Team
	if err := rs.storage.ReadDataFile(teamFile(teamId), &t); err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("ReadDataFile: %w", err)
	}
	t.normalize()
	rs.cache.Add(teamId, &t)
	return &t, nil
}

// RosterFor returns the roster of an active team.
func (rs *RosterStore) RosterFor(teamId string) (ingame.MapRoster, error) {
	t, err := rs.LoadTeam(teamId)
	if err != nil {
		return nil, err
	}
	if t.Status == "deleted" {
		return nil, os.ErrNotExist
	}
	return t.PlayerRoster(), nil
}

// DeleteTeam replaces a team with a tombstone.
func (rs *RosterStore) DeleteTeam(teamId string) error {
	t, err := rs.LoadTeam(teamId)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	mutex := rs.lock(teamId)
	mutex.Lock()
	defer mutex.Unlock()

	tombstone := &Team{
		ID:            teamId,
		SchemaVersion: CurrentSchemaVersion,
		OwnerID:       t.OwnerID,
		Status:        "deleted",
		DeletedAt:     time.Now().UnixNano(),
	}
	tombstone.normalize()
	rs.cache.Remove(teamId)
	if err := rs.storage.SaveDataFile(teamFile(teamId), tombstone); err != nil {
		return fmt.Errorf("storage.SaveDataFile (tombstone): %w", err)
	}
	return nil
}

// ListTeams returns an iterator over all stored teams, tombstones included.
func (rs *RosterStore) ListTeams() iter.Seq2[*Team, error] {
	return func(yield func(*Team, error) bool) {
		files, err := os.ReadDir(filepath.Join(rs.DataDir, "teams"))
		if err != nil {
			if !os.IsNotExist(err) {
				yield(nil, fmt.Errorf("could not read teams directory: %w", err))
			}
			return
		}
		for _, file := range files {
			if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
				continue
			}
			teamId, err := url.PathUnescape(strings.TrimSuffix(file.Name(), ".json"))
			if err != nil {
				continue
			}
			t, err := rs.LoadTeam(teamId)
			if err != nil {
				log.Printf("Warning: could not load team '%s': %v", teamId, err)
				continue
			}
			if !yield(t, nil) {
				return
			}
		}
	}
}
