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
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/ttbt-io/lineupkeeper/backend/ingame"
)

var journalSessionKey = []byte("SessionID")

// JournalEntry is a journaled transition with its payload left encoded.
type JournalEntry struct {
	Seq       uint64          `json:"seq"`
	ID        string          `json:"id"`
	SessionID string          `json:"sessionId"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Journal is the append-only transition log of one game. Each transition is a
// raft.Log whose index is the transition seq. The journal holds one session at a
// time: a transition from a new session truncates it.
type Journal struct {
	mu     sync.Mutex
	bolt   *raftboltdb.BoltStore
	logs   raft.LogStore
	stable raft.StableStore
}

// OpenJournal opens or creates the journal at path. With a non-nil ring, log data
// and metadata are encrypted.
func OpenJournal(path string, ring *KeyRing) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create journal dir: %w", err)
	}
	bolt, err := raftboltdb.NewBoltStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	j := &Journal{bolt: bolt, logs: bolt, stable: bolt}
	if ring != nil {
		j.logs = NewEncryptedLogStore(bolt, ring)
		j.stable = NewEncryptedStableStore(bolt, ring)
	}
	return j, nil
}

// SessionID returns the session the journal currently holds, or "".
func (j *Journal) SessionID() (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sessionID()
}

func (j *Journal) sessionID() (string, error) {
	v, err := j.stable.Get(journalSessionKey)
	if errors.Is(err, raftboltdb.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (j *Journal) truncate(from uint64) error {
	last, err := j.logs.LastIndex()
	if err != nil {
		return err
	}
	if last == 0 || from > last {
		return nil
	}
	first, err := j.logs.FirstIndex()
	if err != nil {
		return err
	}
	return j.logs.DeleteRange(max(first, from), last)
}

// Append journals tr. A transition whose seq is not past the end of the journal
// replaces the entries from that seq on.
func (j *Journal) Append(tr ingame.Transition) error {
	data, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("encode transition %d: %w", tr.Seq, err)
	}
	if tr.Seq == 0 {
		return fmt.Errorf("transition %s has no seq", tr.ID)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	sid, err := j.sessionID()
	if err != nil {
		return err
	}
	if sid != tr.SessionID {
		if err := j.truncate(0); err != nil {
			return fmt.Errorf("reset journal: %w", err)
		}
		if err := j.stable.Set(journalSessionKey, []byte(tr.SessionID)); err != nil {
			return err
		}
		if sid != "" {
			log.Printf("[JOURNAL] Session %s replaced by %s", sid, tr.SessionID)
		}
	} else if err := j.truncate(tr.Seq); err != nil {
		return err
	}

	return j.logs.StoreLog(&raft.Log{
		Index:      tr.Seq,
		Term:       1,
		Type:       raft.LogCommand,
		Data:       data,
		AppendedAt: time.Unix(0, tr.Timestamp),
	})
}

// List returns up to limit entries starting at seq from.
func (j *Journal) List(from uint64, limit int) ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	first, err := j.logs.FirstIndex()
	if err != nil {
		return nil, err
	}
	last, err := j.logs.LastIndex()
	if err != nil {
		return nil, err
	}
	out := []JournalEntry{}
	if last == 0 {
		return out, nil
	}
	for i := max(from, first); i <= last && len(out) < limit; i++ {
		var l raft.Log
		if err := j.logs.GetLog(i, &l); err != nil {
			if errors.Is(err, raft.ErrLogNotFound) {
				continue
			}
			return nil, err
		}
		var e JournalEntry
		if err := json.Unmarshal(l.Data, &e); err != nil {
			return nil, fmt.Errorf("decode journal entry %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// LastSeq returns the seq of the last journaled transition, or 0.
func (j *Journal) LastSeq() (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.logs.LastIndex()
}

func (j *Journal) Close() error {
	return j.bolt.Close()
}

// JournalManager opens one journal per game and keeps it open while in use.
// A bolt file can only be opened once per process.
type JournalManager struct {
	DataDir string
	ring    *KeyRing

	mu       sync.Mutex
	journals map[string]*Journal
}

func NewJournalManager(dataDir string, ring *KeyRing) *JournalManager {
	return &JournalManager{
		DataDir:  dataDir,
		ring:     ring,
		journals: make(map[string]*Journal),
	}
}

func (jm *JournalManager) path(gameId string) string {
	return filepath.Join(jm.DataDir, "journal", url.PathEscape(gameId)+".bolt")
}

// Open returns the journal of a game, opening it if needed.
func (jm *JournalManager) Open(gameId string) (*Journal, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if j, ok := jm.journals[gameId]; ok {
		return j, nil
	}
	j, err := OpenJournal(jm.path(gameId), jm.ring)
	if err != nil {
		return nil, err
	}
	jm.journals[gameId] = j
	return j, nil
}

// Close closes the journal of a game if it is open.
func (jm *JournalManager) Close(gameId string) error {
	jm.mu.Lock()
	j, ok := jm.journals[gameId]
	delete(jm.journals, gameId)
	jm.mu.Unlock()
	if !ok {
		return nil
	}
	return j.Close()
}

// CloseAll closes every open journal.
func (jm *JournalManager) CloseAll() error {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	var errs []error
	for id, j := range jm.journals {
		if err := j.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
		delete(jm.journals, id)
	}
	return errors.Join(errs...)
}

// Remove closes the journal of a game and deletes its file.
func (jm *JournalManager) Remove(gameId string) error {
	if err := jm.Close(gameId); err != nil {
		return err
	}
	if err := os.Remove(jm.path(gameId)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not remove journal of %s: %w", gameId, err)
	}
	return nil
}
