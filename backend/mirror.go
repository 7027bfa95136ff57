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
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/c2FmZQ/storage"
)

// Mirror is the persistent key-value mirror of live game state. Each game has its
// own directory and each key is one file. Files go through c2FmZQ storage, so they
// are encrypted when the storage was opened with a master key.
type Mirror struct {
	DataDir string
	Debug   bool
	storage *storage.Storage
	mu      sync.Map // Stores *sync.RWMutex for each gameId
	written sync.Map // Stores the sha256 of the last value read or written for each gameId/key
}

// NewMirror creates a new Mirror.
func NewMirror(dataDir string, s *storage.Storage) *Mirror {
	return &Mirror{
		DataDir: dataDir,
		storage: s,
	}
}

func (m *Mirror) lock(gameId string) *sync.RWMutex {
	v, _ := m.mu.LoadOrStore(gameId, &sync.RWMutex{})
	return v.(*sync.RWMutex)
}

func mirrorDir(gameId string) string {
	return filepath.Join("mirror", url.PathEscape(gameId))
}

func mirrorFile(gameId, key string) string {
	return filepath.Join(mirrorDir(gameId), url.PathEscape(key)+".json")
}

func writtenKey(gameId, key string) string {
	return gameId + "/" + key
}

// GetRaw returns the stored JSON of key, or os.ErrNotExist.
func (m *Mirror) GetRaw(ctx context.Context, gameId, key string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mutex := m.lock(gameId)
	mutex.RLock()
	defer mutex.RUnlock()

	var raw json.RawMessage
	if err := m.storage.ReadDataFile(mirrorFile(gameId, key), &raw); err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("ReadDataFile: %w", err)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err == nil {
		m.written.Store(writtenKey(gameId, key), sha256.Sum256(compact.Bytes()))
	}
	return raw, nil
}

// Get decodes the value of key into v. A missing key returns os.ErrNotExist.
func (m *Mirror) Get(ctx context.Context, gameId, key string, v any) error {
	raw, err := m.GetRaw(ctx, gameId, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", gameId, key, err)
	}
	return nil
}

// Set stores v under key. It reports whether anything was written: a value equal
// to the last one read or written is skipped.
func (m *Mirror) Set(ctx context.Context, gameId, key string, v any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("encode %s/%s: %w", gameId, key, err)
	}
	sum := sha256.Sum256(raw)
	if prev, ok := m.written.Load(writtenKey(gameId, key)); ok && prev.([32]byte) == sum {
		return false, nil
	}

	mutex := m.lock(gameId)
	mutex.Lock()
	defer mutex.Unlock()

	msg := json.RawMessage(raw)
	if err := m.storage.SaveDataFile(mirrorFile(gameId, key), &msg); err != nil {
		m.written.Delete(writtenKey(gameId, key))
		return false, fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	m.written.Store(writtenKey(gameId, key), sum)
	if m.Debug {
		log.Printf("[MIRROR] Wrote %s/%s (%d bytes)", gameId, key, len(raw))
	}
	return true, nil
}

// SetAll writes every entry of values, in the order of keys. It stops at the first
// cancelled context and returns all write errors joined.
func (m *Mirror) SetAll(ctx context.Context, gameId string, keys []string, values map[string]any) (int, error) {
	var errs []error
	n := 0
	for _, key := range keys {
		v, ok := values[key]
		if !ok {
			continue
		}
		wrote, err := m.Set(ctx, gameId, key, v)
		if err != nil {
			if ctx.Err() != nil {
				errs = append(errs, ctx.Err())
				break
			}
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		if wrote {
			n++
		}
	}
	return n, errors.Join(errs...)
}

// Remove deletes key from the mirror. Removing a missing key is not an error.
func (m *Mirror) Remove(gameId, key string) error {
	mutex := m.lock(gameId)
	mutex.Lock()
	defer mutex.Unlock()

	m.written.Delete(writtenKey(gameId, key))
	if err := os.Remove(filepath.Join(m.DataDir, mirrorFile(gameId, key))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not remove %s/%s: %w", gameId, key, err)
	}
	return nil
}

// Keys returns the keys stored for a game, sorted.
func (m *Mirror) Keys(gameId string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(m.DataDir, mirrorDir(gameId)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not read mirror directory: %w", err)
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// PurgeGame permanently deletes every key of a game.
func (m *Mirror) PurgeGame(gameId string) error {
	mutex := m.lock(gameId)
	mutex.Lock()
	defer mutex.Unlock()

	m.written.Range(func(k, _ any) bool {
		if strings.HasPrefix(k.(string), gameId+"/") {
			m.written.Delete(k)
		}
		return true
	})
	if err := os.RemoveAll(filepath.Join(m.DataDir, mirrorDir(gameId))); err != nil {
		return fmt.Errorf("could not purge game %s: %w", gameId, err)
	}
	return nil
}

// ListGames returns an iterator over the ids of all mirrored games.
func (m *Mirror) ListGames() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		entries, err := os.ReadDir(filepath.Join(m.DataDir, "mirror"))
		if err != nil {
			if !os.IsNotExist(err) {
				yield("", fmt.Errorf("could not read mirror directory: %w", err))
			}
			return
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			id, err := url.PathUnescape(e.Name())
			if err != nil {
				log.Printf("[MIRROR] Skipping directory %q: %v", e.Name(), err)
				continue
			}
			if !yield(id, nil) {
				return
			}
		}
	}
}
