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
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/c2FmZQ/storage/crypto"
	"github.com/hashicorp/raft"
)

// KeyInfo is a journal key and the name of the file it is stored in.
type KeyInfo struct {
	Key crypto.EncryptionKey
	ID  string
}

// KeyRing holds the journal keys. New records are encrypted with the active key;
// records written before a rotation stay readable with the old keys.
type KeyRing struct {
	mu     sync.RWMutex
	dir    string
	master crypto.MasterKey
	Active *KeyInfo
	Old    []*KeyInfo // newest first
}

func journalKeysDir(dataDir string) string {
	return filepath.Join(dataDir, "keys", "journal")
}

// LoadKeyRing reads every journal key under dataDir, unwrapping each with the
// master key. The newest key becomes active. A key is generated when none exists.
func LoadKeyRing(dataDir string, master crypto.MasterKey) (*KeyRing, error) {
	dir := journalKeysDir(dataDir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create keys dir: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read keys dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".key") {
			names = append(names, e.Name())
		}
	}
	// Names are fixed-width timestamps.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	ring := &KeyRing{dir: dir, master: master}
	for _, name := range names {
		key, err := readJournalKey(master, filepath.Join(dir, name))
		if err != nil {
			ring.Wipe()
			return nil, err
		}
		info := &KeyInfo{Key: key, ID: name}
		if ring.Active == nil {
			ring.Active = info
		} else {
			ring.Old = append(ring.Old, info)
		}
	}
	if ring.Active == nil {
		log.Printf("[JOURNAL] Generating initial journal encryption key...")
		if err := ring.Rotate(); err != nil {
			return nil, err
		}
	}
	return ring, nil
}

func readJournalKey(master crypto.MasterKey, path string) (crypto.EncryptionKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open key %s: %w", path, err)
	}
	defer f.Close()
	key, err := master.ReadEncryptedKey(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", path, err)
	}
	return key, nil
}

// Rotate generates a new active key, persists it, and keeps the previous active
// key for reading.
func (k *KeyRing) Rotate() error {
	if k.master == nil {
		return errors.New("key ring has no master key")
	}
	key, err := k.master.NewKey()
	if err != nil {
		return fmt.Errorf("failed to generate journal key: %w", err)
	}
	id := fmt.Sprintf("%020d.key", time.Now().UnixNano())
	if err := saveJournalKey(key, filepath.Join(k.dir, id)); err != nil {
		key.Wipe()
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.Active != nil {
		k.Old = append([]*KeyInfo{k.Active}, k.Old...)
	}
	k.Active = &KeyInfo{Key: key, ID: id}
	log.Printf("[JOURNAL] Active key is now %s", id)
	return nil
}

func saveJournalKey(key crypto.EncryptionKey, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open journal key file: %w", err)
	}
	defer f.Close()
	if err := key.WriteEncryptedKey(f); err != nil {
		return fmt.Errorf("failed to write journal key: %w", err)
	}
	return nil
}

// Wipe wipes all keys in the ring from memory.
func (k *KeyRing) Wipe() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.Active != nil {
		k.Active.Key.Wipe()
		k.Active = nil
	}
	for _, info := range k.Old {
		info.Key.Wipe()
	}
	k.Old = nil
}

// Encrypt encrypts data with the active key.
func (k *KeyRing) Encrypt(data []byte) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.Active == nil {
		return nil, errors.New("no active key")
	}
	return k.Active.Key.Encrypt(data)
}

// Decrypt tries the active key, then the old keys from newest to oldest.
func (k *KeyRing) Decrypt(data []byte) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	var keys []*KeyInfo
	if k.Active != nil {
		keys = append(keys, k.Active)
	}
	keys = append(keys, k.Old...)
	for _, info := range keys {
		dec, err := info.Key.Decrypt(data)
		if err == nil {
			return dec, nil
		}
		if !errors.Is(err, crypto.ErrDecryptFailed) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("failed to decrypt with any key: %w", crypto.ErrDecryptFailed)
}

// EncryptedLogStore encrypts the Data of every log it stores.
type EncryptedLogStore struct {
	inner raft.LogStore
	ring  *KeyRing
}

func NewEncryptedLogStore(inner raft.LogStore, ring *KeyRing) *EncryptedLogStore {
	return &EncryptedLogStore{inner: inner, ring: ring}
}

func (e *EncryptedLogStore) FirstIndex() (uint64, error) {
	return e.inner.FirstIndex()
}

func (e *EncryptedLogStore) LastIndex() (uint64, error) {
	return e.inner.LastIndex()
}

func (e *EncryptedLogStore) GetLog(index uint64, l *raft.Log) error {
	if err := e.inner.GetLog(index, l); err != nil {
		return err
	}
	if len(l.Data) == 0 {
		return nil
	}
	dec, err := e.ring.Decrypt(l.Data)
	if err != nil {
		return fmt.Errorf("failed to decrypt log index %d: %w", index, err)
	}
	l.Data = dec
	return nil
}

func (e *EncryptedLogStore) seal(l *raft.Log) (*raft.Log, error) {
	if len(l.Data) == 0 {
		return l, nil
	}
	enc, err := e.ring.Encrypt(l.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt log index %d: %w", l.Index, err)
	}
	sealed := *l
	sealed.Data = enc
	return &sealed, nil
}

func (e *EncryptedLogStore) StoreLog(l *raft.Log) error {
	sealed, err := e.seal(l)
	if err != nil {
		return err
	}
	return e.inner.StoreLog(sealed)
}

func (e *EncryptedLogStore) StoreLogs(logs []*raft.Log) error {
	sealed := make([]*raft.Log, len(logs))
	for i, l := range logs {
		s, err := e.seal(l)
		if err != nil {
			return err
		}
		sealed[i] = s
	}
	return e.inner.StoreLogs(sealed)
}

func (e *EncryptedLogStore) DeleteRange(min, max uint64) error {
	return e.inner.DeleteRange(min, max)
}

func (e *EncryptedLogStore) Close() error {
	if c, ok := e.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// EncryptedStableStore encrypts the values of a raft.StableStore.
type EncryptedStableStore struct {
	inner raft.StableStore
	ring  *KeyRing
}

func NewEncryptedStableStore(inner raft.StableStore, ring *KeyRing) *EncryptedStableStore {
	return &EncryptedStableStore{inner: inner, ring: ring}
}

func (e *EncryptedStableStore) Set(key []byte, val []byte) error {
	enc, err := e.ring.Encrypt(val)
	if err != nil {
		return fmt.Errorf("failed to encrypt %s: %w", key, err)
	}
	return e.inner.Set(key, enc)
}

func (e *EncryptedStableStore) Get(key []byte) ([]byte, error) {
	val, err := e.inner.Get(key)
	if err != nil || len(val) == 0 {
		return val, err
	}
	dec, err := e.ring.Decrypt(val)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt %s: %w", key, err)
	}
	return dec, nil
}

// SetUint64 stores val as 8 big-endian bytes through Set, so it is encrypted too.
func (e *EncryptedStableStore) SetUint64(key []byte, val uint64) error {
	return e.Set(key, binary.BigEndian.AppendUint64(nil, val))
}

func (e *EncryptedStableStore) GetUint64(key []byte) (uint64, error) {
	val, err := e.Get(key)
	if err != nil {
		return 0, err
	}
	if len(val) != 8 {
		return 0, fmt.Errorf("unexpected value length for %s: %d", key, len(val))
	}
	return binary.BigEndian.Uint64(val), nil
}
