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
	"log"
	"os"
	"path/filepath"

	"github.com/c2FmZQ/storage/crypto"
	"github.com/caarlos0/env/v11"
)

// ErrMasterKeyRequired is returned when data was encrypted but no passphrase is set.
var ErrMasterKeyRequired = errors.New("master key passphrase required")

// EnvConfig holds the settings read from the environment. Command-line flags
// take their defaults from it.
type EnvConfig struct {
	MasterKey      string `env:"LK_MASTER_KEY"`
	DataDir        string `env:"LK_DATA_DIR"      envDefault:"data"`
	Addr           string `env:"LK_ADDR"          envDefault:":8080"`
	PitchLimit     int    `env:"LK_PITCH_LIMIT"   envDefault:"100"`
	AuthJWKSURL    string `env:"LK_AUTH_JWKS_URL"`
	AuthCookieName string `env:"LK_AUTH_COOKIE"   envDefault:"lineupkeeper_auth"`
	Debug          bool   `env:"LK_DEBUG"`
}

// ParseEnv loads the configuration from environment variables.
func ParseEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return EnvConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.PitchLimit < 0 {
		return EnvConfig{}, fmt.Errorf("parse env: LK_PITCH_LIMIT must not be negative, got %d", cfg.PitchLimit)
	}
	return cfg, nil
}

// LoadMasterKey opens dataDir/master.key with passphrase, creating it on first use.
// With no passphrase it returns a nil key, unless a master key already exists: the
// data behind it would be unreadable.
func LoadMasterKey(dataDir, passphrase string) (crypto.MasterKey, error) {
	keyFile := filepath.Join(dataDir, "master.key")
	if passphrase == "" {
		if _, err := os.Stat(keyFile); err == nil {
			return nil, fmt.Errorf("%w: %s exists", ErrMasterKeyRequired, keyFile)
		}
		log.Println("Warning: No LK_MASTER_KEY provided. Data will be stored UNENCRYPTED.")
		return nil, nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}

	mk, err := crypto.ReadMasterKey([]byte(passphrase), keyFile)
	if err == nil {
		log.Println("Loaded master encryption key.")
		return mk, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read master key: %w", err)
	}
	log.Println("Initializing new master encryption key...")
	if mk, err = crypto.CreateMasterKey(); err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}
	if err := mk.Save([]byte(passphrase), keyFile); err != nil {
		return nil, fmt.Errorf("failed to save master key: %w", err)
	}
	return mk, nil
}
