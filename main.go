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

package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/ttbt-io/lineupkeeper/backend"
)

// main starts the web server and registers the API handlers.
func main() {
	cfg, err := backend.ParseEnv()
	if err != nil {
		log.Fatal(err)
	}

	addr := flag.String("addr", cfg.Addr, "The TCP address to listen to")
	dataDir := flag.String("data-dir", cfg.DataDir, "Directory for game and team data")
	useMockAuth := flag.Bool("use-mock-auth", false, "Use Mock Authentication. For testing purposes only.")
	debugMode := flag.Bool("debug", cfg.Debug, "Enable debug mode")
	pitchLimit := flag.Int("pitch-limit", cfg.PitchLimit, "Default pitch limit of new games")
	tlsCert := flag.String("tls-cert", "", "Path to main HTTP TLS certificate")
	tlsKey := flag.String("tls-key", "", "Path to main HTTP TLS key")
	authCookieName := flag.String("auth-cookie-name", cfg.AuthCookieName, "Name of the cookie containing the JWT")
	authJWKSURL := flag.String("auth-jwks-url", cfg.AuthJWKSURL, "URL of the JWKS endpoint")
	rotateJournalKey := flag.Bool("rotate-journal-key", false, "Add a new journal encryption key and exit")
	flag.Parse()

	masterKey, err := backend.LoadMasterKey(*dataDir, cfg.MasterKey)
	if err != nil {
		log.Fatalf("Critical Security Error: %v. Refusing to start in unencrypted mode to prevent data corruption or exposure.", err)
	}

	if *rotateJournalKey {
		if masterKey == nil {
			log.Fatal("--rotate-journal-key requires LK_MASTER_KEY")
		}
		ring, err := backend.LoadKeyRing(*dataDir, masterKey)
		if err != nil {
			log.Fatalf("Failed to load journal keys: %v", err)
		}
		defer ring.Wipe()
		if err := ring.Rotate(); err != nil {
			log.Fatalf("Failed to rotate journal key: %v", err)
		}
		log.Printf("Journal key rotated. Active key: %s", ring.Active.ID)
		return
	}

	var mainTLSCert *tls.Certificate
	if *tlsCert != "" && *tlsKey != "" {
		cert, err := tls.LoadX509KeyPair(*tlsCert, *tlsKey)
		if err != nil {
			log.Fatalf("Failed to load main TLS cert/key: %v", err)
		}
		mainTLSCert = &cert
	}

	store := storage.New(*dataDir, masterKey)
	store.EnableCompression(true)

	server, err := backend.StartServer(backend.Options{
		Addr:           *addr,
		Cert:           mainTLSCert,
		DataDir:        *dataDir,
		UseMockAuth:    *useMockAuth,
		Debug:          *debugMode,
		Storage:        store,
		MasterKey:      masterKey,
		PitchLimit:     *pitchLimit,
		AuthCookieName: *authCookieName,
		AuthJWKSURL:    *authJWKSURL,
	})
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Wait for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	} else {
		log.Println("Gracefully stopped.")
	}
}
