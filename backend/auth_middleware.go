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
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

const defaultAuthCookie = "lineupkeeper_auth"

// jwksRefreshInterval bounds how often an unknown kid triggers a refetch.
const jwksRefreshInterval = time.Minute

// jwksCache holds the verification keys fetched from a JWKS endpoint.
type jwksCache struct {
	url string

	mu          sync.RWMutex
	set         jwk.Set
	lastRefresh time.Time
}

func (c *jwksCache) refresh() error {
	if c.url == "" {
		return errors.New("no JWKS URL provided")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	set, err := jwk.Fetch(ctx, c.url)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	c.mu.Lock()
	c.set = set
	c.lastRefresh = time.Now()
	c.mu.Unlock()
	return nil
}

func (c *jwksCache) lookup(kid string) (any, error) {
	c.mu.RLock()
	set := c.set
	c.mu.RUnlock()
	if set == nil {
		return nil, errors.New("JWKS not initialized")
	}
	key, ok := set.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("key %s not found in JWKS", kid)
	}
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("failed to materialize key: %w", err)
	}
	return raw, nil
}

// key returns the verification key of kid, refetching the set at most once per
// jwksRefreshInterval when the kid is unknown.
func (c *jwksCache) key(kid string) (any, error) {
	k, err := c.lookup(kid)
	if err == nil {
		return k, nil
	}
	c.mu.RLock()
	stale := time.Since(c.lastRefresh) > jwksRefreshInterval
	c.mu.RUnlock()
	if !stale {
		return nil, err
	}
	if err := c.refresh(); err != nil {
		log.Printf("[AUTH] Error refreshing JWKS: %v", err)
		return nil, err
	}
	return c.lookup(kid)
}

func (c *jwksCache) keyfunc(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA, *jwt.SigningMethodEd25519:
	default:
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, errors.New("token missing 'kid' header")
	}
	return c.key(kid)
}

// jwtAuthMiddleware validates the JWT in the auth cookie and sets the user id from
// its email claim. Requests without a valid token proceed anonymously.
func jwtAuthMiddleware(opts Options, next http.Handler) http.Handler {
	cache := &jwksCache{url: opts.AuthJWKSURL}
	if cache.url != "" {
		if err := cache.refresh(); err != nil {
			log.Printf("[AUTH] Warning: Failed to fetch JWKS on startup: %v", err)
		}
	} else {
		log.Println("[AUTH] Warning: No AuthJWKSURL provided. JWT validation will fail unless MockAuth is used.")
	}
	cookieName := opts.AuthCookieName
	if cookieName == "" {
		cookieName = defaultAuthCookie
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(cookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, err := jwt.Parse(cookie.Value, cache.keyfunc)
		if err != nil || !token.Valid {
			if opts.Debug {
				log.Printf("[AUTH] JWT validation failed: %v", err)
			}
			next.ServeHTTP(w, r)
			return
		}
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if email, ok := claims["email"].(string); ok && email != "" {
				r = r.WithContext(context.WithValue(r.Context(), userIDKey, normalizeEmail(email)))
			}
		}
		next.ServeHTTP(w, r)
	})
}
