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
	"log"
	"net/http"
	"regexp"
	"slices"
	"strings"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

type contextKey struct{}

// userIDKey is the context key for the authenticated user's ID (email).
// The associated value is always a string.
var userIDKey contextKey

// mockAuthCookie carries the user id when mock authentication is enabled.
const mockAuthCookie = "mock_auth_user"

// getUserID returns the UserID from the request context, if present.
func getUserID(r *http.Request) string {
	if s, ok := r.Context().Value(userIDKey).(string); ok {
		return s
	}
	return ""
}

// normalizeEmail ensures consistent casing and whitespace for User IDs.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func isValidEmail(email string) bool {
	return len(email) <= 254 && emailRegex.MatchString(email)
}

// maskEmail obscures an email address for safe logging.
// e.g. "user@example.com" -> "u***@example.com"
func maskEmail(email string) string {
	if email == "" {
		return "<empty>"
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "****"
	}
	return local[:1] + "***@" + domain
}

type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessRead
	AccessWrite
	AccessAdmin
)

// GetGameAccess calculates the effective access level of a user on a game. A game
// nobody owns yet is writable by any signed-in user; the first GAME_START claims it.
func GetGameAccess(userId string, meta GameMeta, rosters *RosterStore) AccessLevel {
	userId = normalizeEmail(userId)
	ownerId := normalizeEmail(meta.OwnerID)

	if userId != "" {
		if ownerId == "" || ownerId == userId {
			return AccessAdmin
		}
		for u, role := range meta.Permissions.Users {
			if normalizeEmail(u) != userId {
				continue
			}
			switch role {
			case "write":
				return AccessWrite
			case "read":
				return AccessRead
			}
		}
		if meta.TeamID != "" && rosters != nil {
			if t, err := rosters.LoadTeam(meta.TeamID); err == nil && GetTeamAccess(userId, *t) == AccessAdmin {
				return AccessWrite
			}
		}
	}

	if meta.Permissions.Public == "read" {
		return AccessRead
	}
	return AccessNone
}

// GetTeamAccess calculates the effective access level of a user on a team.
func GetTeamAccess(userId string, team Team) AccessLevel {
	userId = normalizeEmail(userId)
	if userId == "" {
		return AccessNone
	}
	if normalizeEmail(team.OwnerID) == userId {
		return AccessAdmin
	}
	if slices.ContainsFunc(team.Admins, func(u string) bool { return normalizeEmail(u) == userId }) {
		return AccessAdmin
	}
	return AccessNone
}

// requireAccess returns ErrUnauthenticated or ErrForbidden when level is below want.
func requireAccess(userId, resource string, level, want AccessLevel) error {
	if level >= want {
		return nil
	}
	if userId == "" {
		return ErrUnauthenticated
	}
	log.Printf("[AUTH] Forbidden: user %s on %s", maskEmail(userId), resource)
	return ErrForbidden
}

// mockAuthMiddleware sets the user id from a plain cookie. For testing only.
func mockAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(mockAuthCookie); err == nil && cookie.Value != "" {
			ctx := context.WithValue(r.Context(), userIDKey, normalizeEmail(cookie.Value))
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}
