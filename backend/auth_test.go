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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/c2FmZQ/storage"
)

func TestGetGameAccess(t *testing.T) {
	tempDir := t.TempDir()
	rosters := NewRosterStore(tempDir, storage.New(tempDir, nil))
	owner := "owner@example.com"
	editor := "editor@example.com"
	viewer := "viewer@example.com"
	stranger := "stranger@example.com"

	team := testTeam("team-1", "coach@example.com")
	team.Admins = []string{"admin@example.com"}
	if err := rosters.SaveTeam(team); err != nil {
		t.Fatalf("SaveTeam: %v", err)
	}

	game := GameMeta{
		ID:      "game-1",
		OwnerID: owner,
		TeamID:  "team-1",
		Permissions: Permissions{
			Public: "none",
			Users: map[string]string{
				editor: "write",
				viewer: "read",
			},
		},
	}

	tests := []struct {
		name   string
		userId string
		game   GameMeta
		want   AccessLevel
	}{
		{"Owner", owner, game, AccessAdmin},
		{"Owner Mixed Case", " Owner@Example.com ", game, AccessAdmin},
		{"Direct Editor", editor, game, AccessWrite},
		{"Direct Viewer", viewer, game, AccessRead},
		{"Stranger Private", stranger, game, AccessNone},
		{"Anonymous Private", "", game, AccessNone},
		{"Team Owner Inheritance", "coach@example.com", game, AccessWrite},
		{"Team Admin Inheritance", "admin@example.com", game, AccessWrite},
		{"Unowned Game", stranger, GameMeta{ID: "game-2"}, AccessAdmin},
		{"Unowned Game Anonymous", "", GameMeta{ID: "game-2"}, AccessNone},
		{"Public Read Access", stranger, GameMeta{OwnerID: owner, Permissions: Permissions{Public: "read"}}, AccessRead},
		{"Public Read Anonymous", "", GameMeta{OwnerID: owner, Permissions: Permissions{Public: "read"}}, AccessRead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetGameAccess(tt.userId, tt.game, rosters); got != tt.want {
				t.Errorf("GetGameAccess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetTeamAccess(t *testing.T) {
	team := Team{
		OwnerID: "owner@example.com",
		Admins:  []string{"Admin@Example.com"},
	}

	tests := []struct {
		name   string
		userId string
		want   AccessLevel
	}{
		{"Owner", "owner@example.com", AccessAdmin},
		{"Admin", "admin@example.com", AccessAdmin},
		{"Stranger", "stranger@example.com", AccessNone},
		{"Anonymous", "", AccessNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetTeamAccess(tt.userId, team); got != tt.want {
				t.Errorf("GetTeamAccess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequireAccess(t *testing.T) {
	if err := requireAccess("a@example.com", "game g1", AccessWrite, AccessRead); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
	if err := requireAccess("", "game g1", AccessNone, AccessRead); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated, got %v", err)
	}
	if err := requireAccess("a@example.com", "game g1", AccessRead, AccessWrite); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden, got %v", err)
	}
}

func TestEmailHelpers(t *testing.T) {
	for email, want := range map[string]string{
		"user@example.com": "u***@example.com",
		"":                 "<empty>",
		"nodomain":         "****",
		"@example.com":     "****",
	} {
		if got := maskEmail(email); got != want {
			t.Errorf("maskEmail(%q) = %q, want %q", email, got, want)
		}
	}
	for email, want := range map[string]bool{
		"user@example.com":     true,
		"a.b+c@sub.example.jp": true,
		"user@localhost":       false,
		"not an email":         false,
	} {
		if got := isValidEmail(email); got != want {
			t.Errorf("isValidEmail(%q) = %v, want %v", email, got, want)
		}
	}
}

func TestMockAuthMiddleware(t *testing.T) {
	var got string
	h := mockAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = getUserID(r)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: mockAuthCookie, Value: " User@Example.com"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "user@example.com" {
		t.Errorf("User = %q, want user@example.com", got)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if got != "" {
		t.Errorf("User without cookie = %q", got)
	}
}

func TestJWTAuthMiddlewareInvalidToken(t *testing.T) {
	got := "unset"
	h := jwtAuthMiddleware(Options{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = getUserID(r)
	}))
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: defaultAuthCookie, Value: "not.a.jwt"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "" {
		t.Errorf("Invalid token should proceed anonymously, got user %q", got)
	}
}
