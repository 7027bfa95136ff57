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
	"crypto/sha256"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/c2FmZQ/storage/crypto"
	"github.com/ttbt-io/lineupkeeper/backend/ingame"
)

func generateETag(data []byte) string {
	return fmt.Sprintf("\"%x\"", sha256.Sum256(data))
}

func hubBusyResponse(w http.ResponseWriter, retryAfter string) {
	w.Header().Set("Retry-After", retryAfter)
	http.Error(w, "Too Many Requests: Server is busy", http.StatusTooManyRequests)
}

// Options represent server options.
type Options struct {
	Addr        string
	Cert        *tls.Certificate
	DataDir     string
	UseMockAuth bool
	Debug       bool
	Storage     *storage.Storage
	MasterKey   crypto.MasterKey
	Listener    net.Listener

	// PitchLimit is the pitch limit of games that do not set their own.
	PitchLimit int

	// Auth Options
	AuthCookieName string
	AuthJWKSURL    string
}

const (
	retryAfterLoad   = "2"
	retryAfterSave   = "10"
	retryAfterAction = "5"
)

// Server represents the running server instance.
type Server struct {
	httpServer *http.Server
	app        *app
}

// Shutdown stops accepting requests, then closes every game hub and journal.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []string
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Sprintf("http: %v", err))
	}
	if err := s.app.close(); err != nil {
		errs = append(errs, fmt.Sprintf("journal: %v", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %s", strings.Join(errs, ", "))
	}
	return nil
}

// StartServer starts the web server and registers the API handlers.
func StartServer(opts Options) (*Server, error) {
	a, err := newApp(opts)
	if err != nil {
		return nil, err
	}
	httpServer := &http.Server{
		Addr:    opts.Addr,
		Handler: a.handler(),
	}
	if opts.Cert != nil {
		httpServer.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{*opts.Cert},
		}
	}

	go func() {
		var err error
		if opts.Listener != nil {
			if httpServer.TLSConfig != nil {
				log.Printf("Starting HTTPS server on provided listener %s...", opts.Listener.Addr())
				err = httpServer.ServeTLS(opts.Listener, "", "")
			} else {
				log.Printf("Starting HTTP server on provided listener %s...", opts.Listener.Addr())
				err = httpServer.Serve(opts.Listener)
			}
		} else {
			log.Printf("Server starting on port %s...\n", opts.Addr)
			if opts.Cert != nil {
				err = httpServer.ListenAndServeTLS("", "")
			} else {
				log.Println("Starting HTTP server...")
				err = httpServer.ListenAndServe()
			}
		}
		if err != nil && !errors.Is(err, net.ErrClosed) && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	return &Server{httpServer: httpServer, app: a}, nil
}

// NewServerHandler creates the HTTP handler and returns it with a function that
// releases the hubs and journals behind it.
func NewServerHandler(opts Options) (http.Handler, func() error, error) {
	a, err := newApp(opts)
	if err != nil {
		return nil, nil, err
	}
	return a.handler(), a.close, nil
}

// app holds the stores and hubs behind the handler.
type app struct {
	opts    Options
	mirror  *Mirror
	rosters *RosterStore
	ring    *KeyRing
	hm      *HubManager
	env     *hubEnv
}

func newApp(opts Options) (*app, error) {
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}
	if opts.Storage == nil {
		opts.Storage = storage.New(opts.DataDir, opts.MasterKey)
	}
	if opts.PitchLimit <= 0 {
		opts.PitchLimit = ingame.DefaultPitchLimit
	}

	var ring *KeyRing
	if opts.MasterKey != nil {
		var err error
		if ring, err = LoadKeyRing(opts.DataDir, opts.MasterKey); err != nil {
			return nil, fmt.Errorf("journal keys: %w", err)
		}
	} else {
		log.Println("[JOURNAL] Warning: No master key. Journals will be stored UNENCRYPTED.")
	}

	a := &app{
		opts:    opts,
		mirror:  NewMirror(opts.DataDir, opts.Storage),
		rosters: NewRosterStore(opts.DataDir, opts.Storage),
		ring:    ring,
	}
	a.env = &hubEnv{
		mirror:     a.mirror,
		journals:   NewJournalManager(opts.DataDir, ring),
		rosters:    a.rosters,
		metrics:    NewActionMetrics(),
		pitchLimit: opts.PitchLimit,
		debug:      opts.Debug,
	}
	a.hm = NewHubManager(a.env)
	return a, nil
}

func (a *app) close() error {
	a.hm.CloseAll()
	err := a.env.journals.CloseAll()
	if a.ring != nil {
		a.ring.Wipe()
	}
	return err
}

func (a *app) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/games", a.handleListGames)
	mux.HandleFunc("DELETE /api/games/{id}", a.handleDeleteGame)
	mux.HandleFunc("POST /api/games/{id}/actions", a.handleAction)
	mux.HandleFunc("GET /api/games/{id}/state", a.handleQuery(ReqTypeState))
	mux.HandleFunc("GET /api/games/{id}/review", a.handleQuery(ReqTypeReview))
	mux.HandleFunc("GET /api/games/{id}/announce", a.handleQuery(ReqTypeAnnounce))
	mux.HandleFunc("GET /api/games/{id}/transitions", a.handleQuery(ReqTypeTransitions))

	mux.HandleFunc("GET /api/teams", a.handleListTeams)
	mux.HandleFunc("GET /api/teams/{id}", a.handleGetTeam)
	mux.HandleFunc("POST /api/teams/{id}", a.handleSaveTeam)
	mux.HandleFunc("DELETE /api/teams/{id}", a.handleDeleteTeam)

	mux.HandleFunc("GET /api/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWS(a.hm, w, r)
	})

	mux.HandleFunc("GET /api/metrics", func(w http.ResponseWriter, r *http.Request) {
		if getUserID(r) == "" {
			writeError(w, ErrUnauthenticated)
			return
		}
		report := a.env.metrics.Report()
		report.ActiveHubs = a.hm.Count()
		writeJSON(w, r, report)
	})

	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		if a.opts.UseMockAuth {
			http.SetCookie(w, &http.Cookie{
				Name:  mockAuthCookie,
				Value: "test@example.com",
				Path:  "/",
			})
		} else if userId := getUserID(r); userId == "" || !isValidEmail(userId) {
			http.Error(w, "Forbidden: Invalid User ID", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>Login successful. You can close this window.</body></html>"))
	})

	// Mock SSO endpoints for local development
	if a.opts.UseMockAuth {
		mux.HandleFunc("POST /.sso/{$}", ssoStatusHandler)
		mux.HandleFunc("POST /.sso/logout", ssoLogoutHandler)
	}

	handler := http.Handler(mux)
	if a.opts.UseMockAuth {
		handler = mockAuthMiddleware(handler)
	} else {
		handler = jwtAuthMiddleware(a.opts, handler)
	}
	handler = loggingMiddleware(a.opts.Debug, handler)
	handler = securityMiddleware(handler)
	handler = cacheControlMiddleware(handler)
	return handler
}

// statusOf maps an error to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, ingame.ErrRuleViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ingame.ErrStaleOffer),
		errors.Is(err, ingame.ErrNoPendingReview),
		errors.Is(err, ingame.ErrTemporaryRunnerActive),
		errors.Is(err, ingame.ErrNotCurrentHalf),
		errors.Is(err, ingame.ErrAheadOfProgress),
		errors.Is(err, ingame.ErrGameNotStarted):
		return http.StatusConflict
	case errors.Is(err, ingame.ErrUnknownPlayer),
		errors.Is(err, ingame.ErrInvalidSlot),
		errors.Is(err, ingame.ErrInvalidPosition),
		errors.Is(err, ingame.ErrInvalidReason),
		errors.Is(err, ingame.ErrInvalidDelta),
		errors.Is(err, ingame.ErrInvalidLineup),
		errors.Is(err, ErrBadAction),
		errors.Is(err, ErrInvalidRoster):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error string `json:"error"`
	Rule  string `json:"rule,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	body := errorBody{Error: err.Error()}
	if status == http.StatusInternalServerError {
		log.Printf("Internal error: %v", err)
		body.Error = "Internal Server Error"
	}
	var rv *ingame.RuleViolationError
	if errors.As(err, &rv) {
		body.Rule = rv.Rule
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeJSON writes v with an ETag. GET requests that already hold it get a 304.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		writeError(w, err)
		return
	}
	if r.Method == http.MethodGet {
		etag := generateETag(data)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
	w.Write([]byte("\n"))
}

// callHub runs req on the hub of gameId and writes the error response if any.
func (a *app) callHub(w http.ResponseWriter, r *http.Request, gameId string, req HubRequest, retryAfter string) (any, bool) {
	if !isValidID(gameId) {
		http.Error(w, "Invalid game id", http.StatusBadRequest)
		return nil, false
	}
	req.UserId = getUserID(r)
	resp, err := a.hm.Call(r.Context(), gameId, req)
	if errors.Is(err, errHubBusy) {
		hubBusyResponse(w, retryAfter)
		return nil, false
	}
	if err == nil {
		err = resp.Error
	}
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return resp.Data, true
}

func (a *app) handleAction(w http.ResponseWriter, r *http.Request) {
	var ar ActionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActionBodyBytes)).Decode(&ar); err != nil {
		writeError(w, fmt.Errorf("%w: %v", ErrBadAction, err))
		return
	}
	data, ok := a.callHub(w, r, r.PathValue("id"), HubRequest{Type: ReqTypeAction, Action: ar}, retryAfterAction)
	if !ok {
		return
	}
	writeJSON(w, r, data)
}

func (a *app) handleQuery(typ string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := HubRequest{Type: typ}
		q := r.URL.Query()
		switch typ {
		case ReqTypeAnnounce:
			req.Position = q.Get("position")
		case ReqTypeTransitions:
			req.From, req.Limit = 1, defaultTransitionPage
			if v := q.Get("from"); v != "" {
				n, err := strconv.ParseUint(v, 10, 64)
				if err != nil {
					http.Error(w, "Invalid from", http.StatusBadRequest)
					return
				}
				req.From = n
			}
			if v := q.Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n < 1 {
					http.Error(w, "Invalid limit", http.StatusBadRequest)
					return
				}
				req.Limit = min(n, maxTransitionPage)
			}
		}
		data, ok := a.callHub(w, r, r.PathValue("id"), req, retryAfterLoad)
		if !ok {
			return
		}
		writeJSON(w, r, data)
	}
}

func (a *app) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.callHub(w, r, r.PathValue("id"), HubRequest{Type: ReqTypeDelete}, retryAfterSave); !ok {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GameSummary is an entry of the game listing.
type GameSummary struct {
	ID        string `json:"id"`
	TeamID    string `json:"teamId,omitempty"`
	OwnerID   string `json:"ownerId,omitempty"`
	Seq       uint64 `json:"seq"`
	UpdatedAt int64  `json:"updatedAt"`
}

// handleListGames lists the mirrored games the user can read. Games mirrored
// before the meta key existed are listed with their id only.
func (a *app) handleListGames(w http.ResponseWriter, r *http.Request) {
	userId := getUserID(r)
	if userId == "" {
		writeError(w, ErrUnauthenticated)
		return
	}
	games := []GameSummary{}
	for id, err := range a.mirror.ListGames() {
		if err != nil {
			writeError(w, err)
			return
		}
		meta := GameMeta{ID: id}
		if err := a.mirror.Get(r.Context(), id, KeyMeta, &meta); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("[MIRROR] Skipping game %s: %v", id, err)
			continue
		}
		if GetGameAccess(userId, meta, a.rosters) < AccessRead {
			continue
		}
		games = append(games, GameSummary{ID: id, TeamID: meta.TeamID, OwnerID: meta.OwnerID, Seq: meta.Seq, UpdatedAt: meta.UpdatedAt})
	}
	writeJSON(w, r, games)
}

// teamForUser loads a team and checks that the user administers it.
func (a *app) teamForUser(r *http.Request, teamId string) (*Team, error) {
	userId := getUserID(r)
	if userId == "" {
		return nil, ErrUnauthenticated
	}
	t, err := a.rosters.LoadTeam(teamId)
	if err != nil {
		return nil, err
	}
	if t.Status == "deleted" {
		return nil, os.ErrNotExist
	}
	if err := requireAccess(userId, "team "+teamId, GetTeamAccess(userId, *t), AccessAdmin); err != nil {
		return nil, err
	}
	return t, nil
}

func (a *app) handleListTeams(w http.ResponseWriter, r *http.Request) {
	userId := getUserID(r)
	if userId == "" {
		writeError(w, ErrUnauthenticated)
		return
	}
	teams := []*Team{}
	for t, err := range a.rosters.ListTeams() {
		if err != nil {
			writeError(w, err)
			return
		}
		if t.Status != "deleted" && GetTeamAccess(userId, *t) == AccessAdmin {
			teams = append(teams, t)
		}
	}
	writeJSON(w, r, teams)
}

func (a *app) handleGetTeam(w http.ResponseWriter, r *http.Request) {
	t, err := a.teamForUser(r, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, t)
}

// handleSaveTeam creates or replaces a team. A new team is owned by its creator;
// the owner of an existing team never changes.
func (a *app) handleSaveTeam(w http.ResponseWriter, r *http.Request) {
	teamId := r.PathValue("id")
	if !isValidID(teamId) {
		http.Error(w, "Invalid team id", http.StatusBadRequest)
		return
	}
	userId := getUserID(r)
	if userId == "" {
		writeError(w, ErrUnauthenticated)
		return
	}
	var team Team
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActionBodyBytes)).Decode(&team); err != nil {
		writeError(w, fmt.Errorf("%w: %v", ErrInvalidRoster, err))
		return
	}
	if team.ID != "" && team.ID != teamId {
		writeError(w, fmt.Errorf("%w: id mismatch", ErrInvalidRoster))
		return
	}
	team.ID = teamId
	team.Status = ""
	team.DeletedAt = 0

	existing, err := a.rosters.LoadTeam(teamId)
	switch {
	case errors.Is(err, os.ErrNotExist):
		team.OwnerID = userId
	case err != nil:
		writeError(w, err)
		return
	default:
		if err := requireAccess(userId, "team "+teamId, GetTeamAccess(userId, *existing), AccessAdmin); err != nil {
			writeError(w, err)
			return
		}
		team.OwnerID = existing.OwnerID
	}

	if err := a.rosters.SaveTeam(&team); err != nil {
		writeError(w, err)
		return
	}
	if a.opts.Debug {
		log.Printf("Saved team %s with %d players", teamId, len(team.Roster))
	}
	writeJSON(w, r, &team)
}

func (a *app) handleDeleteTeam(w http.ResponseWriter, r *http.Request) {
	teamId := r.PathValue("id")
	if _, err := a.teamForUser(r, teamId); err != nil {
		writeError(w, err)
		return
	}
	if err := a.rosters.DeleteTeam(teamId); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// cacheControlMiddleware keeps API responses out of shared caches.
func cacheControlMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/.sso/") {
			w.Header().Set("Cache-Control", "private, no-cache, no-transform")
		}
		next.ServeHTTP(w, r)
	})
}

// securityMiddleware adds HTTP security headers to responses.
func securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// ssoStatusHandler returns the current user status.
func ssoStatusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	userId := getUserID(r)
	if userId == "" {
		w.Write([]byte("null\n"))
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"email": userId,
		"name":  "Test User",
	})
}

// ssoLogoutHandler logs the user out (clears cookie).
func ssoLogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:    mockAuthCookie,
		Value:   "",
		Path:    "/",
		Expires: time.Unix(0, 0),
		MaxAge:  -1,
	})
	w.WriteHeader(http.StatusOK)
}

// loggingMiddleware logs the method and URL path of every incoming HTTP request
// when debug is on.
func loggingMiddleware(debug bool, next http.Handler) http.Handler {
	if !debug {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("Received request: %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
