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
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ttbt-io/lineupkeeper/backend/ingame"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// A hub with no websocket clients is closed after this long.
	hubIdleTimeout = 5 * time.Minute

	// Time allowed for the mirror and journal writes of one transition.
	persistTimeout = 10 * time.Second
)

var (
	errHubBusy   = errors.New("hub is busy")
	errHubClosed = errors.New("hub is closed")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// Message types of the websocket feed.
const (
	MsgTypeJoin       = "JOIN"
	MsgTypeAck        = "ACK"
	MsgTypeTransition = "TRANSITION"
	MsgTypeSyncUpdate = "SYNC_UPDATE"
	MsgTypeError      = "ERROR"
	MsgTypePing       = "PING"
	MsgTypePong       = "PONG"
)

// Message is one websocket frame. A client joins with the last seq it saw and
// receives the transitions it missed, then every new transition as it is applied.
type Message struct {
	Type       string             `json:"type"`
	GameId     string             `json:"gameId,omitempty"`
	SessionID  string             `json:"sessionId,omitempty"`
	LastSeq    uint64             `json:"lastSeq,omitempty"`
	Transition *ingame.Transition `json:"transition,omitempty"`
	Entries    []JournalEntry     `json:"entries,omitempty"`
	Review     *ingame.Review     `json:"review,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// HubRequest types
const (
	ReqTypeWSJoin      = "WS_JOIN"
	ReqTypeAction      = "ACTION"
	ReqTypeState       = "STATE"
	ReqTypeReview      = "REVIEW"
	ReqTypeAnnounce    = "ANNOUNCE"
	ReqTypeTransitions = "TRANSITIONS"
	ReqTypeDelete      = "DELETE"
)

// HubRequest is a request to a GameHub. Every request is handled on the hub
// goroutine, one at a time.
type HubRequest struct {
	Type     string
	UserId   string
	Client   *wsClient     // For WS requests
	Message  Message       // For WS requests
	Action   ActionRequest // For ReqTypeAction
	Position string        // For ReqTypeAnnounce
	From     uint64        // For ReqTypeTransitions
	Limit    int           // For ReqTypeTransitions
	Reply    chan HubResponse
}

// HubResponse carries the JSON-encodable result of a request, or its error.
type HubResponse struct {
	Data  any
	Error error
}

// ActionResult is the reply to an applied action.
type ActionResult struct {
	Transition ingame.Transition `json:"transition"`
	Review     *ingame.Review    `json:"review"`
}

// GameState is the reply to a state request.
type GameState struct {
	Meta     GameMeta        `json:"meta"`
	Started  bool            `json:"started"`
	Snapshot ingame.Snapshot `json:"snapshot"`
}

// ReviewState is the reply to a review request.
type ReviewState struct {
	Head    *ingame.Review  `json:"head"`
	Pending []ingame.Review `json:"pending"`
}

// Announcement is what the speech collaborator needs to call out a position.
type Announcement struct {
	Position        ingame.Position      `json:"position"`
	Player          ingame.Player        `json:"player"`
	Slot            *int                 `json:"slot"`
	Reason          ingame.Reason        `json:"reason,omitempty"`
	OriginalStarter string               `json:"originalStarter,omitempty"`
	Pitching        *ingame.PitchFigures `json:"pitching,omitempty"`
}

// hubEnv is what every hub shares.
type hubEnv struct {
	mirror     *Mirror
	journals   *JournalManager
	rosters    *RosterStore
	metrics    *ActionMetrics
	pitchLimit int
	debug      bool
}

// GameHub owns the live session of one game. It is the only goroutine that
// touches the session, the meta and the client set.
type GameHub struct {
	gameId string
	env    *hubEnv
	hm     *HubManager

	clients    map[*wsClient]bool
	requests   chan HubRequest
	register   chan *wsClient
	unregister chan *wsClient
	quit       chan struct{}
	done       chan struct{}
	quitOnce   sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	meta    GameMeta
	session *ingame.Session
	roster  ingame.Roster
}

func newHub(gameId string, env *hubEnv, hm *HubManager) *GameHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &GameHub{
		gameId:     gameId,
		env:        env,
		hm:         hm,
		clients:    make(map[*wsClient]bool),
		requests:   make(chan HubRequest, 64),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (h *GameHub) run() {
	defer close(h.done)
	idleTimer := time.NewTicker(hubIdleTimeout)
	defer idleTimer.Stop()

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
			}
		case req := <-h.requests:
			h.handle(req)
		case <-idleTimer.C:
			if len(h.clients) == 0 && h.hm.removeIfCurrent(h) {
				h.shutdown()
				return
			}
		case <-h.quit:
			h.shutdown()
			return
		}
	}
}

func (h *GameHub) stop() {
	h.quitOnce.Do(func() { close(h.quit) })
	<-h.done
}

func (h *GameHub) shutdown() {
	h.cancel()
	for client := range h.clients {
		client.closeSend()
		delete(h.clients, client)
	}
	if err := h.env.journals.Close(h.gameId); err != nil {
		log.Printf("[JOURNAL] Closing %s: %v", h.gameId, err)
	}
	if h.env.debug {
		log.Printf("[HUB] Closed hub for game %s", h.gameId)
	}
}

// call sends req to the hub and waits for the reply. It never blocks on a full
// queue: errHubBusy is returned instead.
func (h *GameHub) call(ctx context.Context, req HubRequest) (HubResponse, error) {
	req.Reply = make(chan HubResponse, 1)
	select {
	case <-h.done:
		return HubResponse{}, errHubClosed
	default:
	}
	select {
	case h.requests <- req:
	default:
		return HubResponse{}, errHubBusy
	}
	select {
	case resp := <-req.Reply:
		return resp, nil
	case <-h.done:
		return HubResponse{}, errHubClosed
	case <-ctx.Done():
		return HubResponse{}, ctx.Err()
	}
}

func (h *GameHub) reply(req HubRequest, data any, err error) {
	if req.Reply != nil {
		req.Reply <- HubResponse{Data: data, Error: err}
	}
}

func (h *GameHub) handle(req HubRequest) {
	if err := h.ensureLoaded(); err != nil {
		if req.Client != nil {
			req.Client.sendJSON(Message{Type: MsgTypeError, Error: "Server error loading game"})
		}
		h.reply(req, nil, err)
		return
	}
	access := GetGameAccess(req.UserId, h.meta, h.env.rosters)
	want := AccessRead
	switch req.Type {
	case ReqTypeAction:
		want = AccessWrite
	case ReqTypeDelete:
		want = AccessAdmin
	}
	if err := requireAccess(req.UserId, "game "+h.gameId, access, want); err != nil {
		if req.Client != nil {
			req.Client.sendJSON(Message{Type: MsgTypeError, Error: "Forbidden: You do not have access to this game"})
		}
		h.reply(req, nil, err)
		return
	}

	switch req.Type {
	case ReqTypeWSJoin:
		if req.Client != nil && h.clients[req.Client] {
			h.handleWSJoin(req.Client, req.Message)
		}
	case ReqTypeAction:
		data, err := h.handleAction(req)
		h.reply(req, data, err)
	case ReqTypeState:
		h.reply(req, GameState{Meta: h.meta, Started: h.session.Started(), Snapshot: h.session.Snapshot()}, nil)
	case ReqTypeReview:
		h.reply(req, h.reviewState(), nil)
	case ReqTypeAnnounce:
		data, err := h.announce(req.Position)
		h.reply(req, data, err)
	case ReqTypeTransitions:
		data, err := h.transitions(req.From, req.Limit)
		h.reply(req, data, err)
	case ReqTypeDelete:
		h.reply(req, nil, h.deleteGame())
	default:
		h.reply(req, nil, fmt.Errorf("unknown request type %q", req.Type))
	}
}

// ensureLoaded rehydrates the session from the mirror the first time the hub needs
// it. A game the mirror does not know starts empty.
func (h *GameHub) ensureLoaded() error {
	if h.session != nil {
		return nil
	}
	meta, snap, err := h.env.mirror.LoadGame(h.ctx, h.gameId, h.env.pitchLimit)
	if errors.Is(err, os.ErrNotExist) {
		h.meta = GameMeta{ID: h.gameId, SchemaVersion: CurrentSchemaVersion}
		h.meta.normalize(h.env.pitchLimit)
		h.roster = ingame.MapRoster{}
		h.session = ingame.NewSession(h.roster, h.meta.PitchLimit)
		return nil
	}
	if err != nil {
		log.Printf("[HUB] Error loading game %s: %v", h.gameId, err)
		return err
	}

	var roster ingame.Roster = snapshotRoster(snap)
	if meta.TeamID != "" {
		r, err := h.env.rosters.RosterFor(meta.TeamID)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Printf("[HUB] Team %s of game %s is gone, using the players of the game", meta.TeamID, h.gameId)
		case err != nil:
			log.Printf("[HUB] Error loading roster %s of game %s: %v", meta.TeamID, h.gameId, err)
			return err
		default:
			roster = r
		}
	}
	s, err := ingame.RestoreSession(roster, snap)
	if err != nil {
		log.Printf("[HUB] Error restoring game %s: %v", h.gameId, err)
		return err
	}
	h.meta = meta
	h.roster = roster
	h.session = s
	h.syncMeta()
	if h.env.debug {
		log.Printf("[HUB] Restored game %s at seq %d", h.gameId, s.Seq())
	}
	return nil
}

// snapshotRoster lists every player a snapshot refers to, by id only. Games
// mirrored without a team load against it.
func snapshotRoster(snap ingame.Snapshot) ingame.MapRoster {
	r := ingame.MapRoster{}
	add := func(id string) {
		if id != "" {
			r[id] = ingame.Player{ID: id}
		}
	}
	for i := range snap.Batting {
		add(snap.Batting[i].OccupantID)
		add(snap.StartingBatting[i].OccupantID)
	}
	for _, id := range snap.Assignment {
		add(id)
	}
	for _, id := range snap.StartingAssignment {
		add(id)
	}
	for _, id := range snap.TempRunners {
		add(id)
	}
	for from, l := range snap.Chain {
		add(from)
		add(l.ReplacementID)
	}
	for _, id := range snap.BenchOut {
		add(id)
	}
	return r
}

func (h *GameHub) syncMeta() {
	h.meta.SessionID = h.session.ID
	h.meta.Seq = h.session.Seq()
	h.meta.BattingHalf = h.session.Score.BattingHalf
	h.meta.PitchLimit = h.session.Pitches.Limit
}

func (h *GameHub) head() *ingame.Review {
	if r, ok := h.session.PendingReview(); ok {
		return &r
	}
	return nil
}

func (h *GameHub) reviewState() ReviewState {
	pending := h.session.PendingReviews()
	if pending == nil {
		pending = []ingame.Review{}
	}
	return ReviewState{Head: h.head(), Pending: pending}
}

func (h *GameHub) handleAction(req HubRequest) (*ActionResult, error) {
	start := time.Now()
	a, err := decodeAction(req.Action)
	if err != nil {
		h.env.metrics.Record(req.Action.Type, 0, err)
		return nil, err
	}

	var tr ingame.Transition
	if gs, ok := a.(*gameStartAction); ok {
		tr, err = h.startGame(gs, req.UserId)
	} else {
		tr, err = a.apply(h.session)
	}
	if err != nil {
		h.env.metrics.Record(req.Action.Type, 0, err)
		if h.env.debug {
			log.Printf("[HUB] Rejected %s on game %s: %v", req.Action.Type, h.gameId, err)
		}
		return nil, err
	}

	h.syncMeta()
	h.persist(tr)
	review := h.head()
	h.broadcast(Message{Type: MsgTypeTransition, GameId: h.gameId, Transition: &tr, Review: review})
	h.env.metrics.Record(req.Action.Type, time.Since(start), nil)
	return &ActionResult{Transition: tr, Review: review}, nil
}

// startGame installs the team roster and pitch limit, then starts the game. A
// rejected start leaves the previous roster and limit in place.
func (h *GameHub) startGame(a *gameStartAction, userId string) (ingame.Transition, error) {
	roster, err := h.env.rosters.RosterFor(a.TeamID)
	if errors.Is(err, os.ErrNotExist) {
		return ingame.Transition{}, fmt.Errorf("%w: unknown team %s", ErrBadAction, a.TeamID)
	}
	if err != nil {
		return ingame.Transition{}, err
	}
	limit := a.PitchLimit
	if limit == 0 {
		limit = h.meta.PitchLimit
	}

	prevLimit := h.session.Pitches.Limit
	h.session.Pitches.Limit = limit
	h.session.SetRoster(roster)
	tr, err := a.apply(h.session)
	if err != nil {
		h.session.Pitches.Limit = prevLimit
		h.session.SetRoster(h.roster)
		return ingame.Transition{}, err
	}
	h.roster = roster
	h.meta.TeamID = a.TeamID
	if h.meta.OwnerID == "" {
		h.meta.OwnerID = normalizeEmail(userId)
	}
	return tr, nil
}

// persist journals tr and mirrors the session. Failures are logged and counted;
// the applied transition stands and the next write reconciles the mirror.
func (h *GameHub) persist(tr ingame.Transition) {
	ctx, cancel := context.WithTimeout(h.ctx, persistTimeout)
	defer cancel()

	j, err := h.env.journals.Open(h.gameId)
	if err == nil {
		err = j.Append(tr)
	}
	if err != nil {
		log.Printf("[JOURNAL] Failed to append seq %d of game %s: %v", tr.Seq, h.gameId, err)
		h.env.metrics.RecordFailure("journal")
	}

	n, err := h.env.mirror.SaveGame(ctx, h.meta, h.session.Snapshot())
	if err != nil {
		log.Printf("[MIRROR] Failed to save game %s at seq %d: %v", h.gameId, tr.Seq, err)
		h.env.metrics.RecordFailure("mirror")
	}
	if h.env.debug {
		log.Printf("[HUB] %s seq %d on game %s: %d keys written", tr.Type, tr.Seq, h.gameId, n)
	}
}

func (h *GameHub) announce(raw string) (*Announcement, error) {
	pos, ok := ingame.ParsePosition(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ingame.ErrInvalidPosition, raw)
	}
	id, ok := h.session.OccupantAt(pos)
	if !ok {
		return nil, nil
	}
	a := &Announcement{Position: pos, Player: ingame.Player{ID: id}}
	if p, ok := h.roster.GetByID(id); ok {
		a.Player = p
	}
	if slot, ok := h.session.Lineup.Batting.IndexOf(id); ok {
		a.Slot = &slot
		a.Reason = h.session.Lineup.Batting[slot].Reason
	}
	if starter, ok := h.session.ResolveOriginalStarter(id); ok && starter != id {
		a.OriginalStarter = starter
	}
	if pos == ingame.PosPitcher {
		f := h.session.PitchFigures(id)
		a.Pitching = &f
	}
	return a, nil
}

func (h *GameHub) transitions(from uint64, limit int) ([]JournalEntry, error) {
	j, err := h.env.journals.Open(h.gameId)
	if err != nil {
		return nil, err
	}
	return j.List(from, limit)
}

// deleteGame purges the mirror and the journal. The next request starts an empty game.
func (h *GameHub) deleteGame() error {
	if err := h.env.journals.Remove(h.gameId); err != nil {
		log.Printf("[JOURNAL] %v", err)
		return err
	}
	if err := h.env.mirror.PurgeGame(h.gameId); err != nil {
		log.Printf("[MIRROR] %v", err)
		return err
	}
	h.session = nil
	h.roster = nil
	h.meta = GameMeta{}
	log.Printf("[HUB] Deleted game %s", h.gameId)
	return nil
}

func (h *GameHub) handleWSJoin(c *wsClient, msg Message) {
	if msg.SessionID == "" || msg.SessionID != h.session.ID || msg.LastSeq >= h.session.Seq() {
		c.sendJSON(Message{Type: MsgTypeAck, GameId: h.gameId, SessionID: h.session.ID, LastSeq: h.session.Seq(), Review: h.head()})
		return
	}
	entries, err := h.transitions(msg.LastSeq+1, maxTransitionPage)
	if err != nil {
		log.Printf("[HUB] Error reading journal of game %s: %v", h.gameId, err)
		c.sendJSON(Message{Type: MsgTypeError, Error: "Server error reading journal"})
		return
	}
	c.sendJSON(Message{Type: MsgTypeSyncUpdate, GameId: h.gameId, SessionID: h.session.ID, LastSeq: h.session.Seq(), Entries: entries, Review: h.head()})
}

// broadcast drops clients that cannot keep up.
func (h *GameHub) broadcast(msg Message) {
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			client.closeSend()
			delete(h.clients, client)
		}
	}
}

// HubManager manages the hubs of live games.
type HubManager struct {
	env  *hubEnv
	hubs map[string]*GameHub
	mu   sync.Mutex
}

func NewHubManager(env *hubEnv) *HubManager {
	return &HubManager{
		env:  env,
		hubs: make(map[string]*GameHub),
	}
}

// GetHub returns the hub of a game, starting it if needed.
func (hm *HubManager) GetHub(gameId string) *GameHub {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	if hub, ok := hm.hubs[gameId]; ok {
		return hub
	}
	hub := newHub(gameId, hm.env, hm)
	hm.hubs[gameId] = hub
	go hub.run()
	return hub
}

// Call sends a request to the hub of a game, retrying once if the hub closed
// underneath it.
func (hm *HubManager) Call(ctx context.Context, gameId string, req HubRequest) (HubResponse, error) {
	resp, err := hm.GetHub(gameId).call(ctx, req)
	if errors.Is(err, errHubClosed) {
		resp, err = hm.GetHub(gameId).call(ctx, req)
	}
	return resp, err
}

func (hm *HubManager) removeIfCurrent(h *GameHub) bool {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	if hm.hubs[h.gameId] != h {
		return false
	}
	delete(hm.hubs, h.gameId)
	return true
}

// Count returns the number of live hubs.
func (hm *HubManager) Count() int {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return len(hm.hubs)
}

// CloseAll stops every hub and waits for it to finish its current request.
func (hm *HubManager) CloseAll() {
	hm.mu.Lock()
	hubs := hm.hubs
	hm.hubs = make(map[string]*GameHub)
	hm.mu.Unlock()
	for _, h := range hubs {
		h.stop()
	}
}

// wsClient is a middleman between the websocket connection and the hub.
type wsClient struct {
	hub    *GameHub
	conn   *websocket.Conn
	send   chan Message
	userId string

	mu     sync.Mutex
	closed bool
}

// readPump pumps messages from the websocket connection to the hub.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[HUB] websocket error: %v", err)
			}
			return
		}
		switch msg.Type {
		case MsgTypeJoin:
			select {
			case c.hub.requests <- HubRequest{Type: ReqTypeWSJoin, UserId: c.userId, Client: c, Message: msg}:
			case <-c.hub.done:
				return
			default:
				c.sendJSON(Message{Type: MsgTypeError, Error: "Server is busy"})
			}
		case MsgTypePing:
			c.sendJSON(Message{Type: MsgTypePong})
		default:
			c.sendJSON(Message{Type: MsgTypeError, Error: "Unknown message type"})
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendJSON queues msg without blocking. Messages to a full or closed queue are dropped.
func (c *wsClient) sendJSON(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *wsClient) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ServeWS upgrades the request and subscribes the connection to the game feed.
func ServeWS(hm *HubManager, w http.ResponseWriter, r *http.Request) {
	gameId := r.URL.Query().Get("gameId")
	if !isValidID(gameId) {
		http.Error(w, "Invalid gameId", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[HUB] upgrade: %v", err)
		return
	}

	hub := hm.GetHub(gameId)
	client := &wsClient{hub: hub, conn: conn, send: make(chan Message, 256), userId: getUserID(r)}
	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}
