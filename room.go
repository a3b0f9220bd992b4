// pokerbox live rooms
//
// Each game gets one room, created on the first websocket connection to
// /game/:gameid/ws and reaped after sitting idle for --session-timeout.
//
// - Players are identified by the pokerbox_id cookie
// - A player joins with a display name, then picks a card from the game's deck
// - Everyone sees who has voted, but not what, until a moderator reveals
// - Moderators can reveal, restart the round, and remove players
// - Joining records the game in the player's recent sessions
// - Players who disconnect are dropped from the room after --player-timeout

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

type RoomStatus string

const (
	RoomVoting   RoomStatus = "voting"
	RoomRevealed RoomStatus = "revealed"
)

const storeTimeout = 5 * time.Second

// Messages coming from clients
type ClientMessage struct {
	Type     string `json:"type"`               // "join", "vote", "reveal", "restart", "kick"
	Name     string `json:"name,omitempty"`     // join
	Card     string `json:"card,omitempty"`     // vote, by display value
	TargetID string `json:"targetId,omitempty"` // kick
}

// SessionInfoMessage is sent on connect so the client knows the deck and
// what this cookie may do.
type SessionInfoMessage struct {
	Type        string    `json:"type"` // "session_info"
	PlayerID    string    `json:"playerId"`
	IsModerator bool      `json:"isModerator"`
	Joined      bool      `json:"joined"`
	Name        string    `json:"name,omitempty"`
	GameName    string    `json:"gameName"`
	CreatedBy   string    `json:"createdBy"`
	ScaleType   ScaleType `json:"gameType"`
	Cards       []Card    `json:"cards"`
}

type RoomPlayer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Voted bool   `json:"voted"`
	Card  *Card  `json:"card,omitempty"` // only once revealed
}

// RoomStateMessage is broadcast whenever players, votes or status change.
type RoomStateMessage struct {
	Type    string       `json:"type"` // "room_state"
	Status  RoomStatus   `json:"status"`
	Players []RoomPlayer `json:"players"`
	Average *float64     `json:"average,omitempty"`
}

// SimpleMessage is for generic notifications ("kicked", "closed", "error").
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type roomPlayer struct {
	id   string
	name string
	card *Card
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type clientRequest struct {
	client *Client
	msg    ClientMessage
}

type Room struct {
	game     Game
	sessions *Sessions

	clients map[*Client]bool
	players []roomPlayer
	status  RoomStatus

	// presence counts connects and disconnects per player, so a removal
	// timer can tell whether the player came back after it was armed.
	presence map[string]uint64

	register chan *Client
	unreg    chan *Client
	requests chan clientRequest
	done     chan struct{}

	mu         sync.RWMutex
	closeOnce  sync.Once
	lastActive time.Time
}

func newRoom(g Game, sessions *Sessions) *Room {
	return &Room{
		game:       g,
		sessions:   sessions,
		clients:    make(map[*Client]bool),
		presence:   make(map[string]uint64),
		status:     RoomVoting,
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		requests:   make(chan clientRequest),
		done:       make(chan struct{}),
		lastActive: time.Now(),
	}
}

func (h *Room) run(cfg *Config) {
	for {
		select {
		case <-h.done:
			return

		case c := <-h.register:
			h.mu.Lock()
			h.lastActive = time.Now()
			h.clients[c] = true
			h.presence[c.playerID]++

			info := SessionInfoMessage{
				Type:        "session_info",
				PlayerID:    c.playerID,
				IsModerator: h.game.moderatedBy(c.playerID),
				GameName:    h.game.Name,
				CreatedBy:   h.game.CreatedBy,
				ScaleType:   h.game.ScaleType,
				Cards:       h.game.Cards,
			}
			if p := h.playerLocked(c.playerID); p != nil {
				info.Joined = true
				info.Name = p.name
			}
			h.sendLocked(c, info)
			h.broadcastStateLocked()
			h.mu.Unlock()

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()

			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.presence[c.playerID]++
			seen := h.presence[c.playerID]
			h.mu.Unlock()

			go h.scheduleRemoval(c.playerID, seen, cfg.playerTimeout)

		case req := <-h.requests:
			switch req.msg.Type {
			case "join":
				h.handleJoin(cfg, req)
			case "vote":
				h.handleVote(req)
			case "reveal", "restart", "kick":
				h.handleModCommand(cfg, req)
			}
		}
	}
}

func (h *Room) playerLocked(id string) *roomPlayer {
	for i := range h.players {
		if h.players[i].id == id {
			return &h.players[i]
		}
	}
	return nil
}

// sendLocked queues msg for c, dropping the client if it cannot keep up.
func (h *Room) sendLocked(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Room) stateLocked() RoomStateMessage {
	msg := RoomStateMessage{
		Type:    "room_state",
		Status:  h.status,
		Players: make([]RoomPlayer, 0, len(h.players)),
	}

	var sum float64
	var counted int

	for _, p := range h.players {
		rp := RoomPlayer{
			ID:    p.id,
			Name:  p.name,
			Voted: p.card != nil,
		}

		if h.status == RoomRevealed && p.card != nil {
			card := *p.card
			rp.Card = &card

			if v, ok := card.score(h.game.ScaleType); ok {
				sum += v
				counted++
			}
		}

		msg.Players = append(msg.Players, rp)
	}

	if counted > 0 {
		avg := sum / float64(counted)
		msg.Average = &avg
	}

	return msg
}

func (h *Room) broadcastStateLocked() {
	msg := h.stateLocked()
	for client := range h.clients {
		h.sendLocked(client, msg)
	}
}

// scheduleRemoval waits for d, and drops the player from the room unless they
// connected again since seen was recorded.
func (h *Room) scheduleRemoval(playerID string, seen uint64, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-h.done:
		return
	case <-timer.C:
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.presence[playerID] != seen {
		return
	}

	for client := range h.clients {
		if client.playerID == playerID {
			return
		}
	}

	if h.removePlayerLocked(playerID) {
		h.broadcastStateLocked()
	}
}

func (h *Room) removePlayerLocked(playerID string) bool {
	for i, p := range h.players {
		if p.id == playerID {
			h.players = append(h.players[:i], h.players[i+1:]...)
			return true
		}
	}
	return false
}

func (h *Room) handleJoin(cfg *Config, req clientRequest) {
	c := req.client
	name := cleanPlayerName(req.msg.Name)

	if name == "" || c.playerID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	err := h.sessions.Join(ctx, h.game.ID, c.playerID, name)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	if err != nil {
		logf(cfg, "GAMES: Failed to record %q joining %s: %v", name, h.game.ID, err)
		h.sendLocked(c, SimpleMessage{
			Type:    "error",
			Message: "Unable to join this session right now. Please try again.",
		})
		return
	}

	if p := h.playerLocked(c.playerID); p != nil {
		p.name = name
	} else {
		h.players = append(h.players, roomPlayer{id: c.playerID, name: name})
		logf(cfg, "GAMES: Player %q joined %s", name, h.game.ID)
	}

	h.broadcastStateLocked()
}

func (h *Room) handleVote(req clientRequest) {
	c := req.client

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	if h.status != RoomVoting {
		return
	}

	p := h.playerLocked(c.playerID)
	if p == nil {
		return
	}

	if req.msg.Card == "" {
		p.card = nil
		h.broadcastStateLocked()
		return
	}

	for _, card := range h.game.Cards {
		if card.DisplayValue == req.msg.Card {
			picked := card
			p.card = &picked
			h.broadcastStateLocked()
			return
		}
	}

	h.sendLocked(c, SimpleMessage{
		Type:    "error",
		Message: "That card is not part of this session.",
	})
}

// handleModCommand processes reveal, restart and kick. Anyone else's
// commands are ignored.
func (h *Room) handleModCommand(cfg *Config, req clientRequest) {
	c := req.client
	msg := req.msg

	if !h.game.moderatedBy(c.playerID) {
		h.mu.Lock()
		h.sendLocked(c, SimpleMessage{
			Type:    "error",
			Message: "Only a moderator can do that.",
		})
		h.mu.Unlock()
		return
	}

	if msg.Type == "kick" && msg.TargetID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err := h.sessions.Kick(ctx, h.game, c.playerID, msg.TargetID)
		cancel()
		if err != nil {
			logf(cfg, "GAMES: Failed to remove %s from %s: %v", msg.TargetID, h.game.ID, err)
			return
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	switch msg.Type {
	case "reveal":
		h.status = RoomRevealed
		logf(cfg, "GAMES: Revealed cards in %s", h.game.ID)

	case "restart":
		h.status = RoomVoting
		for i := range h.players {
			h.players[i].card = nil
		}
		logf(cfg, "GAMES: Restarted round in %s", h.game.ID)

	case "kick":
		if !h.removePlayerLocked(msg.TargetID) {
			return
		}

		for client := range h.clients {
			if client.playerID == msg.TargetID {
				select {
				case client.send <- SimpleMessage{
					Type:    "kicked",
					Message: "You have been removed by the moderator.",
				}:
				default:
				}
				delete(h.clients, client)
				close(client.send)
			}
		}
		logf(cfg, "GAMES: Removed player %s from %s", msg.TargetID, h.game.ID)
	}

	h.broadcastStateLocked()
}

// closeAll tells every client the room is gone and stops the room.
func (h *Room) closeAll(reason string) {
	h.closeOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		defer h.mu.Unlock()

		for c := range h.clients {
			select {
			case c.send <- SimpleMessage{Type: "closed", Message: reason}:
			default:
			}
			close(c.send)
			delete(h.clients, c)
		}
	})
}

// RoomManager holds one room per game ID.
type RoomManager struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	idleTimeout time.Duration
}

func newRoomManager(ctx context.Context, idleTimeout time.Duration) *RoomManager {
	rm := &RoomManager{
		rooms:       make(map[string]*Room),
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go rm.reaperLoop(ctx)
	}
	return rm
}

// getRoom returns the open room for gameID, opening one if the game still
// exists. The lookup happens under rm.mu, so a concurrent delete either sees
// the new room and closes it, or this finds the game already gone.
func (rm *RoomManager) getRoom(ctx context.Context, cfg *Config, sessions *Sessions, gameID string) (*Room, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if room, ok := rm.rooms[gameID]; ok {
		return room, nil
	}

	g, err := sessions.Get(ctx, gameID)
	if err != nil {
		return nil, err
	}

	room := newRoom(g, sessions)
	rm.rooms[g.ID] = room
	go room.run(cfg)
	return room, nil
}

// close shuts down the room for gameID, if one is open.
func (rm *RoomManager) close(gameID string) {
	rm.mu.Lock()
	room, ok := rm.rooms[gameID]
	delete(rm.rooms, gameID)
	rm.mu.Unlock()

	if ok {
		room.closeAll("This session has been deleted.")
	}
}

func (rm *RoomManager) closeAll() {
	rm.mu.Lock()
	rooms := rm.rooms
	rm.rooms = make(map[string]*Room)
	rm.mu.Unlock()

	for _, room := range rooms {
		room.closeAll("The server is shutting down.")
	}
}

// reaperLoop periodically removes rooms that have been idle longer than idleTimeout.
func (rm *RoomManager) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(rm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rm.closeAll()
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-rm.idleTimeout)

		rm.mu.Lock()
		for id, room := range rm.rooms {
			room.mu.RLock()
			last := room.lastActive
			room.mu.RUnlock()

			if last.Before(cutoff) {
				delete(rm.rooms, id)
				go room.closeAll("This session was closed after being idle.")
			}
		}
		rm.mu.Unlock()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// serveRoomWS picks the room based on :gameid.
func serveRoomWS(cfg *Config, sessions *Sessions, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room, err := rm.getRoom(r.Context(), cfg, sessions, ps.ByName("gameid"))
		if errors.Is(err, ErrGameNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "unable to load session", http.StatusInternalServerError)
			return
		}

		playerID := getOrSetPlayerID(cfg, w, r)

		conn, err := upgrader.Upgrade(w, r, w.Header())
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 16),
			playerID: playerID,
		}

		select {
		case room.register <- client:
		case <-room.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(room)
	}
}

func (c *Client) readPump(h *Room) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "join", "vote", "reveal", "restart", "kick":
			select {
			case h.requests <- clientRequest{client: c, msg: msg}:
			case <-h.done:
				return
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
