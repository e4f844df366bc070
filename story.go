// Storyrelay game
//
// Players join a short-lived room by six-character code. Each round every
// player writes a continuation of a story; submissions rotate one seat
// forward in join order, so every story passes through every player. After
// the configured number of rounds, the assembled stories are revealed to
// the whole room and archived as plain-text transcripts.
//
// Features:
// - Single WebSocket endpoint: /ws; rooms are created/joined by events
// - Random 6-char room codes via crypto/rand, with server-side collision check
// - Players identified by a per-connection id (uuid)
// - Duplicate submissions for the same story and round are rejected
// - Error messages sent only to the offending client
// - Rooms torn down when empty, and auto-reaped after configurable idle timeout
// - Transcripts checkpointed after every round and exported on completion
// - In-browser QR button to share a room join link, backed by go-qrcode

package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/afero"
)

// Messages coming from clients
type clientMessage struct {
	Type     string   `json:"type"`               // "create_room", "join_room", "start_game", "submit_turn"
	Name     string   `json:"name,omitempty"`     // create_room / join_room
	Room     string   `json:"room,omitempty"`     // join_room, optional for create_room
	Origin   string   `json:"origin,omitempty"`   // submit_turn
	Text     string   `json:"text,omitempty"`     // submit_turn
	Settings Settings `json:"settings,omitempty"` // start_game
}

type roomCreatedMessage struct {
	Type string `json:"type"` // "room_created"
	Room string `json:"room"`
}

type playerListMessage struct {
	Type    string   `json:"type"` // "player_list"
	Players []Player `json:"players"`
}

type joinedMessage struct {
	Type string `json:"type"` // "joined"
	ID   string `json:"id"`
	Name string `json:"name"`
	Room string `json:"room"`
}

type gameStartedMessage struct {
	Type     string   `json:"type"` // "game_started"
	Settings Settings `json:"settings"`
}

type promptMessage struct {
	Type   string `json:"type"` // "prompt"
	Round  int    `json:"round"`
	Text   string `json:"text"`
	Origin string `json:"origin"`
}

// Sent to the submitter only, never broadcast, so only the acting player
// flips into a waiting state.
type submittedMessage struct {
	Type string `json:"type"` // "round_submitted"
	From string `json:"from"`
	To   string `json:"to"`
}

type resultsMessage struct {
	Type    string            `json:"type"` // "results"
	Stories map[string][]Turn `json:"stories"`
	Players []Player          `json:"players"`
}

type errorMessage struct {
	Type    string `json:"type"` // "error"
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string

	closeOnce sync.Once
}

// closeSend shuts down the write pump. Safe to call from any of the
// paths that can drop a client.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// sendMessage delivers a message outside any room, e.g. errors before the
// client has joined one.
func (c *Client) sendMessage(msg any) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) sendError(gerr *gameError) {
	c.sendMessage(errorMessage{
		Type:    "error",
		Kind:    gerr.Kind,
		Message: gerr.Message,
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// displayNameLimit caps sanitized names.
const displayNameLimit = 20

// sanitizeName strips a requested display name down to letters, digits,
// underscores, and spaces, truncated to displayNameLimit runes. Names that
// end up empty become "Anonymous".
func sanitizeName(raw string) string {
	var b strings.Builder
	count := 0
	for _, r := range raw {
		if count == displayNameLimit {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ' ':
			b.WriteRune(r)
			count++
		}
	}
	name := strings.TrimSpace(b.String())
	if name == "" {
		return "Anonymous"
	}
	return name
}

// serveWS upgrades the connection, assigns the per-connection player id,
// and pumps messages until the client goes away.
func serveWS(cfg *Config, reg *Registry, exporter Exporter) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			playerID: uuid.NewString(),
		}

		go client.writePump()
		client.readPump(cfg, reg, exporter)
	}
}

func (c *Client) readPump(cfg *Config, reg *Registry, exporter Exporter) {
	defer func() {
		job := reg.removePlayer(c.playerID)
		runExport(cfg, exporter, job)
		c.closeSend()
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil || len(data) > maxSubmissionLength+1024 {
			c.sendError(errInvalidInput)
			continue
		}

		handleMessage(cfg, reg, exporter, c, msg)
	}
}

// handleMessage resolves the event to a room and applies it. Every
// mutation runs under the owning room's lock; exports run after it is
// released.
func handleMessage(cfg *Config, reg *Registry, exporter Exporter, c *Client, msg clientMessage) {
	switch msg.Type {
	case "create_room":
		room := reg.create(msg.Room)
		c.sendMessage(roomCreatedMessage{
			Type: "room_created",
			Room: room.code,
		})
		name := sanitizeName(msg.Name)
		room.join(c, name)
		logf(cfg, "ROOMS: Player %q created %s", name, room.code)

	case "join_room":
		room := reg.byCode(msg.Room)
		if room == nil {
			c.sendError(errRoomNotFound)
			return
		}
		name := sanitizeName(msg.Name)
		room.join(c, name)
		logf(cfg, "ROOMS: Player %q joined %s", name, room.code)

	case "start_game":
		room := reg.byPlayer(c.playerID)
		if room == nil {
			c.sendError(errRoomNotFound)
			return
		}
		if gerr := room.start(msg.Settings); gerr != nil {
			c.sendError(gerr)
			return
		}
		logf(cfg, "ROOMS: Game started in %s", room.code)

	case "submit_turn":
		room := reg.byPlayer(c.playerID)
		if room == nil {
			c.sendError(errRoomNotFound)
			return
		}
		job, gerr := room.submit(c, msg.Origin, msg.Text)
		if gerr != nil {
			c.sendError(gerr)
			return
		}
		runExport(cfg, exporter, job)

	default:
		// ignore unknown types
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

// qrHandler generates a PNG QR code linking straight into a room.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := normalizeRoomCode(ps.ByName("code"))
	if code == "" {
		http.Error(w, "invalid room code", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	url := scheme + "://" + r.Host + "/?room=" + code

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// registerStoryRelay sets up the game routes:
//   - /ws               → WebSocket carrying all game events
//   - /rooms/:code/qr   → PNG QR code linking into that room
func registerStoryRelay(cfg *Config, mux *httprouter.Router) {
	reg := newRegistry(cfg.sessionTimeout)
	exporter := newFileExporter(afero.NewOsFs(), cfg.storyDir)

	mux.GET(cfg.prefix+"/ws", serveWS(cfg, reg, exporter))
	mux.GET(cfg.prefix+"/rooms/:code/qr", qrHandler)
}
