package main

import (
	"fmt"
	"sync"
	"time"
)

// Submissions above this length are rejected outright, regardless of the
// per-game char_limit setting (which is advisory and enforced client-side).
const maxSubmissionLength = 5000

type roomState int

const (
	stateNotStarted roomState = iota
	stateInProgress
	stateCompleted
)

// Player holds the data we store server-side. Join order is the
// position in Room.players and doubles as the rotation order.
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Turn is one player's contribution to one origin's story in one round.
type Turn struct {
	Text        string `json:"text"`
	Contributor string `json:"contributor"`
	Round       int    `json:"round"`
}

// Settings are provided by whoever starts the game. TimeLimit and
// CharLimit are forwarded to clients verbatim; only Rounds drives the
// state machine.
type Settings struct {
	Rounds    int `json:"rounds"`
	TimeLimit int `json:"time_limit"`
	CharLimit int `json:"char_limit"`
}

// submission is a turn text waiting to become the next prompt for its
// destination player.
type submission struct {
	origin string
	text   string
}

type Room struct {
	code string

	mu      sync.Mutex
	clients map[*Client]bool
	players []Player
	state   roomState
	round   int
	// order is the roster frozen at round start; rotation and submitter
	// validation run against it, never against the live roster.
	order     []string
	stories   map[string][]Turn
	pending   map[string]submission
	submitted map[string]bool
	settings  Settings

	createdAt  time.Time
	lastActive time.Time
}

func newRoom(code string) *Room {
	now := time.Now()
	return &Room{
		code:       code,
		clients:    make(map[*Client]bool),
		stories:    make(map[string][]Turn),
		pending:    make(map[string]submission),
		submitted:  make(map[string]bool),
		createdAt:  now,
		lastActive: now,
	}
}

// exportJob is a snapshot handed to the Exporter after the room lock has
// been released, so slow archival never stalls gameplay.
type exportJob struct {
	code    string
	players []Player
	stories map[string][]Turn
	label   string
}

// nextInOrder returns the successor of id in the frozen rotation order,
// wrapping past the last entry to the first. The second return is false
// when id is not part of the order.
func nextInOrder(order []string, id string) (string, bool) {
	for i, pid := range order {
		if pid == id {
			return order[(i+1)%len(order)], true
		}
	}
	return "", false
}

// join adds a connected client to the roster and announces the new player
// list. Rejoining with an id already on the roster is a no-op.
func (r *Room) join(c *Client, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActive = time.Now()
	r.clients[c] = true

	for _, p := range r.players {
		if p.ID == c.playerID {
			return
		}
	}

	r.players = append(r.players, Player{ID: c.playerID, Name: name})

	r.broadcastLocked(playerListMessage{
		Type:    "player_list",
		Players: r.playerListLocked(),
	})
	r.sendLocked(c, joinedMessage{
		Type: "joined",
		ID:   c.playerID,
		Name: name,
		Room: r.code,
	})
}

// start transitions NotStarted (or Completed, for a fresh game in the same
// room) to InProgress, seeds one empty story per player, and prompts each
// player to begin their own story.
func (r *Room) start(settings Settings) *gameError {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActive = time.Now()

	if r.state == stateInProgress {
		return errAlreadyStarted
	}
	if len(r.players) == 0 {
		return errNoPlayers
	}

	if settings.Rounds <= 0 {
		settings.Rounds = len(r.players)
	}

	r.settings = settings
	r.state = stateInProgress
	r.round = 0
	r.pending = make(map[string]submission)
	r.submitted = make(map[string]bool)
	r.stories = make(map[string][]Turn, len(r.players))
	r.order = make([]string, 0, len(r.players))
	for _, p := range r.players {
		r.stories[p.ID] = []Turn{}
		r.order = append(r.order, p.ID)
	}

	r.broadcastLocked(gameStartedMessage{
		Type:     "game_started",
		Settings: r.settings,
	})

	// Each player starts by authoring their own story.
	for _, p := range r.players {
		r.sendToLocked(p.ID, promptMessage{
			Type:   "prompt",
			Round:  r.round,
			Text:   "",
			Origin: p.ID,
		})
	}

	return nil
}

// submit records one turn for the given origin story, routes the text to
// the submitter's successor, and advances the round once every live player
// has submitted. The returned exportJob, if any, must be run after this
// call returns.
func (r *Room) submit(c *Client, origin, text string) (*exportJob, *gameError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActive = time.Now()

	if r.state != stateInProgress {
		return nil, errNotStarted
	}
	if origin == "" || len(text) > maxSubmissionLength {
		return nil, errInvalidInput
	}

	// A second submission for the same (origin, round) changes nothing.
	for _, t := range r.stories[origin] {
		if t.Round == r.round {
			return nil, errDuplicateSubmission
		}
	}

	dest, ok := nextInOrder(r.order, c.playerID)
	if !ok {
		return nil, errUnknownPlayer
	}

	r.stories[origin] = append(r.stories[origin], Turn{
		Text:        text,
		Contributor: c.playerID,
		Round:       r.round,
	})
	r.pending[dest] = submission{origin: origin, text: text}
	r.submitted[c.playerID] = true

	// Acknowledged to the submitter only; nobody else changes state.
	r.sendLocked(c, submittedMessage{
		Type: "round_submitted",
		From: c.playerID,
		To:   dest,
	})

	if r.roundCompleteLocked() {
		return r.advanceLocked(), nil
	}
	return nil, nil
}

// roundCompleteLocked reports whether every live player eligible to submit
// this round has done so. Players who joined mid-round are not part of the
// frozen order and cannot submit, so they are not waited on. Assumes r.mu
// is held.
func (r *Room) roundCompleteLocked() bool {
	if r.state != stateInProgress {
		return false
	}

	inOrder := make(map[string]bool, len(r.order))
	for _, id := range r.order {
		inOrder[id] = true
	}

	eligible := 0
	for _, p := range r.players {
		if !inOrder[p.ID] {
			continue
		}
		eligible++
		if !r.submitted[p.ID] {
			return false
		}
	}
	return eligible > 0
}

// removePlayer drops a player from the roster and rebroadcasts the player
// list. Any pending submission addressed to the departed player is dropped,
// and the completion threshold is re-checked against the shrunken roster so
// a round never waits on a submission that can no longer arrive. Returns
// whether the room is now empty, plus any export triggered by an advance.
func (r *Room) removePlayer(playerID string) (bool, *exportJob) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActive = time.Now()

	found := false
	dst := r.players[:0]
	for _, p := range r.players {
		if p.ID == playerID {
			found = true
			continue
		}
		dst = append(dst, p)
	}
	r.players = dst

	for c := range r.clients {
		if c.playerID == playerID {
			delete(r.clients, c)
		}
	}

	if !found {
		return len(r.players) == 0, nil
	}

	delete(r.pending, playerID)

	r.broadcastLocked(playerListMessage{
		Type:    "player_list",
		Players: r.playerListLocked(),
	})

	var job *exportJob
	if r.roundCompleteLocked() {
		job = r.advanceLocked()
	}

	return len(r.players) == 0, job
}

// advanceLocked runs the round transition. On the final round it reveals
// the finished stories and completes the game; otherwise it turns each
// pending submission into the next round's prompt for its destination.
// Assumes r.mu is held.
func (r *Room) advanceLocked() *exportJob {
	if r.round+1 >= r.settings.Rounds {
		r.broadcastLocked(resultsMessage{
			Type:    "results",
			Stories: r.storiesCopyLocked(),
			Players: r.playerListLocked(),
		})

		job := r.exportJobLocked("")

		r.state = stateCompleted
		r.pending = make(map[string]submission)
		r.submitted = make(map[string]bool)
		r.settings = Settings{}
		r.order = nil

		return job
	}

	job := r.exportJobLocked(fmt.Sprintf("round%d", r.round+1))

	next := r.pending
	r.pending = make(map[string]submission)
	r.submitted = make(map[string]bool)
	r.round++
	r.order = r.order[:0]
	for _, p := range r.players {
		r.order = append(r.order, p.ID)
	}

	for _, p := range r.players {
		payload, ok := next[p.ID]
		if !ok {
			// Roster changed mid-round; let the player continue their
			// own story rather than stall.
			payload = submission{origin: p.ID}
		}
		r.sendToLocked(p.ID, promptMessage{
			Type:   "prompt",
			Round:  r.round,
			Text:   payload.text,
			Origin: payload.origin,
		})
	}

	return job
}

func (r *Room) hasPlayer(playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.players {
		if p.ID == playerID {
			return true
		}
	}
	return false
}

func (r *Room) playerListLocked() []Player {
	players := make([]Player, len(r.players))
	copy(players, r.players)
	return players
}

func (r *Room) storiesCopyLocked() map[string][]Turn {
	stories := make(map[string][]Turn, len(r.stories))
	for origin, turns := range r.stories {
		stories[origin] = append([]Turn(nil), turns...)
	}
	return stories
}

func (r *Room) exportJobLocked(label string) *exportJob {
	return &exportJob{
		code:    r.code,
		players: r.playerListLocked(),
		stories: r.storiesCopyLocked(),
		label:   label,
	}
}

func (r *Room) broadcastLocked(msg any) {
	for client := range r.clients {
		select {
		case client.send <- msg:
		default:
			// Stalled client; drop it from the room and let its own
			// read loop tear the connection down.
			delete(r.clients, client)
		}
	}
}

func (r *Room) sendToLocked(playerID string, msg any) {
	for client := range r.clients {
		if client.playerID != playerID {
			continue
		}
		r.sendLocked(client, msg)
	}
}

func (r *Room) sendLocked(c *Client, msg any) {
	if !r.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
		delete(r.clients, c)
	}
}

// closeAll disconnects all clients of this room (used by the reaper).
// Closing the connections unwinds each client's read loop, which owns the
// rest of the teardown.
func (r *Room) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for c := range r.clients {
		_ = c.conn.Close()
		delete(r.clients, c)
	}
}
