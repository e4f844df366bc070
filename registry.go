package main

import (
	"crypto/rand"
	"sync"
	"time"
)

const roomCodeLength = 6

// Registry holds the set of active rooms keyed by room code, so each code
// is its own isolated session. Its lock covers only the map and code
// generation; every room serializes its own state independently.
type Registry struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	idleTimeout time.Duration
}

func newRegistry(idleTimeout time.Duration) *Registry {
	reg := &Registry{
		rooms:       make(map[string]*Room),
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go reg.reaperLoop()
	}
	return reg
}

// create registers a new room. A requested code is honored when it is
// well-formed and free; otherwise a fresh random code is generated,
// retrying under the registry lock until unique.
func (reg *Registry) create(requestedCode string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	code := normalizeRoomCode(requestedCode)
	if code == "" || reg.rooms[code] != nil {
		code = reg.newRoomCodeLocked()
	}

	room := newRoom(code)
	reg.rooms[code] = room
	return room
}

func (reg *Registry) byCode(code string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return reg.rooms[normalizeRoomCode(code)]
}

// byPlayer scans active rooms for the one holding playerID. Players are
// not pre-bound to a room id, so every post-join event resolves its room
// this way.
func (reg *Registry) byPlayer(playerID string) *Room {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.Unlock()

	for _, room := range rooms {
		if room.hasPlayer(playerID) {
			return room
		}
	}
	return nil
}

// removePlayer drops the player from whichever room holds them and tears
// the room down once its roster is empty. Returns any export triggered by
// a round advancing on the shrunken roster.
func (reg *Registry) removePlayer(playerID string) *exportJob {
	room := reg.byPlayer(playerID)
	if room == nil {
		return nil
	}

	empty, job := room.removePlayer(playerID)
	if empty {
		reg.mu.Lock()
		if reg.rooms[room.code] == room {
			delete(reg.rooms, room.code)
		}
		reg.mu.Unlock()
	}
	return job
}

// newRoomCodeLocked generates a crypto-random room code and ensures it
// doesn't collide with an existing room. Assumes reg.mu is held.
func (reg *Registry) newRoomCodeLocked() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	for {
		buf := make([]byte, roomCodeLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, roomCodeLength)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		code := string(out)

		if reg.rooms[code] == nil {
			return code
		}
	}
}

// normalizeRoomCode uppercases a caller-supplied code and rejects anything
// that isn't exactly six alphanumerics.
func normalizeRoomCode(code string) string {
	if len(code) != roomCodeLength {
		return ""
	}
	out := make([]byte, roomCodeLength)
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c >= 'a' && c <= 'z':
			c -= 'a' - 'A'
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		default:
			return ""
		}
		out[i] = c
	}
	return string(out)
}

// reaperLoop periodically removes rooms that have been idle longer than
// idleTimeout.
func (reg *Registry) reaperLoop() {
	ticker := time.NewTicker(reg.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-reg.idleTimeout)

		reg.mu.Lock()
		for code, room := range reg.rooms {
			room.mu.Lock()
			last := room.lastActive
			room.mu.Unlock()

			if last.Before(cutoff) {
				delete(reg.rooms, code)
				go room.closeAll()
			}
		}
		reg.mu.Unlock()
	}
}
