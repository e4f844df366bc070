package main

import (
	"testing"
)

func TestCreateGeneratesWellFormedUniqueCodes(t *testing.T) {
	reg := newRegistry(0)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		room := reg.create("")
		if len(room.code) != roomCodeLength {
			t.Fatalf("code %q has length %d, want %d", room.code, len(room.code), roomCodeLength)
		}
		if normalizeRoomCode(room.code) != room.code {
			t.Fatalf("code %q is not normalized uppercase alphanumeric", room.code)
		}
		if seen[room.code] {
			t.Fatalf("code %q issued twice", room.code)
		}
		seen[room.code] = true
	}
}

func TestCreateHonorsRequestedCode(t *testing.T) {
	reg := newRegistry(0)

	room := reg.create("abc123")
	if room.code != "ABC123" {
		t.Fatalf("code = %q, want requested code upcased", room.code)
	}

	// A taken code must be regenerated, never reused.
	other := reg.create("ABC123")
	if other.code == "ABC123" {
		t.Fatal("registry reissued a taken code")
	}
	if reg.byCode("ABC123") != room {
		t.Fatal("original room lost after collision")
	}
}

func TestCreateIgnoresMalformedRequestedCode(t *testing.T) {
	for _, requested := range []string{"ab", "abcdefg", "ab 123", "abc-12"} {
		reg := newRegistry(0)
		room := reg.create(requested)
		if normalizeRoomCode(room.code) != room.code {
			t.Fatalf("create(%q) produced malformed code %q", requested, room.code)
		}
	}
}

func TestByCodeIsCaseInsensitive(t *testing.T) {
	reg := newRegistry(0)
	room := reg.create("XYZ789")

	if reg.byCode("xyz789") != room {
		t.Fatal("lowercase lookup missed the room")
	}
	if reg.byCode("NOPE99") != nil {
		t.Fatal("lookup invented a room")
	}
}

func TestByPlayerFindsOwningRoom(t *testing.T) {
	reg := newRegistry(0)

	first := reg.create("")
	first.join(newTestClient("p1"), "One")

	second := reg.create("")
	second.join(newTestClient("p2"), "Two")

	if got := reg.byPlayer("p1"); got != first {
		t.Fatalf("byPlayer(p1) = %v, want the first room", got)
	}
	if got := reg.byPlayer("p2"); got != second {
		t.Fatalf("byPlayer(p2) = %v, want the second room", got)
	}
	if reg.byPlayer("stranger") != nil {
		t.Fatal("byPlayer found a room for an unknown player")
	}
}

func TestRemovePlayerTearsDownEmptyRoom(t *testing.T) {
	reg := newRegistry(0)

	room := reg.create("")
	room.join(newTestClient("p1"), "One")
	room.join(newTestClient("p2"), "Two")

	reg.removePlayer("p1")
	if reg.byCode(room.code) != room {
		t.Fatal("room torn down while a player remained")
	}

	reg.removePlayer("p2")
	if reg.byCode(room.code) != nil {
		t.Fatal("empty room not torn down")
	}
}

func TestRemoveUnknownPlayerIsNoOp(t *testing.T) {
	reg := newRegistry(0)
	room := reg.create("")
	room.join(newTestClient("p1"), "One")

	if job := reg.removePlayer("stranger"); job != nil {
		t.Fatal("removing an unknown player produced an export")
	}
	if reg.byCode(room.code) != room {
		t.Fatal("room disappeared on unknown-player removal")
	}
}

func TestNormalizeRoomCode(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"abc123", "ABC123"},
		{"ABC123", "ABC123"},
		{"ab", ""},
		{"abcdefg", ""},
		{"abc?12", ""},
		{"", ""},
	}

	for _, tc := range cases {
		if got := normalizeRoomCode(tc.in); got != tc.want {
			t.Fatalf("normalizeRoomCode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
