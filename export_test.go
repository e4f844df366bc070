package main

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestExportWritesOneTranscriptPerOrigin(t *testing.T) {
	fs := afero.NewMemMapFs()
	exporter := newFileExporter(fs, "stories")

	players := []Player{
		{ID: "p1", Name: "Ada"},
		{ID: "p2", Name: "Grace"},
	}
	stories := map[string][]Turn{
		"p1": {
			{Text: "Once upon a time.", Contributor: "p1", Round: 0},
			{Text: "It got worse.", Contributor: "p2", Round: 1},
		},
		"p2": {
			{Text: "In a land far away.", Contributor: "p2", Round: 0},
		},
	}

	if err := exporter.Export("ABC123", players, stories, ""); err != nil {
		t.Fatalf("Export returned error: %v", err)
	}

	data, err := afero.ReadFile(fs, "stories/story_ABC123_Ada_p1.txt")
	if err != nil {
		t.Fatalf("transcript for p1 missing: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "Story for Ada (p1) in room ABC123") {
		t.Fatalf("transcript header wrong:\n%s", text)
	}
	if !strings.Contains(text, "Round 1:\nOnce upon a time.") {
		t.Fatalf("transcript missing first turn:\n%s", text)
	}
	if !strings.Contains(text, "Round 2:\nIt got worse.") {
		t.Fatalf("transcript missing second turn:\n%s", text)
	}

	if _, err := afero.ReadFile(fs, "stories/story_ABC123_Grace_p2.txt"); err != nil {
		t.Fatalf("transcript for p2 missing: %v", err)
	}
}

func TestExportScopesFilenamesByRoomAndOrigin(t *testing.T) {
	fs := afero.NewMemMapFs()
	exporter := newFileExporter(fs, "stories")

	players := []Player{{ID: "p1", Name: "Ada"}}
	stories := map[string][]Turn{
		"p1": {{Text: "one", Contributor: "p1", Round: 0}},
	}

	if err := exporter.Export("AAAAAA", players, stories, ""); err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	if err := exporter.Export("BBBBBB", players, stories, ""); err != nil {
		t.Fatalf("Export returned error: %v", err)
	}

	for _, path := range []string{
		"stories/story_AAAAAA_Ada_p1.txt",
		"stories/story_BBBBBB_Ada_p1.txt",
	} {
		if _, err := fs.Stat(path); err != nil {
			t.Fatalf("expected %s to exist: %v", path, err)
		}
	}
}

func TestExportCheckpointCarriesLabel(t *testing.T) {
	fs := afero.NewMemMapFs()
	exporter := newFileExporter(fs, "stories")

	players := []Player{{ID: "p1", Name: "Ada"}}
	stories := map[string][]Turn{
		"p1": {{Text: "one", Contributor: "p1", Round: 0}},
	}

	if err := exporter.Export("ABC123", players, stories, "round1"); err != nil {
		t.Fatalf("Export returned error: %v", err)
	}

	if _, err := fs.Stat("stories/story_ABC123_Ada_p1_round1.txt"); err != nil {
		t.Fatalf("checkpoint transcript missing: %v", err)
	}
}

func TestExportFallsBackToOriginForUnknownPlayers(t *testing.T) {
	fs := afero.NewMemMapFs()
	exporter := newFileExporter(fs, "stories")

	stories := map[string][]Turn{
		"ghost": {{Text: "boo", Contributor: "ghost", Round: 0}},
	}

	if err := exporter.Export("ABC123", nil, stories, ""); err != nil {
		t.Fatalf("Export returned error: %v", err)
	}

	if _, err := fs.Stat("stories/story_ABC123_ghost_ghost.txt"); err != nil {
		t.Fatalf("transcript for departed origin missing: %v", err)
	}
}

func TestFilenamePartStripsSeparators(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Ada", "Ada"},
		{"Ada Lovelace", "Ada-Lovelace"},
		{"../../etc/passwd", "etcpasswd"},
		{"snake_case", "snake_case"},
	}

	for _, tc := range cases {
		if got := filenamePart(tc.in); got != tc.want {
			t.Fatalf("filenamePart(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRunExportSwallowsFailures(t *testing.T) {
	exporter := newFileExporter(afero.NewReadOnlyFs(afero.NewMemMapFs()), "stories")

	job := &exportJob{
		code:    "ABC123",
		players: []Player{{ID: "p1", Name: "Ada"}},
		stories: map[string][]Turn{"p1": {{Text: "one", Contributor: "p1", Round: 0}}},
	}

	// Must not panic or propagate; archival failures never reach players.
	runExport(&Config{}, exporter, job)
	runExport(&Config{}, exporter, nil)
}
