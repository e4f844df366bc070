package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Exporter receives finished or checkpointed transcripts. Failures are the
// exporter's own problem: gameplay never waits on, or fails because of, an
// export.
type Exporter interface {
	Export(roomCode string, players []Player, stories map[string][]Turn, label string) error
}

// fileExporter writes one human-readable transcript per origin player.
// Filenames carry the room code and origin id so concurrently-completing
// rooms can never overwrite each other's stories.
type fileExporter struct {
	fs  afero.Fs
	dir string
}

func newFileExporter(fs afero.Fs, dir string) *fileExporter {
	return &fileExporter{fs: fs, dir: dir}
}

func (e *fileExporter) Export(roomCode string, players []Player, stories map[string][]Turn, label string) error {
	if err := e.fs.MkdirAll(e.dir, 0755); err != nil {
		return fmt.Errorf("create story dir: %w", err)
	}

	names := make(map[string]string, len(players))
	for _, p := range players {
		names[p.ID] = p.Name
	}

	var errs []error
	for origin, turns := range stories {
		name, ok := names[origin]
		if !ok {
			name = origin
		}

		fname := "story_" + roomCode + "_" + filenamePart(name) + "_" + origin
		if label != "" {
			fname += "_" + label
		}
		fname += ".txt"

		var b strings.Builder
		fmt.Fprintf(&b, "Story for %s (%s) in room %s:\n\n", name, origin, roomCode)
		for _, turn := range turns {
			fmt.Fprintf(&b, "Round %d:\n%s\n\n", turn.Round+1, turn.Text)
		}

		path := filepath.Join(e.dir, fname)
		if err := afero.WriteFile(e.fs, path, []byte(b.String()), 0644); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", path, err))
		}
	}

	return errors.Join(errs...)
}

// filenamePart keeps display names from smuggling separators into paths.
func filenamePart(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		case r == ' ':
			return '-'
		default:
			return -1
		}
	}, name)
}

// runExport hands a snapshot to the exporter. Called after the owning
// room's lock has been released; errors are logged and swallowed.
func runExport(cfg *Config, exporter Exporter, job *exportJob) {
	if job == nil {
		return
	}
	if err := exporter.Export(job.code, job.players, job.stories, job.label); err != nil {
		logf(cfg, "EXPORT: %s failed: %v", job.code, err)
	}
}
