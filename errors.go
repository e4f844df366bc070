/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// gameError is a recoverable, per-request failure. It is reported only to
// the triggering client as an "error" event and never touches room state.
type gameError struct {
	Kind    string
	Message string
}

func (e *gameError) Error() string {
	return e.Kind + ": " + e.Message
}

var (
	errRoomNotFound        = &gameError{"room_not_found", "Room not found"}
	errAlreadyStarted      = &gameError{"already_started", "Game already started"}
	errNoPlayers           = &gameError{"no_players", "Need at least one player"}
	errNotStarted          = &gameError{"not_started", "Game has not started"}
	errDuplicateSubmission = &gameError{"duplicate_submission", "Turn already submitted for this round"}
	errUnknownPlayer       = &gameError{"unknown_player", "Player not in game"}
	errInvalidInput        = &gameError{"invalid_input", "Invalid or oversized submission"}
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
