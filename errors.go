/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Room errors are matched by value and rendered to clients as a single
// human-readable message on the "error" event. Nothing here is fatal;
// a rejected action leaves the room unchanged for everyone else.
var (
	errRoomNotFound         = errors.New("That room does not exist.")
	errRoomStarted          = errors.New("This game has already started!")
	errRoomFull             = errors.New("That room is full!")
	errNameTaken            = errors.New("That name is already in use in this room!")
	errInvalidName          = errors.New("Player names must be 1-12 characters.")
	errNotYourTurn          = errors.New("It is not your turn to create a dilemma.")
	errIncompleteSubmission = errors.New("Your submission is missing required fields.")
	errModeNotAllowed       = errors.New("That dilemma type is not enabled for this room.")
	errNotEnoughPlayers     = errors.New("At least 2 players are needed!")
	errNotHost              = errors.New("Only the host can start the game.")
	errSelfVote             = errors.New("You cannot vote for yourself.")
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
