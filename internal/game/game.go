// Package game defines the game identifiers and static per-game
// configuration shared by the stores and the session orchestrator.
package game

import (
	"fmt"
	"strings"
)

// ID identifies one of the portfolio games.
type ID string

const (
	Hangman     ID = "hangman"
	Memory      ID = "memory"
	Puzzle      ID = "puzzle"
	SendResults ID = "send-results"
)

// IDs lists every known game identifier.
var IDs = []ID{Hangman, Memory, Puzzle, SendResults}

// ParseID validates a raw game identifier from the wire.
func ParseID(raw string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(raw)))
	switch id {
	case Hangman, Memory, Puzzle, SendResults:
		return id, nil
	}
	return "", fmt.Errorf("unknown game %q", raw)
}

// Playable reports whether the game has rounds to score. The
// send-results form shares the ID space but is never scored.
func (id ID) Playable() bool {
	return id == Hangman || id == Memory || id == Puzzle
}

// Config holds the static scoring configuration for one game.
type Config struct {
	// ScorePerRound is the fixed amount awarded for each completed round.
	ScorePerRound int
	// NumberOfRounds is the default round count; the UI overrides it per
	// session once the game's content size is known.
	NumberOfRounds int
	// MaxMistakes is the number of recorded mistakes that fails the
	// round. 0 means mistakes never fail the round on their own.
	MaxMistakes int
}

// Defaults maps each playable game to its static configuration.
var Defaults = map[ID]Config{
	Hangman: {ScorePerRound: 10, NumberOfRounds: 5, MaxMistakes: 6},
	Memory:  {ScorePerRound: 15, NumberOfRounds: 3},
	Puzzle:  {ScorePerRound: 25, NumberOfRounds: 1},
}

// ScorePerRound returns the per-round award for a game, or 0 for games
// that are never scored.
func ScorePerRound(id ID) int {
	return Defaults[id].ScorePerRound
}
