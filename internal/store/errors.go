package store

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/samber/lo"

	"ludoteko/internal/game"
)

// GameErrors is the wire shape of one game's recorded mistakes.
type GameErrors struct {
	Game   game.ID  `json:"game"`
	Errors []string `json:"errors"`
}

// ErrorStore keeps the per-game list of recorded mistakes, e.g. wrong
// letter guesses. Records are created lazily and reset to an empty list
// (never deleted) when a round completes or is explicitly reset.
type ErrorStore struct {
	mu      sync.RWMutex
	entries map[game.ID][]string
}

// NewErrorStore returns an empty error store.
func NewErrorStore() *ErrorStore {
	return &ErrorStore{entries: make(map[game.ID][]string)}
}

// Record appends a mistake for a game. With merge set, an entry equal to
// one already recorded is suppressed, keeping insertion order of first
// occurrences. Returns true if the collection changed.
func (s *ErrorStore) Record(g game.ID, entry string, merge bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[g]
	if merge && lo.Contains(existing, entry) {
		return false
	}
	if !ok {
		existing = []string{}
	}
	s.entries[g] = append(existing, entry)
	return true
}

// Reset clears a game's mistakes back to an empty list.
func (s *ErrorStore) Reset(g game.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[g] = []string{}
}

// Errors returns the recorded mistakes for a game, oldest first.
func (s *ErrorStore) Errors(g game.ID) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.entries[g]
	if !ok {
		return []string{}
	}
	return append([]string(nil), entries...)
}

// Empty reports whether nothing has been recorded yet.
func (s *ErrorStore) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries) == 0
}

// Snapshot serializes the full collection in the remote column shape.
func (s *ErrorStore) Snapshot() []GameErrors {
	s.mu.RLock()
	defer s.mu.RUnlock()

	games := lo.Keys(s.entries)
	sort.Slice(games, func(i, j int) bool { return games[i] < games[j] })
	return lo.Map(games, func(g game.ID, _ int) GameErrors {
		return GameErrors{Game: g, Errors: append([]string(nil), s.entries[g]...)}
	})
}

// Hydrate replaces the collection wholesale from a serialized remote blob,
// under the same only-if-still-empty guard as the progress store.
func (s *ErrorStore) Hydrate(blob string) error {
	var stored []GameErrors
	if err := json.Unmarshal([]byte(blob), &stored); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) > 0 {
		return nil
	}
	for _, ge := range stored {
		s.entries[ge.Game] = append([]string(nil), ge.Errors...)
	}
	return nil
}
