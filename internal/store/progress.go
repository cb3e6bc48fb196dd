// Package store holds the in-memory session state: per-question progress,
// per-game mistakes, round tracking and the score ledger. Stores do no I/O
// of their own; the session package reconciles them with the remote record.
package store

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/samber/lo"

	"ludoteko/internal/game"
)

// Unit is one completed partial answer, e.g. a revealed letter at a
// position in the hangman word, or a matched card face in the memory game.
type Unit struct {
	Value string `json:"value"`
	Index int    `json:"index"`
}

// QuestionProgress is the wire shape of one question's completed units.
type QuestionProgress struct {
	QuestionID int    `json:"questionId"`
	Completed  []Unit `json:"completed"`
}

// GameProgress is the wire shape of one game's questions.
type GameProgress struct {
	Game      game.ID            `json:"game"`
	Questions []QuestionProgress `json:"questions"`
}

type progressKey struct {
	game     game.ID
	question int
}

// ProgressStore accumulates completed units per (game, question) pair.
// At most one entry exists per pair; entries grow by append-merge and are
// cleared by an explicit reset rather than an empty-payload sentinel.
type ProgressStore struct {
	mu    sync.RWMutex
	units map[progressKey][]Unit
}

// NewProgressStore returns an empty progress store.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{units: make(map[progressKey][]Unit)}
}

// Append merges units into the (game, question) entry, creating it if
// absent. Units already present are skipped, so re-recording a revealed
// letter never double counts. Returns true if anything changed.
func (s *ProgressStore) Append(g game.ID, questionID int, units []Unit) bool {
	if len(units) == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := progressKey{game: g, question: questionID}
	existing := s.units[k]
	changed := false
	for _, u := range units {
		if lo.Contains(existing, u) {
			continue
		}
		existing = append(existing, u)
		changed = true
	}
	s.units[k] = existing
	return changed
}

// Reset clears the (game, question) entry back to an empty completed list.
func (s *ProgressStore) Reset(g game.ID, questionID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[progressKey{game: g, question: questionID}] = []Unit{}
}

// Question returns the progress for a (game, question) pair, or nil if the
// pair has never been recorded.
func (s *ProgressStore) Question(g game.ID, questionID int) *QuestionProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	units, ok := s.units[progressKey{game: g, question: questionID}]
	if !ok {
		return nil
	}
	return &QuestionProgress{QuestionID: questionID, Completed: append([]Unit(nil), units...)}
}

// Game returns every question recorded for a game, ordered by question ID.
func (s *ProgressStore) Game(g game.ID) []QuestionProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.questionsLocked(g)
}

func (s *ProgressStore) questionsLocked(g game.ID) []QuestionProgress {
	var qs []QuestionProgress
	for k, units := range s.units {
		if k.game != g {
			continue
		}
		qs = append(qs, QuestionProgress{QuestionID: k.question, Completed: append([]Unit(nil), units...)})
	}
	sort.Slice(qs, func(i, j int) bool { return qs[i].QuestionID < qs[j].QuestionID })
	return qs
}

// Complete evaluates the round completion predicate: the question is
// complete once it holds exactly roundLength units.
func (s *ProgressStore) Complete(g game.ID, questionID int, roundLength int) bool {
	if roundLength <= 0 {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.units[progressKey{game: g, question: questionID}]) == roundLength
}

// Empty reports whether nothing has been recorded yet.
func (s *ProgressStore) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.units) == 0
}

// Snapshot serializes the full collection in the remote column shape.
func (s *ProgressStore) Snapshot() []GameProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	games := lo.Uniq(lo.Map(lo.Keys(s.units), func(k progressKey, _ int) game.ID { return k.game }))
	sort.Slice(games, func(i, j int) bool { return games[i] < games[j] })
	return lo.Map(games, func(g game.ID, _ int) GameProgress {
		return GameProgress{Game: g, Questions: s.questionsLocked(g)}
	})
}

// Hydrate replaces the collection wholesale from a serialized remote blob.
// It is a no-op when local state already exists, so a mutation that raced
// ahead of the remote read is never clobbered. Malformed payloads are
// treated as no stored data.
func (s *ProgressStore) Hydrate(blob string) error {
	var stored []GameProgress
	if err := json.Unmarshal([]byte(blob), &stored); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.units) > 0 {
		return nil
	}
	for _, gp := range stored {
		for _, q := range gp.Questions {
			s.units[progressKey{game: gp.Game, question: q.QuestionID}] = append([]Unit(nil), q.Completed...)
		}
	}
	return nil
}
