package store

import (
	"fmt"
	"sync"
)

// ScoreLedger holds the user's accrued score. The total only grows within
// a session; the single exception is the authoritative remote value loaded
// before the first local award.
type ScoreLedger struct {
	mu      sync.Mutex
	total   int
	awarded bool
}

// NewScoreLedger returns a ledger at zero.
func NewScoreLedger() *ScoreLedger {
	return &ScoreLedger{}
}

// Add awards a positive per-round amount and returns the new total.
func (s *ScoreLedger) Add(amount int) (int, error) {
	if amount <= 0 {
		return s.Total(), fmt.Errorf("score amount must be positive, got %d", amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total += amount
	s.awarded = true
	return s.total, nil
}

// Total returns the current score.
func (s *ScoreLedger) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Hydrate sets the total from the remote record. Score nominally starts
// at 0, so unlike the other stores this may overwrite the default any time
// before the first real award; after that it is a no-op.
func (s *ScoreLedger) Hydrate(value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.awarded {
		return
	}
	if value < 0 {
		value = 0
	}
	s.total = value
}

// Empty reports whether no award has happened yet. Hydration does not
// count as an award.
func (s *ScoreLedger) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.awarded
}
