package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ludoteko/internal/remote"
	"ludoteko/internal/signal"
	"ludoteko/internal/store"
)

// handle bundles one anonymous user's stores and coordinators.
type handle struct {
	orchestrator *Orchestrator
	syncer       *Syncer
	rounds       *store.RoundTracker
	lastAccess   time.Time
}

// Manager owns one session bundle per anonymous user, created on first
// use and evicted after inactivity. All mutations for one user route
// through the same bundle, so a read-then-decide-then-write sequence
// always observes the latest in-memory write.
type Manager struct {
	logger       zerolog.Logger
	record       remote.Record
	notify       signal.Notifier
	mailer       Mailer
	flagWindow   time.Duration
	advanceDelay time.Duration

	mu       sync.Mutex
	sessions map[string]*handle
}

// NewManager returns an empty session manager. The record client may be
// nil; sessions then run memory-only.
func NewManager(record remote.Record, notify signal.Notifier, mailer Mailer, flagWindow, advanceDelay time.Duration, logger zerolog.Logger) *Manager {
	return &Manager{
		logger:       logger,
		record:       record,
		notify:       notify,
		mailer:       mailer,
		flagWindow:   flagWindow,
		advanceDelay: advanceDelay,
		sessions:     make(map[string]*handle),
	}
}

// Get returns the orchestrator for a user, creating and hydrating the
// session bundle on first access.
func (m *Manager) Get(ctx context.Context, userID string) *Orchestrator {
	m.mu.Lock()
	h, ok := m.sessions[userID]
	if ok {
		h.lastAccess = time.Now()
		m.mu.Unlock()
		return h.orchestrator
	}
	m.mu.Unlock()

	progress := store.NewProgressStore()
	errs := store.NewErrorStore()
	rounds := store.NewRoundTracker(m.flagWindow, m.advanceDelay)
	score := store.NewScoreLedger()
	logger := m.logger.With().Str("user_id", userID).Logger()
	syncer := NewSyncer(m.record, progress, errs, rounds, score, logger)
	orch := NewOrchestrator(progress, errs, rounds, score, syncer, m.notify, m.mailer, logger)
	orch.SetUser(ctx, userID)

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have created the bundle while we hydrated.
	if existing, ok := m.sessions[userID]; ok {
		rounds.Stop()
		existing.lastAccess = time.Now()
		return existing.orchestrator
	}
	m.sessions[userID] = &handle{
		orchestrator: orch,
		syncer:       syncer,
		rounds:       rounds,
		lastAccess:   time.Now(),
	}
	logger.Info().Msg("session bundle created")
	return orch
}

// Len returns the number of live session bundles.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Cleanup evicts sessions idle for longer than maxAge, stopping their
// timers and draining their pending writes.
func (m *Manager) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var stale []*handle
	for id, h := range m.sessions {
		if h.lastAccess.Before(cutoff) {
			stale = append(stale, h)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, h := range stale {
		h.rounds.Stop()
		h.syncer.Flush()
	}
	if len(stale) > 0 {
		m.logger.Info().Int("evicted", len(stale)).Msg("session cleanup completed")
	}
	return len(stale)
}

// Close stops every session's timers and waits for pending writes.
func (m *Manager) Close() {
	m.mu.Lock()
	handles := make([]*handle, 0, len(m.sessions))
	for id, h := range m.sessions {
		handles = append(handles, h)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.rounds.Stop()
		h.syncer.Flush()
	}
}
