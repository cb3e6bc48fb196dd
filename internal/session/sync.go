// Package session wires the in-memory stores to user intents and to the
// remote per-user record. Remote persistence is local-first: the in-memory
// state is the source of truth, the remote record trails it, and nothing
// here ever blocks or rolls back a local mutation.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ludoteko/internal/remote"
	"ludoteko/internal/store"
)

const (
	readTimeout  = 2 * time.Second
	writeTimeout = 5 * time.Second
)

// Syncer reconciles the four stores with the remote per-user record. It
// holds no state of its own beyond the user identity: it only observes
// store snapshots and forwards them.
type Syncer struct {
	logger   zerolog.Logger
	record   remote.Record
	progress *store.ProgressStore
	errors   *store.ErrorStore
	rounds   *store.RoundTracker
	score    *store.ScoreLedger

	mu     sync.Mutex
	userID string

	// Per-column write coalescing: only the latest serialized value is
	// in flight, and a value identical to the last one queued is a no-op.
	pendMu     sync.Mutex
	pending    map[string]string
	writing    map[string]bool
	lastQueued map[string]string
	writes     sync.WaitGroup
	reads      sync.WaitGroup
}

// NewSyncer builds a coordinator over the given stores. The record client
// may be nil, in which case every persist reports a missing dependency and
// the stores run purely in memory.
func NewSyncer(record remote.Record, progress *store.ProgressStore, errs *store.ErrorStore, rounds *store.RoundTracker, score *store.ScoreLedger, logger zerolog.Logger) *Syncer {
	return &Syncer{
		logger:     logger,
		record:     record,
		progress:   progress,
		errors:     errs,
		rounds:     rounds,
		score:      score,
		pending:    make(map[string]string),
		writing:    make(map[string]bool),
		lastQueued: make(map[string]string),
	}
}

// UserID returns the established user identity, or "" while awaiting one.
func (s *Syncer) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// SetUser establishes the user identity and hydrates each store from its
// remote column. The identity transitions empty-to-set exactly once; later
// calls are ignored. Hydration runs in the background so the first
// interaction never waits on a slow or unreachable record: column reads
// are independent, detached from the caller's context, and each hydration
// is guarded by the store's own still-empty check, so a local mutation
// that raced ahead of a slow read is never overwritten.
func (s *Syncer) SetUser(_ context.Context, userID string) {
	if userID == "" {
		return
	}
	s.mu.Lock()
	if s.userID != "" {
		s.mu.Unlock()
		return
	}
	s.userID = userID
	s.mu.Unlock()

	if s.record == nil {
		s.logger.Warn().Msg("no remote record configured, skipping hydration")
		return
	}
	s.logger.Info().Str("user_id", userID).Msg("user identity established, hydrating stores")

	hydrate := func(column string, apply func(blob string) error, empty func() bool) {
		if !empty() {
			return
		}
		s.reads.Add(1)
		go func() {
			defer s.reads.Done()
			ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
			defer cancel()
			blob, err := s.record.Get(ctx, userID, column)
			if errors.Is(err, remote.ErrNotFound) {
				return
			}
			if err != nil {
				syncFailures.WithLabelValues(column).Inc()
				s.logger.Warn().Err(err).Str("column", column).Msg("remote read failed, starting from defaults")
				return
			}
			if err := apply(blob); err != nil {
				s.logger.Warn().Err(err).Str("column", column).Msg("malformed stored data, starting from defaults")
			}
		}()
	}

	hydrate(remote.ColumnProgress, s.progress.Hydrate, s.progress.Empty)
	hydrate(remote.ColumnErrors, s.errors.Hydrate, s.errors.Empty)
	hydrate(remote.ColumnRoundIndexes, s.rounds.Hydrate, s.rounds.Empty)
	hydrate(remote.ColumnScore, func(blob string) error {
		total, err := strconv.Atoi(blob)
		if err != nil {
			return err
		}
		s.score.Hydrate(total)
		return nil
	}, s.score.Empty)
}

// persist queues a column value for the remote record without blocking
// the caller. Writes to one column never reorder: a single drainer per
// column always ships the latest queued value, and a value identical to
// the last one queued is dropped outright. Write failures are logged and
// counted, not retried; the in-memory state is already committed.
func (s *Syncer) persist(column, value string) error {
	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()

	if s.record == nil || userID == "" {
		return remote.ErrDependencyMissing
	}

	s.pendMu.Lock()
	if s.lastQueued[column] == value {
		s.pendMu.Unlock()
		return nil
	}
	s.lastQueued[column] = value
	s.pending[column] = value
	if s.writing[column] {
		s.pendMu.Unlock()
		return nil
	}
	s.writing[column] = true
	s.pendMu.Unlock()

	s.writes.Add(1)
	go s.drain(userID, column)
	return nil
}

// drain ships queued values for one column until none remain.
func (s *Syncer) drain(userID, column string) {
	defer s.writes.Done()
	for {
		s.pendMu.Lock()
		value, ok := s.pending[column]
		if !ok {
			s.writing[column] = false
			s.pendMu.Unlock()
			return
		}
		delete(s.pending, column)
		s.pendMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := s.record.Set(ctx, userID, column, value)
		cancel()
		if err != nil {
			syncFailures.WithLabelValues(column).Inc()
			s.logger.Warn().Err(err).Str("column", column).Msg("remote write failed, local state unaffected")
		}
	}
}

func marshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// PersistProgress writes the full progress collection.
func (s *Syncer) PersistProgress() error {
	return s.persist(remote.ColumnProgress, marshal(s.progress.Snapshot()))
}

// PersistErrors writes the full error collection.
func (s *Syncer) PersistErrors() error {
	return s.persist(remote.ColumnErrors, marshal(s.errors.Snapshot()))
}

// PersistRounds writes the full set of round indexes.
func (s *Syncer) PersistRounds() error {
	return s.persist(remote.ColumnRoundIndexes, marshal(s.rounds.Snapshot()))
}

// PersistScore writes the current score total.
func (s *Syncer) PersistScore() error {
	return s.persist(remote.ColumnScore, strconv.Itoa(s.score.Total()))
}

// PersistUsername writes the display name captured by the results form.
func (s *Syncer) PersistUsername(name string) error {
	return s.persist(remote.ColumnUsername, name)
}

// Flush waits for in-flight hydration reads and writes to settle. Used at
// shutdown and in tests.
func (s *Syncer) Flush() {
	s.reads.Wait()
	s.writes.Wait()
}
