package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ludoteko/internal/game"
	"ludoteko/internal/remote"
	"ludoteko/internal/signal"
	"ludoteko/internal/store"
)

const (
	// Keep the production ordering flagWindow > 3*advanceDelay (5.5s vs 1s)
	// so flags raised on the final round survive waitAdvance.
	testFlagWindow   = 80 * time.Millisecond
	testAdvanceDelay = 15 * time.Millisecond
)

// fakeRecord is an in-memory remote.Record with switchable failures.
type fakeRecord struct {
	mu         sync.Mutex
	rows       map[string]map[string]string
	failReads  bool
	failWrites bool
}

func newFakeRecord() *fakeRecord {
	return &fakeRecord{rows: make(map[string]map[string]string)}
}

func (f *fakeRecord) Get(_ context.Context, userID, column string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return "", fmt.Errorf("read column %s: transport down", column)
	}
	val, ok := f.rows[userID][column]
	if !ok {
		return "", remote.ErrNotFound
	}
	return val, nil
}

func (f *fakeRecord) Set(_ context.Context, userID, column, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return fmt.Errorf("write column %s: transport down", column)
	}
	if f.rows[userID] == nil {
		f.rows[userID] = make(map[string]string)
	}
	f.rows[userID][column] = value
	return nil
}

func (f *fakeRecord) column(userID, column string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.rows[userID][column]
	return val, ok
}

func (f *fakeRecord) preload(userID string, columns map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[userID] = columns
}

// bundle is a fully wired single-user session for tests.
type bundle struct {
	progress *store.ProgressStore
	errors   *store.ErrorStore
	rounds   *store.RoundTracker
	score    *store.ScoreLedger
	syncer   *Syncer
}

func newBundle(t *testing.T, rec remote.Record) *bundle {
	t.Helper()
	b := &bundle{
		progress: store.NewProgressStore(),
		errors:   store.NewErrorStore(),
		rounds:   store.NewRoundTracker(testFlagWindow, testAdvanceDelay),
		score:    store.NewScoreLedger(),
	}
	b.syncer = NewSyncer(rec, b.progress, b.errors, b.rounds, b.score, zerolog.Nop())
	t.Cleanup(b.rounds.Stop)
	return b
}

func (b *bundle) orchestrator(t *testing.T, notify signal.Notifier) *Orchestrator {
	t.Helper()
	if notify == nil {
		notify = signal.Nop{}
	}
	return NewOrchestrator(b.progress, b.errors, b.rounds, b.score, b.syncer, notify, nil, zerolog.Nop())
}

func TestSetUserHydratesAllColumns(t *testing.T) {
	rec := newFakeRecord()
	rec.preload("u1", map[string]string{
		remote.ColumnScore:        "30",
		remote.ColumnProgress:     `[{"game":"hangman","questions":[{"questionId":0,"completed":[{"value":"A","index":0}]}]}]`,
		remote.ColumnErrors:       `[{"game":"hangman","errors":["x"]}]`,
		remote.ColumnRoundIndexes: `[{"game":"hangman","currentRoundIndex":2}]`,
	})
	b := newBundle(t, rec)

	b.syncer.SetUser(context.Background(), "u1")
	b.syncer.Flush()

	assert.Equal(t, "u1", b.syncer.UserID())
	assert.Equal(t, 30, b.score.Total())
	require.NotNil(t, b.progress.Question(game.Hangman, 0))
	assert.Equal(t, []string{"x"}, b.errors.Errors(game.Hangman))
	assert.Equal(t, 2, b.rounds.Index(game.Hangman))
}

func TestSetUserIsOneShot(t *testing.T) {
	b := newBundle(t, newFakeRecord())

	b.syncer.SetUser(context.Background(), "first")
	b.syncer.SetUser(context.Background(), "second")

	assert.Equal(t, "first", b.syncer.UserID())
}

func TestHydrationNeverClobbersLocalMutation(t *testing.T) {
	rec := newFakeRecord()
	rec.preload("u1", map[string]string{
		remote.ColumnProgress: `[{"game":"hangman","questions":[{"questionId":0,"completed":[{"value":"Z","index":4}]}]}]`,
	})
	b := newBundle(t, rec)

	// Local mutation races ahead of the remote read.
	b.progress.Append(game.Hangman, 0, []store.Unit{{Value: "A", Index: 0}})
	b.syncer.SetUser(context.Background(), "u1")
	b.syncer.Flush()

	q := b.progress.Question(game.Hangman, 0)
	require.NotNil(t, q)
	require.Len(t, q.Completed, 1)
	assert.Equal(t, "A", q.Completed[0].Value)
}

func TestHydrationMalformedColumnIsTreatedAsAbsent(t *testing.T) {
	rec := newFakeRecord()
	rec.preload("u1", map[string]string{
		remote.ColumnScore:    "25",
		remote.ColumnProgress: `{{{definitely not json`,
	})
	b := newBundle(t, rec)

	b.syncer.SetUser(context.Background(), "u1")
	b.syncer.Flush()

	assert.True(t, b.progress.Empty(), "malformed progress should leave the store at default")
	assert.Equal(t, 25, b.score.Total(), "other columns still hydrate")
}

func TestHydrationReadFailureIsAbsorbed(t *testing.T) {
	rec := newFakeRecord()
	rec.failReads = true
	b := newBundle(t, rec)

	b.syncer.SetUser(context.Background(), "u1")
	b.syncer.Flush()

	assert.True(t, b.progress.Empty())
	assert.Equal(t, 0, b.score.Total())
}

func TestPersistWithoutUserReportsDependencyMissing(t *testing.T) {
	rec := newFakeRecord()
	b := newBundle(t, rec)

	_, _ = b.score.Add(10)
	err := b.syncer.PersistScore()

	require.ErrorIs(t, err, remote.ErrDependencyMissing)
	assert.Equal(t, 10, b.score.Total(), "local state stands even when sync is skipped")
	_, ok := rec.column("", remote.ColumnScore)
	assert.False(t, ok)
}

func TestPersistWithoutRecordReportsDependencyMissing(t *testing.T) {
	b := newBundle(t, nil)
	b.syncer.SetUser(context.Background(), "u1")

	require.ErrorIs(t, b.syncer.PersistScore(), remote.ErrDependencyMissing)
}

func TestPersistWritesColumns(t *testing.T) {
	rec := newFakeRecord()
	b := newBundle(t, rec)
	b.syncer.SetUser(context.Background(), "u1")

	_, _ = b.score.Add(10)
	b.errors.Record(game.Hangman, "x", true)
	b.progress.Append(game.Hangman, 0, []store.Unit{{Value: "A", Index: 0}})

	require.NoError(t, b.syncer.PersistScore())
	require.NoError(t, b.syncer.PersistErrors())
	require.NoError(t, b.syncer.PersistProgress())
	require.NoError(t, b.syncer.PersistUsername("ana"))
	b.syncer.Flush()

	score, _ := rec.column("u1", remote.ColumnScore)
	assert.Equal(t, "10", score)
	errs, _ := rec.column("u1", remote.ColumnErrors)
	assert.JSONEq(t, `[{"game":"hangman","errors":["x"]}]`, errs)
	progress, _ := rec.column("u1", remote.ColumnProgress)
	assert.JSONEq(t, `[{"game":"hangman","questions":[{"questionId":0,"completed":[{"value":"A","index":0}]}]}]`, progress)
	name, _ := rec.column("u1", remote.ColumnUsername)
	assert.Equal(t, "ana", name)
}

func TestWriteFailureLeavesLocalStateUntouched(t *testing.T) {
	rec := newFakeRecord()
	rec.failWrites = true
	b := newBundle(t, rec)
	b.syncer.SetUser(context.Background(), "u1")

	_, _ = b.score.Add(10)
	require.NoError(t, b.syncer.PersistScore(), "fire-and-forget write must not surface transport errors")
	b.syncer.Flush()

	assert.Equal(t, 10, b.score.Total())
	_, ok := rec.column("u1", remote.ColumnScore)
	assert.False(t, ok)
}

func TestMalformedScoreColumn(t *testing.T) {
	rec := newFakeRecord()
	rec.preload("u1", map[string]string{remote.ColumnScore: "not-a-number"})
	b := newBundle(t, rec)

	b.syncer.SetUser(context.Background(), "u1")
	b.syncer.Flush()

	assert.Equal(t, 0, b.score.Total())
}

// stalledRecord simulates a remote store that hangs until released.
type stalledRecord struct {
	release chan struct{}
}

func (r *stalledRecord) Get(ctx context.Context, _, _ string) (string, error) {
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	return "", remote.ErrNotFound
}

func (r *stalledRecord) Set(context.Context, string, string, string) error {
	return nil
}

func TestSetUserDoesNotBlockOnStalledRecord(t *testing.T) {
	rec := &stalledRecord{release: make(chan struct{})}
	b := newBundle(t, rec)
	t.Cleanup(func() {
		close(rec.release)
		b.syncer.Flush()
	})

	start := time.Now()
	b.syncer.SetUser(context.Background(), "u1")

	assert.Less(t, time.Since(start), 500*time.Millisecond, "hydration must run in the background")
	assert.Equal(t, "u1", b.syncer.UserID())

	// Play proceeds immediately; the late read lands against a store that
	// is no longer empty and is discarded by the hydrate guard.
	b.progress.Append(game.Hangman, 0, []store.Unit{{Value: "A", Index: 0}})
	assert.False(t, b.progress.Empty())
}

var (
	_ remote.Record = (*fakeRecord)(nil)
	_ remote.Record = (*stalledRecord)(nil)
)
