package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"ludoteko/internal/game"
	"ludoteko/internal/remote"
	"ludoteko/internal/signal"
)

func newTestManager(rec remote.Record) *Manager {
	return NewManager(rec, signal.Nop{}, nil, testFlagWindow, testAdvanceDelay, zerolog.Nop())
}

func TestManagerGetReturnsSameBundle(t *testing.T) {
	m := newTestManager(newFakeRecord())
	defer m.Close()
	ctx := context.Background()

	a := m.Get(ctx, "u1")
	b := m.Get(ctx, "u1")
	other := m.Get(ctx, "u2")

	assert.Same(t, a, b, "one user routes through one orchestrator")
	assert.NotSame(t, a, other)
	assert.Equal(t, 2, m.Len())
}

func TestManagerGetHydratesFromRecord(t *testing.T) {
	rec := newFakeRecord()
	rec.preload("u1", map[string]string{remote.ColumnScore: "45"})
	m := newTestManager(rec)
	defer m.Close()

	orch := m.Get(context.Background(), "u1")
	assert.True(t, orch.Active())
	// Hydration runs in the background.
	assert.Eventually(t, func() bool { return orch.Score() == 45 }, 2*time.Second, 10*time.Millisecond)
}

func TestManagerUsersAreIsolated(t *testing.T) {
	m := newTestManager(newFakeRecord())
	defer m.Close()
	ctx := context.Background()

	m.Get(ctx, "u1").RecordMistake(ctx, game.Hangman, "x", true)

	assert.Empty(t, m.Get(ctx, "u2").GameErrors(game.Hangman))
}

func TestManagerCleanupEvictsIdleSessions(t *testing.T) {
	m := newTestManager(newFakeRecord())
	defer m.Close()
	ctx := context.Background()

	m.Get(ctx, "idle")
	time.Sleep(30 * time.Millisecond)
	m.Get(ctx, "fresh")

	evicted := m.Cleanup(20 * time.Millisecond)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, m.Len())
}

func TestManagerClose(t *testing.T) {
	m := newTestManager(newFakeRecord())
	ctx := context.Background()

	m.Get(ctx, "u1")
	m.Get(ctx, "u2")
	m.Close()

	assert.Equal(t, 0, m.Len())
}
