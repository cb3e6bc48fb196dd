package store

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"ludoteko/internal/game"
)

// Defaults for the transient-flag window and the delayed round advance.
// The flag window lets the celebration/failure UI play out; the advance
// delay lets the completion animation finish before the index moves.
const (
	DefaultFlagWindow   = 5500 * time.Millisecond
	DefaultAdvanceDelay = time.Second
)

// RoundIndex is the wire shape of one game's current round position.
type RoundIndex struct {
	Game              game.ID `json:"game"`
	CurrentRoundIndex int     `json:"currentRoundIndex"`
}

// Flags are the transient one-shot UI signals. They are never persisted
// and auto-clear after the flag window so they cannot leak across rounds.
type Flags struct {
	RoundComplete   bool `json:"roundComplete"`
	RoundFailed     bool `json:"roundFailed"`
	AllRoundsPassed bool `json:"allRoundsPassed"`
}

// RoundTracker owns the per-game round index, the round-length and
// round-count knobs set by the active game's UI, and the transient flags.
// Round indexes move only through Advance or a remote hydration.
type RoundTracker struct {
	mu      sync.Mutex
	indexes map[game.ID]int
	lengths map[game.ID]int
	counts  map[game.ID]int
	flags   Flags

	flagWindow   time.Duration
	advanceDelay time.Duration

	completeTimer *time.Timer
	failedTimer   *time.Timer
	passedTimer   *time.Timer
	pending       map[game.ID]*time.Timer

	onCommit func(g game.ID, index int)
}

// NewRoundTracker returns a tracker with all games at round 0. Zero
// durations fall back to the production window and delay.
func NewRoundTracker(flagWindow, advanceDelay time.Duration) *RoundTracker {
	if flagWindow <= 0 {
		flagWindow = DefaultFlagWindow
	}
	if advanceDelay <= 0 {
		advanceDelay = DefaultAdvanceDelay
	}
	return &RoundTracker{
		indexes:      make(map[game.ID]int),
		lengths:      make(map[game.ID]int),
		counts:       make(map[game.ID]int),
		pending:      make(map[game.ID]*time.Timer),
		flagWindow:   flagWindow,
		advanceDelay: advanceDelay,
	}
}

// SetOnCommit registers the hook invoked after a delayed advance lands,
// outside the tracker lock. The session layer uses it to persist the
// updated indexes.
func (t *RoundTracker) SetOnCommit(fn func(g game.ID, index int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCommit = fn
}

// Index returns the current round index for a game (0 if never advanced).
func (t *RoundTracker) Index(g game.ID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.indexes[g]
}

// SetRoundLength records the expected answer size of the active round.
func (t *RoundTracker) SetRoundLength(g game.ID, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lengths[g] = n
}

// RoundLength returns the expected answer size for a game's active round.
func (t *RoundTracker) RoundLength(g game.ID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lengths[g]
}

// SetNumberOfRounds records the round count for a game's content set.
func (t *RoundTracker) SetNumberOfRounds(g game.ID, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[g] = n
}

// NumberOfRounds returns the configured round count for a game, falling
// back to the static default.
func (t *RoundTracker) NumberOfRounds(g game.ID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.countLocked(g)
}

func (t *RoundTracker) countLocked(g game.ID) int {
	if n, ok := t.counts[g]; ok && n > 0 {
		return n
	}
	return game.Defaults[g].NumberOfRounds
}

// Flags returns a snapshot of the transient flags.
func (t *RoundTracker) Flags() Flags {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flags
}

// MarkRoundComplete raises the round-complete flag for one flag window.
// A second call before expiry restarts the window rather than stacking a
// second timer.
func (t *RoundTracker) MarkRoundComplete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flags.RoundComplete = true
	t.completeTimer = t.restartLocked(t.completeTimer, func() { t.flags.RoundComplete = false })
}

// MarkRoundFailed raises the round-failed flag for one flag window.
func (t *RoundTracker) MarkRoundFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flags.RoundFailed = true
	t.failedTimer = t.restartLocked(t.failedTimer, func() { t.flags.RoundFailed = false })
}

func (t *RoundTracker) markAllRoundsPassedLocked() {
	t.flags.AllRoundsPassed = true
	t.passedTimer = t.restartLocked(t.passedTimer, func() { t.flags.AllRoundsPassed = false })
}

// restartLocked arms a fresh flag-window timer, preempting the old one.
func (t *RoundTracker) restartLocked(old *time.Timer, clear func()) *time.Timer {
	if old != nil {
		old.Stop()
	}
	return time.AfterFunc(t.flagWindow, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		clear()
	})
}

// Advance moves a game past the round it just finished. Finishing the
// final round raises the all-rounds-passed flag instead of incrementing;
// rounds cycle, there is no terminal state. Otherwise the new index is
// committed after the advance delay, replacing any advance still pending
// for the same game.
func (t *RoundTracker) Advance(g game.ID, fromIndex int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if fromIndex == t.countLocked(g)-1 {
		t.markAllRoundsPassedLocked()
		return
	}

	if prev, ok := t.pending[g]; ok {
		prev.Stop()
	}
	next := fromIndex + 1
	t.pending[g] = time.AfterFunc(t.advanceDelay, func() {
		t.mu.Lock()
		t.indexes[g] = next
		delete(t.pending, g)
		commit := t.onCommit
		t.mu.Unlock()
		if commit != nil {
			commit(g, next)
		}
	})
}

// Empty reports whether no round index has been recorded yet.
func (t *RoundTracker) Empty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.indexes) == 0
}

// Snapshot serializes the recorded indexes in the remote column shape.
func (t *RoundTracker) Snapshot() []RoundIndex {
	t.mu.Lock()
	defer t.mu.Unlock()

	games := lo.Keys(t.indexes)
	sort.Slice(games, func(i, j int) bool { return games[i] < games[j] })
	return lo.Map(games, func(g game.ID, _ int) RoundIndex {
		return RoundIndex{Game: g, CurrentRoundIndex: t.indexes[g]}
	})
}

// Hydrate loads round indexes from a serialized remote blob, only while
// no local index exists. Remote load is the one path allowed to move an
// index backwards.
func (t *RoundTracker) Hydrate(blob string) error {
	var stored []RoundIndex
	if err := json.Unmarshal([]byte(blob), &stored); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.indexes) > 0 {
		return nil
	}
	for _, ri := range stored {
		t.indexes[ri.Game] = ri.CurrentRoundIndex
	}
	return nil
}

// Stop cancels every outstanding timer. Pending advances are dropped.
func (t *RoundTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, timer := range []*time.Timer{t.completeTimer, t.failedTimer, t.passedTimer} {
		if timer != nil {
			timer.Stop()
		}
	}
	for g, timer := range t.pending {
		timer.Stop()
		delete(t.pending, g)
	}
}
