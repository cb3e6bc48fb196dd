package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"ludoteko/internal/game"
	"ludoteko/internal/remote"
	"ludoteko/internal/signal"
	"ludoteko/internal/store"
)

// Mailer relays a submitted results form to the site owner.
type Mailer interface {
	Send(ctx context.Context, username, message string) error
}

// LogMailer is a Mailer that only logs the submission. The real email
// relay lives outside this service.
type LogMailer struct {
	Logger zerolog.Logger
}

func (m LogMailer) Send(_ context.Context, username, message string) error {
	m.Logger.Info().Str("username", username).Str("message", message).Msg("results submission relayed")
	return nil
}

// RoundState is the per-game round snapshot exposed to the UI.
type RoundState struct {
	CurrentRoundIndex int         `json:"currentRoundIndex"`
	NumberOfRounds    int         `json:"numberOfRounds"`
	RoundLength       int         `json:"roundLength"`
	Flags             store.Flags `json:"flags"`
}

// Orchestrator sequences user intents across the stores: it decides when a
// round is complete or failed, when to advance, and what to persist. It
// owns no persisted state itself.
type Orchestrator struct {
	logger   zerolog.Logger
	progress *store.ProgressStore
	errors   *store.ErrorStore
	rounds   *store.RoundTracker
	score    *store.ScoreLedger
	sync     *Syncer
	notify   signal.Notifier
	mailer   Mailer

	mu           sync.Mutex
	scoreMessage string
}

// NewOrchestrator wires the stores, sync coordinator and signal sink
// together. It registers the round tracker's commit hook so a delayed
// round advance is persisted when it lands.
func NewOrchestrator(progress *store.ProgressStore, errs *store.ErrorStore, rounds *store.RoundTracker, score *store.ScoreLedger, syncer *Syncer, notify signal.Notifier, mailer Mailer, logger zerolog.Logger) *Orchestrator {
	o := &Orchestrator{
		logger:   logger,
		progress: progress,
		errors:   errs,
		rounds:   rounds,
		score:    score,
		sync:     syncer,
		notify:   notify,
		mailer:   mailer,
	}
	rounds.SetOnCommit(func(g game.ID, index int) {
		logger.Info().Str("game", string(g)).Int("round", index).Msg("round advance committed")
		o.reportSync(o.sync.PersistRounds())
	})
	return o
}

// SetUser moves the session from awaiting-identity to active.
func (o *Orchestrator) SetUser(ctx context.Context, userID string) {
	o.sync.SetUser(ctx, userID)
}

// Active reports whether a user identity has been established.
func (o *Orchestrator) Active() bool {
	return o.sync.UserID() != ""
}

// reportSync logs the dependency-missing condition instead of surfacing
// it; the mutation already succeeded locally and sync retries on the next
// mutation.
func (o *Orchestrator) reportSync(err error) {
	if errors.Is(err, remote.ErrDependencyMissing) {
		o.logger.Debug().Msg("remote sync skipped: user or record unavailable")
	}
}

// GuessLetter handles a hangman guess. The presentation layer, which
// knows the word, reports the indexes the letter revealed; an empty index
// list means the guess was wrong. Exhausting the allowed mistakes fails
// the round.
func (o *Orchestrator) GuessLetter(ctx context.Context, g game.ID, questionID int, letter string, revealed []int) {
	if len(revealed) == 0 {
		o.RecordMistake(ctx, g, letter, true)
		allowed := game.Defaults[g].MaxMistakes
		if allowed > 0 && len(o.errors.Errors(g)) >= allowed {
			o.FailRound(ctx, g, questionID)
		}
		return
	}

	units := make([]store.Unit, 0, len(revealed))
	for _, idx := range revealed {
		units = append(units, store.Unit{Value: letter, Index: idx})
	}
	o.recordUnits(ctx, g, questionID, units)
}

// MatchCards handles a matched pair in the memory game.
func (o *Orchestrator) MatchCards(ctx context.Context, g game.ID, questionID int, pair string, slot int) {
	o.recordUnits(ctx, g, questionID, []store.Unit{{Value: pair, Index: slot}})
}

// PieceFitted handles the puzzle's "piece fitted" event. The physics
// simulation upstream is a black box; only the boolean fit arrives here.
func (o *Orchestrator) PieceFitted(ctx context.Context, g game.ID, questionID int, piece string, slot int) {
	o.recordUnits(ctx, g, questionID, []store.Unit{{Value: piece, Index: slot}})
}

// RecordCompletion appends already-built completed units for a question
// and evaluates the round like any other completion intent.
func (o *Orchestrator) RecordCompletion(ctx context.Context, g game.ID, questionID int, units []store.Unit) {
	o.recordUnits(ctx, g, questionID, units)
}

// recordUnits appends completed units and runs the completion predicate
// against the active round length. Completion is edge-triggered: a retry
// of an already-recorded unit changes nothing and must not award or
// advance a second time.
func (o *Orchestrator) recordUnits(ctx context.Context, g game.ID, questionID int, units []store.Unit) {
	if !g.Playable() {
		return
	}
	if !o.progress.Append(g, questionID, units) {
		return
	}
	o.reportSync(o.sync.PersistProgress())
	if o.progress.Complete(g, questionID, o.rounds.RoundLength(g)) {
		o.completeRound(ctx, g)
	}
}

// RecordMistake appends a mistake for a game. Merge mode suppresses a
// repeat of an already-recorded entry.
func (o *Orchestrator) RecordMistake(_ context.Context, g game.ID, entry string, merge bool) {
	if !g.Playable() {
		return
	}
	if o.errors.Record(g, entry, merge) {
		o.reportSync(o.sync.PersistErrors())
	}
}

// completeRound awards the per-game score, clears the game's mistakes and
// advances the round. On the final round the tracker raises the
// all-rounds-passed flag instead of advancing.
func (o *Orchestrator) completeRound(_ context.Context, g game.ID) {
	from := o.rounds.Index(g)
	o.logger.Info().Str("game", string(g)).Int("round", from).Msg("round complete")
	roundsCompleted.WithLabelValues(string(g)).Inc()

	o.rounds.MarkRoundComplete()
	o.notify.Publish(signal.Signal{Kind: signal.KindRoundComplete, Game: g})

	amount := game.ScorePerRound(g)
	total, err := o.score.Add(amount)
	if err != nil {
		o.logger.Error().Err(err).Str("game", string(g)).Msg("score award rejected")
	} else {
		scoreAwarded.Add(float64(amount))
		o.setScoreMessage(fmt.Sprintf("+%d points!", amount))
		o.notify.Publish(signal.Signal{Kind: signal.KindScoreDelta, Game: g, Amount: amount, Total: total})
		o.reportSync(o.sync.PersistScore())
	}

	o.errors.Reset(g)
	o.reportSync(o.sync.PersistErrors())
	o.advance(g, from)
}

// FailRound handles the explicit failure intent. A failed round advances
// exactly like a completed one; the round is not offered again.
func (o *Orchestrator) FailRound(_ context.Context, g game.ID, questionID int) {
	if !g.Playable() {
		return
	}
	from := o.rounds.Index(g)
	o.logger.Info().Str("game", string(g)).Int("round", from).Int("question", questionID).Msg("round failed")
	roundsFailed.WithLabelValues(string(g)).Inc()

	o.rounds.MarkRoundFailed()
	o.notify.Publish(signal.Signal{Kind: signal.KindRoundFailed, Game: g})

	o.errors.Reset(g)
	o.reportSync(o.sync.PersistErrors())
	o.advance(g, from)
}

func (o *Orchestrator) advance(g game.ID, from int) {
	last := from == o.rounds.NumberOfRounds(g)-1
	o.rounds.Advance(g, from)
	if last {
		o.notify.Publish(signal.Signal{Kind: signal.KindAllRoundsPassed, Game: g})
	}
}

// ResetRound clears a question's progress and the game's mistakes without
// touching the round index. This is the explicit user-triggered reset,
// distinct from round failure.
func (o *Orchestrator) ResetRound(_ context.Context, g game.ID, questionID int) {
	o.progress.Reset(g, questionID)
	o.errors.Reset(g)
	o.reportSync(o.sync.PersistProgress())
	o.reportSync(o.sync.PersistErrors())
	o.logger.Info().Str("game", string(g)).Int("question", questionID).Msg("round reset")
}

// SubmitResults persists the visitor's display name and relays the form
// through the configured mailer.
func (o *Orchestrator) SubmitResults(ctx context.Context, username, message string) error {
	o.reportSync(o.sync.PersistUsername(username))
	if o.mailer == nil {
		return nil
	}
	if err := o.mailer.Send(ctx, username, message); err != nil {
		return fmt.Errorf("relay results: %w", err)
	}
	return nil
}

// SetRoundLength records the active round's expected answer size.
func (o *Orchestrator) SetRoundLength(g game.ID, n int) {
	o.rounds.SetRoundLength(g, n)
}

// SetNumberOfRounds records the game's content size.
func (o *Orchestrator) SetNumberOfRounds(g game.ID, n int) {
	o.rounds.SetNumberOfRounds(g, n)
}

// Score returns the current accrued total.
func (o *Orchestrator) Score() int {
	return o.score.Total()
}

// ScoreMessage returns the latest score-delta flash text.
func (o *Orchestrator) ScoreMessage() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.scoreMessage
}

func (o *Orchestrator) setScoreMessage(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scoreMessage = msg
}

// Question returns the progress snapshot for a (game, question) pair.
func (o *Orchestrator) Question(g game.ID, questionID int) *store.QuestionProgress {
	return o.progress.Question(g, questionID)
}

// GameProgress returns every question recorded for a game.
func (o *Orchestrator) GameProgress(g game.ID) []store.QuestionProgress {
	return o.progress.Game(g)
}

// GameErrors returns the mistakes recorded for a game.
func (o *Orchestrator) GameErrors(g game.ID) []string {
	return o.errors.Errors(g)
}

// Round returns the round snapshot for a game.
func (o *Orchestrator) Round(g game.ID) RoundState {
	return RoundState{
		CurrentRoundIndex: o.rounds.Index(g),
		NumberOfRounds:    o.rounds.NumberOfRounds(g),
		RoundLength:       o.rounds.RoundLength(g),
		Flags:             o.rounds.Flags(),
	}
}
