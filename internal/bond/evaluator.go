package bond

import (
	"context"
	"fmt"
	"time"

	"github.com/lazypower/rapport/internal/clock"
	"github.com/lazypower/rapport/internal/ring"
	"github.com/lazypower/rapport/internal/signal"
)

// DefaultCapacity bounds the in-memory history.
const DefaultCapacity = 1000

// InteractionReader is the read side of the event store used for scoring
// persisted history.
type InteractionReader interface {
	QueryRecentInteractions(ctx context.Context, window time.Duration) ([]signal.Event, error)
}

// Evaluator scores one subject's recent interactions. It is not safe for
// concurrent use; callers serialize access.
type Evaluator struct {
	history *ring.Buffer[signal.Event]
	weights WeightSource
	clock   clock.Clock
	last    Breakdown
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the wall clock.
func WithClock(c clock.Clock) Option { return func(e *Evaluator) { e.clock = c } }

// WithWeights sets where the evaluator reads its coefficients from.
func WithWeights(s WeightSource) Option { return func(e *Evaluator) { e.weights = s } }

// WithCapacity overrides the history size.
func WithCapacity(n int) Option {
	return func(e *Evaluator) { e.history = ring.New[signal.Event](n) }
}

// NewEvaluator returns an Evaluator with default weights and an empty history.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		history: ring.New[signal.Event](DefaultCapacity),
		weights: NewHolder(DefaultWeights()),
		clock:   clock.System{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.last = Breakdown{Level: Stranger, WeightsVersion: e.weights.Current().Version}
	return e
}

// RecordInteraction stamps b with the current time and adds it to the
// history, dropping the oldest record when full.
func (e *Evaluator) RecordInteraction(b signal.Bundle) signal.Event {
	ev := b.Event(e.clock.Now())
	e.history.Push(ev)
	return ev
}

// Events returns the in-window history, oldest first.
func (e *Evaluator) Events(window time.Duration) []signal.Event {
	return inWindow(e.history.Slice(), window, e.clock.Now())
}

// EmotionScore scores the in-window emotion labels, 0 when there are none.
func (e *Evaluator) EmotionScore(window time.Duration) float64 {
	return emotionScore(e.Events(window))
}

// GestureScore scores the in-window gesture labels, 0 when there are none.
func (e *Evaluator) GestureScore(window time.Duration) float64 {
	return gestureScore(e.Events(window))
}

// InteractionFrequency returns in-window interactions per minute.
func (e *Evaluator) InteractionFrequency(window time.Duration) float64 {
	return frequency(len(e.Events(window)), window)
}

// FrequencyScore is InteractionFrequency clamped against 5 per minute.
func (e *Evaluator) FrequencyScore(window time.Duration) float64 {
	return min(1.0, e.InteractionFrequency(window)/frequencySaturation)
}

// Evaluate scores the in-memory window with the current weights and keeps
// the result for Score and Level.
func (e *Evaluator) Evaluate(window time.Duration) Breakdown {
	e.last = ScoreEvents(e.history.Slice(), e.weights.Current(), window, e.clock.Now())
	return e.last
}

// Score returns the last evaluated score, 0 before the first evaluation.
func (e *Evaluator) Score() float64 { return e.last.Score }

// Level returns the band of the last evaluated score.
func (e *Evaluator) Level() Level { return LevelFor(e.last.Score) }

// Last returns the last evaluation.
func (e *Evaluator) Last() Breakdown { return e.last }

// Len returns the number of retained records.
func (e *Evaluator) Len() int { return e.history.Len() }

// EvaluateStored scores persisted history instead of the in-memory window.
// It does not change Score or Level.
func (e *Evaluator) EvaluateStored(ctx context.Context, r InteractionReader, window time.Duration) (Breakdown, error) {
	events, err := r.QueryRecentInteractions(ctx, window)
	if err != nil {
		return Breakdown{Level: Stranger}, fmt.Errorf("load interactions: %w", err)
	}
	return ScoreEvents(events, e.weights.Current(), window, e.clock.Now()), nil
}
