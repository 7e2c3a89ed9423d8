// Package reinforce re-weights the bond coefficients from long-horizon
// history. One Run walks analyze, score, adapt and persist once.
package reinforce

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/lazypower/rapport/internal/bond"
	"github.com/lazypower/rapport/internal/clock"
	"github.com/lazypower/rapport/internal/signal"
	"github.com/lazypower/rapport/internal/store"
	"go.uber.org/zap"
)

// ErrAdaptation marks a failed stage. A failed stage yields its neutral value
// and never stops the host.
var ErrAdaptation = errors.New("adaptation failure")

var (
	positiveEmotions = []string{string(signal.Happy), string(signal.Surprise)}
	negativeEmotions = []string{string(signal.Angry), string(signal.Sad)}
	positiveGestures = []string{string(signal.Wave), string(signal.Come)}
)

// HistoryReader is the aggregate side of the event store.
type HistoryReader interface {
	AggregateSignalCounts(ctx context.Context, kind signal.Kind, window time.Duration) (map[string]int, error)
	AggregateDistanceStats(ctx context.Context, window time.Duration) (store.DistanceStats, error)
	CountInteractions(ctx context.Context, window time.Duration) (int, error)
}

// VersionRecorder keeps the adaptation history.
type VersionRecorder interface {
	RecordWeightVersion(ctx context.Context, v store.WeightVersion) error
}

// MaxDays bounds the history horizon; a century keeps the window well
// inside time.Duration.
const MaxDays = 36500

// Config controls the adaptation loop.
type Config struct {
	Days         int           `yaml:"days" validate:"gte=1,lte=36500"`
	LearningRate float64       `yaml:"learning_rate" validate:"gt=0,lt=1"`
	HighReward   float64       `yaml:"high_reward" validate:"gte=-1,lte=1"`
	LowReward    float64       `yaml:"low_reward" validate:"gte=-1,ltefield=HighReward"`
	WeightsFile  string        `yaml:"weights_file" validate:"required"`
	Interval     time.Duration `yaml:"interval" validate:"gte=0"`
}

// DefaultConfig returns a 7 day horizon, learning rate 0.01 and the
// 0.7/0.3 reward thresholds.
func DefaultConfig() Config {
	return Config{
		Days:         7,
		LearningRate: 0.01,
		HighReward:   0.7,
		LowReward:    0.3,
		WeightsFile:  "config/bond_weights.json",
		Interval:     24 * time.Hour,
	}
}

// Decision is what UpdateWeights did with the weights.
type Decision string

const (
	Increase Decision = "increase"
	Decrease Decision = "decrease"
	Hold     Decision = "hold"
	Load     Decision = "load"
)

// Analysis is the aggregated history a reward is computed from.
type Analysis struct {
	Days         int                 `json:"days"`
	Emotions     map[string]int      `json:"emotion_trend"`
	Gestures     map[string]int      `json:"gesture_trend"`
	Distance     store.DistanceStats `json:"distance_stats"`
	Interactions int                 `json:"interaction_count"`
}

// Reward holds each reward component and the weighted total.
type Reward struct {
	Emotion   float64 `json:"emotion"`
	Gesture   float64 `json:"gesture"`
	Frequency float64 `json:"frequency"`
	Total     float64 `json:"total"`
}

// Result summarizes one Run. Errors lists the stages that fell back to
// their neutral value.
type Result struct {
	Analysis Analysis     `json:"analysis"`
	Reward   Reward       `json:"reward"`
	Decision Decision     `json:"decision"`
	Previous bond.Weights `json:"previous"`
	Weights  bond.Weights `json:"weights"`
	Saved    bool         `json:"saved"`
	Errors   []error      `json:"-"`
}

// Adapter runs the adaptation loop against a weights holder.
type Adapter struct {
	cfg      Config
	history  HistoryReader
	holder   *bond.Holder
	recorder VersionRecorder
	clock    clock.Clock
	log      *zap.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithClock overrides the wall clock.
func WithClock(c clock.Clock) Option { return func(a *Adapter) { a.clock = c } }

// WithLogger sets the adapter logger.
func WithLogger(l *zap.Logger) Option { return func(a *Adapter) { a.log = l.Named("reinforce") } }

// WithRecorder records every published weight version.
func WithRecorder(r VersionRecorder) Option { return func(a *Adapter) { a.recorder = r } }

// New creates an Adapter publishing into holder.
func New(history HistoryReader, holder *bond.Holder, cfg Config, opts ...Option) *Adapter {
	a := &Adapter{
		cfg:     cfg,
		history: history,
		holder:  holder,
		clock:   clock.System{},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the adapter configuration.
func (a *Adapter) Config() Config { return a.cfg }

// Weights returns the weights currently published.
func (a *Adapter) Weights() bond.Weights { return a.holder.Current() }

func emptyAnalysis(days int) Analysis {
	return Analysis{Days: days, Emotions: map[string]int{}, Gestures: map[string]int{}}
}

// Analyze aggregates days*1440 minutes of history. On any store error the
// empty analysis is returned along with an ErrAdaptation.
func (a *Adapter) Analyze(ctx context.Context, days int) (Analysis, error) {
	if days > MaxDays {
		return emptyAnalysis(days), fmt.Errorf("%w: horizon of %d days exceeds %d", ErrAdaptation, days, MaxDays)
	}
	window := time.Duration(days) * 24 * time.Hour
	out := emptyAnalysis(days)

	emotions, err := a.history.AggregateSignalCounts(ctx, signal.KindEmotion, window)
	if err != nil {
		return emptyAnalysis(days), fmt.Errorf("%w: emotion trend: %v", ErrAdaptation, err)
	}
	gestures, err := a.history.AggregateSignalCounts(ctx, signal.KindGesture, window)
	if err != nil {
		return emptyAnalysis(days), fmt.Errorf("%w: gesture trend: %v", ErrAdaptation, err)
	}
	distance, err := a.history.AggregateDistanceStats(ctx, window)
	if err != nil {
		return emptyAnalysis(days), fmt.Errorf("%w: distance stats: %v", ErrAdaptation, err)
	}
	count, err := a.history.CountInteractions(ctx, window)
	if err != nil {
		return emptyAnalysis(days), fmt.Errorf("%w: interaction count: %v", ErrAdaptation, err)
	}

	if emotions != nil {
		out.Emotions = emotions
	}
	if gestures != nil {
		out.Gestures = gestures
	}
	out.Distance = distance
	out.Interactions = count
	return out, nil
}

// CalculateReward scores an analysis with the current weights. The emotion
// component lies in [-1, 1]. A non-finite total yields a zero Reward and
// ErrAdaptation.
func (a *Adapter) CalculateReward(an Analysis) (Reward, error) {
	var r Reward

	emotionTotal := sum(an.Emotions)
	if emotionTotal == 0 {
		emotionTotal = 1
	}
	r.Emotion = float64(pick(an.Emotions, positiveEmotions)-pick(an.Emotions, negativeEmotions)) / float64(emotionTotal)

	gestureTotal := sum(an.Gestures)
	if gestureTotal == 0 {
		gestureTotal = 1
	}
	r.Gesture = float64(pick(an.Gestures, positiveGestures)) / float64(gestureTotal)

	if minutes := float64(an.Days) * 1440; minutes > 0 {
		r.Frequency = math.Min(1, math.Max(0, float64(an.Interactions)/minutes))
	}

	w := a.holder.Current()
	r.Total = w.Emotion*r.Emotion + w.Gesture*r.Gesture + w.Frequency*r.Frequency
	if math.IsNaN(r.Total) || math.IsInf(r.Total, 0) {
		return Reward{}, fmt.Errorf("%w: reward is %v", ErrAdaptation, r.Total)
	}
	return r, nil
}

// UpdateWeights scales every weight up above the high threshold and down
// below the low one, renormalizes and publishes the result as a new
// version. On failure the published weights are left alone.
func (a *Adapter) UpdateWeights(reward float64) (bond.Weights, Decision, error) {
	current := a.holder.Current()

	decision := Hold
	factor := 1.0
	switch {
	case reward > a.cfg.HighReward:
		decision, factor = Increase, 1+a.cfg.LearningRate
	case reward < a.cfg.LowReward:
		decision, factor = Decrease, 1-a.cfg.LearningRate
	}

	var (
		next bond.Weights
		err  error
	)
	if decision == Hold {
		next, err = current.Normalize()
	} else {
		next, err = current.Scale(factor)
	}
	if err != nil {
		return current, Hold, fmt.Errorf("%w: update weights: %v", ErrAdaptation, err)
	}

	next = next.Next(a.clock.Now())
	a.holder.Swap(next)
	a.log.Info("updated weights",
		zap.String("decision", string(decision)),
		zap.Float64("reward", reward),
		zap.Float64("emotion", next.Emotion),
		zap.Float64("gesture", next.Gesture),
		zap.Float64("frequency", next.Frequency),
		zap.String("version", next.Version),
	)
	return next, decision, nil
}

// Run executes one full adaptation cycle. It never returns an error and
// never panics; failed stages are logged and listed in Result.Errors.
func (a *Adapter) Run(ctx context.Context) Result {
	res := Result{
		Analysis: emptyAnalysis(a.cfg.Days),
		Decision: Hold,
		Previous: a.holder.Current(),
	}
	res.Weights = res.Previous

	a.stage(&res, "analyze", func() error {
		var err error
		res.Analysis, err = a.Analyze(ctx, a.cfg.Days)
		return err
	})

	a.stage(&res, "score", func() error {
		var err error
		res.Reward, err = a.CalculateReward(res.Analysis)
		return err
	})
	a.log.Info("calculated reward", zap.Float64("reward", res.Reward.Total))

	a.stage(&res, "adapt", func() error {
		w, d, err := a.UpdateWeights(res.Reward.Total)
		res.Weights, res.Decision = w, d
		return err
	})

	if res.Weights.Version != res.Previous.Version {
		a.record(ctx, res.Weights, &res.Reward.Total, res.Decision)
	}

	a.stage(&res, "persist", func() error {
		if err := a.SaveWeights(a.cfg.WeightsFile); err != nil {
			return err
		}
		res.Saved = true
		return nil
	})
	return res
}

// stage runs fn, converting a panic into ErrAdaptation.
func (a *Adapter) stage(res *Result, name string, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %s panicked: %v", ErrAdaptation, name, r)
			}
		}()
		return fn()
	}()
	if err != nil {
		a.log.Error("reinforcement stage failed", zap.String("stage", name), zap.Error(err))
		res.Errors = append(res.Errors, err)
	}
}

func (a *Adapter) record(ctx context.Context, w bond.Weights, reward *float64, d Decision) {
	if a.recorder == nil {
		return
	}
	v := store.WeightVersion{
		VersionID: w.Version,
		ParentID:  w.Parent,
		Emotion:   w.Emotion,
		Gesture:   w.Gesture,
		Frequency: w.Frequency,
		Reward:    reward,
		Decision:  string(d),
		CreatedAt: w.UpdatedAt,
	}
	if err := a.recorder.RecordWeightVersion(ctx, v); err != nil {
		a.log.Warn("record weight version", zap.String("version", w.Version), zap.Error(err))
	}
}

func sum(counts map[string]int) int {
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}

func pick(counts map[string]int, labels []string) int {
	n := 0
	for _, l := range labels {
		n += counts[l]
	}
	return n
}
