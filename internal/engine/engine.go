package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lazypower/rapport/internal/bond"
	"github.com/lazypower/rapport/internal/clock"
	"github.com/lazypower/rapport/internal/proximity"
	"github.com/lazypower/rapport/internal/reinforce"
	"github.com/lazypower/rapport/internal/signal"
	"github.com/lazypower/rapport/internal/store"
	"go.uber.org/zap"
)

// DefaultWindow is the trailing window the real-time path scores over.
const DefaultWindow = 60 * time.Minute

// Options configures an Engine. Zero values fall back to defaults.
type Options struct {
	Window    time.Duration
	Capacity  int // session events kept in memory
	Proximity proximity.Config
	Reinforce reinforce.Config
	Clock     clock.Clock
	Logger    *zap.Logger
}

// Snapshot is what the perception and display side sees after each bundle.
type Snapshot struct {
	Score          float64    `json:"score"`
	Level          bond.Level `json:"level"`
	InRange        bool       `json:"in_range"`
	Proximity      float64    `json:"proximity_score"`
	Distance       *float64   `json:"distance,omitempty"`
	EventID        int64      `json:"event_id,omitempty"`
	WeightsVersion string     `json:"weights_version"`
	Rejected       []string   `json:"rejected,omitempty"`
}

// Engine owns one observed subject's session: the proximity window, the bond
// evaluator and the weight adapter, all backed by one store.
type Engine struct {
	DB *store.DB

	mu        sync.Mutex // serializes the real-time path
	window    time.Duration
	proximity *proximity.Monitor
	evaluator *bond.Evaluator
	weights   *bond.Holder

	adaptMu sync.Mutex // one adaptation run at a time
	adapter *reinforce.Adapter

	clock    clock.Clock
	log      *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates an Engine on db with default weights. Call LoadWeights to
// restore persisted ones.
func New(db *store.DB, opts Options) *Engine {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Proximity == (proximity.Config{}) {
		opts.Proximity = proximity.DefaultConfig()
	}
	if opts.Reinforce == (reinforce.Config{}) {
		opts.Reinforce = reinforce.DefaultConfig()
	}
	if opts.Capacity <= 0 {
		opts.Capacity = bond.DefaultCapacity
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	holder := bond.NewHolder(bond.DefaultWeights())
	e := &Engine{
		DB:      db,
		window:  opts.Window,
		weights: holder,
		clock:   opts.Clock,
		log:     opts.Logger.Named("engine"),
		stopCh:  make(chan struct{}),
	}
	e.proximity = proximity.New(opts.Proximity,
		proximity.WithClock(opts.Clock),
		proximity.WithSink(db),
		proximity.WithLogger(opts.Logger),
	)
	e.evaluator = bond.NewEvaluator(
		bond.WithClock(opts.Clock),
		bond.WithWeights(holder),
		bond.WithCapacity(opts.Capacity),
	)
	e.adapter = reinforce.New(db, holder, opts.Reinforce,
		reinforce.WithClock(opts.Clock),
		reinforce.WithLogger(opts.Logger),
		reinforce.WithRecorder(db),
	)
	return e
}

// Window returns the default scoring window.
func (e *Engine) Window() time.Duration { return e.window }

// Observe takes one bundle from the perception layer. Invalid fields are
// dropped and reported in Snapshot.Rejected; the rest of the bundle is still
// processed. Storage failures are logged and never fail the call.
func (e *Engine) Observe(ctx context.Context, b signal.Bundle) Snapshot {
	clean, errs := b.Sanitize()
	rejected := make([]string, 0, len(errs))
	for _, err := range errs {
		var fe *signal.FieldError
		if errors.As(err, &fe) {
			rejected = append(rejected, fe.Field)
		} else {
			rejected = append(rejected, err.Error())
		}
		e.log.Warn("rejected bundle field", zap.Error(err))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(rejected) > 0 && clean.Empty() {
		snap := e.snapshotLocked()
		snap.Rejected = rejected
		return snap
	}

	if clean.Distance != nil {
		if err := e.proximity.UpdateDistance(ctx, *clean.Distance); err != nil {
			e.log.Warn("distance update", zap.Error(err))
		}
	}

	ev := e.evaluator.RecordInteraction(clean)
	score := e.evaluator.Evaluate(e.window).Score
	ev.BondScore = &score

	id, err := e.DB.AppendInteraction(ctx, ev)
	if err != nil {
		e.log.Error("append interaction", zap.Error(err))
	}
	if clean.Emotion != "" {
		e.appendSignal(ctx, signal.KindEmotion, signal.Sample{
			Timestamp:  ev.Timestamp,
			Label:      string(clean.Emotion),
			Confidence: clean.EmotionConfidence,
		})
	}
	if clean.Gesture != "" {
		e.appendSignal(ctx, signal.KindGesture, signal.Sample{
			Timestamp:  ev.Timestamp,
			Label:      string(clean.Gesture),
			Confidence: clean.GestureConfidence,
		})
	}

	snap := e.snapshotLocked()
	snap.EventID = id
	if len(rejected) > 0 {
		snap.Rejected = rejected
	}
	return snap
}

func (e *Engine) appendSignal(ctx context.Context, kind signal.Kind, s signal.Sample) {
	if err := e.DB.AppendSignal(ctx, kind, s); err != nil {
		e.log.Error("append signal", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// Snapshot returns the current score, level and range without recording.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	last := e.evaluator.Last()
	snap := Snapshot{
		Score:          last.Score,
		Level:          bond.LevelFor(last.Score),
		InRange:        e.proximity.InRange(),
		Proximity:      e.proximity.Score(e.window),
		WeightsVersion: e.weights.Current().Version,
	}
	if d, ok := e.proximity.CurrentDistance(); ok {
		snap.Distance = &d
	}
	return snap
}

// Bond scores the in-memory history over window. Unlike Observe it leaves
// the session score untouched.
func (e *Engine) Bond(window time.Duration) bond.Breakdown {
	e.mu.Lock()
	defer e.mu.Unlock()
	return bond.ScoreEvents(e.evaluator.Events(window), e.weights.Current(), window, e.clock.Now())
}

// StoredBond scores persisted history over window.
func (e *Engine) StoredBond(ctx context.Context, window time.Duration) (bond.Breakdown, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evaluator.EvaluateStored(ctx, e.DB, window)
}

// ProximityStatus is the proximity monitor's view of a window.
type ProximityStatus struct {
	Window          string   `json:"window"`
	Score           float64  `json:"score"`
	InRange         bool     `json:"in_range"`
	Frequency       float64  `json:"interaction_frequency"`
	AverageDistance *float64 `json:"average_distance"`
	CurrentDistance *float64 `json:"current_distance"`
	MinDistance     float64  `json:"min_distance"`
	MaxDistance     float64  `json:"max_distance"`
}

// Proximity reports the proximity monitor over window.
func (e *Engine) Proximity(window time.Duration) ProximityStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg := e.proximity.Config()
	st := ProximityStatus{
		Window:      window.String(),
		Score:       e.proximity.Score(window),
		InRange:     e.proximity.InRange(),
		Frequency:   e.proximity.InteractionFrequency(window),
		MinDistance: cfg.MinDistance,
		MaxDistance: cfg.MaxDistance,
	}
	if avg, ok := e.proximity.AverageDistance(window); ok {
		st.AverageDistance = &avg
	}
	if d, ok := e.proximity.CurrentDistance(); ok {
		st.CurrentDistance = &d
	}
	return st
}

// Weights returns the weights currently in effect.
func (e *Engine) Weights() bond.Weights { return e.weights.Current() }

// LoadWeights restores weights from the configured weights file. Failures
// are logged and the current weights stay in effect.
func (e *Engine) LoadWeights(ctx context.Context) bond.Weights {
	e.adaptMu.Lock()
	defer e.adaptMu.Unlock()

	w, err := e.adapter.LoadWeights(ctx, e.adapter.Config().WeightsFile)
	if err != nil {
		e.log.Error("load weights", zap.Error(err))
	}
	return w
}

// Reinforce runs one adaptation cycle.
func (e *Engine) Reinforce(ctx context.Context) reinforce.Result {
	e.adaptMu.Lock()
	defer e.adaptMu.Unlock()

	res := e.adapter.Run(ctx)
	e.log.Info("reinforcement finished",
		zap.String("decision", string(res.Decision)),
		zap.Float64("reward", res.Reward.Total),
		zap.String("version", res.Weights.Version),
		zap.Int("stage_errors", len(res.Errors)),
	)
	return res
}

// StartReinforcementTimer runs the adapter every interval until Stop.
// An interval <= 0 disables the timer.
func (e *Engine) StartReinforcementTimer(interval time.Duration) {
	if interval <= 0 {
		e.log.Info("reinforcement timer disabled")
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				select {
				case <-e.stopCh:
					return
				default:
				}
				e.Reinforce(context.Background())
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Done is closed when Stop is called.
func (e *Engine) Done() <-chan struct{} { return e.stopCh }

// Stop shuts down the engine's background goroutines and waits for a
// running adaptation to finish. Safe to call twice.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}
