// Package proximity tracks how far the owner stands from the agent and how
// often a distance is observed.
package proximity

import (
	"context"
	"time"

	"github.com/lazypower/rapport/internal/clock"
	"github.com/lazypower/rapport/internal/ring"
	"github.com/lazypower/rapport/internal/signal"
	"go.uber.org/zap"
)

const (
	// DefaultCapacity bounds the in-memory window; older samples are dropped.
	DefaultCapacity = 1000
	// frequencySaturation is the samples/minute rate that scores 1.0.
	frequencySaturation = 10.0
)

// Config sets the valid interaction range in meters.
type Config struct {
	MinDistance float64 `yaml:"min_distance" validate:"gte=0"`
	MaxDistance float64 `yaml:"max_distance" validate:"gtfield=MinDistance"`
	Capacity    int     `yaml:"capacity" validate:"gte=1"`
}

// DefaultConfig returns a 0.5m..5m range with a 1000-sample window.
func DefaultConfig() Config {
	return Config{
		MinDistance: 0.5,
		MaxDistance: 5.0,
		Capacity:    DefaultCapacity,
	}
}

// Sink receives forwarded distance samples. *store.DB satisfies it.
type Sink interface {
	AppendSignal(ctx context.Context, kind signal.Kind, s signal.Sample) error
}

type sample struct {
	meters float64
	at     time.Time
}

// Monitor is a rolling window over distance observations. It is owned by a
// single session and must not be mutated concurrently.
type Monitor struct {
	cfg     Config
	samples *ring.Buffer[sample]
	clock   clock.Clock
	sink    Sink
	log     *zap.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the wall clock.
func WithClock(c clock.Clock) Option { return func(m *Monitor) { m.clock = c } }

// WithSink forwards every accepted sample to s.
func WithSink(s Sink) Option { return func(m *Monitor) { m.sink = s } }

// WithLogger sets the logger used for rejected samples and sink failures.
func WithLogger(l *zap.Logger) Option { return func(m *Monitor) { m.log = l.Named("proximity") } }

// New creates a Monitor.
func New(cfg Config, opts ...Option) *Monitor {
	if cfg.Capacity < 1 {
		cfg.Capacity = DefaultCapacity
	}
	m := &Monitor{
		cfg:   cfg,
		clock: clock.System{},
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.samples = ring.New[sample](cfg.Capacity)
	return m
}

// Config returns the monitor configuration.
func (m *Monitor) Config() Config { return m.cfg }

// UpdateDistance records a distance observed now. Negative or non-finite
// values are rejected with signal.ErrInvalidSample. Sink failures are logged
// and do not fail the update.
func (m *Monitor) UpdateDistance(ctx context.Context, meters float64) error {
	if err := signal.ValidateDistance(meters); err != nil {
		m.log.Warn("rejected distance sample", zap.Float64("meters", meters), zap.Error(err))
		return err
	}

	now := m.clock.Now()
	m.samples.Push(sample{meters: meters, at: now})

	if m.sink != nil {
		v := meters
		if err := m.sink.AppendSignal(ctx, signal.KindDistance, signal.Sample{Timestamp: now, Value: &v}); err != nil {
			m.log.Error("forward distance sample", zap.Error(err))
		}
	}
	return nil
}

// inWindow calls fn for each sample with at >= now-window. Timestamps are not
// assumed monotonic, so the whole buffer is scanned.
func (m *Monitor) inWindow(window time.Duration, fn func(sample)) {
	if window <= 0 {
		return
	}
	start := m.clock.Now().Add(-window)
	m.samples.Each(func(s sample) bool {
		if !s.at.Before(start) {
			fn(s)
		}
		return true
	})
}

// InteractionFrequency returns in-window samples per minute, 0 if none.
func (m *Monitor) InteractionFrequency(window time.Duration) float64 {
	count := 0
	m.inWindow(window, func(sample) { count++ })
	if count == 0 {
		return 0
	}
	return float64(count) / window.Minutes()
}

// AverageDistance returns the mean in-window distance. ok is false when the
// window holds no samples.
func (m *Monitor) AverageDistance(window time.Duration) (avg float64, ok bool) {
	var sum float64
	count := 0
	m.inWindow(window, func(s sample) {
		sum += s.meters
		count++
	})
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// CurrentDistance returns the latest recorded distance.
func (m *Monitor) CurrentDistance() (float64, bool) {
	s, ok := m.samples.Last()
	return s.meters, ok
}

// InRange reports whether the latest distance lies in [min, max].
func (m *Monitor) InRange() bool {
	d, ok := m.CurrentDistance()
	if !ok {
		return false
	}
	return d >= m.cfg.MinDistance && d <= m.cfg.MaxDistance
}

// Score combines closeness and observation rate:
// 0.6*clamp(1-avg/max) + 0.4*clamp(freq/10). Returns 0 without an average.
func (m *Monitor) Score(window time.Duration) float64 {
	avg, ok := m.AverageDistance(window)
	if !ok {
		return 0
	}

	distanceScore := clamp01(1 - avg/m.cfg.MaxDistance)
	frequencyScore := clamp01(m.InteractionFrequency(window) / frequencySaturation)
	return 0.6*distanceScore + 0.4*frequencyScore
}

// Len returns the number of retained samples.
func (m *Monitor) Len() int { return m.samples.Len() }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
