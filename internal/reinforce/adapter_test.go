package reinforce

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lazypower/rapport/internal/bond"
	"github.com/lazypower/rapport/internal/clock"
	"github.com/lazypower/rapport/internal/signal"
	"github.com/lazypower/rapport/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testStart = time.Date(2026, 3, 8, 3, 0, 0, 0, time.UTC)

type fakeHistory struct {
	emotions     map[string]int
	gestures     map[string]int
	distance     store.DistanceStats
	interactions int
	err          error
	panicOn      string
	lastWindow   time.Duration
}

func (f *fakeHistory) AggregateSignalCounts(_ context.Context, kind signal.Kind, window time.Duration) (map[string]int, error) {
	f.lastWindow = window
	if f.panicOn == "counts" {
		panic("boom")
	}
	if f.err != nil {
		return nil, f.err
	}
	if kind == signal.KindEmotion {
		return f.emotions, nil
	}
	return f.gestures, nil
}

func (f *fakeHistory) AggregateDistanceStats(context.Context, time.Duration) (store.DistanceStats, error) {
	return f.distance, f.err
}

func (f *fakeHistory) CountInteractions(context.Context, time.Duration) (int, error) {
	return f.interactions, f.err
}

func newTestAdapter(t *testing.T, h HistoryReader, opts ...Option) (*Adapter, *bond.Holder) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.WeightsFile = filepath.Join(t.TempDir(), "config", "bond_weights.json")
	holder := bond.NewHolder(bond.DefaultWeights())
	opts = append([]Option{WithClock(clock.NewManual(testStart)), WithLogger(zaptest.NewLogger(t))}, opts...)
	return New(h, holder, cfg, opts...), holder
}

func TestAnalyzeWindow(t *testing.T) {
	h := &fakeHistory{emotions: map[string]int{"happy": 3}, interactions: 5}
	a, _ := newTestAdapter(t, h)

	an, err := a.Analyze(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 7*1440*time.Minute, h.lastWindow)
	assert.Equal(t, 3, an.Emotions["happy"])
	assert.NotNil(t, an.Gestures, "nil counts become an empty map")
	assert.Equal(t, 5, an.Interactions)
}

func TestAnalyzeRejectsOversizedHorizon(t *testing.T) {
	h := &fakeHistory{interactions: 5}
	a, _ := newTestAdapter(t, h)

	an, err := a.Analyze(context.Background(), 200000)
	assert.ErrorIs(t, err, ErrAdaptation)
	assert.Zero(t, an.Interactions)
	assert.Zero(t, h.lastWindow, "store must not be queried with a wrapped window")

	_, err = a.Analyze(context.Background(), MaxDays)
	require.NoError(t, err)
	assert.Greater(t, h.lastWindow, time.Duration(0))
}

func TestAnalyzeStoreErrorYieldsEmpty(t *testing.T) {
	h := &fakeHistory{emotions: map[string]int{"happy": 3}, err: store.ErrStorage}
	a, _ := newTestAdapter(t, h)

	an, err := a.Analyze(context.Background(), 7)
	assert.ErrorIs(t, err, ErrAdaptation)
	assert.Empty(t, an.Emotions)
	assert.Equal(t, 0, an.Interactions)
}

func TestCalculateReward(t *testing.T) {
	a, _ := newTestAdapter(t, &fakeHistory{})

	an := Analysis{
		Days:         7,
		Emotions:     map[string]int{"happy": 5, "surprise": 1, "sad": 2, "angry": 1, "neutral": 1},
		Gestures:     map[string]int{"wave": 2, "come": 1, "point": 1},
		Interactions: 1008,
	}
	r, err := a.CalculateReward(an)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, r.Emotion, 1e-12)
	assert.InDelta(t, 0.75, r.Gesture, 1e-12)
	assert.InDelta(t, 0.1, r.Frequency, 1e-12)
	assert.InDelta(t, 0.4*0.3+0.3*0.75+0.3*0.1, r.Total, 1e-12)
}

func TestCalculateRewardNegativeEmotion(t *testing.T) {
	a, _ := newTestAdapter(t, &fakeHistory{})

	r, err := a.CalculateReward(Analysis{Days: 7, Emotions: map[string]int{"angry": 4}})
	require.NoError(t, err)
	assert.Equal(t, -1.0, r.Emotion)
	assert.Less(t, r.Total, 0.0)
}

func TestCalculateRewardZeroInteractions(t *testing.T) {
	a, _ := newTestAdapter(t, &fakeHistory{})

	r, err := a.CalculateReward(emptyAnalysis(7))
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.Frequency)
	assert.Equal(t, 0.0, r.Emotion)
	assert.Equal(t, 0.0, r.Gesture)
	assert.Equal(t, 0.0, r.Total)

	r, err = a.CalculateReward(emptyAnalysis(0))
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.Frequency, "zero-day horizon must not divide by zero")
}

func TestCalculateRewardFrequencySaturates(t *testing.T) {
	a, _ := newTestAdapter(t, &fakeHistory{})

	r, err := a.CalculateReward(Analysis{Days: 1, Interactions: 5000})
	require.NoError(t, err)
	assert.Equal(t, 1.0, r.Frequency)
}

func TestUpdateWeightsSumsToOne(t *testing.T) {
	a, holder := newTestAdapter(t, &fakeHistory{})

	for _, reward := range []float64{0.9, 0.1, 0.5, 0.71, 0.29, -0.4, 1.0} {
		w, _, err := a.UpdateWeights(reward)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, w.Sum(), bond.SumTolerance)
		assert.Equal(t, w, holder.Current())
	}
}

func TestUpdateWeightsDecisions(t *testing.T) {
	a, _ := newTestAdapter(t, &fakeHistory{})

	tests := []struct {
		reward float64
		want   Decision
	}{
		{0.9, Increase},
		{0.7, Hold},
		{0.5, Hold},
		{0.3, Hold},
		{0.1, Decrease},
	}
	for _, tt := range tests {
		_, d, err := a.UpdateWeights(tt.reward)
		require.NoError(t, err)
		assert.Equal(t, tt.want, d, "reward %v", tt.reward)
	}
}

func TestUpdateWeightsPreservesRatios(t *testing.T) {
	for _, reward := range []float64{0.9, 0.1} {
		a, _ := newTestAdapter(t, &fakeHistory{})
		var w bond.Weights
		for i := 0; i < 100; i++ {
			var err error
			w, _, err = a.UpdateWeights(reward)
			require.NoError(t, err)
		}
		assert.InDelta(t, 0.4/0.3, w.Emotion/w.Gesture, 1e-9, "reward %v", reward)
		assert.InDelta(t, 1.0, w.Gesture/w.Frequency, 1e-9, "reward %v", reward)
	}
}

func TestUpdateWeightsChainsVersions(t *testing.T) {
	a, _ := newTestAdapter(t, &fakeHistory{})

	w1, _, _ := a.UpdateWeights(0.9)
	w2, _, _ := a.UpdateWeights(0.9)
	assert.Equal(t, bond.DefaultVersion, w1.Parent)
	assert.Equal(t, w1.Version, w2.Parent)
	assert.Equal(t, testStart, w2.UpdatedAt)
}

func TestUpdateWeightsInvalidKeepsCurrent(t *testing.T) {
	a, holder := newTestAdapter(t, &fakeHistory{})
	bad := bond.Weights{Version: "bad", Emotion: math.NaN(), Gesture: 0.5, Frequency: 0.5}
	holder.Swap(bad)

	w, d, err := a.UpdateWeights(0.9)
	assert.ErrorIs(t, err, ErrAdaptation)
	assert.Equal(t, Hold, d)
	assert.Equal(t, "bad", w.Version)
	assert.Equal(t, "bad", holder.Current().Version)
}

func TestRunEndToEnd(t *testing.T) {
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetClock(clock.NewManual(testStart))

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		_, err := db.AppendInteraction(ctx, signal.Event{Emotion: signal.Happy, Gesture: signal.Wave})
		require.NoError(t, err)
		require.NoError(t, db.AppendSignal(ctx, signal.KindEmotion, signal.Sample{Label: "happy"}))
		require.NoError(t, db.AppendSignal(ctx, signal.KindGesture, signal.Sample{Label: "wave"}))
	}

	a, holder := newTestAdapter(t, db, WithRecorder(db))
	res := a.Run(ctx)

	assert.Empty(t, res.Errors)
	assert.Equal(t, 20, res.Analysis.Interactions)
	// 0.4*1 + 0.3*1 + 0.3*(20/10080) > 0.7
	assert.Equal(t, Increase, res.Decision)
	assert.True(t, res.Saved)
	assert.Equal(t, holder.Current(), res.Weights)
	assert.Equal(t, bond.DefaultVersion, res.Weights.Parent)

	versions, err := db.ListWeightVersions(ctx, 5)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, res.Weights.Version, versions[0].VersionID)
	assert.Equal(t, "increase", versions[0].Decision)
	require.NotNil(t, versions[0].Reward)
	assert.InDelta(t, res.Reward.Total, *versions[0].Reward, 1e-12)

	_, err = os.Stat(a.Config().WeightsFile)
	assert.NoError(t, err)
}

func TestRunDegradesOnStoreFailure(t *testing.T) {
	a, holder := newTestAdapter(t, &fakeHistory{err: errors.New("disk gone")})

	res := a.Run(context.Background())
	require.NotEmpty(t, res.Errors)
	assert.ErrorIs(t, res.Errors[0], ErrAdaptation)
	// Empty analysis scores 0, which sits under the low threshold.
	assert.Equal(t, 0.0, res.Reward.Total)
	assert.Equal(t, Decrease, res.Decision)
	assert.InDelta(t, 1.0, holder.Current().Sum(), bond.SumTolerance)
}

func TestRunRecoversPanic(t *testing.T) {
	a, _ := newTestAdapter(t, &fakeHistory{panicOn: "counts"})

	var res Result
	assert.NotPanics(t, func() { res = a.Run(context.Background()) })
	require.NotEmpty(t, res.Errors)
	assert.ErrorIs(t, res.Errors[0], ErrAdaptation)
	assert.Contains(t, res.Errors[0].Error(), "panicked")
}
