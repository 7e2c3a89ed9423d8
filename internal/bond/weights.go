package bond

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultVersion identifies the compiled-in weights.
const DefaultVersion = "default"

// SumTolerance is how far Sum may drift from 1 after a mutation.
const SumTolerance = 1e-9

// Weights are the three bond coefficients. A Weights value is never mutated
// in place; adaptation derives a new version with Next.
type Weights struct {
	Version   string    `json:"version"`
	Parent    string    `json:"parent,omitempty"`
	Emotion   float64   `json:"emotion"`
	Gesture   float64   `json:"gesture"`
	Frequency float64   `json:"frequency"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultWeights returns 0.4 emotion, 0.3 gesture, 0.3 frequency.
func DefaultWeights() Weights {
	return Weights{
		Version:   DefaultVersion,
		Emotion:   0.4,
		Gesture:   0.3,
		Frequency: 0.3,
	}
}

// Sum returns the total of the three coefficients.
func (w Weights) Sum() float64 {
	return w.Emotion + w.Gesture + w.Frequency
}

// Normalized reports whether the coefficients sum to 1 within SumTolerance.
func (w Weights) Normalized() bool {
	return math.Abs(w.Sum()-1) <= SumTolerance
}

// Validate checks that every coefficient is finite and non-negative and that
// their sum is positive.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{"emotion": w.Emotion, "gesture": w.Gesture, "frequency": w.Frequency} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("weight %s = %v: must be finite and non-negative", name, v)
		}
	}
	if w.Sum() <= 0 {
		return fmt.Errorf("weights sum to %v: must be positive", w.Sum())
	}
	return nil
}

// Normalize divides every coefficient by the sum. Weights that already sum to
// 1 within SumTolerance are returned untouched so a saved vector reloads
// bit-for-bit.
func (w Weights) Normalize() (Weights, error) {
	if err := w.Validate(); err != nil {
		return w, err
	}
	if w.Normalized() {
		return w, nil
	}
	total := w.Sum()
	w.Emotion /= total
	w.Gesture /= total
	w.Frequency /= total
	return w, nil
}

// Scale multiplies every coefficient by f and renormalizes.
func (w Weights) Scale(f float64) (Weights, error) {
	w.Emotion *= f
	w.Gesture *= f
	w.Frequency *= f
	total := w.Sum()
	if err := w.Validate(); err != nil {
		return w, err
	}
	w.Emotion /= total
	w.Gesture /= total
	w.Frequency /= total
	return w, nil
}

// Next returns w as a fresh version whose parent is w.
func (w Weights) Next(at time.Time) Weights {
	w.Parent = w.Version
	w.Version = uuid.NewString()
	w.UpdatedAt = at
	return w
}

// WeightSource hands out the weights currently in effect.
type WeightSource interface {
	Current() Weights
}

// Holder publishes weights snapshots. Readers always see a complete version.
type Holder struct {
	p atomic.Pointer[Weights]
}

// NewHolder returns a Holder publishing w.
func NewHolder(w Weights) *Holder {
	h := &Holder{}
	h.p.Store(&w)
	return h
}

// Current returns the published weights, or the defaults on a zero Holder.
func (h *Holder) Current() Weights {
	if w := h.p.Load(); w != nil {
		return *w
	}
	return DefaultWeights()
}

// Swap publishes w and returns the previous weights.
func (h *Holder) Swap(w Weights) Weights {
	if old := h.p.Swap(&w); old != nil {
		return *old
	}
	return DefaultWeights()
}
