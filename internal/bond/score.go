// Package bond turns recent interaction history into a bond score and level.
package bond

import (
	"time"

	"github.com/lazypower/rapport/internal/signal"
)

// frequencySaturation is the interactions/minute rate that scores 1.0.
const frequencySaturation = 5.0

var emotionWeights = map[signal.Emotion]float64{
	signal.Happy:    1.0,
	signal.Surprise: 0.8,
	signal.Neutral:  0.5,
	signal.Sad:      0.3,
	signal.Angry:    0.1,
	signal.Fear:     0.1,
	signal.Disgust:  0.1,
}

var gestureWeights = map[signal.Gesture]float64{
	signal.Wave:  1.0,
	signal.Come:  0.9,
	signal.Point: 0.7,
	signal.Stop:  0.5,
	signal.None:  0.0,
}

// EmotionWeight returns the table weight for e. Unknown labels weigh 0.5.
func EmotionWeight(e signal.Emotion) float64 {
	if w, ok := emotionWeights[e]; ok {
		return w
	}
	return 0.5
}

// GestureWeight returns the table weight for g. Unknown labels weigh 0.
func GestureWeight(g signal.Gesture) float64 {
	return gestureWeights[g]
}

// Level is the categorical reading of a bond score.
type Level string

const (
	VeryClose Level = "very close"
	Close     Level = "close"
	Neutral   Level = "neutral"
	Distant   Level = "distant"
	Stranger  Level = "stranger"
)

// LevelFor maps a score to its band. Lower bounds are inclusive.
func LevelFor(score float64) Level {
	switch {
	case score >= 0.8:
		return VeryClose
	case score >= 0.6:
		return Close
	case score >= 0.4:
		return Neutral
	case score >= 0.2:
		return Distant
	default:
		return Stranger
	}
}

// Breakdown is a scored window with its components.
type Breakdown struct {
	Emotion        float64 `json:"emotion_score"`
	Gesture        float64 `json:"gesture_score"`
	Frequency      float64 `json:"interaction_frequency"`
	FrequencyScore float64 `json:"frequency_score"`
	Score          float64 `json:"score"`
	Level          Level   `json:"level"`
	Count          int     `json:"count"`
	WeightsVersion string  `json:"weights_version"`
}

// ScoreEvents scores the events whose timestamp is within window of now.
// The same function backs the in-memory evaluator and the stored history.
func ScoreEvents(events []signal.Event, w Weights, window time.Duration, now time.Time) Breakdown {
	in := inWindow(events, window, now)
	b := Breakdown{
		Emotion:        emotionScore(in),
		Gesture:        gestureScore(in),
		Frequency:      frequency(len(in), window),
		Count:          len(in),
		WeightsVersion: w.Version,
	}
	b.FrequencyScore = min(1.0, b.Frequency/frequencySaturation)
	b.Score = w.Emotion*b.Emotion + w.Gesture*b.Gesture + w.Frequency*b.FrequencyScore
	b.Level = LevelFor(b.Score)
	return b
}

func inWindow(events []signal.Event, window time.Duration, now time.Time) []signal.Event {
	if window <= 0 {
		return nil
	}
	start := now.Add(-window)
	var out []signal.Event
	for _, ev := range events {
		if !ev.Timestamp.Before(start) {
			out = append(out, ev)
		}
	}
	return out
}

// emotionScore accumulates the same table weight into both the numerator and
// the denominator, so any non-zero total yields 1.0. Kept as observed
// behavior; see DESIGN.md before changing it.
func emotionScore(events []signal.Event) float64 {
	var weighted, total float64
	for _, ev := range events {
		if ev.Emotion == "" {
			continue
		}
		w := EmotionWeight(ev.Emotion)
		total += w
		weighted += w
	}
	if total > 0 {
		return weighted / total
	}
	return 0
}

// gestureScore has the same shape as emotionScore. Records whose gestures
// all weigh 0 (none, unknown) score 0.
func gestureScore(events []signal.Event) float64 {
	var weighted, total float64
	for _, ev := range events {
		if ev.Gesture == "" {
			continue
		}
		w := GestureWeight(ev.Gesture)
		total += w
		weighted += w
	}
	if total > 0 {
		return weighted / total
	}
	return 0
}

func frequency(count int, window time.Duration) float64 {
	if count == 0 || window <= 0 {
		return 0
	}
	return float64(count) / window.Minutes()
}
