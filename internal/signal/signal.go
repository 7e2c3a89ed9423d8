// Package signal defines the interaction signals the perception layer hands
// in (emotion, gesture, distance, duration) and the records built from them.
package signal

import (
	"fmt"
	"time"
)

// Emotion is a label from the emotion vocabulary. Empty means absent.
type Emotion string

const (
	Happy    Emotion = "happy"
	Surprise Emotion = "surprise"
	Neutral  Emotion = "neutral"
	Sad      Emotion = "sad"
	Angry    Emotion = "angry"
	Fear     Emotion = "fear"
	Disgust  Emotion = "disgust"
)

// Emotions lists the closed emotion vocabulary.
var Emotions = []Emotion{Happy, Surprise, Neutral, Sad, Angry, Fear, Disgust}

// Known reports whether e belongs to the vocabulary.
func (e Emotion) Known() bool {
	for _, v := range Emotions {
		if e == v {
			return true
		}
	}
	return false
}

// Gesture is a label from the gesture vocabulary. Empty means absent.
type Gesture string

const (
	Wave  Gesture = "wave"
	Come  Gesture = "come"
	Point Gesture = "point"
	Stop  Gesture = "stop"
	None  Gesture = "none"
)

// Gestures lists the closed gesture vocabulary.
var Gestures = []Gesture{Wave, Come, Point, Stop, None}

// Known reports whether g belongs to the vocabulary.
func (g Gesture) Known() bool {
	for _, v := range Gestures {
		if g == v {
			return true
		}
	}
	return false
}

// Kind names a per-signal sub-stream.
type Kind string

const (
	KindEmotion  Kind = "emotion"
	KindGesture  Kind = "gesture"
	KindDistance Kind = "distance"
)

// ParseKind converts s to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindEmotion, KindGesture, KindDistance:
		return k, nil
	}
	return "", fmt.Errorf("unknown signal kind %q", s)
}

// Bundle is one delivery from the perception layer. Every field is optional.
type Bundle struct {
	Emotion           Emotion        `json:"emotion,omitempty" validate:"omitempty,max=64"`
	EmotionConfidence *float64       `json:"emotion_confidence,omitempty" validate:"omitempty,finite,gte=0,lte=1"`
	Gesture           Gesture        `json:"gesture,omitempty" validate:"omitempty,max=64"`
	GestureConfidence *float64       `json:"gesture_confidence,omitempty" validate:"omitempty,finite,gte=0,lte=1"`
	Distance          *float64       `json:"distance,omitempty" validate:"omitempty,finite,gte=0"`
	Duration          *float64       `json:"duration,omitempty" validate:"omitempty,finite,gte=0"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// Empty reports whether the bundle carries no signal at all.
func (b Bundle) Empty() bool {
	return b.Emotion == "" && b.Gesture == "" && b.Distance == nil && b.Duration == nil
}

// Event stamps the bundle with ts.
func (b Bundle) Event(ts time.Time) Event {
	return Event{
		Timestamp: ts,
		Emotion:   b.Emotion,
		Gesture:   b.Gesture,
		Distance:  b.Distance,
		Duration:  b.Duration,
		Metadata:  b.Metadata,
	}
}

// Event is one observed interaction (an InteractionEvent). Immutable once stored.
type Event struct {
	ID        int64          `json:"id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Emotion   Emotion        `json:"emotion,omitempty"`
	Gesture   Gesture        `json:"gesture,omitempty"`
	Distance  *float64       `json:"distance,omitempty"`
	Duration  *float64       `json:"duration,omitempty"`
	BondScore *float64       `json:"bond_score,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Sample is a single point on one sub-stream. Label is set for emotion and
// gesture samples, Value for distance samples.
type Sample struct {
	Timestamp  time.Time `json:"timestamp"`
	Label      string    `json:"label,omitempty"`
	Value      *float64  `json:"value,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// F64 returns a pointer to v.
func F64(v float64) *float64 { return &v }
