package signal

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeValidBundle(t *testing.T) {
	b := Bundle{Emotion: Happy, Gesture: Wave, Distance: F64(1.2), Duration: F64(3)}

	out, rejected := b.Sanitize()

	assert.Empty(t, rejected)
	assert.Equal(t, b, out)
}

func TestSanitizeDropsNegativeDistanceOnly(t *testing.T) {
	b := Bundle{Emotion: Happy, Gesture: Wave, Distance: F64(-1), Duration: F64(2)}

	out, rejected := b.Sanitize()

	require.Len(t, rejected, 1)
	assert.True(t, errors.Is(rejected[0], ErrInvalidSample))
	var fe *FieldError
	require.True(t, errors.As(rejected[0], &fe))
	assert.Equal(t, "distance", fe.Field)

	assert.Nil(t, out.Distance)
	assert.Equal(t, Happy, out.Emotion)
	assert.Equal(t, Wave, out.Gesture)
	require.NotNil(t, out.Duration)
	assert.Equal(t, 2.0, *out.Duration)
}

func TestSanitizeRejectsNonFinite(t *testing.T) {
	b := Bundle{Distance: F64(math.NaN()), Duration: F64(math.Inf(1))}

	out, rejected := b.Sanitize()

	assert.Len(t, rejected, 2)
	assert.Nil(t, out.Distance)
	assert.Nil(t, out.Duration)
	assert.True(t, out.Empty())
}

func TestSanitizeConfidenceOutOfRange(t *testing.T) {
	b := Bundle{Emotion: Sad, EmotionConfidence: F64(1.5)}

	out, rejected := b.Sanitize()

	require.Len(t, rejected, 1)
	assert.Equal(t, Sad, out.Emotion, "label survives a bad confidence")
	assert.Nil(t, out.EmotionConfidence)
}

func TestValidateSample(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		sample  Sample
		wantErr bool
	}{
		{"emotion ok", KindEmotion, Sample{Label: "happy", Confidence: F64(0.9)}, false},
		{"emotion missing label", KindEmotion, Sample{}, true},
		{"gesture bad confidence", KindGesture, Sample{Label: "wave", Confidence: F64(-0.1)}, true},
		{"distance ok", KindDistance, Sample{Value: F64(0)}, false},
		{"distance negative", KindDistance, Sample{Value: F64(-0.5)}, true},
		{"distance missing", KindDistance, Sample{}, true},
		{"unknown kind", Kind("smell"), Sample{Label: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSample(tt.kind, tt.sample)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSample)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("gesture")
	require.NoError(t, err)
	assert.Equal(t, KindGesture, k)

	_, err = ParseKind("smell")
	assert.Error(t, err)
}

func TestVocabulary(t *testing.T) {
	assert.True(t, Surprise.Known())
	assert.False(t, Emotion("bored").Known())
	assert.True(t, None.Known())
	assert.False(t, Gesture("clap").Known())
}
