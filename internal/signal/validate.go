package signal

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidSample marks malformed signal input.
var ErrInvalidSample = errors.New("invalid sample")

// FieldError describes one rejected bundle field.
type FieldError struct {
	Field string
	Rule  string
	Value any
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid sample: %s fails %q (got %v)", e.Field, e.Rule, e.Value)
}

func (e *FieldError) Unwrap() error { return ErrInvalidSample }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		switch fl.Field().Kind() {
		case reflect.Float32, reflect.Float64:
			f := fl.Field().Float()
			return !math.IsNaN(f) && !math.IsInf(f, 0)
		}
		return true
	})
	return v
}

// Sanitize drops every invalid field from b and returns what is left along
// with one error per dropped field. A confidence is dropped with its label.
func (b Bundle) Sanitize() (Bundle, []error) {
	err := validate.Struct(b)
	if err == nil {
		return b, nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Bundle{}, []error{fmt.Errorf("%w: %v", ErrInvalidSample, err)}
	}

	out := b
	rejected := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.StructField() {
		case "Emotion":
			out.Emotion = ""
			out.EmotionConfidence = nil
		case "EmotionConfidence":
			out.EmotionConfidence = nil
		case "Gesture":
			out.Gesture = ""
			out.GestureConfidence = nil
		case "GestureConfidence":
			out.GestureConfidence = nil
		case "Distance":
			out.Distance = nil
		case "Duration":
			out.Duration = nil
		}
		rejected = append(rejected, &FieldError{Field: fe.Field(), Rule: fe.Tag(), Value: fe.Value()})
	}
	return out, rejected
}

// ValidateDistance rejects negative and non-finite distances.
func ValidateDistance(meters float64) error {
	if math.IsNaN(meters) || math.IsInf(meters, 0) || meters < 0 {
		return &FieldError{Field: "distance", Rule: "finite,gte=0", Value: meters}
	}
	return nil
}

// ValidateSample checks a sub-stream sample for the given kind.
func ValidateSample(kind Kind, s Sample) error {
	switch kind {
	case KindEmotion, KindGesture:
		if s.Label == "" {
			return &FieldError{Field: "label", Rule: "required", Value: s.Label}
		}
	case KindDistance:
		if s.Value == nil {
			return &FieldError{Field: "value", Rule: "required", Value: nil}
		}
		if err := ValidateDistance(*s.Value); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSample, kind)
	}
	if c := s.Confidence; c != nil && (math.IsNaN(*c) || *c < 0 || *c > 1) {
		return &FieldError{Field: "confidence", Rule: "gte=0,lte=1", Value: *c}
	}
	return nil
}
