package reinforce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/lazypower/rapport/internal/bond"
	"go.uber.org/zap"
)

// weightsFile is the on-disk weights record.
type weightsFile struct {
	Weights struct {
		Emotion   float64 `json:"emotion"`
		Gesture   float64 `json:"gesture"`
		Frequency float64 `json:"frequency"`
	} `json:"weights"`
	LastUpdated string `json:"last_updated"`
	Version     string `json:"version,omitempty"`
	Parent      string `json:"parent,omitempty"`
}

// SaveWeights writes the published weights to path. The file is replaced
// atomically so a crash never leaves a half-written record.
func (a *Adapter) SaveWeights(path string) error {
	w := a.holder.Current()

	var rec weightsFile
	rec.Weights.Emotion = w.Emotion
	rec.Weights.Gesture = w.Gesture
	rec.Weights.Frequency = w.Frequency
	updated := w.UpdatedAt
	if updated.IsZero() {
		updated = a.clock.Now()
	}
	rec.LastUpdated = updated.UTC().Format(time.RFC3339Nano)
	rec.Version = w.Version
	rec.Parent = w.Parent

	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: encode weights: %v", ErrAdaptation, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create weights dir: %v", ErrAdaptation, err)
	}
	tmp, err := os.CreateTemp(dir, ".bond_weights-*.json")
	if err != nil {
		return fmt.Errorf("%w: create temp weights file: %v", ErrAdaptation, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write weights: %v", ErrAdaptation, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync weights: %v", ErrAdaptation, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close weights: %v", ErrAdaptation, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: replace weights file: %v", ErrAdaptation, err)
	}

	a.log.Info("saved weights", zap.String("path", path), zap.String("version", w.Version))
	return nil
}

// LoadWeights reads path and publishes its weights. A missing file keeps the
// current weights and is not an error. Any other failure also keeps the
// current weights and is returned.
func (a *Adapter) LoadWeights(ctx context.Context, path string) (bond.Weights, error) {
	current := a.holder.Current()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		a.log.Info("no weights file, using current weights", zap.String("path", path), zap.String("version", current.Version))
		return current, nil
	}
	if err != nil {
		return current, fmt.Errorf("%w: read weights: %v", ErrAdaptation, err)
	}

	var rec weightsFile
	if err := json.Unmarshal(data, &rec); err != nil {
		return current, fmt.Errorf("%w: decode weights %s: %v", ErrAdaptation, path, err)
	}

	w := bond.Weights{
		Version:   rec.Version,
		Parent:    rec.Parent,
		Emotion:   rec.Weights.Emotion,
		Gesture:   rec.Weights.Gesture,
		Frequency: rec.Weights.Frequency,
	}
	w, err = w.Normalize()
	if err != nil {
		return current, fmt.Errorf("%w: weights in %s: %v", ErrAdaptation, path, err)
	}
	// Every load is its own version, parented on the file's.
	w = w.Next(a.clock.Now())
	if ts, ok := parseTimestamp(rec.LastUpdated); ok {
		w.UpdatedAt = ts
	}

	a.holder.Swap(w)
	a.record(ctx, w, nil, Load)
	a.log.Info("loaded weights", zap.String("path", path), zap.String("version", w.Version))
	return w, nil
}

// timestampLayouts are tried in order. Naive timestamps are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
