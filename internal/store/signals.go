package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lazypower/rapport/internal/signal"
)

// DistanceStats summarizes distance samples in a window. Avg, Min and Max are
// nil when the window holds no samples; zero is a valid distance.
type DistanceStats struct {
	Avg   *float64 `json:"avg"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Count int      `json:"count"`
}

// labelTables maps the labelled sub-streams to their table and label column.
var labelTables = map[signal.Kind]struct{ table, column string }{
	signal.KindEmotion: {"emotion_history", "emotion"},
	signal.KindGesture: {"gesture_history", "gesture"},
}

// AppendSignal stores one sample on the sub-stream for kind.
func (db *DB) AppendSignal(ctx context.Context, kind signal.Kind, s signal.Sample) error {
	if err := signal.ValidateSample(kind, s); err != nil {
		return err
	}

	ts := s.Timestamp
	if ts.IsZero() {
		ts = db.now()
	}

	var err error
	switch kind {
	case signal.KindEmotion, signal.KindGesture:
		t := labelTables[kind]
		_, err = db.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (timestamp, %s, confidence) VALUES (?, ?, ?)`, t.table, t.column),
			ts.UnixMilli(), s.Label, s.Confidence)
	case signal.KindDistance:
		_, err = db.ExecContext(ctx, `
			INSERT INTO distance_history (timestamp, distance) VALUES (?, ?)
		`, ts.UnixMilli(), *s.Value)
	}
	if err != nil {
		return fmt.Errorf("%w: append %s sample: %v", ErrStorage, kind, err)
	}
	return nil
}

// AggregateSignalCounts returns label -> occurrence count for emotion or
// gesture samples inside the window. No samples yields an empty map.
func (db *DB) AggregateSignalCounts(ctx context.Context, kind signal.Kind, window time.Duration) (map[string]int, error) {
	t, ok := labelTables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no label counts for %s samples", ErrStorage, kind)
	}

	counts := make(map[string]int)
	if window <= 0 {
		return counts, nil
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %[1]s, COUNT(*) FROM %[2]s
		WHERE timestamp >= ?
		GROUP BY %[1]s
	`, t.column, t.table), db.cutoff(window))
	if err != nil {
		return nil, fmt.Errorf("%w: aggregate %s counts: %v", ErrStorage, kind, err)
	}
	defer rows.Close()

	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("%w: scan %s count: %v", ErrStorage, kind, err)
		}
		counts[label] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate %s counts: %v", ErrStorage, kind, err)
	}
	return counts, nil
}

// AggregateDistanceStats returns avg/min/max over distance samples in the window.
func (db *DB) AggregateDistanceStats(ctx context.Context, window time.Duration) (DistanceStats, error) {
	var stats DistanceStats
	if window <= 0 {
		return stats, nil
	}

	var avg, lo, hi sql.NullFloat64
	err := db.QueryRowContext(ctx, `
		SELECT AVG(distance), MIN(distance), MAX(distance), COUNT(*)
		FROM distance_history WHERE timestamp >= ?
	`, db.cutoff(window)).Scan(&avg, &lo, &hi, &stats.Count)
	if err != nil {
		return DistanceStats{}, fmt.Errorf("%w: aggregate distance stats: %v", ErrStorage, err)
	}

	stats.Avg = floatPtr(avg)
	stats.Min = floatPtr(lo)
	stats.Max = floatPtr(hi)
	return stats, nil
}
