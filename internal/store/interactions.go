package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lazypower/rapport/internal/signal"
)

// AppendInteraction stores one interaction event in its own transaction and
// returns the new row id. A zero timestamp is replaced with the store clock.
// Duplicates are allowed.
func (db *DB) AppendInteraction(ctx context.Context, ev signal.Event) (int64, error) {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = db.now()
	}

	metadata := ev.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return 0, fmt.Errorf("%w: marshal metadata: %v", ErrStorage, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin append interaction: %v", ErrStorage, err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO interactions (timestamp, emotion, gesture, distance, duration, bond_score, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ts.UnixMilli(), nullIfEmpty(string(ev.Emotion)), nullIfEmpty(string(ev.Gesture)),
		ev.Distance, ev.Duration, ev.BondScore, string(metaJSON))
	if err != nil {
		return 0, fmt.Errorf("%w: append interaction: %v", ErrStorage, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit interaction: %v", ErrStorage, err)
	}

	id, _ := result.LastInsertId()
	return id, nil
}

// QueryRecentInteractions returns every interaction with timestamp >= now-window,
// newest first. A non-positive window yields no rows.
func (db *DB) QueryRecentInteractions(ctx context.Context, window time.Duration) ([]signal.Event, error) {
	if window <= 0 {
		return nil, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, timestamp, emotion, gesture, distance, duration, bond_score, metadata
		FROM interactions WHERE timestamp >= ?
		ORDER BY timestamp DESC, id DESC
	`, db.cutoff(window))
	if err != nil {
		return nil, fmt.Errorf("%w: query recent interactions: %v", ErrStorage, err)
	}
	defer rows.Close()

	var events []signal.Event
	for rows.Next() {
		ev, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate interactions: %v", ErrStorage, err)
	}
	return events, nil
}

// CountInteractions returns the number of interactions inside the window.
func (db *DB) CountInteractions(ctx context.Context, window time.Duration) (int, error) {
	if window <= 0 {
		return 0, nil
	}

	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM interactions WHERE timestamp >= ?
	`, db.cutoff(window)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: count interactions: %v", ErrStorage, err)
	}
	return count, nil
}

func scanInteraction(rows *sql.Rows) (signal.Event, error) {
	var (
		ev                            signal.Event
		ts                            int64
		emotion, gesture, metadata    sql.NullString
		distance, duration, bondScore sql.NullFloat64
	)
	if err := rows.Scan(&ev.ID, &ts, &emotion, &gesture, &distance, &duration, &bondScore, &metadata); err != nil {
		return signal.Event{}, fmt.Errorf("%w: scan interaction: %v", ErrStorage, err)
	}

	ev.Timestamp = time.UnixMilli(ts)
	ev.Emotion = signal.Emotion(emotion.String)
	ev.Gesture = signal.Gesture(gesture.String)
	ev.Distance = floatPtr(distance)
	ev.Duration = floatPtr(duration)
	ev.BondScore = floatPtr(bondScore)

	if metadata.Valid && metadata.String != "" && metadata.String != "{}" {
		if err := json.Unmarshal([]byte(metadata.String), &ev.Metadata); err != nil {
			return signal.Event{}, fmt.Errorf("%w: decode metadata for interaction %d: %v", ErrStorage, ev.ID, err)
		}
	}
	return ev, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
