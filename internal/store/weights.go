package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// WeightVersion is one row of the bond weight adaptation history.
type WeightVersion struct {
	VersionID string    `json:"version_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Emotion   float64   `json:"emotion"`
	Gesture   float64   `json:"gesture"`
	Frequency float64   `json:"frequency"`
	Reward    *float64  `json:"reward,omitempty"`
	Decision  string    `json:"decision"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordWeightVersion appends a weight version. Re-recording an existing
// version id is a no-op.
func (db *DB) RecordWeightVersion(ctx context.Context, v WeightVersion) error {
	createdAt := v.CreatedAt
	if createdAt.IsZero() {
		createdAt = db.now()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO weight_versions (version_id, parent_id, emotion, gesture, frequency, reward, decision, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(version_id) DO NOTHING
	`, v.VersionID, nullIfEmpty(v.ParentID), v.Emotion, v.Gesture, v.Frequency, v.Reward, v.Decision, createdAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("%w: record weight version: %v", ErrStorage, err)
	}
	return nil
}

// ListWeightVersions returns the most recent weight versions, newest first.
func (db *DB) ListWeightVersions(ctx context.Context, limit int) ([]WeightVersion, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT version_id, parent_id, emotion, gesture, frequency, reward, decision, created_at
		FROM weight_versions ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list weight versions: %v", ErrStorage, err)
	}
	defer rows.Close()

	var versions []WeightVersion
	for rows.Next() {
		var (
			v         WeightVersion
			parentID  sql.NullString
			reward    sql.NullFloat64
			createdAt int64
		)
		if err := rows.Scan(&v.VersionID, &parentID, &v.Emotion, &v.Gesture, &v.Frequency, &reward, &v.Decision, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan weight version: %v", ErrStorage, err)
		}
		v.ParentID = parentID.String
		v.Reward = floatPtr(reward)
		v.CreatedAt = time.UnixMilli(createdAt)
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate weight versions: %v", ErrStorage, err)
	}
	return versions, nil
}
