package store

import (
	"context"
	"testing"
	"time"

	"github.com/lazypower/rapport/internal/signal"
)

func TestAppendInteraction(t *testing.T) {
	db, _ := testDB(t)
	ctx := context.Background()

	id, err := db.AppendInteraction(ctx, signal.Event{
		Emotion:   signal.Happy,
		Gesture:   signal.Wave,
		Distance:  signal.F64(1.5),
		Duration:  signal.F64(4),
		BondScore: signal.F64(0.72),
		Metadata:  map[string]any{"camera": "front", "frames": 12.0},
	})
	if err != nil {
		t.Fatalf("AppendInteraction: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero id")
	}

	events, err := db.QueryRecentInteractions(ctx, time.Hour)
	if err != nil {
		t.Fatalf("QueryRecentInteractions: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	ev := events[0]
	if !ev.Timestamp.Equal(testStart) {
		t.Errorf("Timestamp = %v, want %v", ev.Timestamp, testStart)
	}
	if ev.Emotion != signal.Happy || ev.Gesture != signal.Wave {
		t.Errorf("labels = %q/%q, want happy/wave", ev.Emotion, ev.Gesture)
	}
	if ev.Distance == nil || *ev.Distance != 1.5 {
		t.Errorf("Distance = %v, want 1.5", ev.Distance)
	}
	if ev.BondScore == nil || *ev.BondScore != 0.72 {
		t.Errorf("BondScore = %v, want 0.72", ev.BondScore)
	}
	if ev.Metadata["camera"] != "front" || ev.Metadata["frames"] != 12.0 {
		t.Errorf("Metadata = %v", ev.Metadata)
	}
}

func TestAppendInteractionAbsentFields(t *testing.T) {
	db, _ := testDB(t)
	ctx := context.Background()

	if _, err := db.AppendInteraction(ctx, signal.Event{}); err != nil {
		t.Fatalf("AppendInteraction: %v", err)
	}

	events, _ := db.QueryRecentInteractions(ctx, time.Minute)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Emotion != "" || ev.Gesture != "" {
		t.Errorf("labels = %q/%q, want empty", ev.Emotion, ev.Gesture)
	}
	if ev.Distance != nil || ev.Duration != nil || ev.BondScore != nil {
		t.Errorf("expected nil numeric fields, got %+v", ev)
	}

	var metadata string
	db.QueryRow("SELECT metadata FROM interactions").Scan(&metadata)
	if metadata != "{}" {
		t.Errorf("stored metadata = %q, want {}", metadata)
	}
}

func TestQueryRecentInteractionsWindowAndOrder(t *testing.T) {
	db, clk := testDB(t)
	ctx := context.Background()

	db.AppendInteraction(ctx, signal.Event{Emotion: signal.Sad}) // t0
	clk.Advance(30 * time.Minute)
	db.AppendInteraction(ctx, signal.Event{Emotion: signal.Neutral}) // t0+30m
	clk.Advance(20 * time.Minute)
	db.AppendInteraction(ctx, signal.Event{Emotion: signal.Happy}) // t0+50m
	db.AppendInteraction(ctx, signal.Event{Emotion: signal.Happy}) // duplicate, same instant

	events, err := db.QueryRecentInteractions(ctx, 20*time.Minute)
	if err != nil {
		t.Fatalf("QueryRecentInteractions: %v", err)
	}
	// Window boundary is inclusive: the t0+30m record sits exactly at now-20m.
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Emotion != signal.Happy || events[2].Emotion != signal.Neutral {
		t.Errorf("order = %q, %q, %q; want newest first", events[0].Emotion, events[1].Emotion, events[2].Emotion)
	}
	if events[0].ID < events[1].ID {
		t.Error("same-timestamp rows should be ordered by id descending")
	}

	n, err := db.CountInteractions(ctx, time.Hour)
	if err != nil {
		t.Fatalf("CountInteractions: %v", err)
	}
	if n != 4 {
		t.Errorf("CountInteractions = %d, want 4", n)
	}
}

func TestQueryRecentInteractionsEmpty(t *testing.T) {
	db, _ := testDB(t)
	ctx := context.Background()

	events, err := db.QueryRecentInteractions(ctx, time.Hour)
	if err != nil {
		t.Fatalf("QueryRecentInteractions: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events from empty store, want 0", len(events))
	}

	db.AppendInteraction(ctx, signal.Event{Emotion: signal.Happy})
	for _, w := range []time.Duration{0, -time.Minute} {
		events, err := db.QueryRecentInteractions(ctx, w)
		if err != nil {
			t.Errorf("window %v: unexpected error %v", w, err)
		}
		if len(events) != 0 {
			t.Errorf("window %v: got %d events, want 0", w, len(events))
		}
	}
}
