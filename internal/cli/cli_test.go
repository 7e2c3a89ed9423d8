package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/rapport/internal/config"
	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/signal"
	"github.com/lazypower/rapport/internal/store"
)

func init() { color.NoColor = true }

// isolate points config at a temp database and weights file.
func isolate(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("RAPPORT_CONFIG", filepath.Join(dir, "absent.yaml"))
	t.Setenv("RAPPORT_DB", filepath.Join(dir, "rapport.db"))
	t.Setenv("RAPPORT_WEIGHTS_FILE", filepath.Join(dir, "bond_weights.json"))
	t.Setenv("RAPPORT_URL", "")
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestServerURL(t *testing.T) {
	cfg := config.Default()
	t.Setenv("RAPPORT_URL", "")
	assert.Equal(t, "http://127.0.0.1:37778", serverURL("", cfg))

	t.Setenv("RAPPORT_URL", "http://robot:1")
	assert.Equal(t, "http://robot:1", serverURL("", cfg))
	assert.Equal(t, "http://flag:2", serverURL("http://flag:2", cfg))
}

func TestPrintSnapshot(t *testing.T) {
	var buf bytes.Buffer
	printSnapshot(&buf, engine.Snapshot{
		Score:     0.704,
		Level:     "close",
		InRange:   true,
		Proximity: 0.9,
		Distance:  signal.F64(1.25),
		Rejected:  []string{"gesture"},
	})
	got := buf.String()
	assert.True(t, strings.HasPrefix(got, "close "), got)
	assert.Contains(t, got, "score=0.704")
	assert.Contains(t, got, "distance=1.25m")
	assert.Contains(t, got, "rejected=[gesture]")
}

func TestVersionCommand(t *testing.T) {
	assert.Contains(t, run(t, "version"), "rapport dev")
}

func TestTrendsCommand(t *testing.T) {
	cfg := isolate(t)

	db, err := store.Open(cfg.Database.Path)
	require.NoError(t, err)
	eng := engine.New(db, engineOptions(cfg))
	ctx := context.Background()
	eng.Observe(ctx, signal.Bundle{Emotion: signal.Happy, Gesture: signal.Wave, Distance: signal.F64(1)})
	eng.Observe(ctx, signal.Bundle{Emotion: signal.Happy, Distance: signal.F64(2)})
	eng.Observe(ctx, signal.Bundle{Emotion: signal.Sad})
	eng.Stop()
	require.NoError(t, db.Close())

	out := run(t, "trends", "--json")
	trendsJSON = false

	var got struct {
		Trends   []signal.Trend      `json:"trends"`
		Distance store.DistanceStats `json:"distance"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Trends, 2)
	assert.Equal(t, signal.KindEmotion, got.Trends[0].Kind)
	assert.Equal(t, 3, got.Trends[0].Total)
	assert.Equal(t, "happy", got.Trends[0].Dominant)
	assert.Equal(t, 1, got.Trends[1].Counts["wave"])
	assert.Equal(t, 2, got.Distance.Count)
	require.NotNil(t, got.Distance.Avg)
	assert.InDelta(t, 1.5, *got.Distance.Avg, 1e-9)

	text := run(t, "trends")
	assert.Contains(t, text, "*happy")
	assert.Contains(t, text, "avg 1.50m")
}

func TestWeightsCommandDefaults(t *testing.T) {
	isolate(t)
	out := run(t, "weights", "--json", "--history", "5")
	weightsJSON, weightsHistory = false, 0

	var got struct {
		Current struct {
			Version string  `json:"version"`
			Emotion float64 `json:"emotion"`
		} `json:"current"`
		History []store.WeightVersion `json:"history"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "default", got.Current.Version)
	assert.InDelta(t, 0.4, got.Current.Emotion, 1e-9)
	assert.Empty(t, got.History, "reading weights must not record a version")
}
