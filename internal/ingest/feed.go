package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/signal"
	"go.uber.org/zap"
)

// maxLine bounds one NDJSON record.
const maxLine = 1 << 20

// FeedStats counts what Feed did with its input.
type FeedStats struct {
	Sent     int  `json:"sent"`
	Skipped  int  `json:"skipped"`
	Failed   int  `json:"failed"`
	Rejected int  `json:"rejected_fields"`
	Offline  bool `json:"offline"`
}

// Feed reads newline-delimited JSON bundles from r and posts each one.
// Blank lines are ignored and malformed lines are skipped. When the server
// is unreachable Feed returns immediately with Offline set; the perception
// loop must never stall on rapport. onSnapshot, if set, sees every reply.
func Feed(ctx context.Context, c *Client, r io.Reader, log *zap.Logger, onSnapshot func(engine.Snapshot)) (FeedStats, error) {
	var stats FeedStats
	if log == nil {
		log = zap.NewNop()
	}

	if !c.Healthy(ctx) {
		log.Warn("server unreachable, dropping input", zap.String("url", c.URL()))
		stats.Offline = true
		return stats, nil
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		var b signal.Bundle
		if err := json.Unmarshal([]byte(text), &b); err != nil {
			log.Warn("skipping malformed bundle", zap.Int("line", line), zap.Error(err))
			stats.Skipped++
			continue
		}

		snap, err := c.Observe(ctx, b)
		if err != nil {
			log.Error("deliver bundle", zap.Int("line", line), zap.Error(err))
			stats.Failed++
			continue
		}
		stats.Sent++
		stats.Rejected += len(snap.Rejected)
		if onSnapshot != nil {
			onSnapshot(snap)
		}
	}
	return stats, sc.Err()
}
