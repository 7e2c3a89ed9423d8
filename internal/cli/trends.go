package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/rapport/internal/signal"
	"github.com/lazypower/rapport/internal/store"
)

var (
	trendsWindow time.Duration
	trendsJSON   bool
)

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Summarize stored emotion, gesture and distance history",
	RunE:  runTrends,
}

func init() {
	trendsCmd.Flags().DurationVar(&trendsWindow, "window", 24*time.Hour, "how far back to look")
	trendsCmd.Flags().BoolVar(&trendsJSON, "json", false, "print JSON")
}

func runTrends(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	var trends []signal.Trend
	for _, kind := range []signal.Kind{signal.KindEmotion, signal.KindGesture} {
		counts, err := db.AggregateSignalCounts(ctx, kind, trendsWindow)
		if err != nil {
			return err
		}
		trends = append(trends, signal.NewTrend(kind, counts))
	}
	dist, err := db.AggregateDistanceStats(ctx, trendsWindow)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if trendsJSON {
		return printJSON(out, map[string]any{
			"window":   trendsWindow.String(),
			"trends":   trends,
			"distance": dist,
		})
	}

	fmt.Fprintf(out, "last %s\n", trendsWindow)
	for _, t := range trends {
		printTrend(out, t)
	}
	printDistance(out, dist)
	return nil
}

const barWidth = 30

func printTrend(w io.Writer, t signal.Trend) {
	fmt.Fprintf(w, "\n%s (%d)\n", t.Kind, t.Total)
	if t.Total == 0 {
		fmt.Fprintln(w, "  no samples")
		return
	}
	labels := make([]string, 0, len(t.Counts))
	for l := range t.Counts {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if t.Counts[labels[i]] != t.Counts[labels[j]] {
			return t.Counts[labels[i]] > t.Counts[labels[j]]
		}
		return labels[i] < labels[j]
	})
	for _, l := range labels {
		n := t.Counts[l]
		bar := strings.Repeat("#", max(1, n*barWidth/t.Total))
		marker := " "
		if l == t.Dominant {
			marker = "*"
		}
		fmt.Fprintf(w, " %s%-9s %5d %s\n", marker, l, n, bar)
	}
}

func printDistance(w io.Writer, d store.DistanceStats) {
	fmt.Fprintf(w, "\ndistance (%d)\n", d.Count)
	if d.Count == 0 || d.Avg == nil {
		fmt.Fprintln(w, "  no samples")
		return
	}
	fmt.Fprintf(w, "  avg %.2fm  min %.2fm  max %.2fm\n", *d.Avg, *d.Min, *d.Max)
}
