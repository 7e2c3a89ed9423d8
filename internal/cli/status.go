package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lazypower/rapport/internal/bond"
	"github.com/lazypower/rapport/internal/ingest"
)

var (
	statusURL    string
	statusWindow time.Duration
	statusJSON   bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current bond",
	Long: "Asks the running server for its snapshot. When no server answers, the bond\n" +
		"is scored from the stored interaction history instead.",
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusURL, "url", "", "server URL (default $RAPPORT_URL or the configured listen address)")
	statusCmd.Flags().DurationVar(&statusWindow, "window", 0, "scoring window for the offline fallback (default session window)")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	client := ingest.NewClient(serverURL(statusURL, cfg))
	if snap, err := client.Status(ctx); err == nil {
		if statusJSON {
			return printJSON(out, snap)
		}
		printSnapshot(out, snap)
		fmt.Fprintf(out, "weights %s (live from %s)\n", snap.WeightsVersion, client.URL())
		return nil
	}

	window := statusWindow
	if window <= 0 {
		window = cfg.Session.Window
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	holder, err := persistedWeights(ctx, cfg, db)
	if err != nil {
		color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "%v, using current weights\n", err)
	}
	b, err := bond.NewEvaluator(bond.WithWeights(holder)).EvaluateStored(ctx, db, window)
	if err != nil {
		return err
	}
	if statusJSON {
		return printJSON(out, b)
	}
	printBreakdown(out, b, window)
	color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "server %s unreachable, scored from %s\n", client.URL(), db.Path)
	return nil
}

func printBreakdown(w io.Writer, b bond.Breakdown, window time.Duration) {
	levelColor(b.Level).Fprintf(w, "%-10s", b.Level)
	fmt.Fprintf(w, " score=%.3f over %s (%d interactions)\n", b.Score, window, b.Count)
	fmt.Fprintf(w, "  emotion   %.3f\n", b.Emotion)
	fmt.Fprintf(w, "  gesture   %.3f\n", b.Gesture)
	fmt.Fprintf(w, "  frequency %.3f/min (score %.3f)\n", b.Frequency, b.FrequencyScore)
	fmt.Fprintf(w, "weights %s\n", b.WeightsVersion)
}
