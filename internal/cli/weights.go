package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lazypower/rapport/internal/bond"
	"github.com/lazypower/rapport/internal/config"
	"github.com/lazypower/rapport/internal/reinforce"
	"github.com/lazypower/rapport/internal/store"
)

var (
	weightsHistory int
	weightsJSON    bool
)

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Show the persisted bond weights and their version history",
	RunE:  runWeights,
}

func init() {
	weightsCmd.Flags().IntVar(&weightsHistory, "history", 0, "also list the last N weight versions")
	weightsCmd.Flags().BoolVar(&weightsJSON, "json", false, "print JSON")
}

// persistedWeights loads the weights file into a fresh holder without
// recording a version. On error the holder carries the defaults.
func persistedWeights(ctx context.Context, cfg config.Config, db *store.DB) (*bond.Holder, error) {
	holder := bond.NewHolder(bond.DefaultWeights())
	_, err := reinforce.New(db, holder, cfg.Reinforce).LoadWeights(ctx, cfg.Reinforce.WeightsFile)
	return holder, err
}

func runWeights(cmd *cobra.Command, args []string) error {
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
	holder, err := persistedWeights(ctx, cfg, db)
	if err != nil {
		return err
	}
	current := holder.Current()

	var history []store.WeightVersion
	if weightsHistory > 0 {
		if history, err = db.ListWeightVersions(ctx, weightsHistory); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if weightsJSON {
		return printJSON(out, map[string]any{
			"file":    cfg.Reinforce.WeightsFile,
			"current": current,
			"history": history,
		})
	}

	fmt.Fprintf(out, "%s\n", cfg.Reinforce.WeightsFile)
	printWeights(out, current)
	if len(history) > 0 {
		fmt.Fprintln(out, "\nhistory:")
		for _, v := range history {
			reward := "    -"
			if v.Reward != nil {
				reward = fmt.Sprintf("%.3f", *v.Reward)
			}
			fmt.Fprintf(out, "  %s  %-8s reward=%s  e=%.4f g=%.4f f=%.4f  %s\n",
				v.CreatedAt.Format("2006-01-02 15:04:05"), v.Decision, reward,
				v.Emotion, v.Gesture, v.Frequency, v.VersionID)
		}
	}
	return nil
}

func printWeights(w io.Writer, wt bond.Weights) {
	fmt.Fprintf(w, "  version   %s\n", wt.Version)
	if wt.Parent != "" {
		fmt.Fprintf(w, "  parent    %s\n", wt.Parent)
	}
	fmt.Fprintf(w, "  emotion   %.4f\n", wt.Emotion)
	fmt.Fprintf(w, "  gesture   %.4f\n", wt.Gesture)
	fmt.Fprintf(w, "  frequency %.4f\n", wt.Frequency)
	if !wt.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "  updated   %s\n", wt.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	}
}
