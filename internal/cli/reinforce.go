package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/logging"
	"github.com/lazypower/rapport/internal/reinforce"
)

var reinforceJSON bool

var reinforceCmd = &cobra.Command{
	Use:   "reinforce",
	Short: "Run one weight adaptation cycle against stored history",
	Long: "Aggregates the last reinforce.days of history, computes a reward and nudges\n" +
		"the bond weights up or down by the learning rate. The result is written to\n" +
		"the weights file, which a running server picks up on its next restart.",
	RunE: runReinforce,
}

func init() {
	reinforceCmd.Flags().BoolVar(&reinforceJSON, "json", false, "print JSON")
}

func runReinforce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := engineOptions(cfg)
	opts.Logger = log
	eng := engine.New(db, opts)
	defer eng.Stop()

	ctx := cmd.Context()
	eng.LoadWeights(ctx)
	res := eng.Reinforce(ctx)

	out := cmd.OutOrStdout()
	if reinforceJSON {
		errs := make([]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			errs = append(errs, e.Error())
		}
		return printJSON(out, struct {
			reinforce.Result
			Errors []string `json:"errors"`
		}{res, errs})
	}

	an := res.Analysis
	fmt.Fprintf(out, "history: %d days, %d interactions, %d distance samples\n",
		an.Days, an.Interactions, an.Distance.Count)
	fmt.Fprintf(out, "reward:  emotion=%.3f gesture=%.3f frequency=%.3f total=%.3f\n",
		res.Reward.Emotion, res.Reward.Gesture, res.Reward.Frequency, res.Reward.Total)
	decisionColor(res.Decision).Fprintf(out, "decision: %s\n", res.Decision)
	fmt.Fprintln(out, "weights:")
	printWeights(out, res.Weights)
	if res.Saved {
		fmt.Fprintf(out, "saved to %s\n", cfg.Reinforce.WeightsFile)
	}
	for _, e := range res.Errors {
		color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "stage error: %v\n", e)
	}
	return nil
}

func decisionColor(d reinforce.Decision) *color.Color {
	switch d {
	case reinforce.Increase:
		return color.New(color.FgGreen)
	case reinforce.Decrease:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}
