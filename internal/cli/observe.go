package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/ingest"
	"github.com/lazypower/rapport/internal/logging"
)

var (
	observeURL   string
	observeQuiet bool
)

var observeCmd = &cobra.Command{
	Use:   "observe",
	Short: "Stream newline-delimited JSON signal bundles from stdin to the server",
	Long: "Each input line is one bundle, e.g.\n\n" +
		`  {"emotion":"happy","emotion_confidence":0.9,"gesture":"wave","distance":1.2}` + "\n\n" +
		"Malformed lines are skipped. If the server is down the input is dropped\n" +
		"and the command still exits 0.",
	RunE: runObserve,
}

func init() {
	observeCmd.Flags().StringVar(&observeURL, "url", "", "server URL (default $RAPPORT_URL or the configured listen address)")
	observeCmd.Flags().BoolVarP(&observeQuiet, "quiet", "q", false, "do not print a snapshot per bundle")
}

func runObserve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lc := cfg.Logging
	lc.File = ""
	log, err := logging.New(lc, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer log.Sync()

	out := cmd.OutOrStdout()
	onSnapshot := func(s engine.Snapshot) {
		if !observeQuiet {
			printSnapshot(out, s)
		}
	}

	client := ingest.NewClient(serverURL(observeURL, cfg))
	stats, err := ingest.Feed(cmd.Context(), client, cmd.InOrStdin(), log, onSnapshot)
	if err != nil {
		return err
	}

	errOut := cmd.ErrOrStderr()
	if stats.Offline {
		color.New(color.FgYellow).Fprintf(errOut, "server %s unreachable, input dropped\n", client.URL())
		return nil
	}
	fmt.Fprintf(errOut, "sent %d, skipped %d, failed %d, rejected fields %d\n",
		stats.Sent, stats.Skipped, stats.Failed, stats.Rejected)
	return nil
}
