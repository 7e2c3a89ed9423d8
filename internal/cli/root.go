package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lazypower/rapport/internal/bond"
	"github.com/lazypower/rapport/internal/config"
	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/store"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "rapport",
	Short: "Bond scoring for a companion robot",
	Long: "Rapport turns perceived emotions, gestures and distance into a running bond score\n" +
		"with its owner, and slowly adapts the scoring weights from recorded history.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default $RAPPORT_CONFIG or "+config.DefaultPath+")")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(observeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(trendsCmd)
	rootCmd.AddCommand(reinforceCmd)
	rootCmd.AddCommand(weightsCmd)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openDB(cfg config.Config) (*store.DB, error) {
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// engineOptions maps config onto the engine. Logger is left to the caller.
func engineOptions(cfg config.Config) engine.Options {
	return engine.Options{
		Window:    cfg.Session.Window,
		Capacity:  cfg.Session.Capacity,
		Proximity: cfg.Proximity,
		Reinforce: cfg.Reinforce,
	}
}

// serverURL resolves the server to talk to: flag, then RAPPORT_URL, then
// the configured listen address.
func serverURL(flag string, cfg config.Config) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("RAPPORT_URL"); env != "" {
		return env
	}
	return "http://" + cfg.ListenAddr()
}

var levelColors = map[bond.Level]*color.Color{
	bond.VeryClose: color.New(color.FgHiGreen, color.Bold),
	bond.Close:     color.New(color.FgGreen),
	bond.Neutral:   color.New(color.FgYellow),
	bond.Distant:   color.New(color.FgMagenta),
	bond.Stranger:  color.New(color.FgRed),
}

func levelColor(l bond.Level) *color.Color {
	if c, ok := levelColors[l]; ok {
		return c
	}
	return color.New(color.Reset)
}

func printSnapshot(w io.Writer, s engine.Snapshot) {
	levelColor(s.Level).Fprintf(w, "%-10s", s.Level)
	fmt.Fprintf(w, " score=%.3f proximity=%.3f in_range=%t", s.Score, s.Proximity, s.InRange)
	if s.Distance != nil {
		fmt.Fprintf(w, " distance=%.2fm", *s.Distance)
	}
	if len(s.Rejected) > 0 {
		color.New(color.FgRed).Fprintf(w, " rejected=%v", s.Rejected)
	}
	fmt.Fprintln(w)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
