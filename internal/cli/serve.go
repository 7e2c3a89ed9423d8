package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/logging"
	"github.com/lazypower/rapport/internal/server"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
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

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := engineOptions(cfg)
	opts.Logger = log
	eng := engine.New(db, opts)
	w := eng.LoadWeights(ctx)
	eng.StartReinforcementTimer(cfg.Reinforce.Interval)
	defer eng.Stop()

	srv := server.New(eng, VersionString(),
		server.WithLogger(log),
		server.WithCacheTTL(cfg.Server.CacheTTL),
	)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("rapport serving",
			zap.String("addr", httpServer.Addr),
			zap.String("db", db.Path),
			zap.String("weights_version", w.Version),
			zap.Duration("window", eng.Window()),
			zap.Duration("reinforce_interval", cfg.Reinforce.Interval),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", httpServer.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})
	return g.Wait()
}
