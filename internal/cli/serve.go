package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/server"
	"github.com/lazypower/rapport/internal/tracker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	backend, desc, closeFn, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	eng := engine.New(backend, cfg.Scoring, engine.WithLogger(logger))

	// Sessions left open by a previous run cannot be trusted; close them now.
	reg := tracker.New(backend, logger)
	if n, err := reg.Recover(ctx, time.Now()); err != nil {
		logger.Warn("recover voice sessions", "err", err)
	} else if n > 0 {
		logger.Info("closed stale voice sessions", "count", n)
	}

	srv := server.New(backend, eng, reg, server.Options{
		Version:        VersionString(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errc := make(chan error, 1)
	go func() {
		logger.Info("rapport serving", "addr", addr, "store", desc, "rank_mode", cfg.Scoring.RankMode)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case <-done:
	case err := <-errc:
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	// Members still connected get their sessions closed at shutdown time.
	if err := reg.Shutdown(shutdownCtx, time.Now()); err != nil {
		logger.Warn("close voice sessions", "err", err)
	}
	return nil
}
