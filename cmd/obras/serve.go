package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"obras/internal/config"
	"obras/internal/server"
	"obras/internal/storage/sqlite"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and serve the frontend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().String("addr", "", "HTTP listen address")
	cmd.Flags().String("static", "", "directory with the built frontend")
	a.bindFlags(cmd, map[string]string{
		config.KeyAddr:      "addr",
		config.KeyStaticDir: "static",
	})
	return cmd
}

// serve runs until ctx is cancelled, then drains in-flight requests for at
// most the configured shutdown timeout.
func (a *app) serve(ctx context.Context) error {
	logger := a.logger
	logger.Info("obras starting", slog.String("version", version), slog.String("db", a.cfg.DBPath))

	store, err := sqlite.Open(a.cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	srv := server.New(store, logger, server.Options{
		StaticDir:               a.cfg.StaticDir,
		CORSOrigins:             a.cfg.CORSOrigins,
		Location:                a.cfg.Location(),
		NeedsDataRequireStarted: a.cfg.NeedsDataRequireStarted,
	})

	httpServer := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", slog.String("error", err.Error()))
		return err
	}
	logger.Info("server stopped")
	return nil
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := sqlite.Open(a.cfg.DBPath, a.logger)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			a.logger.Info("database ready", slog.String("db", a.cfg.DBPath))
			return store.Close()
		},
	}
}
