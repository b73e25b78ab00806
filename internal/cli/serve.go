package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	apihttp "github.com/veranemoloko/download-panel/internal/api/http"
	"github.com/veranemoloko/download-panel/internal/client"
	"github.com/veranemoloko/download-panel/internal/config"
	"github.com/veranemoloko/download-panel/internal/panel"
	"github.com/veranemoloko/download-panel/internal/repository"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the panel and serve its HTTP API",
		Long: `Run the synchronisation core against the backend and expose the
reconciled state, commands, health and metrics over HTTP.

The last known state is saved to PANEL_STATE_FILE on shutdown and used as
the starting point of the next run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(parent context.Context, cfg *config.Config) error {
	logger := config.SetupLogger(cfg)
	logger.Info("configuration loaded successfully", "backend", cfg.BackendURL)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend := client.New(cfg, logger)
	repo := repository.NewSnapshotStorage(cfg.StateFile)

	p := panel.New(ctx, cfg, backend, panel.LiveDialer(backend), repo, logger)
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("failed to start panel: %w", err)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ListenPort),
		Handler:      apihttp.NewRouter(p.Store(), p.Fetcher(), p.Gateway(), logger),
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: 2 * cfg.HTTPTimeout,
		IdleTimeout:  4 * cfg.HTTPTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		runErr = fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	} else {
		logger.Info("server stopped gracefully")
	}

	if err := p.Dispose(shutdownCtx); err != nil {
		logger.Error("failed to save panel state", "error", err)
	}

	return runErr
}
