// Package cli provides the command-line interface for the download panel.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/veranemoloko/download-panel/internal/client"
	"github.com/veranemoloko/download-panel/internal/config"
	"github.com/veranemoloko/download-panel/internal/panel"
)

// Version is set at build time.
var Version = "dev"

type rootOptions struct {
	envFile    string
	backendURL string
	verbose    bool
	jsonOut    bool
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "panel",
		Short: "Download panel for the playlist download backend",
		Long: `panel keeps a local, consistent view of the download backend's jobs and
history, and forwards create and cancel commands to it.

Examples:
  # Serve the panel API on PANEL_LISTEN_PORT
  panel serve

  # List running jobs
  panel jobs list --status running

  # Follow live progress
  panel watch`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "Path to an optional .env file")
	flags.StringVar(&opts.backendURL, "backend-url", "", "Backend base URL (overrides PANEL_BACKEND_URL)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output (debug logging)")
	flags.BoolVar(&opts.jsonOut, "json", false, "Print JSON instead of tables")

	rootCmd.Version = Version

	rootCmd.AddCommand(
		newServeCmd(opts),
		newJobsCmd(opts),
		newHistoryCmd(opts),
		newWatchCmd(opts),
		newSettingsCmd(opts),
		newProvidersCmd(opts),
	)

	return rootCmd
}

// load reads the configuration and applies flag overrides.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.backendURL != "" {
		cfg.BackendURL = o.backendURL
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid --backend-url: %w", err)
		}
	}
	if o.verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// commandEnv is what one-shot commands work with. Logs go to stderr so they
// never mix with command output.
type commandEnv struct {
	cfg    *config.Config
	client *client.Client
	logger *slog.Logger
	out    io.Writer
	json   bool
}

func (o *rootOptions) env(cmd *cobra.Command) (*commandEnv, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	if !o.verbose {
		cfg.LogLevel = "warn"
	}
	cfg.LogFormat = "text"

	logger := config.SetupLoggerTo(cfg, cmd.ErrOrStderr())
	return &commandEnv{
		cfg:    cfg,
		client: client.New(cfg, logger),
		logger: logger,
		out:    cmd.OutOrStdout(),
		json:   o.jsonOut,
	}, nil
}

// withPanel runs fn against a panel that is never started: no live channel
// and no polling, just the store, fetcher and gateway.
func (e *commandEnv) withPanel(ctx context.Context, fn func(p *panel.Panel) error) error {
	p := panel.New(ctx, e.cfg, e.client, panel.LiveDialer(e.client), nil, e.logger)
	defer func() {
		if err := p.Dispose(ctx); err != nil {
			e.logger.Warn("failed to dispose panel", "error", err)
		}
	}()
	return fn(p)
}

func (e *commandEnv) printJSON(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
