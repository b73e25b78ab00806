package cli

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/veranemoloko/download-panel/internal/domain"
	"github.com/veranemoloko/download-panel/internal/panel"
	"github.com/veranemoloko/download-panel/internal/subscriber"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow live job progress",
		Long: `Print every progress update pushed by the backend until interrupted.
Dropped connections are re-established with exponential backoff.

Examples:
  panel watch
  panel watch --json --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.env(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sub := subscriber.New(panel.LiveDialer(env.client), env.logger,
				subscriber.WithBuffer(env.cfg.EventBuffer),
				subscriber.WithBackoff(env.cfg.ReconnectMin, env.cfg.ReconnectMax),
				subscriber.WithOnReconnect(func() {
					env.logger.Warn("live channel reconnected; updates may have been missed")
				}),
			)

			events, unsubscribe, err := sub.Subscribe(ctx)
			if err != nil {
				return err
			}
			defer unsubscribe()

			enc := json.NewEncoder(env.out)
			seen := 0
			for job := range events {
				if env.json {
					if err := enc.Encode(job); err != nil {
						return err
					}
				} else {
					fmt.Fprintln(env.out, formatEvent(job))
				}

				seen++
				if limit > 0 && seen >= limit {
					return nil
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Exit after this many updates (0 = run until interrupted)")
	return cmd
}

func formatEvent(job domain.Job) string {
	line := fmt.Sprintf("%s  %-9s %3.0f%%  %d/%d",
		job.UpdatedAt.Format(time.TimeOnly),
		job.Status,
		job.Progress*100,
		job.CompletedTracks+job.FailedTracks,
		job.TotalTracks,
	)
	if name := job.DisplayName(); name != "" {
		line += "  " + name
	}
	if job.Error != nil && *job.Error != "" {
		line += "  error: " + *job.Error
	}
	return fmt.Sprintf("[%s] %s", job.ID, line)
}
