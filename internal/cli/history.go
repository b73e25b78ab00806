package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/veranemoloko/download-panel/internal/domain"
	"github.com/veranemoloko/download-panel/internal/panel"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Browse finished jobs and their files",
	}

	historyCmd.AddCommand(newHistoryListCmd(opts), newHistoryFilesCmd(opts))
	return historyCmd
}

func newHistoryListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List finished jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.env(cmd)
			if err != nil {
				return err
			}

			entries, err := env.client.ListHistory(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list history: %w", err)
			}
			domain.SortHistory(entries)

			if env.json {
				return env.printJSON(domain.HistoryResponse{History: entries})
			}

			tw := tabwriter.NewWriter(env.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "JOB\tSTATUS\tTRACKS\tFAILED\tFINISHED\tPLAYLIST")
			for _, e := range entries {
				finished := "-"
				if e.FinishedAt != nil {
					finished = e.FinishedAt.Format(time.DateTime)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%d\t%s\t%s\n",
					e.JobID, e.Status, e.CompletedTracks, e.TotalTracks, e.FailedTracks, finished, e.Playlist)
			}
			return tw.Flush()
		},
	}
}

func newHistoryFilesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "files <job-id>",
		Short: "List the files a finished job produced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.env(cmd)
			if err != nil {
				return err
			}

			return env.withPanel(cmd.Context(), func(p *panel.Panel) error {
				if err := p.Fetcher().RefreshHistory(cmd.Context()); err != nil {
					return err
				}
				files, err := p.Fetcher().LoadFileListing(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				if env.json {
					return env.printJSON(domain.FilesResponse{Files: files})
				}
				tw := tabwriter.NewWriter(env.out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "SIZE\tPATH")
				for _, f := range files {
					fmt.Fprintf(tw, "%d\t%s\n", f.Size, f.Path)
				}
				return tw.Flush()
			})
		},
	}
}
