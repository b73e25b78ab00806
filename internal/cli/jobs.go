package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/veranemoloko/download-panel/internal/domain"
	"github.com/veranemoloko/download-panel/internal/panel"
)

// newJobsCmd creates the 'jobs' command group.
func newJobsCmd(opts *rootOptions) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "List, create and cancel download jobs",
	}

	jobsCmd.AddCommand(
		newJobsListCmd(opts),
		newJobsLogsCmd(opts),
		newJobsCreateCmd(opts),
		newJobsCancelCmd(opts),
	)

	return jobsCmd
}

func newJobsListCmd(opts *rootOptions) *cobra.Command {
	var (
		statuses []string
		query    string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active jobs",
		Long: `List the backend's active jobs, newest first.

Examples:
  panel jobs list
  panel jobs list --status running,pending
  panel jobs list --query "road trip" --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domain.JobFilter{Query: query}
			for _, s := range statuses {
				status := domain.JobStatus(strings.TrimSpace(s))
				if !status.IsKnown() {
					return fmt.Errorf("unknown status %q", s)
				}
				filter.Statuses = append(filter.Statuses, status)
			}

			env, err := opts.env(cmd)
			if err != nil {
				return err
			}

			jobs, err := env.client.ListJobs(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list jobs: %w", err)
			}
			domain.SortJobs(jobs)
			jobs = domain.FilterJobs(jobs, filter)

			if env.json {
				return env.printJSON(domain.JobsListResponse{Jobs: jobs})
			}
			return printJobs(env, jobs)
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only show jobs with these statuses")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Only show jobs whose name or URL contains this text")

	return cmd
}

func newJobsLogsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logs <job-id>",
		Short: "Print a job's log lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.env(cmd)
			if err != nil {
				return err
			}

			return env.withPanel(cmd.Context(), func(p *panel.Panel) error {
				if err := p.Fetcher().RefreshQueue(cmd.Context()); err != nil {
					return err
				}
				job, ok := p.Store().Job(args[0])
				if !ok {
					return fmt.Errorf("job %s is not active", args[0])
				}

				if env.json {
					logs := job.Logs
					if logs == nil {
						logs = []string{}
					}
					return env.printJSON(logs)
				}
				for _, line := range job.Logs {
					fmt.Fprintln(env.out, line)
				}
				return nil
			})
		},
	}
}

func newJobsCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		req     domain.CreateJobRequest
		quality string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a new download job",
		Long: `Submit a new download job to the backend.

Examples:
  panel jobs create --store qobuz \
    --url https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M \
    --path-template "{artist}/{album}/{track_number} - {title}"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if quality != "" {
				req.Quality = &quality
			}

			env, err := opts.env(cmd)
			if err != nil {
				return err
			}

			return env.withPanel(cmd.Context(), func(p *panel.Panel) error {
				job, err := p.Gateway().CreateJob(cmd.Context(), req)
				if err != nil {
					return err
				}
				if env.json {
					return env.printJSON(domain.JobResponse{Job: job})
				}
				fmt.Fprintf(env.out, "created job %s (%s)\n", job.ID, job.Status)
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.Provider, "provider", domain.DefaultProvider, "Metadata source")
	flags.StringVar(&req.Store, "store", "", "Store to download from")
	flags.StringVar(&req.URL, "url", "", "Playlist or album URL")
	flags.StringVar(&quality, "quality", "", "Requested quality (store specific)")
	flags.StringVar(&req.PathTemplate, "path-template", "", "Output path template")
	_ = cmd.MarkFlagRequired("store")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("path-template")

	return cmd
}

func newJobsCancelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.env(cmd)
			if err != nil {
				return err
			}

			return env.withPanel(cmd.Context(), func(p *panel.Panel) error {
				if err := p.Fetcher().RefreshQueue(cmd.Context()); err != nil {
					return err
				}
				if err := p.Gateway().CancelJob(cmd.Context(), args[0]); err != nil {
					return err
				}

				job, _ := p.Store().Job(args[0])
				fmt.Fprintf(env.out, "cancel requested for %s (now %s)\n", args[0], job.Status)
				return nil
			})
		},
	}
}

func printJobs(env *commandEnv, jobs []domain.Job) error {
	tw := tabwriter.NewWriter(env.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPROGRESS\tTRACKS\tNAME")
	for _, job := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%3.0f%%\t%d/%d\t%s\n",
			job.ID,
			job.Status,
			job.Progress*100,
			job.CompletedTracks+job.FailedTracks,
			job.TotalTracks,
			job.DisplayName(),
		)
	}
	return tw.Flush()
}
