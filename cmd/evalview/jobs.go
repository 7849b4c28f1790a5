package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/evalview/pkg/models"
	"github.com/pario-ai/evalview/pkg/render"
)

func newCompareCmd(opts *globalOpts) *cobra.Command {
	var (
		questions []string
		noWait    bool
	)

	cmd := &cobra.Command{
		Use:   "compare <run> <run>...",
		Short: "Start a comparative job across runs",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if noWait {
				jobID, err := a.client.StartJob(ctx, models.StartJobRequest{RunIDs: args, QuestionIDs: questions})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Started comparative job %s\n", jobID)
				return nil
			}

			id := a.session.StartComparison(ctx, args, questions)
			if err := a.awaitOperation(id); err != nil {
				return err
			}
			jobs := a.session.Jobs()
			if len(jobs) == 0 || jobs[0].Status != models.JobCompleted {
				return nil
			}
			return a.showResults(ctx, cmd, opts, jobs[0].JobID)
		},
	}

	cmd.Flags().StringSliceVar(&questions, "question", nil, "limit the comparison to these question IDs")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "print the job ID and exit without polling")
	return cmd
}

func newJobsCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage comparative jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listJobs(cmd, opts)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List comparative jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listJobs(cmd, opts)
		},
	}

	var watch bool
	statusCmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if watch {
				return a.awaitOperation(a.session.WatchJob(ctx, args[0]))
			}
			snap, err := a.client.JobStatus(ctx, args[0])
			if err != nil {
				return err
			}
			if opts.format == render.FormatJSON {
				return printJSON(cmd.OutOrStdout(), snap)
			}
			render.WriteJobs(cmd.OutOrStdout(), []models.JobSnapshot{snap}, time.Now())
			if snap.Progress.Error != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Error: %s\n", snap.Progress.Error)
			}
			return nil
		},
	}
	statusCmd.Flags().BoolVarP(&watch, "watch", "w", false, "poll until the job finishes")

	resultsCmd := &cobra.Command{
		Use:   "results <job-id>",
		Short: "Show a completed job's results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.showResults(cmd.Context(), cmd, opts, args[0])
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.CancelJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for job %s.\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(listCmd, statusCmd, resultsCmd, cancelCmd)
	return cmd
}

func listJobs(cmd *cobra.Command, opts *globalOpts) error {
	a, err := openApp(cmd, opts, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	jobs, err := a.client.Jobs(cmd.Context())
	if err != nil {
		return err
	}
	if opts.format == render.FormatJSON {
		return printJSON(cmd.OutOrStdout(), jobs)
	}
	render.WriteJobs(cmd.OutOrStdout(), jobs, time.Now())
	return nil
}

func (a *app) showResults(ctx context.Context, cmd *cobra.Command, opts *globalOpts, jobID string) error {
	res, err := a.client.JobResults(ctx, jobID)
	if err != nil {
		return err
	}
	if opts.format == render.FormatJSON {
		return printJSON(cmd.OutOrStdout(), res)
	}
	render.WriteJobResults(cmd.OutOrStdout(), res)
	return nil
}
