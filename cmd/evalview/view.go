package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/evalview/pkg/models"
	"github.com/pario-ai/evalview/pkg/render"
)

func newLeaderboardCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:     "leaderboard",
		Aliases: []string{"home"},
		Short:   "Show models ranked by score",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			return reported(a.session.Home(cmd.Context()))
		},
	}
}

func newRunsCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List benchmark runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.client.Runs(cmd.Context())
			if err != nil {
				return err
			}
			if opts.format == render.FormatJSON {
				return printJSON(cmd.OutOrStdout(), runs)
			}
			render.WriteRuns(cmd.OutOrStdout(), runs, time.Now())
			return nil
		},
	}
}

func newQuestionsCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "questions",
		Short: "List benchmark questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			questions, err := a.client.Questions(cmd.Context())
			if err != nil {
				return err
			}
			if opts.format == render.FormatJSON {
				return printJSON(cmd.OutOrStdout(), questions)
			}
			render.WriteQuestions(cmd.OutOrStdout(), questions)
			return nil
		},
	}
}

func newModelCmd(opts *globalOpts) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "model <model>",
		Short: "Show one model's results for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			run, err := a.resolveRun(ctx, args[0], runID)
			if err != nil {
				return err
			}
			return reported(a.session.Show(ctx, models.ModelDetails(args[0], run)))
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "run ID (defaults to the model's leaderboard run)")
	return cmd
}

func newQuestionCmd(opts *globalOpts) *cobra.Command {
	var (
		runID   string
		version string
	)

	cmd := &cobra.Command{
		Use:   "question <model> <question-id>",
		Short: "Show a model's response to one question",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			run, err := a.resolveRun(ctx, args[0], runID)
			if err != nil {
				return err
			}
			view := models.ResponseView(args[0], args[1], run).WithVersion(version)
			return reported(a.session.Show(ctx, view))
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "run ID (defaults to the model's leaderboard run)")
	cmd.Flags().StringVar(&version, "version", "", "response version (defaults to latest)")
	return cmd
}

// resolveRun returns runID, or the run the leaderboard shows for model.
func (a *app) resolveRun(ctx context.Context, model, runID string) (string, error) {
	if runID != "" {
		return runID, nil
	}
	entries, err := a.session.Leaderboard(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve run for %s: %w", model, err)
	}
	for _, e := range entries {
		if e.Model == model && e.RunID != "" {
			return e.RunID, nil
		}
	}
	return "", fmt.Errorf("model %s has no leaderboard run; pass --run", model)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
