package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pario-ai/evalview/pkg/models"
)

type mutationCmdDef struct {
	use   string
	short string
	kind  models.OperationKind
}

var (
	mutationRegenerate = mutationCmdDef{"regenerate", "Generate a new response for a question", models.OpRegenerate}
	mutationFix        = mutationCmdDef{"fix", "Repair a response's formatting", models.OpFix}
	mutationReevaluate = mutationCmdDef{"reevaluate", "Grade a response again", models.OpReevaluate}
)

func newMutationCmd(opts *globalOpts, def mutationCmdDef) *cobra.Command {
	var (
		runID string
		show  bool
	)

	cmd := &cobra.Command{
		Use:   def.use + " <model> <question-id>",
		Short: def.short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			model, qid := args[0], args[1]
			run, err := a.resolveRun(ctx, model, runID)
			if err != nil {
				return err
			}
			if show {
				// The response re-renders once the mutation lands.
				if err := a.session.Show(ctx, models.ResponseView(model, qid, run)); err != nil {
					return reported(err)
				}
			}
			return a.awaitOperation(a.startMutation(ctx, def.kind, run, model, qid))
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "run ID (defaults to the model's leaderboard run)")
	cmd.Flags().BoolVar(&show, "show", false, "show the response before and after the change")
	return cmd
}

func (a *app) startMutation(ctx context.Context, kind models.OperationKind, run, model, qid string) int64 {
	switch kind {
	case models.OpFix:
		return a.session.Fix(ctx, run, model, qid)
	case models.OpReevaluate:
		return a.session.Reevaluate(ctx, run, model, qid)
	case models.OpExecute:
		return a.session.Execute(ctx, run, model, qid)
	default:
		return a.session.Regenerate(ctx, run, model, qid)
	}
}

// awaitOperation blocks until background work settles and reports whether
// operation id failed.
func (a *app) awaitOperation(id int64) error {
	a.session.Wait()
	op, ok := a.session.Operation(id)
	if !ok || op.Status != models.OpError {
		return nil
	}
	return fmt.Errorf("%s failed: %s", op.Kind, op.Message)
}

func newExecuteCmd(opts *globalOpts) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "execute <model> <question-id>",
		Short: "Run the code in a response and show its output",
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
			return a.awaitOperation(a.startMutation(ctx, models.OpExecute, run, args[0], args[1]))
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "run ID (defaults to the model's leaderboard run)")
	return cmd
}

func newPinCmd(opts *globalOpts) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "pin <model>",
		Short: "Pin the run that represents a model on the leaderboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.awaitOperation(a.session.Pin(cmd.Context(), args[0], runID))
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "run ID to pin")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func newUnpinCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "unpin <model>",
		Short: "Clear a model's pinned run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.awaitOperation(a.session.Unpin(cmd.Context(), args[0]))
		},
	}
}
