package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/evalview/pkg/audit"
	"github.com/pario-ai/evalview/pkg/models"
	"github.com/pario-ai/evalview/pkg/render"
)

func newOpsCmd(opts *globalOpts) *cobra.Command {
	var (
		kind    string
		status  string
		since   string
		session string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "ops",
		Short: "Search the history of finished operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openHistory(cmd, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			q := models.AuditQueryOpts{
				Kind:      models.OperationKind(kind),
				Status:    models.OperationStatus(status),
				SessionID: session,
				Limit:     limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				q.Since = t
			}

			entries, err := l.Query(cmd.Context(), q)
			if err != nil {
				return err
			}
			if opts.format == render.FormatJSON {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			render.WriteAuditEntries(cmd.OutOrStdout(), entries, time.Now())
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "filter by operation kind (regenerate, fix, reevaluate, execute, compare, pin, unpin)")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (success, error)")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&session, "session", "", "filter by session ID")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Count finished operations by kind and status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openHistory(cmd, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := l.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if opts.format == render.FormatJSON {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			render.WriteAuditStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete history older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openHistory(cmd, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := l.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d history entries.\n", deleted)
			return nil
		},
	}

	cmd.AddCommand(statsCmd, cleanupCmd)
	return cmd
}

func openHistory(cmd *cobra.Command, opts *globalOpts) (*audit.Logger, func(), error) {
	if err := validFormat(opts.format); err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Audit.Enabled {
		return nil, nil, errors.New("operation history is disabled (audit.enabled is false)")
	}
	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}

	l, err := audit.New(cfg.Audit, "", logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit db: %w", err)
	}
	return l, func() { _ = l.Close() }, nil
}
