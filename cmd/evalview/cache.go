package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pario-ai/evalview/pkg/models"
	"github.com/pario-ai/evalview/pkg/render"
)

func newCacheCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the payload cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			persisted := -1
			var keys []models.CacheKey
			if a.persisted != nil {
				n, err := a.persisted.Count()
				if err != nil {
					return err
				}
				persisted = int(n)
				if keys, err = a.persisted.Keys(); err != nil {
					return err
				}
			}
			stats := a.session.CacheStats()
			if opts.format == render.FormatJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"stats":     stats,
					"persisted": keys,
				})
			}
			render.WriteCacheStats(cmd.OutOrStdout(), stats, persisted)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", k)
			}
			if a.persisted == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Persistent cache is disabled (cache.persist is false).")
			}
			return nil
		},
	}

	var runID string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cached payloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			a.store.Clear()
			if a.persisted != nil {
				if err := a.persisted.Clear(runID); err != nil {
					return err
				}
			}
			if runID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Cache entries for run %s cleared.\n", runID)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "All cache entries cleared.")
			}
			return nil
		},
	}
	clearCmd.Flags().StringVar(&runID, "run", "", "only clear entries for this run")

	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}
