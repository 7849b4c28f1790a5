package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pario-ai/evalview/pkg/mcp"
)

func newMCPCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve read-only viewer tools over MCP (stdio)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries JSON-RPC; renders go to stderr.
			a, err := openApp(cmd, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			var history mcp.History
			if a.audit != nil {
				history = a.audit
			}
			srv := mcp.New(a.session, a.client, history, version, a.logger)
			a.logger.Info("mcp server started", "api", a.cfg.API.BaseURL)
			return srv.Run(cmd.Context(), os.Stdin, cmd.OutOrStdout())
		},
	}
}
