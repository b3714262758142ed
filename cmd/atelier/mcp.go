package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atelier-ai/atelier/pkg/mcp"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start Atelier as an MCP server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, cleanup, err := buildStack(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			var cache mcp.CacheStatter
			if st.cache != nil {
				cache = st.cache
			}
			var auditor mcp.Auditor
			if st.auditor != nil {
				auditor = st.auditor
			}

			srv := mcp.New(st.engine, st.tracker, cache, auditor, version)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}
