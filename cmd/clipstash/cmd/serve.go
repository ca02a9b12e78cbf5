package cmd

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpserver "github.com/clipstash/clipstash/internal/mcp"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Run clipstash as a Model Context Protocol server.

The server speaks JSON-RPC over stdin/stdout and exposes search and
stats tools to MCP clients. Background maintenance (integrity scans
and drop folder imports, if configured) runs for the lifetime of the
server. Stop with SIGINT or SIGTERM, or by closing stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, cfg, err := root.openService(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.StartBackground(ctx); err != nil {
				return err
			}

			srv, err := mcpserver.NewServer(svc)
			if err != nil {
				return err
			}

			slog.Info("serving", "transport", cfg.Server.Transport, "data_dir", cfg.Paths.DataDir)
			return srv.Serve(ctx)
		},
	}
}
