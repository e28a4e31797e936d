package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/cardcrafter/server"
)

func newMCPCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the proxy tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := loadConfig(rf, true)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			svc, db, err := openService(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			srv := mcp.NewServer(&mcp.Implementation{Name: "cardcrafter", Version: server.Version}, nil)
			svc.RegisterMCP(srv)
			go svc.RunRefresher(ctx)

			logger.Info("mcp stdio starting")
			return srv.Run(ctx, &mcp.StdioTransport{})
		},
	}
}
