package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/cardcrafter/auth"
	"github.com/hazyhaar/cardcrafter/server"
)

func newServeCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service and the background refresher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := loadConfig(rf, false)
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

			sessionKey, err := auth.DeriveKey(cfg.Server.Secret, purposeSession)
			if err != nil {
				return err
			}
			sessions, err := auth.NewSessions(sessionKey, cfg.Server.CookieSecure)
			if err != nil {
				return err
			}

			go svc.RunRefresher(ctx)

			logger.Info("cardcrafter starting",
				"addr", cfg.Server.Addr,
				"db", cfg.Server.DBPath,
				"grids", cfg.GridNames(),
			)
			return server.New(cfg, svc, sessions, logger).Run(ctx)
		},
	}
}
