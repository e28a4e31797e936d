package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/cardcrafter/auth"
)

func newTokenCmd(rf *rootFlags) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for the /mcp endpoint of serve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, closer, err := loadConfig(rf, true)
			if err != nil {
				return err
			}
			defer closer.Close()

			key, err := auth.DeriveKey(cfg.Server.Secret, auth.PurposeMCP)
			if err != nil {
				return err
			}
			tok, err := auth.IssueToken(key, auth.MCPSubject, auth.ActionMCP, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}
