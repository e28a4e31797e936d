// Command cardcrafter serves card grids backed by a caching JSON fetch
// proxy, and renders or exports grids from the command line.
//
// Usage:
//
//	cardcrafter serve --config cardcrafter.yaml
//	cardcrafter render --source https://api.example.com/team.json --fields title=name
//	cardcrafter export --data items.json --format pdf --out exports --verify
//	cardcrafter mcp --config cardcrafter.yaml
//	cardcrafter token --config cardcrafter.yaml --ttl 720h
package main

import (
	"context"
	"os"

	_ "modernc.org/sqlite"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "cardcrafter",
		Short:         "Card grids over remote JSON with a caching fetch proxy",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", "", "path to cardcrafter.yaml")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "log level override: debug, info, warn, error")

	root.AddCommand(newServeCmd(f))
	root.AddCommand(newRenderCmd(f))
	root.AddCommand(newExportCmd(f))
	root.AddCommand(newMCPCmd(f))
	root.AddCommand(newTokenCmd(f))
	return root
}
