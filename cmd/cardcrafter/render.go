package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/cardcrafter/grid"
)

func newRenderCmd(rf *rootFlags) *cobra.Command {
	g := &gridFlags{}
	var snapshot bool
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a card grid as an HTML fragment on stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gs, err := openGrid(cmd, rf, g)
			if err != nil {
				return err
			}
			defer gs.Close()

			if g.page > 0 {
				gs.engine.SetPage(g.page)
			}
			if snapshot {
				return writeIndentedJSON(cmd.OutOrStdout(), gs.engine.Snapshot())
			}
			html, err := gs.engine.Render(grid.RenderOptions{})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), html)
			return err
		},
	}
	g.register(cmd)
	fl := cmd.Flags()
	fl.StringVar(&g.layout, "layout", "", "layout: grid, masonry, list")
	fl.IntVar(&g.columns, "columns", 0, "number of columns (1-6)")
	fl.IntVar(&g.perPage, "per-page", 0, "items per page")
	fl.IntVar(&g.page, "page", 1, "page to render")
	fl.BoolVar(&snapshot, "snapshot", false, "print the view as JSON instead of HTML")
	return cmd
}
