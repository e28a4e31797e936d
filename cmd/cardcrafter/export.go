package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/cardcrafter/grid"
)

func newExportCmd(rf *rootFlags) *cobra.Command {
	g := &gridFlags{}
	var (
		format string
		outDir string
		verify bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the filtered and sorted items as CSV, JSON or PDF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := grid.ParseFormat(format)
			if err != nil {
				return err
			}
			gs, err := openGrid(cmd, rf, g)
			if err != nil {
				return err
			}
			defer gs.Close()

			file, err := gs.engine.Export(f)
			if err != nil {
				return err
			}
			if verify && f == grid.FormatPDF {
				pages, err := grid.VerifyPDF(file.Data)
				if err != nil {
					return fmt.Errorf("verify pdf: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "pdf ok: %d page(s)\n", pages)
			}
			if outDir == "-" {
				_, err := cmd.OutOrStdout().Write(file.Data)
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			path := filepath.Join(outDir, file.Filename)
			if err := os.WriteFile(path, file.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	g.register(cmd)
	fl := cmd.Flags()
	fl.StringVar(&format, "format", "csv", "export format: csv, json, pdf")
	fl.StringVar(&outDir, "out", ".", "output directory ('-' for stdout)")
	fl.BoolVar(&verify, "verify", false, "validate PDF output with pdfcpu")
	return cmd
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
