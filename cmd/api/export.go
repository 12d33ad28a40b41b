package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"syncbrief/api/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the stored brief to a file",
	Example: `  api export --format pdf --out brief.pdf
  api export --format yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatName, _ := cmd.Flags().GetString("format")
		format, err := export.ParseFormat(formatName)
		if err != nil {
			return err
		}
		doc, err := loadBrief(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		result, err := export.NewService(cfg.PDFTimeout).Export(cmd.Context(), doc, format)
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "-" {
			_, err := cmd.OutOrStdout().Write(result.Data)
			return err
		}
		if out == "" {
			out = result.Filename
		}
		if dir := filepath.Dir(out); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		if err := os.WriteFile(out, result.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(result.Data))
		return nil
	},
}

func init() {
	exportCmd.Flags().String("format", "md", "md, html, pdf, json, or yaml")
	exportCmd.Flags().String("out", "", "output path, - for stdout (default: named after the brief title)")
	rootCmd.AddCommand(exportCmd)
}
