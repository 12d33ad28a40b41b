package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"syncbrief/api/internal/export"
)

const minMarkdownWidth = 40

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Render the stored brief in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadBrief(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		md := export.Markdown(doc)

		if raw, _ := cmd.Flags().GetBool("raw"); raw {
			fmt.Fprint(cmd.OutOrStdout(), md)
			return nil
		}
		width, _ := cmd.Flags().GetInt("width")
		rendered, err := renderMarkdown(md, width)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return nil
	},
}

func init() {
	showCmd.Flags().Bool("raw", false, "print markdown without terminal styling")
	showCmd.Flags().Int("width", 100, "word wrap width")
	rootCmd.AddCommand(showCmd)
}

func renderMarkdown(text string, width int) (string, error) {
	if width < minMarkdownWidth {
		width = minMarkdownWidth
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	rendered, err := renderer.Render(text)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(rendered, "\n"), nil
}
