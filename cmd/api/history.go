package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"syncbrief/api/internal/export"
	"syncbrief/api/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded brief snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.HistoryDir == "" {
			return errors.New("snapshot history is disabled (SYNCBRIEF_HISTORY_DIR is empty)")
		}
		limit, _ := cmd.Flags().GetInt("limit")
		commits, err := history.New(cfg.HistoryDir).History(limit)
		if err != nil {
			return err
		}
		if len(commits) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no snapshots recorded")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "HASH\tWHEN\tAUTHOR\tMESSAGE\tTAGS")
		for _, commit := range commits {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				commit.Hash,
				commit.CreatedAt.Local().Format("2006-01-02 15:04"),
				commit.Author,
				commit.Message,
				strings.Join(commit.Tags, ","),
			)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:     "show <hash>",
	Short:   "Print the brief recorded in a snapshot",
	Args:    cobra.ExactArgs(1),
	Example: `  api history show 3f2a9c1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.HistoryDir == "" {
			return errors.New("snapshot history is disabled (SYNCBRIEF_HISTORY_DIR is empty)")
		}
		doc, err := history.New(cfg.HistoryDir).Content(args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), export.Markdown(doc))
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum snapshots to list")
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}
