package main

import (
	"fmt"
	"strings"

	"github.com/hermesagent/hermes/core"
	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyExport string
	historyDelete string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List, export, or delete past runs",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of history entries to list")
	historyCmd.Flags().StringVar(&historyExport, "export", "", "ID:PATH - copy a report to PATH")
	historyCmd.Flags().StringVar(&historyDelete, "delete", "", "delete the history entry with this id")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	switch {
	case historyDelete != "":
		if err := a.History.Delete(historyDelete); err != nil {
			return fmt.Errorf("history --delete: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted history entry %s\n", historyDelete)
		return nil

	case historyExport != "":
		id, path, ok := strings.Cut(historyExport, ":")
		if !ok {
			return core.NewError("history", core.KindInput, fmt.Errorf("--export expects ID:PATH"))
		}
		if err := a.History.ExportReport(id, path); err != nil {
			return fmt.Errorf("history --export: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %s to %s\n", id, path)
		return nil

	default:
		return printHistoryList(cmd, a)
	}
}

func printHistoryList(cmd *cobra.Command, a *app) error {
	metas, err := a.History.ListAll(historyLimit)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if len(metas) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no history")
		return nil
	}
	for _, m := range metas {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %-9s  loops=%d sources=%d  %s\n",
			m.ID, m.Status, m.ValidationLoops, m.SourceCount, m.Prompt)
	}
	return nil
}
