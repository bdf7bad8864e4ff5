package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	queueLimit int
	queueAll   bool
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Drain scheduled tasks sequentially",
	RunE:  runQueue,
}

func init() {
	queueCmd.Flags().IntVar(&queueLimit, "limit", 1, "maximum number of scheduled tasks to process")
	queueCmd.Flags().BoolVar(&queueAll, "all", false, "process every scheduled task")
}

func runQueue(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	limit := queueLimit
	if queueAll {
		limit = 0
	}

	results, err := a.Queue.ProcessQueue(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("queue: %w", err)
	}

	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no scheduled tasks")
		return nil
	}

	failures := 0
	for _, r := range results {
		status := "done"
		if r.Err != nil {
			status = "failed"
			failures++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "task=%s status=%s\n", r.TaskID, status)
		if r.Err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "  error: %s\n", r.Err.Error())
		}
	}

	if failures > 0 {
		return fmt.Errorf("queue: %d of %d tasks failed", failures, len(results))
	}
	return nil
}
