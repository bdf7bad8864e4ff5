package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	logTaskID string
	logLines  int
	logFollow bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Tail or follow the Hermes log",
	RunE:  runLog,
}

func init() {
	logCmd.Flags().StringVar(&logTaskID, "task-id", "", "only show lines mentioning this task id")
	logCmd.Flags().IntVarP(&logLines, "lines", "n", 50, "number of trailing lines to show")
	logCmd.Flags().BoolVarP(&logFollow, "follow", "f", false, "follow the log as new lines are written")
}

func runLog(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	lines, err := a.Logs.Tail(logLines)
	if err != nil {
		return fmt.Errorf("log: %w", err)
	}
	for _, line := range filterByTask(lines, logTaskID) {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}

	if !logFollow {
		return nil
	}

	ctx := cmd.Context()
	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()
	for line := range a.Logs.Stream(stop, 100*time.Millisecond) {
		if logTaskID == "" || strings.Contains(line, logTaskID) {
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
	}
	return nil
}

func filterByTask(lines []string, taskID string) []string {
	if taskID == "" {
		return lines
	}
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.Contains(line, taskID) {
			filtered = append(filtered, line)
		}
	}
	return filtered
}
