package main

import (
	"fmt"

	"github.com/hermesagent/hermes/core"
	"github.com/hermesagent/hermes/persistence"
	"github.com/spf13/cobra"
)

var (
	taskPrompt string
	taskList   bool
	taskDelete string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Enqueue, list, or delete scheduled tasks",
	RunE:  runTask,
}

func init() {
	taskCmd.Flags().StringVar(&taskPrompt, "prompt", "", "enqueue a new task with this research prompt")
	taskCmd.Flags().BoolVar(&taskList, "list", false, "list all tasks")
	taskCmd.Flags().StringVar(&taskDelete, "delete", "", "delete the task with this id")
}

func runTask(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	switch {
	case taskDelete != "":
		if err := a.Tasks.Delete(taskDelete); err != nil {
			return fmt.Errorf("task --delete: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted task %s\n", taskDelete)
		return nil

	case taskPrompt != "":
		t, err := a.Tasks.Create(taskPrompt, persistence.TaskOptions{})
		if err != nil {
			return fmt.Errorf("task --prompt: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "scheduled task %s: %s\n", t.ID, t.Prompt)
		return nil

	case taskList:
		return printTaskList(cmd, a)

	default:
		return core.NewError("task", core.KindInput, fmt.Errorf("one of --prompt, --list, or --delete is required"))
	}
}

func printTaskList(cmd *cobra.Command, a *app) error {
	tasks, err := a.Tasks.ListAll()
	if err != nil {
		return fmt.Errorf("task --list: %w", err)
	}
	if len(tasks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no tasks")
		return nil
	}
	for _, t := range tasks {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %-9s  %s\n", t.ID, t.Status, t.Prompt)
	}
	return nil
}
