package main

import (
	"github.com/hermesagent/hermes"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hermes",
	Short: "Hermes - a local, LLM-driven research agent",
	Long: `Hermes turns a research prompt into a validated Markdown report.

It generates search queries, fans them out to a search backend, fetches and
normalizes the resulting pages, drafts a report with a local LLM, and loops
through a validation pass until the report clears a quality threshold or the
configured number of rounds is exhausted.`,
	Version: hermes.Version,
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(logCmd)
}
