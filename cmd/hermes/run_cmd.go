package main

import (
	"fmt"
	"strings"

	"github.com/hermesagent/hermes/core"
	"github.com/hermesagent/hermes/orchestrator"
	"github.com/hermesagent/hermes/persistence"
	"github.com/spf13/cobra"
)

var (
	runPrompt        string
	runModel         string
	runLanguage      string
	runMinValidation int
	runMaxValidation int
	runQueryCount    int
	runMinSources    int
	runMaxSources    int
	runExportPath    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one research prompt end to end and persist the report",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runPrompt, "prompt", "", "research prompt (required)")
	runCmd.Flags().StringVar(&runModel, "model", "", "override the configured LLM model")
	runCmd.Flags().StringVar(&runLanguage, "language", "", "report language: ja or en")
	runCmd.Flags().IntVar(&runMinValidation, "min-validation", -1, "minimum validation loops")
	runCmd.Flags().IntVar(&runMaxValidation, "max-validation", -1, "maximum validation loops")
	runCmd.Flags().IntVar(&runQueryCount, "query", -1, "number of search queries to generate")
	runCmd.Flags().IntVar(&runMinSources, "min-search", -1, "minimum sources per query")
	runCmd.Flags().IntVar(&runMaxSources, "max-search", -1, "maximum sources fetched per query")
	runCmd.Flags().StringVar(&runExportPath, "export", "", "copy the finished report to this path")
}

func runRun(cmd *cobra.Command, args []string) error {
	if runPrompt == "" {
		return core.NewError("run", core.KindInput, fmt.Errorf("--prompt is required"))
	}

	opts := runConfigOptions()
	a, err := newApp(opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	meta, runErr := a.Run.Run(cmd.Context(), runPrompt, a.Config, orchestrator.RunOptions{})
	printRunSummary(cmd, meta)

	if runErr != nil {
		return fmt.Errorf("run: %w", runErr)
	}

	if runExportPath != "" {
		if err := a.History.ExportReport(meta.ID, runExportPath); err != nil {
			return fmt.Errorf("run --export: %w", err)
		}
	}
	return nil
}

func runConfigOptions() []core.Option {
	var opts []core.Option
	if runModel != "" {
		opts = append(opts, core.WithModel(runModel))
	}
	if runLanguage != "" {
		opts = append(opts, core.WithLanguage(runLanguage))
	}
	if runQueryCount >= 0 {
		opts = append(opts, core.WithQueryCount(runQueryCount))
	}
	if runMinValidation >= 0 || runMaxValidation >= 0 {
		min, max := runMinValidation, runMaxValidation
		if min < 0 {
			min = 0
		}
		if max < 0 {
			max = core.DefaultConfig().MaxValidation
		}
		opts = append(opts, core.WithValidation(min, max))
	}
	if runMinSources >= 0 || runMaxSources >= 0 {
		min, max := runMinSources, runMaxSources
		if min < 0 {
			min = core.DefaultConfig().MinSources
		}
		if max < 0 {
			max = core.DefaultConfig().MaxSources
		}
		opts = append(opts, core.WithSources(min, max))
	}
	return opts
}

// printRunSummary prints the structured task/status/duration/sources
// summary required by spec §7, plus the first line of error_message on
// failure.
func printRunSummary(cmd *cobra.Command, meta *persistence.HistoryMeta) {
	if meta == nil {
		return
	}
	duration := meta.FinishedAt.Sub(meta.CreatedAt)
	fmt.Fprintf(cmd.OutOrStdout(), "id=%s status=%s duration=%s sources=%d loops=%d\n",
		meta.ID, meta.Status, duration, meta.SourceCount, meta.ValidationLoops)
	if meta.Status == persistence.HistoryFailed && meta.ErrorMessage != "" {
		firstLine := strings.SplitN(meta.ErrorMessage, "\n", 2)[0]
		fmt.Fprintf(cmd.OutOrStdout(), "error: %s\n", firstLine)
	}
}
