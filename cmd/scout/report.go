package main

import (
	"fmt"
	"path/filepath"

	"scout/internal/collector"
	"scout/internal/reporter"

	"github.com/spf13/cobra"
)

var reportOutput string

var reportCmd = &cobra.Command{
	Use:   "report [report.json]",
	Short: "Summarize a saved report and check thresholds",
	Long: "Summarize a saved report. Without an argument the configured report path is used.\n" +
		"Exits 1 when a configured threshold fails and 2 on any other error.",
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "text", "output format: text, json")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	if reportOutput != "text" && reportOutput != "json" {
		return withExitCode(ExitError, fmt.Errorf("--output must be 'text' or 'json', got %q", reportOutput))
	}
	cfg, err := loadConfig()
	if err != nil {
		return withExitCode(ExitError, err)
	}

	path := filepath.Join(cfg.Report.Dir, cfg.Report.File)
	if len(args) == 1 {
		path = args[0]
	}
	snap, err := reporter.Load(path)
	if err != nil {
		return withExitCode(ExitError, err)
	}

	summary := collector.ComputeSummary(*snap)
	var results *collector.ThresholdResults
	if cfg.Thresholds != nil {
		results = cfg.Thresholds.Check(summary)
	}

	out := cmd.OutOrStdout()
	if reportOutput == "json" {
		collector.FormatJSON(out, summary, results)
	} else {
		collector.FormatText(out, summary, results)
	}

	if results != nil && !results.Passed {
		return withExitCode(ExitThresholdFailed,
			fmt.Errorf("threshold check failed: %d violation(s)", len(results.Violations())))
	}
	return nil
}
