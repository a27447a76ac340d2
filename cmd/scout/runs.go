package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"scout/internal/archive"
	"scout/internal/collector"

	"github.com/spf13/cobra"
)

var (
	runsArchive string
	runsOutput  string
)

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List archived runs or summarize one of them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().StringVar(&runsArchive, "archive", "", "archive database (overrides config)")
	runsCmd.Flags().StringVarP(&runsOutput, "output", "o", "text", "summary format: text, json")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return withExitCode(ExitError, err)
	}
	dsn := cfg.Report.Archive
	if runsArchive != "" {
		dsn = runsArchive
	}
	if dsn == "" {
		return withExitCode(ExitError, errors.New("no archive configured; set report.archive or pass --archive"))
	}

	store, err := archive.Open(dsn)
	if err != nil {
		return withExitCode(ExitError, err)
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		runs, err := store.Runs(ctx)
		if err != nil {
			return withExitCode(ExitError, err)
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No archived runs")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tSTARTED\tEVENTS\tDROPPED\tLAST SAVED")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", r.ID,
				r.StartedAt.Local().Format(time.DateTime), r.Events, r.Dropped,
				r.LastSavedAt.Local().Format(time.DateTime))
		}
		return tw.Flush()
	}

	events, err := store.Events(ctx, args[0])
	if err != nil {
		return withExitCode(ExitError, err)
	}
	if len(events) == 0 {
		return withExitCode(ExitError, fmt.Errorf("run %s not found", args[0]))
	}
	summary := collector.ComputeSummary(collector.Snapshot{RunID: args[0], Tests: events})
	if runsOutput == "json" {
		collector.FormatJSON(out, summary, nil)
	} else {
		collector.FormatText(out, summary, nil)
	}
	return nil
}
