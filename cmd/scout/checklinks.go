package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"scout/internal/linkcheck"
	"scout/internal/ratelimit"

	"github.com/spf13/cobra"
)

var (
	checkStrict bool
	checkTrace  bool
	checkOutput string
)

var checkLinksCmd = &cobra.Command{
	Use:   "check-links URL...",
	Short: "Probe URLs with HEAD requests",
	Long: "Probe URLs concurrently with HEAD requests and print one result per URL in input order.\n" +
		"With --strict, exits 1 if any URL failed or answered with a status >= 400.",
	Args: cobra.MinimumNArgs(1),
	RunE: runCheckLinks,
}

func init() {
	checkLinksCmd.Flags().BoolVar(&checkStrict, "strict", false, "exit 1 on any failed or >= 400 result")
	checkLinksCmd.Flags().BoolVar(&checkTrace, "trace", false, "print a request/response transcript to stderr")
	checkLinksCmd.Flags().StringVarP(&checkOutput, "output", "o", "text", "output format: text, json")
	rootCmd.AddCommand(checkLinksCmd)
}

func runCheckLinks(cmd *cobra.Command, args []string) error {
	if checkOutput != "text" && checkOutput != "json" {
		return withExitCode(ExitError, fmt.Errorf("--output must be 'text' or 'json', got %q", checkOutput))
	}
	cfg, err := loadConfig()
	if err != nil {
		return withExitCode(ExitError, err)
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return withExitCode(ExitError, err)
	}

	opts := []linkcheck.Option{
		linkcheck.WithTimeouts(cfg.Timeouts.LinkCheck, cfg.Timeouts.LinkCheckBatch),
		linkcheck.WithConcurrency(cfg.LinkCheck.MaxConcurrent),
		linkcheck.WithLogger(log),
	}
	if cfg.LinkCheck.RPS > 0 {
		opts = append(opts, linkcheck.WithLimiter(ratelimit.NewRateLimiter(cfg.LinkCheck.RPS)))
	}
	if checkTrace {
		opts = append(opts, linkcheck.WithTrace(cmd.ErrOrStderr()))
	}
	checker := linkcheck.New(opts...)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	var results []linkcheck.Result
	if len(args) == 1 {
		results = []linkcheck.Result{checker.Check(ctx, args[0])}
	} else {
		results = checker.CheckAll(ctx, args)
	}

	out := cmd.OutOrStdout()
	if checkOutput == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return withExitCode(ExitError, err)
		}
	} else {
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, r := range results {
			fmt.Fprintf(tw, "%s\t%s\n", describeResult(r), r.Href)
		}
		tw.Flush()
	}

	if checkStrict {
		if bad := countBroken(results); bad > 0 {
			return withExitCode(ExitThresholdFailed, fmt.Errorf("%d of %d link(s) broken", bad, len(results)))
		}
	}
	return nil
}

func describeResult(r linkcheck.Result) string {
	switch {
	case r.Timeout:
		return "timeout"
	case !r.OK():
		return r.Error
	default:
		return fmt.Sprintf("%d", r.Status)
	}
}

func countBroken(results []linkcheck.Result) int {
	n := 0
	for _, r := range results {
		if !r.OK() || r.Status >= 400 {
			n++
		}
	}
	return n
}
