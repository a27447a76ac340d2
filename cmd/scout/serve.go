package main

import (
	"context"
	"time"

	"scout/internal/archive"
	"scout/internal/bridge"
	"scout/internal/collector"
	"scout/internal/linkcheck"
	"scout/internal/progress"
	"scout/internal/ratelimit"
	"scout/internal/reporter"
	"scout/internal/transport"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var (
	serveQuiet  bool
	serveListen string
	serveNoSave bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the telemetry bridge until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveQuiet, "quiet", false, "suppress the live status line")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides config)")
	serveCmd.Flags().BoolVar(&serveNoSave, "no-save", false, "skip the final report save on shutdown")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return withExitCode(ExitError, err)
	}
	if serveListen != "" {
		cfg.Server.Listen = serveListen
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return withExitCode(ExitError, err)
	}

	coll := collector.New(collector.WithMaxEvents(cfg.Telemetry.MaxEvents))

	reportOpts := []reporter.Option{reporter.WithLogger(log)}
	if cfg.Report.Archive != "" {
		store, err := archive.Open(cfg.Report.Archive)
		if err != nil {
			return withExitCode(ExitError, err)
		}
		defer store.Close()
		reportOpts = append(reportOpts, reporter.WithArchive(store))
	}
	rep := reporter.New(cfg.Report.Dir, cfg.Report.File, reportOpts...)

	var limiter *ratelimit.RateLimiter
	if cfg.LinkCheck.RPS > 0 {
		limiter = ratelimit.NewRateLimiter(cfg.LinkCheck.RPS)
	}
	checker := linkcheck.New(
		linkcheck.WithTimeouts(cfg.Timeouts.LinkCheck, cfg.Timeouts.LinkCheckBatch),
		linkcheck.WithLimiter(limiter),
		linkcheck.WithConcurrency(cfg.LinkCheck.MaxConcurrent),
		linkcheck.WithLogger(log),
	)

	b := bridge.New(coll, rep, checker,
		bridge.WithEnabled(cfg.Telemetry.Enabled),
		bridge.WithLogger(log),
	)
	srv := transport.NewServer(b,
		transport.WithMaxPayloadBytes(cfg.Server.MaxPayloadBytes),
		transport.WithLogger(log),
	)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	prog := progress.NewProgress(coll, serveQuiet)
	prog.SetOutput(cmd.ErrOrStderr())
	telemetry := "enabled"
	if !cfg.Telemetry.Enabled {
		telemetry = "disabled"
	}
	prog.Printf("scout bridge listening on %s (telemetry %s, report %s)", cfg.Server.Listen, telemetry, rep.Path())
	prog.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(cfg.Server.Listen)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	err = g.Wait()
	prog.Stop()
	if err != nil {
		return withExitCode(ExitError, err)
	}

	if b.Enabled() && !serveNoSave {
		if res := b.Save(context.Background()); res.OK() {
			prog.Printf("report saved to %s (%d events over %v)", res.Path,
				coll.Stats().Events, coll.Duration().Round(time.Second))
		} else if !res.IsZero() {
			log.WithField("error", res.Error).Warn("final report save failed")
		}
	}
	return nil
}
