package main

import (
	"context"
	"errors"
	"net/http"

	"scout/testserver"

	"github.com/spf13/cobra"
)

var siteListen string

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Serve a local test site for link checks and page analysis",
	Long: "Serve a local test site.\n\n" +
		"Endpoints:\n" +
		"  GET  /health              Health check\n" +
		"  GET  /status/{code}       Return specific status code\n" +
		"  GET  /delay/{ms}          Delay response by milliseconds\n" +
		"  GET  /redirect/{n}        Redirect n times, then 200\n" +
		"  GET  /loop                Redirect to itself forever\n" +
		"  GET  /fail-rate           Fail percentage of requests (?rate=10)\n" +
		"  GET  /page                HTML page linking to the above\n",
	Args: cobra.NoArgs,
	RunE: runSite,
}

func init() {
	siteCmd.Flags().StringVar(&siteListen, "listen", "localhost:8080", "address to bind to")
	rootCmd.AddCommand(siteCmd)
}

func runSite(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return withExitCode(ExitError, err)
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return withExitCode(ExitError, err)
	}

	srv := &http.Server{Addr: siteListen, Handler: testserver.NewServer().Handler()}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	log.WithField("addr", "http://"+siteListen).Info("test site listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return withExitCode(ExitError, err)
	}
	return nil
}
