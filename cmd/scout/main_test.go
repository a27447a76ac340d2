package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"scout/internal/archive"
	"scout/internal/collector"
	"scout/internal/core"
	"scout/internal/linkcheck"
	"scout/internal/reporter"
	"scout/testserver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the CLI with fresh flag state and captures stdout.
func run(t *testing.T, args ...string) (int, string) {
	t.Helper()
	configPath, logLevel = "", ""
	reportOutput, checkOutput, runsOutput = "text", "text", "text"
	checkStrict, checkTrace = false, false
	runsArchive = ""

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	code := execute(args)
	return code, out.String()
}

func writeReport(t *testing.T, events ...core.Event) string {
	t.Helper()
	c := collector.New()
	for _, e := range events {
		c.Append(e)
	}
	res := reporter.New(t.TempDir(), reporter.DefaultFile).Persist(context.Background(), c.Snapshot())
	require.NoError(t, res.Err)
	return res.Path
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

var checkoutTest = &core.TestIdentity{Title: "checkout", TitlePath: []string{"shop", "checkout"}}

func TestVersion(t *testing.T) {
	code, out := run(t, "version")
	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, "scout dev (unknown)\n", out)
}

func TestReport_Text(t *testing.T) {
	path := writeReport(t,
		core.Event{Kind: core.KindStep, Test: checkoutTest, Payload: core.StepPayload{Name: "open cart"}},
		core.Event{Kind: core.KindAnomaly, Test: checkoutTest, Payload: core.AnomalyPayload{AnomalyType: "slowPage", Message: "Load time 6200ms", Severity: core.SeverityHigh}},
	)

	code, out := run(t, "report", path)
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "Scout - Test Run Insights")
	assert.Contains(t, out, "high=1")
}

func TestReport_JSON(t *testing.T) {
	path := writeReport(t, core.Event{Kind: core.KindStep, Test: checkoutTest, Payload: core.StepPayload{Name: "open cart"}})

	code, out := run(t, "report", path, "-o", "json")
	require.Equal(t, ExitSuccess, code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
}

func TestReport_ThresholdFailure(t *testing.T) {
	path := writeReport(t,
		core.Event{Kind: core.KindError, Test: checkoutTest, Payload: core.ErrorPayload{Message: "boom"}},
	)
	cfg := writeConfig(t, "thresholds:\n  max_errors: 0\n")

	code, out := run(t, "--config", cfg, "report", path)
	assert.Equal(t, ExitThresholdFailed, code)
	assert.Contains(t, out, "Scout - Test Run Insights")
}

func TestReport_Errors(t *testing.T) {
	code, _ := run(t, "report", filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, ExitError, code)

	path := writeReport(t)
	code, _ = run(t, "report", path, "-o", "xml")
	assert.Equal(t, ExitError, code)

	code, _ = run(t, "--config", writeConfig(t, "telemetry:\n  maxEvents: -1\n"), "report", path)
	assert.Equal(t, ExitError, code)
}

func TestCheckLinks(t *testing.T) {
	ts := httptest.NewServer(testserver.NewServer().Handler())
	defer ts.Close()

	code, out := run(t, "check-links", "-o", "json", ts.URL+"/status/200", ts.URL+"/status/404", "not a url")
	require.Equal(t, ExitSuccess, code)

	var results []linkcheck.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 3)
	assert.Equal(t, 200, results[0].Status)
	assert.Equal(t, 404, results[1].Status)
	assert.NotEmpty(t, results[2].Error)
	assert.Zero(t, results[2].Status)
}

func TestCheckLinks_Strict(t *testing.T) {
	ts := httptest.NewServer(testserver.NewServer().Handler())
	defer ts.Close()

	code, out := run(t, "check-links", "--strict", ts.URL+"/status/200")
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "200")

	code, _ = run(t, "check-links", "--strict", ts.URL+"/status/200", ts.URL+"/status/500")
	assert.Equal(t, ExitThresholdFailed, code)
}

func TestRuns(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "archive.db")
	store, err := archive.Open(dsn)
	require.NoError(t, err)

	c := collector.New()
	c.Append(core.Event{Kind: core.KindStep, Test: checkoutTest, Payload: core.StepPayload{Name: "open cart"}})
	snap := c.Snapshot()
	require.NoError(t, store.Record(context.Background(), snap))
	require.NoError(t, store.Close())

	code, out := run(t, "runs", "--archive", dsn)
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, snap.RunID)

	code, out = run(t, "runs", "--archive", dsn, snap.RunID)
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "Run:        "+snap.RunID)

	code, _ = run(t, "runs", "--archive", dsn, "no-such-run")
	assert.Equal(t, ExitError, code)
}

func TestRuns_NoArchive(t *testing.T) {
	t.Setenv("SCOUT_ARCHIVE", "")
	code, _ := run(t, "runs")
	assert.Equal(t, ExitError, code)
}
