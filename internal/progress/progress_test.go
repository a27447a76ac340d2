package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"scout/internal/collector"
	"scout/internal/core"
)

type fixedStats collector.Stats

func (f fixedStats) Stats() collector.Stats { return collector.Stats(f) }

func TestNewProgress(t *testing.T) {
	c := collector.New()

	progress := NewProgress(c, false)

	if progress.source != c {
		t.Error("source not assigned")
	}
	if progress.quiet {
		t.Error("quiet should be false")
	}
	if progress.interval != DefaultInterval {
		t.Errorf("expected default interval, got %v", progress.interval)
	}
}

func TestLine(t *testing.T) {
	got := Line(83*time.Second, collector.Stats{Events: 42, Tests: 3, Anomalies: 2})
	want := "[01:23] Events: 42 | Tests: 3 | Anomalies: 2"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLine_ShowsDropped(t *testing.T) {
	got := Line(0, collector.Stats{Events: 10, Dropped: 5})
	if !strings.HasSuffix(got, "| Dropped: 5") {
		t.Errorf("expected dropped counter, got %q", got)
	}
}

func TestProgress_TicksWithCollectorStats(t *testing.T) {
	c := collector.New()
	c.Append(core.Event{Kind: core.KindStep, Test: &core.TestIdentity{Title: "login"}})

	var out core.MockWriter
	progress := NewProgress(c, false)
	progress.SetOutput(&out)
	progress.SetInterval(5 * time.Millisecond)

	progress.Start()
	deadline := time.Now().Add(time.Second)
	for !strings.Contains(out.String(), "Events: 1 | Tests: 1") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	progress.Stop()

	if !strings.Contains(out.String(), "Events: 1 | Tests: 1") {
		t.Errorf("expected status line, got %q", out.String())
	}
}

func TestProgress_QuietMode(t *testing.T) {
	var buf bytes.Buffer
	progress := NewProgress(fixedStats{Events: 1}, true)
	progress.SetOutput(&buf)

	progress.Start()
	time.Sleep(10 * time.Millisecond)
	progress.Print("listening")
	progress.Stop()

	if buf.Len() != 0 {
		t.Errorf("expected no output in quiet mode, got: %q", buf.String())
	}
}

func TestProgress_DoubleStop(t *testing.T) {
	progress := NewProgress(fixedStats{}, false)
	progress.SetOutput(&core.MockWriter{})
	progress.Start()

	progress.Stop()
	progress.Stop()
}

func TestProgress_StopWithoutStart(t *testing.T) {
	progress := NewProgress(fixedStats{}, false)
	progress.SetOutput(&bytes.Buffer{})

	progress.Stop()
}

func TestProgress_Print(t *testing.T) {
	var buf bytes.Buffer
	progress := NewProgress(fixedStats{}, false)
	progress.SetOutput(&buf)

	progress.Print("bridge listening on 127.0.0.1:7357")

	output := buf.String()
	if !strings.HasPrefix(output, "\033[K") {
		t.Error("expected output to start with line clear escape sequence")
	}
	if !strings.HasSuffix(output, "bridge listening on 127.0.0.1:7357\n") {
		t.Errorf("expected message with newline, got: %q", output)
	}
}

func TestProgress_Printf(t *testing.T) {
	var buf bytes.Buffer
	progress := NewProgress(fixedStats{}, false)
	progress.SetOutput(&buf)

	progress.Printf("report saved to %s (%d events)", "latest-report.json", 7)

	if !strings.Contains(buf.String(), "report saved to latest-report.json (7 events)\n") {
		t.Errorf("expected formatted message, got: %q", buf.String())
	}
}
