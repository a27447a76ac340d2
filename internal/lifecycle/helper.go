package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"scout/internal/bridge"
	"scout/internal/collector"
	"scout/internal/core"
)

// Passthrough kinds produced by the helper.
const (
	KindPageAnalysis  core.Kind = "pageAnalysis"
	KindAccessibility core.Kind = "accessibility"
)

// Helper emits telemetry for one test. All methods are best effort: they
// never fail the calling test.
type Helper struct {
	hooks *Hooks
	test  *core.TestIdentity
}

type wireEvent struct {
	Kind    core.Kind          `json:"kind"`
	Test    *core.TestIdentity `json:"test,omitempty"`
	Payload any                `json:"payload"`
}

func (h *Helper) emit(ctx context.Context, kind core.Kind, payload any) {
	data, err := json.Marshal(wireEvent{Kind: kind, Test: h.test, Payload: payload})
	if err != nil {
		h.hooks.log.WithError(err).WithField("kind", kind).Warn("encoding event failed")
		return
	}
	h.hooks.ch.Log(ctx, data)
}

// LogStep records a named step. The host assigns the step number.
func (h *Helper) LogStep(ctx context.Context, name string, details any) {
	var raw json.RawMessage
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			b, _ = json.Marshal(fmt.Sprint(details))
		}
		raw = b
	}
	h.emit(ctx, core.KindStep, core.StepPayload{Name: name, Details: raw})
}

// CaptureElement probes selector and records what was found. A missing
// element, a probe error or a nil probe all record exists=false.
func (h *Helper) CaptureElement(ctx context.Context, probe ElementProbe, selector, description string) core.ElementPayload {
	details := core.ElementPayload{Selector: selector, Description: description}
	if probe != nil {
		if el, err := probe.Probe(ctx, selector); err == nil && el != nil {
			details = *el
			details.Selector = selector
			details.Description = description
			details.Exists = true
		}
	}
	h.emit(ctx, core.KindElement, details)
	return details
}

// DetectAnomaly records a flagged deviation. An empty severity means medium.
func (h *Helper) DetectAnomaly(ctx context.Context, anomalyType, message string, severity core.Severity) {
	if severity == "" {
		severity = core.SeverityMedium
	}
	h.emit(ctx, core.KindAnomaly, core.AnomalyPayload{
		AnomalyType: anomalyType,
		Message:     message,
		Severity:    severity,
	})
}

// RecordLoad records a page load sample and flags it when it exceeds the
// slow-page threshold.
func (h *Helper) RecordLoad(ctx context.Context, load time.Duration) {
	ms := float64(load) / float64(time.Millisecond)
	h.emit(ctx, core.KindPerformance, core.PerformancePayload{Metric: core.MetricLoad, ValueMs: ms})
	if load > h.hooks.slowPage {
		h.DetectAnomaly(ctx, "slow_page", fmt.Sprintf("Load time %dms", load.Milliseconds()), core.SeverityHigh)
	}
}

// MeasureLoad runs load under the page-load timeout and records how long it
// took. A load that overruns the timeout is recorded as a pageLoadTimeout
// error plus a sample of the full timeout. Other load errors record nothing.
func (h *Helper) MeasureLoad(ctx context.Context, url string, load func(ctx context.Context) error) error {
	loadCtx := ctx
	if h.hooks.pageLoad > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, h.hooks.pageLoad)
		defer cancel()
	}

	start := h.hooks.clock.Now()
	err := load(loadCtx)
	took := h.hooks.clock.Since(start)

	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		h.emit(ctx, core.KindError, core.ErrorPayload{
			Message: "pageLoadTimeout",
			Detail:  fmt.Sprintf("%s did not load within %dms", url, h.hooks.pageLoad.Milliseconds()),
		})
		took = h.hooks.pageLoad
	default:
		return err
	}
	h.RecordLoad(ctx, took)
	return err
}

// SmartWait logs why it is waiting, then waits d or until ctx is done.
func (h *Helper) SmartWait(ctx context.Context, reason string, d time.Duration) error {
	if reason == "" {
		reason = "wait for stability"
	}
	h.LogStep(ctx, "smartWait", map[string]any{"reason": reason, "timeout": d.Milliseconds()})

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AnalyzePage records a page structure summary.
func (h *Helper) AnalyzePage(ctx context.Context, pageName string, analysis PageAnalysis) PageAnalysis {
	h.emit(ctx, KindPageAnalysis, map[string]any{"pageName": pageName, "analysis": analysis})
	return analysis
}

// ScanAccessibility runs scanner and records its violations. A nil scanner
// means the capability is absent and nothing is recorded.
func (h *Helper) ScanAccessibility(ctx context.Context, scanner A11yScanner) []Violation {
	if scanner == nil {
		return nil
	}
	violations, err := scanner.Scan(ctx)
	if err != nil {
		h.LogError(ctx, "accessibilityCheckFailed", err.Error())
		return nil
	}
	if violations == nil {
		violations = []Violation{}
	}
	h.emit(ctx, KindAccessibility, map[string]any{
		"violationsCount": len(violations),
		"violations":      violations,
	})
	return violations
}

// LogError records an error event.
func (h *Helper) LogError(ctx context.Context, message, detail string) {
	h.emit(ctx, core.KindError, core.ErrorPayload{Message: message, Detail: detail})
}

// CaptureScreenshot asks the capturer for a screenshot and records the
// outcome. It returns the artifact name, or "" when nothing was captured.
func (h *Helper) CaptureScreenshot(ctx context.Context, name string) string {
	c := h.hooks.capturer
	if c == nil {
		return ""
	}
	file := fmt.Sprintf("ai-%s-%d", name, h.hooks.clock.Now().UnixMilli())
	if err := c.Screenshot(ctx, file); err != nil {
		h.LogError(ctx, "screenshotFailed", err.Error())
		return ""
	}
	h.LogStep(ctx, "screenshot", map[string]any{"name": file})
	return file
}

// GenerateReport fetches the aggregated run and then saves it.
func (h *Helper) GenerateReport(ctx context.Context) (collector.Snapshot, bridge.SaveResult) {
	snap := h.hooks.ch.Get(ctx)
	return snap, h.hooks.ch.Save(ctx)
}
