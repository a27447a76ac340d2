// Package lifecycle drives the bridge at test boundaries.
//
// Each test moves through NotStarted → Running → Passed|Failed → Reported.
// Entering Running emits a testStart step. Leaving Running emits an optional
// failure screenshot and a testFailure step, then a testEnd step, and always
// ends with a save so the report reflects every completed test.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"scout/internal/bridge"
	"scout/internal/config"
	"scout/internal/core"
	"scout/internal/logging"

	"github.com/sirupsen/logrus"
)

// DefaultSlowPage is the load time above which a slow_page anomaly is raised.
const DefaultSlowPage = 5 * time.Second

var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// State is a test's position in its lifecycle.
type State int

const (
	NotStarted State = iota
	Running
	Passed
	Failed
	Reported
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Running:
		return "running"
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case Reported:
		return "reported"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Test identifies the test being run. Group names the suite or spec file
// and feeds the skip-heavy-capture decision.
type Test struct {
	Title     string
	TitlePath []string
	Group     string
}

func (t Test) identity() *core.TestIdentity {
	if t.Title == "" && len(t.TitlePath) == 0 {
		return nil
	}
	return &core.TestIdentity{Title: t.Title, TitlePath: append([]string(nil), t.TitlePath...)}
}

type Option func(*Hooks)

func WithCapturer(c Capturer) Option {
	return func(h *Hooks) { h.capturer = c }
}

// WithSkipHeavyCapture disables failure screenshots for groups where skip
// returns true.
func WithSkipHeavyCapture(skip func(group string) bool) Option {
	return func(h *Hooks) { h.skipHeavy = skip }
}

func WithSlowPageThreshold(d time.Duration) Option {
	return func(h *Hooks) {
		if d > 0 {
			h.slowPage = d
		}
	}
}

// WithPageLoadTimeout bounds each MeasureLoad call. Zero or negative leaves
// loads unbounded.
func WithPageLoadTimeout(d time.Duration) Option {
	return func(h *Hooks) {
		if d > 0 {
			h.pageLoad = d
		}
	}
}

// ConfigOptions maps the hook settings of cfg to options.
func ConfigOptions(cfg *config.Config) []Option {
	if cfg == nil {
		return nil
	}
	return []Option{
		WithSlowPageThreshold(cfg.Anomalies.SlowPage),
		WithPageLoadTimeout(cfg.Timeouts.PageLoad),
	}
}

func WithClock(c core.Clock) Option {
	return func(h *Hooks) { h.clock = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(h *Hooks) { h.log = logging.OrDiscard(l) }
}

// Hooks creates test runs bound to one Channel.
type Hooks struct {
	ch        bridge.Channel
	capturer  Capturer
	skipHeavy func(group string) bool
	slowPage  time.Duration
	pageLoad  time.Duration
	clock     core.Clock
	log       logrus.FieldLogger
}

func New(ch bridge.Channel, opts ...Option) *Hooks {
	h := &Hooks{
		ch:        ch,
		skipHeavy: func(string) bool { return false },
		slowPage:  DefaultSlowPage,
		clock:     core.RealClock{},
		log:       logging.Discard(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Helper returns a helper that tags events with t, or leaves them untagged
// when t is nil.
func (h *Hooks) Helper(t *Test) *Helper {
	var id *core.TestIdentity
	if t != nil {
		id = t.identity()
	}
	return &Helper{hooks: h, test: id}
}

// Begin starts t and emits its testStart step.
func (h *Hooks) Begin(ctx context.Context, t Test) (*TestRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	run := &TestRun{hooks: h, test: t, helper: h.Helper(&t)}
	if err := run.transition(NotStarted, Running); err != nil {
		return nil, err
	}
	run.helper.LogStep(ctx, "testStart", map[string]any{"title": t.Title})
	return run, nil
}

// Run executes fn as one test. A panic in fn counts as a failure. The
// returned error is the test's own failure, not a telemetry problem.
func (h *Hooks) Run(ctx context.Context, t Test, fn func(ctx context.Context, help *Helper) error) (bridge.SaveResult, error) {
	run, err := h.Begin(ctx, t)
	if err != nil {
		return bridge.SaveResult{}, err
	}

	testErr := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return fn(ctx, run.helper)
	}()

	res, err := run.Finish(ctx, testErr)
	if err != nil {
		return res, err
	}
	return res, testErr
}

// TestRun is one test in flight.
type TestRun struct {
	hooks  *Hooks
	test   Test
	helper *Helper

	mu      sync.Mutex
	state   State
	outcome State
}

func (r *TestRun) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Outcome is Passed or Failed once the test has finished, NotStarted before.
func (r *TestRun) Outcome() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome
}

func (r *TestRun) Helper() *Helper { return r.helper }

func (r *TestRun) transition(from, to State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != from {
		return fmt.Errorf("%w: %s → %s from %s", ErrInvalidTransition, from, to, r.state)
	}
	r.state = to
	if to == Passed || to == Failed {
		r.outcome = to
	}
	return nil
}

// Finish ends the test with testErr (nil for a pass), emits the end-of-test
// events and saves the report.
func (r *TestRun) Finish(ctx context.Context, testErr error) (bridge.SaveResult, error) {
	to := Passed
	if testErr != nil {
		to = Failed
	}
	if err := r.transition(Running, to); err != nil {
		return bridge.SaveResult{}, err
	}

	h := r.hooks
	if to == Failed {
		details := map[string]any{"title": r.test.Title, "err": testErr.Error()}
		if h.skipHeavy(r.test.Group) {
			details["note"] = "screenshot skipped"
		} else {
			r.helper.CaptureScreenshot(ctx, "failure-"+screenshotName(r.test.Title))
		}
		r.helper.LogStep(ctx, "testFailure", details)
	}
	r.helper.LogStep(ctx, "testEnd", map[string]any{"title": r.test.Title})

	res := h.ch.Save(ctx)
	if res.Error != "" {
		h.log.WithFields(logrus.Fields{"test": r.test.Title, "error": res.Error}).Warn("report save failed")
	}
	if err := r.transition(to, Reported); err != nil {
		return res, err
	}
	return res, nil
}

func screenshotName(title string) string {
	if title == "" {
		title = "test"
	}
	return strings.ToLower(strings.Join(strings.Fields(title), "_"))
}
