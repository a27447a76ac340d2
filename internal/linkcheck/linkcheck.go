// Package linkcheck probes URLs from the host process on behalf of test code.
//
// Every probe is a HEAD request with its own timeout. Failures are reported
// per URL in the Result and never returned as errors, so one dead link cannot
// fail a batch.
package linkcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"scout/internal/logging"
	"scout/internal/metrics"
	"scout/internal/ratelimit"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultBatchTimeout = 8 * time.Second
	DefaultConcurrency  = 8

	maxRedirects = 10

	// ErrCheckFailed is reported for a batch entry whose probe could not
	// produce a result at all.
	ErrCheckFailed = "checkFailed"
)

// Result is the outcome of probing one URL. Exactly one of Status or Error
// is set.
type Result struct {
	Href    string `json:"href"`
	Status  int    `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
	Timeout bool   `json:"timeout,omitempty"`
}

// OK reports whether the probe got a response.
func (r Result) OK() bool { return r.Error == "" }

type Option func(*Checker)

// WithClient replaces the HTTP client. Its redirect policy is used as is.
func WithClient(c *http.Client) Option {
	return func(ch *Checker) { ch.client = c }
}

// WithTimeouts sets the single-URL and per-URL batch timeouts. Zero keeps
// the default.
func WithTimeouts(single, batch time.Duration) Option {
	return func(ch *Checker) {
		if single > 0 {
			ch.timeout = single
		}
		if batch > 0 {
			ch.batchTimeout = batch
		}
	}
}

func WithLimiter(l *ratelimit.RateLimiter) Option {
	return func(ch *Checker) { ch.limiter = l }
}

// WithConcurrency bounds the number of in-flight batch probes. n <= 0 means
// one goroutine per URL.
func WithConcurrency(n int) Option {
	return func(ch *Checker) { ch.concurrency = n }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(ch *Checker) { ch.log = logging.OrDiscard(l) }
}

// WithTrace writes a request/response transcript of every probe to w.
func WithTrace(w io.Writer) Option {
	return func(ch *Checker) { ch.trace = NewTracer(w) }
}

// Checker issues link probes.
type Checker struct {
	client       *http.Client
	timeout      time.Duration
	batchTimeout time.Duration
	concurrency  int
	limiter      *ratelimit.RateLimiter
	log          logrus.FieldLogger
	trace        *Tracer
}

// New returns a Checker with default timeouts and no rate limit.
func New(opts ...Option) *Checker {
	c := &Checker{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		timeout:      DefaultTimeout,
		batchTimeout: DefaultBatchTimeout,
		concurrency:  DefaultConcurrency,
		log:          logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check probes a single URL.
func (c *Checker) Check(ctx context.Context, href string) Result {
	return c.probe(ctx, href, c.timeout)
}

// CheckAll probes every URL concurrently, each under its own batch timeout.
// The result slice matches urls index for index.
func (c *Checker) CheckAll(ctx context.Context, urls []string) []Result {
	results := make([]Result, len(urls))

	// Probes always return nil so Wait never short-circuits the batch.
	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, href := range urls {
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					c.log.WithField("href", href).Errorf("link check panicked: %v", p)
					results[i] = Result{Href: href, Error: ErrCheckFailed}
				}
			}()
			results[i] = c.probe(ctx, href, c.batchTimeout)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Checker) probe(ctx context.Context, href string, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Time spent queued on the limiter counts against the probe's timeout.
	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() == nil {
			// The limiter refuses up front when the wait would outlast the deadline.
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return c.fail(href, err, time.Since(start))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, href, nil)
	if err != nil {
		return c.fail(href, err, time.Since(start))
	}
	c.trace.LogRequest(href, req)

	resp, err := c.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return c.fail(href, err, elapsed)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body) // drain errors are ignorable

	c.trace.LogResponse(href, resp, elapsed)
	metrics.LinkChecks.WithLabelValues(metrics.OutcomeOK).Inc()
	c.log.WithFields(logrus.Fields{"href": href, "status": resp.StatusCode}).Debug("link checked")
	return Result{Href: href, Status: resp.StatusCode}
}

func (c *Checker) fail(href string, err error, elapsed time.Duration) Result {
	timeout := isTimeout(err)
	outcome := metrics.OutcomeError
	if timeout {
		outcome = metrics.OutcomeTimeout
	}
	metrics.LinkChecks.WithLabelValues(outcome).Inc()
	c.trace.LogError(href, err.Error(), elapsed)
	c.log.WithError(err).WithField("href", href).Warn("link check failed")
	return Result{Href: href, Error: err.Error(), Timeout: timeout}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
