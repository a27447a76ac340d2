// Package bridge connects execution contexts to the host-side run.
//
// Every operation is request/acknowledge: the caller waits for the host to
// answer. No operation returns a Go error. Ingestion failures are swallowed,
// and save and link-check failures come back as values, so telemetry can
// never fail the calling test.
package bridge

import (
	"context"
	"sync"

	"scout/internal/collector"
	"scout/internal/core"
	"scout/internal/linkcheck"
	"scout/internal/logging"
	"scout/internal/metrics"
	"scout/internal/reporter"

	"github.com/sirupsen/logrus"
)

// Channel is the contract execution contexts use to reach the host.
type Channel interface {
	Log(ctx context.Context, payload []byte)
	Get(ctx context.Context) collector.Snapshot
	Save(ctx context.Context) SaveResult
	CheckLink(ctx context.Context, url string) linkcheck.Result
	CheckLinks(ctx context.Context, urls []string) []linkcheck.Result
}

// Store is the run the bridge appends to.
type Store interface {
	core.Sink
	Snapshot() collector.Snapshot
	Stats() collector.Stats
}

// Persister writes snapshots.
type Persister interface {
	Persist(ctx context.Context, snap collector.Snapshot) reporter.Result
}

// LinkChecker probes URLs.
type LinkChecker interface {
	Check(ctx context.Context, url string) linkcheck.Result
	CheckAll(ctx context.Context, urls []string) []linkcheck.Result
}

type Option func(*Bridge)

// WithEnabled toggles telemetry. When disabled, Log, Get and Save return
// neutral values and nothing is written. Link checks are unaffected.
func WithEnabled(enabled bool) Option {
	return func(b *Bridge) { b.enabled = enabled }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(b *Bridge) { b.log = logging.OrDiscard(l) }
}

// Bridge is the host-side Channel.
type Bridge struct {
	store   Store
	persist Persister
	checker LinkChecker
	enabled bool
	log     logrus.FieldLogger

	// saveMu keeps concurrent saves from renaming an older snapshot over a
	// newer one.
	saveMu sync.Mutex
}

var _ Channel = (*Bridge)(nil)

// New wires a Bridge. A nil checker gets a default linkcheck.Checker.
func New(store Store, persist Persister, checker LinkChecker, opts ...Option) *Bridge {
	if checker == nil {
		checker = linkcheck.New()
	}
	b := &Bridge{
		store:   store,
		persist: persist,
		checker: checker,
		enabled: true,
		log:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Enabled reports whether telemetry is collected.
func (b *Bridge) Enabled() bool { return b.enabled }

// Log decodes payload and appends it to the run.
func (b *Bridge) Log(ctx context.Context, payload []byte) {
	if !b.enabled {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			metrics.IngestFailures.Inc()
			b.log.WithField("task", TaskLog).Warnf("ingestion failed: %v", p)
		}
	}()

	stored := b.store.Append(core.DecodeEnvelope(payload).Event())

	metrics.EventsIngested.WithLabelValues(string(stored.Kind)).Inc()
	metrics.RunEvents.Set(float64(b.store.Stats().Events))
	b.log.WithFields(logrus.Fields{
		"kind": stored.Kind,
		"seq":  stored.Seq,
		"test": stored.Test.Key(),
	}).Debug("event ingested")
}

// Get returns a copy of the run.
func (b *Bridge) Get(ctx context.Context) collector.Snapshot {
	if !b.enabled {
		return collector.Snapshot{}
	}
	return b.store.Snapshot()
}

// Save persists the current run.
func (b *Bridge) Save(ctx context.Context) SaveResult {
	if !b.enabled {
		return SaveResult{}
	}
	b.saveMu.Lock()
	defer b.saveMu.Unlock()

	res := b.persist.Persist(ctx, b.store.Snapshot())
	if res.Err != nil {
		return SaveResult{Error: res.Err.Error()}
	}
	return SaveResult{Path: res.Path}
}

func (b *Bridge) CheckLink(ctx context.Context, url string) linkcheck.Result {
	return b.checker.Check(ctx, url)
}

func (b *Bridge) CheckLinks(ctx context.Context, urls []string) []linkcheck.Result {
	return b.checker.CheckAll(ctx, urls)
}
