// Package collector owns the telemetry Run for the lifetime of the host process.
package collector

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"scout/internal/core"
)

// DefaultMaxEvents bounds the in-memory Run. The oldest events are evicted first.
const DefaultMaxEvents = 10000

// Option configures a Collector.
type Option func(*Collector)

// WithClock sets the clock used to timestamp events at ingestion.
func WithClock(clock core.Clock) Option {
	return func(c *Collector) { c.clock = clock }
}

// WithMaxEvents caps the number of retained events. Zero disables the cap.
func WithMaxEvents(n int) Option {
	return func(c *Collector) {
		if n >= 0 {
			c.maxEvents = n
		}
	}
}

// Collector appends events to a single Run. Append is serialized, so sequence
// numbers stay gap-free and strictly increasing even with concurrent callers.
type Collector struct {
	mu        sync.Mutex
	clock     core.Clock
	maxEvents int
	run       *run
}

type run struct {
	id        string
	startedAt time.Time
	events    []core.Event
	views     map[core.Kind][]core.Event
	lastSeq   uint64
	dropped   int

	// steps holds one step counter per test key. Untagged steps share the
	// "" counter.
	steps     map[string]int
	tests     map[string]struct{}
	anomalies int
}

// New creates a Collector. The Run itself is created lazily on the first append.
func New(opts ...Option) *Collector {
	c := &Collector{
		clock:     core.RealClock{},
		maxEvents: DefaultMaxEvents,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Append stores e, assigning its sequence number and ingestion timestamp, and
// returns the stored event. It never fails.
func (c *Collector) Append(e core.Event) core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if c.run == nil {
		c.run = &run{
			id:        uuid.NewString(),
			startedAt: now,
			views:     make(map[core.Kind][]core.Event),
			steps:     make(map[string]int),
			tests:     make(map[string]struct{}),
		}
	}
	r := c.run

	r.lastSeq++
	e.Seq = r.lastSeq
	e.Timestamp = now
	if e.Kind == "" {
		e.Kind = core.KindUnknown
	}
	if e.Payload == nil {
		e.Payload = core.OpaquePayload{}
	}
	if e.Test != nil {
		id := *e.Test
		id.TitlePath = append([]string(nil), e.Test.TitlePath...)
		e.Test = &id
	}

	key := e.Test.Key()
	if key != "" {
		r.tests[key] = struct{}{}
	}
	if step, ok := e.Payload.(core.StepPayload); ok && e.Kind == core.KindStep {
		if step.Name == startStep {
			r.steps[key] = 0
		}
		r.steps[key]++
		step.StepNumber = r.steps[key]
		e.Payload = step
	}
	if e.Kind == core.KindAnomaly {
		r.anomalies++
	}

	r.events = append(r.events, e)
	r.views[e.Kind] = append(r.views[e.Kind], e)

	if c.maxEvents > 0 && len(r.events) > c.maxEvents {
		r.evictOldest()
	}
	return e
}

func (r *run) evictOldest() {
	oldest := r.events[0]
	r.events = r.events[1:]
	view := r.views[oldest.Kind]
	if len(view) > 0 && view[0].Seq == oldest.Seq {
		r.views[oldest.Kind] = view[1:]
	}
	if oldest.Kind == core.KindAnomaly {
		r.anomalies--
	}
	r.dropped++
}

// Snapshot returns a copy of the current Run. Later appends never modify a
// snapshot that was already taken. Payloads are shared and must be treated as
// read-only.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run == nil {
		return Snapshot{Tests: []core.Event{}}
	}
	events := make([]core.Event, len(c.run.events))
	copy(events, c.run.events)
	started := c.run.startedAt
	return Snapshot{
		RunID:     c.run.id,
		StartedAt: &started,
		Dropped:   c.run.dropped,
		Tests:     events,
	}
}

// View returns a copy of the per-kind view for k.
func (c *Collector) View(k core.Kind) []core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		return []core.Event{}
	}
	result := make([]core.Event, len(c.run.views[k]))
	copy(result, c.run.views[k])
	return result
}

// Stats is a cheap summary of the Run used by progress output and metrics.
type Stats struct {
	Events    int
	Tests     int
	Anomalies int
	Dropped   int
	LastSeq   uint64
}

// Stats returns counters for the current Run.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		return Stats{}
	}
	return Stats{
		Events:    len(c.run.events),
		Tests:     len(c.run.tests),
		Anomalies: c.run.anomalies,
		Dropped:   c.run.dropped,
		LastSeq:   c.run.lastSeq,
	}
}

// Duration returns the time since the first event, or zero before any event.
func (c *Collector) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		return 0
	}
	return c.clock.Since(c.run.startedAt)
}
