package collector

import (
	"encoding/json"
	"time"

	"scout/internal/core"
)

// Snapshot is an immutable copy of a Run and the shape of the persisted report.
type Snapshot struct {
	RunID     string       `json:"runId,omitempty"`
	StartedAt *time.Time   `json:"startedAt,omitempty"`
	Dropped   int          `json:"dropped,omitempty"`
	Tests     []core.Event `json:"tests"`
}

// MarshalJSON always writes "tests" as an array, even for an empty snapshot.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type alias Snapshot
	a := alias(s)
	if a.Tests == nil {
		a.Tests = []core.Event{}
	}
	return json.Marshal(a)
}

// Len returns the number of events in the snapshot.
func (s Snapshot) Len() int {
	return len(s.Tests)
}

// ByKind returns the events of kind k in sequence order.
func (s Snapshot) ByKind(k core.Kind) []core.Event {
	result := make([]core.Event, 0)
	for _, e := range s.Tests {
		if e.Kind == k {
			result = append(result, e)
		}
	}
	return result
}

func (s Snapshot) Steps() []core.Event       { return s.ByKind(core.KindStep) }
func (s Snapshot) Elements() []core.Event    { return s.ByKind(core.KindElement) }
func (s Snapshot) Anomalies() []core.Event   { return s.ByKind(core.KindAnomaly) }
func (s Snapshot) Performance() []core.Event { return s.ByKind(core.KindPerformance) }
func (s Snapshot) Errors() []core.Event      { return s.ByKind(core.KindError) }

// TestGroup is the slice of a Run emitted while one test was executing.
type TestGroup struct {
	Key    string
	Test   *core.TestIdentity
	Events []core.Event
}

// ByTest groups events by test identity, ordered by first appearance. Events
// emitted outside any test are grouped under the empty key.
func (s Snapshot) ByTest() []TestGroup {
	index := make(map[string]int)
	groups := make([]TestGroup, 0)
	for _, e := range s.Tests {
		key := e.Test.Key()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, TestGroup{Key: key, Test: e.Test})
		}
		groups[i].Events = append(groups[i].Events, e)
	}
	return groups
}
