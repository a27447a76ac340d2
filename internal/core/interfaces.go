// Package core defines the telemetry event model shared by the collector, the
// bridge and the execution-context helpers.
package core

// Sink receives events for aggregation. Implementations assign sequence numbers
// and timestamps; the returned event carries the stored values.
type Sink interface {
	Append(Event) Event
}
