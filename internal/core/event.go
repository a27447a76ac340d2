package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind discriminates the payload carried by an Event.
type Kind string

const (
	KindStep        Kind = "step"
	KindElement     Kind = "element"
	KindAnomaly     Kind = "anomaly"
	KindPerformance Kind = "performance"
	KindError       Kind = "error"

	// KindUnknown is recorded when an inbound payload names no kind at all.
	KindUnknown Kind = "unknown"
)

// Known reports whether k has a typed payload. Other kinds pass through opaquely.
func (k Kind) Known() bool {
	switch k {
	case KindStep, KindElement, KindAnomaly, KindPerformance, KindError:
		return true
	}
	return false
}

// Severity grades an anomaly.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// MetricLoad is the only performance metric emitted by the browser helpers.
const MetricLoad = "load"

// TestIdentity names the test that was executing when an event was emitted.
type TestIdentity struct {
	Title     string   `json:"title,omitempty"`
	TitlePath []string `json:"titlePath,omitempty"`
}

// Key returns a stable identifier for grouping events by test.
func (t *TestIdentity) Key() string {
	if t == nil {
		return ""
	}
	if len(t.TitlePath) > 0 {
		return strings.Join(t.TitlePath, " > ")
	}
	return t.Title
}

// Fields holds payload members that have no typed field. They are stored under
// "extra" so nothing the caller sent is lost.
type Fields map[string]json.RawMessage

// Payload is implemented by every per-kind payload shape.
type Payload interface {
	payload()
}

type StepPayload struct {
	StepNumber int             `json:"stepNumber"`
	Name       string          `json:"name"`
	Details    json.RawMessage `json:"details,omitempty"`
	Extra      Fields          `json:"extra,omitempty"`
}

type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type ElementPayload struct {
	Selector    string            `json:"selector"`
	Description string            `json:"description"`
	Exists      bool              `json:"exists"`
	Tag         string            `json:"tag,omitempty"`
	Classes     string            `json:"classes,omitempty"`
	Text        string            `json:"text,omitempty"`
	Rect        *Rect             `json:"rect,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Extra       Fields            `json:"extra,omitempty"`
}

type AnomalyPayload struct {
	AnomalyType string   `json:"anomalyType"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Extra       Fields   `json:"extra,omitempty"`
}

type PerformancePayload struct {
	Metric  string  `json:"metric"`
	ValueMs float64 `json:"valueMs"`
	Extra   Fields  `json:"extra,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Extra   Fields `json:"extra,omitempty"`
}

// OpaquePayload carries a payload verbatim: unknown kinds, and known kinds whose
// payload did not match the expected shape.
type OpaquePayload struct {
	Data json.RawMessage
}

func (OpaquePayload) payload()      {}
func (StepPayload) payload()        {}
func (ElementPayload) payload()     {}
func (AnomalyPayload) payload()     {}
func (PerformancePayload) payload() {}
func (ErrorPayload) payload()       {}

// MarshalJSON writes the stored bytes unchanged.
func (o OpaquePayload) MarshalJSON() ([]byte, error) {
	if len(o.Data) == 0 {
		return []byte("null"), nil
	}
	return o.Data, nil
}

// Event is one telemetry record. Timestamp and Seq are assigned by the collector
// at ingestion and are never taken from the caller.
type Event struct {
	Kind      Kind
	Seq       uint64
	Timestamp time.Time
	Test      *TestIdentity
	Payload   Payload
}

type eventJSON struct {
	Kind      Kind            `json:"kind"`
	Seq       uint64          `json:"sequenceNumber"`
	Timestamp time.Time       `json:"timestamp"`
	Test      *TestIdentity   `json:"test,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	var payload []byte
	if e.Payload == nil {
		payload = []byte("null")
	} else {
		var err error
		payload, err = json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", e.Kind, err)
		}
	}
	return json.Marshal(eventJSON{
		Kind:      e.Kind,
		Seq:       e.Seq,
		Timestamp: e.Timestamp,
		Test:      e.Test,
		Payload:   payload,
	})
}

// UnmarshalJSON restores a persisted event, decoding the payload by kind.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Kind = raw.Kind
	e.Seq = raw.Seq
	e.Timestamp = raw.Timestamp
	e.Test = raw.Test
	e.Payload = decodeTyped(raw.Kind, raw.Payload)
	return nil
}

// Step returns the step payload if e is a well-formed step event.
func (e Event) Step() (StepPayload, bool) {
	p, ok := e.Payload.(StepPayload)
	return p, ok
}

func (e Event) Element() (ElementPayload, bool) {
	p, ok := e.Payload.(ElementPayload)
	return p, ok
}

func (e Event) Anomaly() (AnomalyPayload, bool) {
	p, ok := e.Payload.(AnomalyPayload)
	return p, ok
}

func (e Event) Performance() (PerformancePayload, bool) {
	p, ok := e.Payload.(PerformancePayload)
	return p, ok
}

func (e Event) Error() (ErrorPayload, bool) {
	p, ok := e.Payload.(ErrorPayload)
	return p, ok
}

// decodeTyped decodes data into the payload struct for kind. Anything that does
// not fit is preserved as an OpaquePayload.
func decodeTyped(kind Kind, data json.RawMessage) Payload {
	if len(data) == 0 {
		return OpaquePayload{}
	}
	var (
		p   Payload
		err error
	)
	switch kind {
	case KindStep:
		var s StepPayload
		err = json.Unmarshal(data, &s)
		s.Extra = s.Extra.merge(unmapped(data, kind))
		p = s
	case KindElement:
		var el ElementPayload
		err = json.Unmarshal(data, &el)
		el.Extra = el.Extra.merge(unmapped(data, kind))
		p = el
	case KindAnomaly:
		var a AnomalyPayload
		err = json.Unmarshal(data, &a)
		if a.Severity == "" {
			a.Severity = SeverityMedium
		}
		a.Extra = a.Extra.merge(unmapped(data, kind))
		p = a
	case KindPerformance:
		var pp PerformancePayload
		err = json.Unmarshal(data, &pp)
		pp.Extra = pp.Extra.merge(unmapped(data, kind))
		p = pp
	case KindError:
		var ep ErrorPayload
		err = json.Unmarshal(data, &ep)
		ep.Extra = ep.Extra.merge(unmapped(data, kind))
		p = ep
	default:
		return OpaquePayload{Data: append(json.RawMessage(nil), data...)}
	}
	if err != nil {
		return OpaquePayload{Data: append(json.RawMessage(nil), data...)}
	}
	return p
}

// mappedFields lists the JSON members each typed payload decodes itself.
var mappedFields = map[Kind][]string{
	KindStep:        {"stepNumber", "name", "step", "details", "extra"},
	KindElement:     {"selector", "description", "exists", "tag", "classes", "text", "rect", "attributes", "extra"},
	KindAnomaly:     {"anomalyType", "message", "severity", "extra"},
	KindPerformance: {"metric", "valueMs", "extra"},
	KindError:       {"message", "detail", "extra"},
}

// unmapped returns the members of the object data that kind has no field for.
func unmapped(data []byte, kind Kind) Fields {
	var fields Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	for _, name := range mappedFields[kind] {
		delete(fields, name)
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// merge adds other to f without overwriting existing members.
func (f Fields) merge(other Fields) Fields {
	if len(other) == 0 {
		return f
	}
	if f == nil {
		f = make(Fields, len(other))
	}
	for k, v := range other {
		if _, ok := f[k]; !ok {
			f[k] = v
		}
	}
	return f
}
