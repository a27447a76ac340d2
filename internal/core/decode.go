package core

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// envelopeKeys are stripped from flat payloads before per-kind decoding.
var envelopeKeys = []string{"kind", "type", "test", "time", "timestamp", "sequenceNumber"}

// Envelope is an inbound log request after decoding.
type Envelope struct {
	Kind    Kind
	Test    *TestIdentity
	Payload Payload
}

// Event converts the envelope into an event ready for a Sink.
func (env Envelope) Event() Event {
	return Event{Kind: env.Kind, Test: env.Test, Payload: env.Payload}
}

// DecodeEnvelope interprets untrusted bytes from an execution context. Two shapes
// are accepted:
//
//	{"kind": "anomaly", "test": {...}, "payload": {...}}
//	{"type": "anomaly", "anomalyType": "...", "test": {...}}
//
// Decoding never fails: anything that does not fit a typed payload is kept as an
// OpaquePayload so no diagnostic data is lost.
func DecodeEnvelope(raw []byte) Envelope {
	if !gjson.ValidBytes(raw) {
		quoted, _ := json.Marshal(string(raw))
		return Envelope{Kind: KindUnknown, Payload: OpaquePayload{Data: quoted}}
	}

	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Envelope{Kind: KindUnknown, Payload: OpaquePayload{Data: compact(raw)}}
	}

	env := Envelope{
		Kind: kindOf(root),
		Test: identityOf(root.Get("test")),
	}

	var body []byte
	if p := root.Get("payload"); p.Exists() {
		body = []byte(p.Raw)
	} else {
		body = stripEnvelope(raw)
	}
	env.Payload = decodeBody(env.Kind, body)
	return env
}

func kindOf(root gjson.Result) Kind {
	for _, key := range []string{"kind", "type"} {
		if v := root.Get(key); v.Type == gjson.String && v.Str != "" {
			return Kind(v.Str)
		}
	}
	return KindUnknown
}

func identityOf(v gjson.Result) *TestIdentity {
	if !v.IsObject() {
		return nil
	}
	id := &TestIdentity{Title: v.Get("title").String()}
	path := v.Get("titlePath")
	if !path.Exists() {
		path = v.Get("fullTitle")
	}
	switch {
	case path.IsArray():
		path.ForEach(func(_, part gjson.Result) bool {
			id.TitlePath = append(id.TitlePath, part.String())
			return true
		})
	case path.Type == gjson.String && path.Str != "":
		id.TitlePath = []string{path.Str}
	}
	if id.Title == "" && len(id.TitlePath) == 0 {
		return nil
	}
	return id
}

func stripEnvelope(raw []byte) []byte {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return compact(raw)
	}
	for _, key := range envelopeKeys {
		delete(fields, key)
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return compact(raw)
	}
	return out
}

// decodeBody applies the aliases used by the browser helpers before decoding.
func decodeBody(kind Kind, body []byte) Payload {
	v := gjson.ParseBytes(body)
	switch kind {
	case KindStep:
		if !v.IsObject() {
			break
		}
		name := v.Get("name")
		if !name.Exists() {
			name = v.Get("step")
		}
		if name.Exists() && name.Type != gjson.String {
			break
		}
		step := StepPayload{Name: name.Str, Extra: unmapped(body, KindStep)}
		if d := v.Get("details"); d.Exists() {
			step.Details = json.RawMessage(d.Raw)
		}
		return step
	case KindElement:
		if v.IsObject() {
			body = elementBody(body)
		}
	case KindPerformance:
		if v.IsObject() && !v.Get("metric").Exists() {
			if load := v.Get("load"); load.Type == gjson.Number {
				extra := unmapped(body, KindPerformance)
				delete(extra, "load")
				if len(extra) == 0 {
					extra = nil
				}
				return PerformancePayload{Metric: MetricLoad, ValueMs: load.Num, Extra: extra}
			}
		}
	}
	return decodeTyped(kind, body)
}

func compact(raw []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return append([]byte(nil), raw...)
	}
	return buf.Bytes()
}

// elementBody unwraps the {"details": {...}} form sent by captureElement and
// maps its tagName to tag. Members outside details are kept alongside.
func elementBody(body []byte) []byte {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return body
	}
	if _, ok := fields["selector"]; !ok {
		if details, ok := fields["details"]; ok && gjson.ParseBytes(details).IsObject() {
			var inner map[string]json.RawMessage
			if err := json.Unmarshal(details, &inner); err == nil {
				delete(fields, "details")
				for k, v := range fields {
					if _, dup := inner[k]; !dup {
						inner[k] = v
					}
				}
				fields = inner
			}
		}
	}
	if tagName, ok := fields["tagName"]; ok {
		if _, hasTag := fields["tag"]; !hasTag {
			fields["tag"] = tagName
			delete(fields, "tagName")
		}
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return body
	}
	return out
}
