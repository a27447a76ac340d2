package bridge

import (
	"encoding/json"
	"fmt"
)

// SaveResult is the answer to a save request. The zero value is the neutral
// result returned when telemetry is disabled and encodes as JSON null.
type SaveResult struct {
	Path  string
	Error string
}

// OK reports whether the report was written.
func (r SaveResult) OK() bool { return r.Path != "" && r.Error == "" }

// IsZero reports whether r is the neutral result.
func (r SaveResult) IsZero() bool { return r == SaveResult{} }

func (r SaveResult) MarshalJSON() ([]byte, error) {
	switch {
	case r.Error != "":
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Error})
	case r.Path != "":
		return json.Marshal(struct {
			Path string `json:"path"`
		}{r.Path})
	default:
		return []byte("null"), nil
	}
}

func (r *SaveResult) UnmarshalJSON(data []byte) error {
	var raw *struct {
		Path  string `json:"path"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding save result: %w", err)
	}
	*r = SaveResult{}
	if raw != nil {
		r.Path, r.Error = raw.Path, raw.Error
	}
	return nil
}
