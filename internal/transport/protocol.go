package transport

import "encoding/json"

// Frame is a task request sent over the WebSocket.
type Frame struct {
	ID   string          `json:"id"`
	Task string          `json:"task"`
	Arg  json.RawMessage `json:"arg,omitempty"`
}

// Reply answers exactly one Frame with the same ID. Result is present
// (possibly null) on success; Error is set otherwise.
type Reply struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func resultReply(id string, v any) Reply {
	data, err := json.Marshal(v)
	if err != nil {
		return Reply{ID: id, Error: err.Error()}
	}
	return Reply{ID: id, Result: data}
}
