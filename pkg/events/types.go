package events

import "encoding/json"

// Event name constants
const (
	ChannelPut = "channel.put"
	DriftCheck = "drift.check"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// ChannelPutEvent is the typed payload for channel.put.
type ChannelPutEvent struct {
	Channel string `json:"channel"`
	Value   any    `json:"value"`
	Ts      int64  `json:"ts"`
}

// DriftCheckEvent is the typed payload for drift.check. Drift is the
// distance of the centroid from the one recorded by the previous check, in
// pixels; it is 0 for the first check.
type DriftCheckEvent struct {
	Row   float64 `json:"row"`
	Col   float64 `json:"col"`
	Drift float64 `json:"drift"`
	Error string  `json:"error,omitempty"`
	Ts    int64   `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.DriftCheckEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Row, payload.Col)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
