package realtime

import (
	"encoding/json"
	"errors"
)

// Frame is one WebSocket text frame: {"event": "<name>", "data": {...}}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

var (
	// ErrNotConnected is returned by Emit before Connect or after Close.
	ErrNotConnected = errors.New("realtime: not connected")
	// ErrUnknownEvent is returned by Emit for names not registered as outbound.
	ErrUnknownEvent = errors.New("realtime: unknown outbound event")
)

// NewFrame encodes payload as the data of event.
func NewFrame(event string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: data}, nil
}

// ParseFrame decodes a raw frame. A frame without an event name is an error.
func ParseFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, err
	}
	if f.Event == "" {
		return Frame{}, errors.New("frame has no event name")
	}
	return f, nil
}
