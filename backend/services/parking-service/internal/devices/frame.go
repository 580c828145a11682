// Package devices speaks the JSON frame protocol used by gate controllers and sensor boards.
package devices

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Actions understood by the gateway.
const (
	ActionEntryDetected = "EntryDetected"
	ActionExitDetected  = "ExitDetected"
	ActionSensorReport  = "SensorReport"
	ActionAutoOpenQuery = "AutoOpenQuery"
	ActionHeartbeat     = "Heartbeat"

	// ActionOpenBarrier is pushed by the server; devices do not send it.
	ActionOpenBarrier = "OpenBarrier"
)

// Frame is one request sent by a device, or a command pushed to one.
type Frame struct {
	ID      string          `json:"id"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type reply struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Parse decodes a raw frame. The id and action are mandatory.
func Parse(data []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("devices: malformed frame: %w", err)
	}
	frame.ID = strings.TrimSpace(frame.ID)
	frame.Action = strings.TrimSpace(frame.Action)
	if frame.ID == "" {
		return nil, errors.New("devices: frame id is required")
	}
	if frame.Action == "" {
		return nil, errors.New("devices: frame action is required")
	}
	return &frame, nil
}

// BuildResult encodes a successful reply.
func BuildResult(id string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(reply{ID: id, Result: body})
}

// BuildError encodes a failed reply.
func BuildError(id, message string) ([]byte, error) {
	return json.Marshal(reply{ID: id, Error: message})
}

// BuildCommand encodes a server-initiated frame.
func BuildCommand(id, action string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{ID: id, Action: action, Payload: body})
}

// Decode unmarshals a frame payload into T. An absent payload yields the zero value and a
// malformed one an *InputError.
func Decode[T any](payload json.RawMessage) (T, error) {
	var target T
	if len(payload) == 0 {
		return target, nil
	}
	if err := json.Unmarshal(payload, &target); err != nil {
		var zero T
		return zero, &InputError{Message: "invalid payload", Err: err}
	}
	return target, nil
}
