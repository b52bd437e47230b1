package main

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Action Types
// ============================================================================
// Actions represent intent from IR input, IPC and the state WebSocket. The
// daemon loop is their only consumer.
// ============================================================================

// Action is a marker interface for all daemon commands
type Action interface {
	actionMarker()
}

// VolumeStep changes the volume by a relative amount
type VolumeStep struct {
	Percent int `json:"percent"` // positive=up, negative=down
}

func (VolumeStep) actionMarker() {}

// SetVolumePercent requests volume to be set to a specific value
type SetVolumePercent struct {
	Percent float64 `json:"percent"`
	Origin  string  `json:"origin,omitempty"` // e.g. "ir", "ipc", "pulse-ctl"
}

func (SetVolumePercent) actionMarker() {}

// ToggleMute requests mute state to be toggled
type ToggleMute struct{}

func (ToggleMute) actionMarker() {}

// SetMute requests an explicit mute state
type SetMute struct {
	Muted bool `json:"muted"`
}

func (SetMute) actionMarker() {}

// RequestStateSnapshot asks the daemon loop for its current view of the sink.
// Reply must be buffered; the daemon never blocks on it.
type RequestStateSnapshot struct {
	Reply chan StateSnapshot `json:"-"`
}

func (RequestStateSnapshot) actionMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================

// ActionEnvelope wraps an action with a type discriminator for JSON marshaling
type ActionEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalAction deserializes a JSON action envelope into a concrete Action.
// get_state decodes to a RequestStateSnapshot without a reply channel; the
// caller attaches one.
func UnmarshalAction(data []byte) (Action, error) {
	var env ActionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "volume_step":
		var a VolumeStep
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal VolumeStep: %w", err)
		}
		return a, nil

	case "set_volume":
		var a SetVolumePercent
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetVolumePercent: %w", err)
		}
		return a, nil

	case "toggle_mute":
		return ToggleMute{}, nil

	case "set_mute":
		var a SetMute
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetMute: %w", err)
		}
		return a, nil

	case "get_state":
		return RequestStateSnapshot{}, nil

	default:
		return nil, fmt.Errorf("unknown action type: %q", env.Type)
	}
}

// MarshalAction serializes an Action into a JSON action envelope
func MarshalAction(action Action) ([]byte, error) {
	var env ActionEnvelope

	switch a := action.(type) {
	case VolumeStep:
		env.Type = "volume_step"
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal VolumeStep: %w", err)
		}
		env.Data = data

	case SetVolumePercent:
		env.Type = "set_volume"
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal SetVolumePercent: %w", err)
		}
		env.Data = data

	case ToggleMute:
		env.Type = "toggle_mute"

	case SetMute:
		env.Type = "set_mute"
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal SetMute: %w", err)
		}
		env.Data = data

	case RequestStateSnapshot:
		env.Type = "get_state"

	default:
		return nil, fmt.Errorf("unknown action type: %T", action)
	}

	return json.Marshal(env)
}
