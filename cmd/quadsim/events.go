package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ============================================================================
// Events
// ============================================================================
// Events are the only inputs to the reducer: command events arriving over IPC
// / input devices / the CLI, the daemon's own Poll events, and observations
// fed back from the effects layer. Command events carry JSON tags so the same
// types travel over the IPC socket as {"type": ..., "data": ...} envelopes.
// ============================================================================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// Poll is emitted by the daemon loop on every pass of the outer poll ticker.
// Now comes from the injected clock so tests can drive time synthetically.
// At most one simulation tick fires per Poll.
type Poll struct {
	Now time.Time
}

func (Poll) eventMarker() {}

// Start resumes a paused simulation. A no-op while running; a halted
// simulation stays halted until reset.
type Start struct{}

func (Start) eventMarker() {}

// Stop pauses the simulation before the next scheduled tick.
type Stop struct{}

func (Stop) eventMarker() {}

// ToggleRun flips between running and paused, matching the hardware's single
// run/stop button. A halted simulation is unaffected; it needs a reset.
type ToggleRun struct{}

func (ToggleRun) eventMarker() {}

// ToggleDirection flips the rotation direction, effective on the next tick.
type ToggleDirection struct{}

func (ToggleDirection) eventMarker() {}

// SetRefreshInterval changes the quarter-period of the simulated signal.
// MS must be > 0; invalid values are rejected at the command boundary and
// leave the prior interval in effect.
type SetRefreshInterval struct {
	MS int `json:"ms"`
}

func (SetRefreshInterval) eventMarker() {}

// SetToothCount changes the simulated gear tooth count. Teeth must be > 0.
// The revolution threshold is recomputed before the next tick; any in-flight
// tick accumulation is preserved as-is.
type SetToothCount struct {
	Teeth int `json:"teeth"`
}

func (SetToothCount) eventMarker() {}

// SetMode selects free-running or tick-limited simulation. TickLimit is
// required (> 0) for tick-limited mode and ignored otherwise.
type SetMode struct {
	Mode      Mode  `json:"mode"`
	TickLimit int32 `json:"tick_limit,omitempty"`
}

func (SetMode) eventMarker() {}

// Reset rearms the simulation: counters cleared, encoder back to index 0,
// scheduler deadline cleared. A halted simulation resumes running; otherwise
// the run state is untouched.
type Reset struct{}

func (Reset) eventMarker() {}

// Shutdown asks the daemon to exit cleanly.
type Shutdown struct{}

func (Shutdown) eventMarker() {}

// RequestStateSnapshot asks the reducer for a coherent state snapshot,
// delivered through the effects layer so the reducer stays pure. Used by the
// websocket handler for the state_init message.
type RequestStateSnapshot struct {
	Reply chan StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// SinkWriteFailed is the observation fed back when a pin write fails.
// The simulation keeps running; the failure is logged at the effects layer.
type SinkWriteFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (SinkWriteFailed) eventMarker() {}

// ============================================================================
// Command validation
// ============================================================================

// ErrInvalidConfiguration rejects non-positive refresh intervals and tooth
// counts. The prior configuration remains in effect.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ErrInvalidModeParameter rejects tick-limited mode with a non-positive limit.
var ErrInvalidModeParameter = errors.New("invalid mode parameter")

// ValidateEvent checks a command event before it is enqueued, so callers of
// the command interface get the error synchronously and an in-progress tick
// is never affected. The reducer additionally ignores invalid values as a
// second line of defense for internally-constructed events.
func ValidateEvent(e Event) error {
	switch ev := e.(type) {
	case SetRefreshInterval:
		if ev.MS <= 0 {
			return fmt.Errorf("refresh interval must be > 0 ms, got %d: %w", ev.MS, ErrInvalidConfiguration)
		}
	case SetToothCount:
		if ev.Teeth <= 0 {
			return fmt.Errorf("tooth count must be > 0, got %d: %w", ev.Teeth, ErrInvalidConfiguration)
		}
	case SetMode:
		switch ev.Mode {
		case ModeFreeRunning:
			// tick limit ignored
		case ModeTickLimited:
			if ev.TickLimit <= 0 {
				return fmt.Errorf("tick limit must be > 0, got %d: %w", ev.TickLimit, ErrInvalidModeParameter)
			}
		default:
			return fmt.Errorf("unknown mode %q: %w", ev.Mode, ErrInvalidModeParameter)
		}
	}
	return nil
}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================
// EventEnvelope wraps command events for the IPC wire format. Since Go has no
// union types, a type discriminator selects the concrete event.
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling.
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event.
// Only externally-issuable command events are accepted; Poll and snapshot
// requests are daemon-internal.
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "start":
		return Start{}, nil

	case "stop":
		return Stop{}, nil

	case "toggle_run":
		return ToggleRun{}, nil

	case "toggle_direction":
		return ToggleDirection{}, nil

	case "set_refresh_interval":
		var e SetRefreshInterval
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal SetRefreshInterval: %w", err)
		}
		return e, nil

	case "set_tooth_count":
		var e SetToothCount
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal SetToothCount: %w", err)
		}
		return e, nil

	case "set_mode":
		var e SetMode
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal SetMode: %w", err)
		}
		return e, nil

	case "reset":
		return Reset{}, nil

	case "shutdown":
		return Shutdown{}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes a command Event into a JSON envelope.
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case Start:
		env.Type = "start"

	case Stop:
		env.Type = "stop"

	case ToggleRun:
		env.Type = "toggle_run"

	case ToggleDirection:
		env.Type = "toggle_direction"

	case SetRefreshInterval:
		env.Type = "set_refresh_interval"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal SetRefreshInterval: %w", err)
		}
		env.Data = data

	case SetToothCount:
		env.Type = "set_tooth_count"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal SetToothCount: %w", err)
		}
		env.Data = data

	case SetMode:
		env.Type = "set_mode"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal SetMode: %w", err)
		}
		env.Data = data

	case Reset:
		env.Type = "reset"

	case Shutdown:
		env.Type = "shutdown"

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}
