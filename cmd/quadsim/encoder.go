package main

import "fmt"

// ============================================================================
// Quadrature State Machine
// ============================================================================
// A two-pin quadrature encoder has exactly four legal output states. Walking
// the table forward or backward produces the Gray-code sequence
// 00 -> 10 -> 11 -> 01 -> 00: consecutive states differ in exactly one bit,
// so a receiver can always tell which pin moved and therefore which way the
// shaft is turning.
// ============================================================================

// PinLevels holds one legal (pinA, pinB) output pair.
type PinLevels struct {
	A int `json:"a"`
	B int `json:"b"`
}

// quadStateTable is the next-state transition table. The index is incremented
// when the encoder turns forward and decremented when it turns backward.
// Index 3 wraps to index 0 and vice versa, keeping the cycle closed.
var quadStateTable = [4]PinLevels{
	{A: 0, B: 0},
	{A: 1, B: 0},
	{A: 1, B: 1},
	{A: 0, B: 1},
}

// Direction of shaft rotation. Forward increments the state index,
// Backward decrements it. The numeric values match the source hardware's
// direction flag (1 forward, 0 backward) so telemetry stays comparable.
type Direction uint8

const (
	Backward Direction = 0
	Forward  Direction = 1
)

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

// MarshalJSON emits the direction name, not the numeric flag, so telemetry
// payloads stay readable.
func (d Direction) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Direction) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"forward"`:
		*d = Forward
	case `"backward"`:
		*d = Backward
	default:
		return fmt.Errorf("invalid direction %s", string(data))
	}
	return nil
}

// Toggle flips the direction. The binary domain needs no validation.
func (d Direction) Toggle() Direction {
	if d == Forward {
		return Backward
	}
	return Forward
}

// sign returns +1 for Forward and -1 for Backward, the increment applied to
// every tick-driven counter.
func (d Direction) sign() int32 {
	if d == Forward {
		return 1
	}
	return -1
}

// EncoderState is the simulated encoder's position within the quadrature
// cycle: an index into quadStateTable plus the pin levels at that index.
// The zero value (index 0, pins 0/0) is the power-on state.
type EncoderState struct {
	Index int
	Pins  PinLevels
}

// Advance moves one step through the quadrature cycle and returns the new
// state. Backward steps use +3 mod 4 rather than a bare decrement so the
// index wraps to 3 instead of going negative.
func (e EncoderState) Advance(d Direction) EncoderState {
	var i int
	if d == Forward {
		i = (e.Index + 1) % 4
	} else {
		i = (e.Index + 3) % 4
	}
	return EncoderState{Index: i, Pins: quadStateTable[i]}
}
