package main

import (
	"encoding/json"
	"testing"
)

// TestQuadStateTable_GrayCode verifies that consecutive table entries differ
// in exactly one pin, including the wrap from index 3 back to 0.
func TestQuadStateTable_GrayCode(t *testing.T) {
	for i := 0; i < 4; i++ {
		cur := quadStateTable[i]
		next := quadStateTable[(i+1)%4]

		diff := 0
		if cur.A != next.A {
			diff++
		}
		if cur.B != next.B {
			diff++
		}
		if diff != 1 {
			t.Errorf("transition %d->%d changes %d pins, want 1", i, (i+1)%4, diff)
		}
	}
}

// TestEncoderState_Advance_ForwardCycle walks a full forward cycle and checks
// the pin sequence 00 -> 10 -> 11 -> 01 -> 00.
func TestEncoderState_Advance_ForwardCycle(t *testing.T) {
	want := []PinLevels{
		{A: 1, B: 0},
		{A: 1, B: 1},
		{A: 0, B: 1},
		{A: 0, B: 0},
	}

	e := EncoderState{Index: 0, Pins: quadStateTable[0]}
	for i, w := range want {
		e = e.Advance(Forward)
		if e.Pins != w {
			t.Errorf("step %d: got pins %+v, want %+v", i+1, e.Pins, w)
		}
	}
	if e.Index != 0 {
		t.Errorf("after 4 forward steps expected index 0, got %d", e.Index)
	}
}

// TestEncoderState_Advance_BackwardWraps checks that a backward step from
// index 0 wraps to index 3 instead of going negative.
func TestEncoderState_Advance_BackwardWraps(t *testing.T) {
	e := EncoderState{Index: 0, Pins: quadStateTable[0]}
	e = e.Advance(Backward)

	if e.Index != 3 {
		t.Fatalf("expected index 3 after backward from 0, got %d", e.Index)
	}
	if e.Pins != (PinLevels{A: 0, B: 1}) {
		t.Fatalf("expected pins {0 1}, got %+v", e.Pins)
	}
}

// TestEncoderState_Advance_RoundTrip checks that a forward step followed by a
// backward step returns to the starting state, from every index.
func TestEncoderState_Advance_RoundTrip(t *testing.T) {
	for i := 0; i < 4; i++ {
		start := EncoderState{Index: i, Pins: quadStateTable[i]}
		back := start.Advance(Forward).Advance(Backward)
		if back != start {
			t.Errorf("index %d: forward+backward got %+v, want %+v", i, back, start)
		}
	}
}

func TestDirection_Toggle(t *testing.T) {
	if Forward.Toggle() != Backward {
		t.Errorf("expected Forward.Toggle() == Backward")
	}
	if Backward.Toggle() != Forward {
		t.Errorf("expected Backward.Toggle() == Forward")
	}
}

func TestDirection_Sign(t *testing.T) {
	if Forward.sign() != 1 {
		t.Errorf("expected Forward sign +1, got %d", Forward.sign())
	}
	if Backward.sign() != -1 {
		t.Errorf("expected Backward sign -1, got %d", Backward.sign())
	}
}

// TestDirection_JSONRoundTrip checks the name-based JSON encoding.
func TestDirection_JSONRoundTrip(t *testing.T) {
	b, err := json.Marshal(Forward)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"forward"` {
		t.Fatalf("expected %q, got %s", `"forward"`, b)
	}

	var d Direction
	if err := json.Unmarshal([]byte(`"backward"`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d != Backward {
		t.Fatalf("expected Backward, got %v", d)
	}

	if err := json.Unmarshal([]byte(`"sideways"`), &d); err == nil {
		t.Fatalf("expected error for invalid direction")
	}
}
