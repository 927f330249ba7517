package main

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// readInputEvents reads input events from a file descriptor and sends them to a channel
// This runs in a dedicated goroutine and blocks on read operations
func readInputEvents(f *os.File, events chan<- inputEvent, readErr chan<- error) {
	evSize := binary.Size(inputEvent{})
	buf := make([]byte, evSize)
	reader := bytes.NewReader(buf) // Reusable reader, reset on each iteration

	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			readErr <- err
			return
		}

		reader.Reset(buf) // Reset reader to reuse it
		var ev inputEvent
		if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
			// Skip malformed events
			continue
		}

		events <- ev
	}
}

// translateInputEvent maps a button press to a simulator command event.
// The bench buttons mirror the IPC surface:
//
//	play/pause (or space)  toggle run/pause
//	D                      toggle direction
//	R                      reset counters and encoder state
//	ESC / power            shut the daemon down
//
// Key repeats are ignored: holding the direction button must not flip the
// encoder back and forth.
func translateInputEvent(ev inputEvent) (Event, bool) {
	if ev.Type != EV_KEY || ev.Value != evValuePress {
		return nil, false
	}

	switch ev.Code {
	case KEY_PLAYPAUSE, KEY_SPACE:
		return ToggleRun{}, true
	case KEY_D:
		return ToggleDirection{}, true
	case KEY_R:
		return Reset{}, true
	case KEY_ESC, KEY_POWER:
		return Shutdown{}, true
	}

	return nil, false
}
