package main

import "fmt"

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect requested by the reducer and
// executed only by the daemon loop (via runEffect).
type Command interface {
	commandMarker()
	String() string
}

// CmdWritePins pushes both pin levels to the signal sink. Emitted once per
// fired tick with both levels, even when a level did not change, mirroring a
// real two-wire signal sample. Also emitted at startup and on reset for the
// initial pin state.
type CmdWritePins struct {
	A int
	B int
}

func (CmdWritePins) commandMarker() {}
func (c CmdWritePins) String() string {
	return fmt.Sprintf("CmdWritePins(a=%d b=%d)", c.A, c.B)
}

// CmdPublishSnapshot delivers a reducer-produced snapshot to a requester.
// The channel send lives in the effects layer to keep the reducer pure.
type CmdPublishSnapshot struct {
	Snapshot StateSnapshot
	Reply    chan StateSnapshot
}

func (CmdPublishSnapshot) commandMarker() {}
func (c CmdPublishSnapshot) String() string {
	return "CmdPublishSnapshot()"
}

// CmdStopDaemon asks the daemon loop to exit after the current flush.
type CmdStopDaemon struct{}

func (CmdStopDaemon) commandMarker() {}
func (CmdStopDaemon) String() string { return "CmdStopDaemon()" }
