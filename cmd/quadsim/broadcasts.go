package main

import "time"

// ============================================================================
// State broadcasts
// ============================================================================
// Broadcasts are reducer-emitted notifications for telemetry clients. The
// daemon loop forwards them to the websocket broadcaster; the reducer never
// talks to the hub directly. A zero At means "stamp at send time".
// ============================================================================

// StateBroadcast is the marker interface for reducer-emitted broadcasts.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastTick is emitted once per fired tick.
type BroadcastTick struct {
	PinA             int
	PinB             int
	TransitionCount  int32
	TotalRevolutions int32
	TickAccum        int32
	At               time.Time
}

func (BroadcastTick) broadcastMarker() {}

// BroadcastDirectionChanged is emitted when the direction toggles.
type BroadcastDirectionChanged struct {
	Direction Direction
	At        time.Time
}

func (BroadcastDirectionChanged) broadcastMarker() {}

// BroadcastRunStateChanged is emitted on pause/resume/halt/reset transitions.
type BroadcastRunStateChanged struct {
	RunState RunState
	At       time.Time
}

func (BroadcastRunStateChanged) broadcastMarker() {}

// BroadcastConfigChanged is emitted when refresh interval, tooth count, or
// mode change, carrying the derived shaft speed so displays can update the
// rev/s figure without recomputing it.
type BroadcastConfigChanged struct {
	RefreshIntervalMS int64
	ToothCount        int
	Mode              Mode
	TickLimit         int32
	RevPerSecond      float64
	At                time.Time
}

func (BroadcastConfigChanged) broadcastMarker() {}
