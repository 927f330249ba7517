package main

import "time"

// ============================================================================
// Tick Scheduler
// ============================================================================
// Gates state-machine advancement to the configured refresh interval (one
// quarter-period of the simulated signal). The daemon loop polls much faster
// than the refresh interval; MaybeTick decides whether this poll fires a tick.
// ============================================================================

// TickDecision is the outcome of one scheduling decision.
type TickDecision int

const (
	Skip TickDecision = iota
	Fire
)

// SchedulerState holds the next tick deadline. The zero value is "due
// immediately": the first running poll always fires.
type SchedulerState struct {
	NextDue time.Time
}

// MaybeTick returns the next scheduler state and whether a tick fires on this
// poll. While paused it always skips without touching NextDue, so a resumed
// simulation fires exactly one tick at the next eligible poll instead of
// replaying the paused interval.
//
// On fire the deadline is rearmed as now + interval, not NextDue + interval.
// This intentionally does not correct for poll jitter, matching the original
// timing: consumers needing perfectly uniform spacing must account for the
// drift themselves.
func (s SchedulerState) MaybeTick(now time.Time, interval time.Duration, running bool) (SchedulerState, TickDecision) {
	if !running {
		return s, Skip
	}
	if now.Before(s.NextDue) {
		return s, Skip
	}
	s.NextDue = now.Add(interval)
	return s, Fire
}
