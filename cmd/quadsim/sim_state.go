package main

import "time"

// SimState is the top-level, daemon-owned simulation state container.
//
// Goals:
//   - Keep all reducer-owned state in one place (pure reducer, no external
//     mutation, no module-level counters).
//   - Make it cheap to publish a coherent snapshot to telemetry clients.
//
// All mutation happens on the daemon goroutine through Reduce; everything
// outside the daemon only ever sees StateSnapshot copies.
type SimState struct {
	// Encoder is the quadrature state machine position.
	Encoder EncoderState

	// Rev is the revolution/transition accounting state.
	Rev RevolutionState

	// Sched holds the next tick deadline.
	Sched SchedulerState

	// Direction is read by both the state machine and the revolution
	// accumulator on every tick, so a toggle takes effect on the next tick.
	Direction Direction

	// Mode and TickLimit select free-running or tick-limited simulation.
	// TickLimit is only meaningful in tick-limited mode.
	Mode      Mode
	TickLimit int32

	// Run gates whether polls may fire ticks at all.
	Run RunState

	// RefreshInterval is one quarter-period of the simulated signal.
	// ToothCount is the number of gear teeth per simulated revolution.
	// Both are runtime-editable; changes apply on the next scheduling decision
	// or tick respectively.
	RefreshInterval time.Duration
	ToothCount      int
}

// Mode selects between unbounded simulation and a tick-limited stopping mode.
type Mode string

const (
	ModeFreeRunning Mode = "free_running"
	ModeTickLimited Mode = "tick_limited"
)

// RunState is the process-level run state.
//
// Paused <-> Running via explicit start/stop. Running -> Halted automatically
// when a tick limit is reached; Halted -> Running only via reset.
type RunState string

const (
	RunPaused  RunState = "paused"
	RunRunning RunState = "running"
	RunHalted  RunState = "halted"
)

// newSimState builds the initial simulation state from validated config.
// The simulation starts paused, forward, at encoder index 0, mirroring the
// power-on state of the simulated hardware.
func newSimState(cfg Config) *SimState {
	return &SimState{
		Encoder:         EncoderState{Index: 0, Pins: quadStateTable[0]},
		Direction:       Forward,
		Mode:            Mode(cfg.Encoder.Mode),
		TickLimit:       int32(cfg.Encoder.TickLimit),
		Run:             RunPaused,
		RefreshInterval: time.Duration(cfg.Encoder.RefreshIntervalMS) * time.Millisecond,
		ToothCount:      cfg.Encoder.ToothCount,
	}
}

// Threshold is the current revolution threshold, recomputed from the tooth
// count on every use so runtime edits apply before the next tick.
func (s *SimState) Threshold() int32 {
	return revolutionThreshold(s.ToothCount)
}

// StateSnapshot is a read-only copy of the simulation state for telemetry
// clients. It is safe to hand to other goroutines.
type StateSnapshot struct {
	PinA  int `json:"pin_a"`
	PinB  int `json:"pin_b"`
	Index int `json:"index"`

	TransitionCount  int32 `json:"transition_count"`
	TotalRevolutions int32 `json:"total_revolutions"`
	TickAccum        int32 `json:"tick_accum"`

	Direction Direction `json:"direction"`
	Mode      Mode      `json:"mode"`
	TickLimit int32     `json:"tick_limit,omitempty"`
	RunState  RunState  `json:"run_state"`

	RefreshIntervalMS int64 `json:"refresh_interval_ms"`
	ToothCount        int   `json:"tooth_count"`

	// RevPerSecond is the shaft speed implied by the refresh interval and
	// tooth count: one revolution per 4*teeth*interval.
	RevPerSecond float64 `json:"rev_per_second"`
}

// Snapshot copies the current state into a StateSnapshot.
func (s *SimState) Snapshot() StateSnapshot {
	return StateSnapshot{
		PinA:              s.Encoder.Pins.A,
		PinB:              s.Encoder.Pins.B,
		Index:             s.Encoder.Index,
		TransitionCount:   s.Rev.TransitionCount,
		TotalRevolutions:  s.Rev.TotalRevolutions,
		TickAccum:         s.Rev.TickAccum,
		Direction:         s.Direction,
		Mode:              s.Mode,
		TickLimit:         s.TickLimit,
		RunState:          s.Run,
		RefreshIntervalMS: s.RefreshInterval.Milliseconds(),
		ToothCount:        s.ToothCount,
		RevPerSecond:      revPerSecond(s.RefreshInterval, s.ToothCount),
	}
}

// revPerSecond derives the simulated shaft speed. A revolution takes
// 4*teeth refresh intervals, so speed is 1000 / (4 * teeth * intervalMS).
func revPerSecond(interval time.Duration, toothCount int) float64 {
	ms := interval.Milliseconds()
	if ms <= 0 || toothCount <= 0 {
		return 0
	}
	return 1000.0 / float64(4*int64(toothCount)*ms)
}
