package main

import "time"

// This file implements the reducer at the center of the daemon:
//
//   - Events: command events (IPC / input devices / CLI), Poll events from
//     the daemon loop, and effect observations
//   - Commands: side effects requested by the reducer (pin writes, snapshot
//     delivery, daemon stop)
//   - Reduce(): computes next state + commands + broadcasts, without I/O
//
// The reducer must be pure: no clock reads, no channel sends, no mutation
// outside the returned state. The daemon loop executes Commands and feeds
// observations back in as Events.

// ReduceResult is the output of Reduce(): next state plus the Commands to
// execute and the StateBroadcasts to publish.
type ReduceResult struct {
	State      *SimState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// Reduce applies one event to the simulation state.
//
// Scheduling rules enforced here:
//   - At most one tick fires per Poll, and pin writes are emitted in tick
//     order, never batched or reordered.
//   - Pausing takes effect before the next scheduled tick; ticks are
//     instantaneous, so there is no partial-tick state to cancel.
//   - A tick-limited simulation is gated before the scheduling decision: once
//     the transition count reaches the limit the run state moves to Halted
//     and no further tick fires until reset.
func Reduce(s *SimState, e Event) ReduceResult {
	var cmds []Command
	var bcasts []StateBroadcast

	switch ev := e.(type) {
	case Poll:
		if s.Run != RunRunning {
			break
		}

		if !shouldContinue(s.Mode, s.TickLimit, s.Rev.TransitionCount) {
			s.Run = RunHalted
			bcasts = append(bcasts, BroadcastRunStateChanged{RunState: RunHalted, At: ev.Now})
			break
		}

		sched, decision := s.Sched.MaybeTick(ev.Now, s.RefreshInterval, true)
		s.Sched = sched
		if decision != Fire {
			break
		}

		s.Encoder = s.Encoder.Advance(s.Direction)
		s.Rev = s.Rev.OnTick(s.Direction, s.Threshold())

		cmds = append(cmds, CmdWritePins{A: s.Encoder.Pins.A, B: s.Encoder.Pins.B})
		bcasts = append(bcasts, BroadcastTick{
			PinA:             s.Encoder.Pins.A,
			PinB:             s.Encoder.Pins.B,
			TransitionCount:  s.Rev.TransitionCount,
			TotalRevolutions: s.Rev.TotalRevolutions,
			TickAccum:        s.Rev.TickAccum,
			At:               ev.Now,
		})

	case Start:
		// Idempotent while running; a halted simulation needs a reset first.
		if s.Run == RunPaused {
			s.Run = RunRunning
			bcasts = append(bcasts, BroadcastRunStateChanged{RunState: RunRunning})
		}

	case Stop:
		if s.Run != RunPaused {
			s.Run = RunPaused
			bcasts = append(bcasts, BroadcastRunStateChanged{RunState: RunPaused})
		}

	case ToggleRun:
		switch s.Run {
		case RunPaused:
			s.Run = RunRunning
			bcasts = append(bcasts, BroadcastRunStateChanged{RunState: RunRunning})
		case RunRunning:
			s.Run = RunPaused
			bcasts = append(bcasts, BroadcastRunStateChanged{RunState: RunPaused})
		case RunHalted:
			// Needs a reset first.
		}

	case ToggleDirection:
		s.Direction = s.Direction.Toggle()
		bcasts = append(bcasts, BroadcastDirectionChanged{Direction: s.Direction})

	case SetRefreshInterval:
		// Command-boundary validation already rejected ev.MS <= 0; guard
		// anyway so internally-constructed events can't zero the interval.
		if ev.MS <= 0 {
			break
		}
		s.RefreshInterval = time.Duration(ev.MS) * time.Millisecond
		bcasts = append(bcasts, configBroadcast(s))

	case SetToothCount:
		if ev.Teeth <= 0 {
			break
		}
		// The in-flight TickAccum is preserved as-is, not rescaled; the next
		// revolution boundary may be transiently mis-timed, by design.
		s.ToothCount = ev.Teeth
		bcasts = append(bcasts, configBroadcast(s))

	case SetMode:
		if ev.Mode == ModeFreeRunning {
			s.Mode = ModeFreeRunning
			bcasts = append(bcasts, configBroadcast(s))
		} else if ev.Mode == ModeTickLimited && ev.TickLimit > 0 {
			s.Mode = ModeTickLimited
			s.TickLimit = ev.TickLimit
			bcasts = append(bcasts, configBroadcast(s))
		}

	case Reset:
		s.Encoder = EncoderState{Index: 0, Pins: quadStateTable[0]}
		s.Rev = RevolutionState{}
		s.Sched = SchedulerState{}
		if s.Run == RunHalted {
			s.Run = RunRunning
		}
		// Re-emit the power-on pin levels so the sink matches the state.
		cmds = append(cmds, CmdWritePins{A: s.Encoder.Pins.A, B: s.Encoder.Pins.B})
		bcasts = append(bcasts,
			BroadcastRunStateChanged{RunState: s.Run},
			BroadcastTick{
				PinA:             s.Encoder.Pins.A,
				PinB:             s.Encoder.Pins.B,
				TransitionCount:  0,
				TotalRevolutions: 0,
				TickAccum:        0,
			},
		)

	case Shutdown:
		cmds = append(cmds, CmdStopDaemon{})

	case RequestStateSnapshot:
		cmds = append(cmds, CmdPublishSnapshot{Snapshot: s.Snapshot(), Reply: ev.Reply})

	case SinkWriteFailed:
		// Sink failures are logged at the effects layer; the simulation state
		// is unaffected and keeps running.
		_ = ev

	default:
		// Unknown event type: no-op.
	}

	return ReduceResult{
		State:      s,
		Commands:   cmds,
		Broadcasts: bcasts,
	}
}

func configBroadcast(s *SimState) BroadcastConfigChanged {
	return BroadcastConfigChanged{
		RefreshIntervalMS: s.RefreshInterval.Milliseconds(),
		ToothCount:        s.ToothCount,
		Mode:              s.Mode,
		TickLimit:         s.TickLimit,
		RevPerSecond:      revPerSecond(s.RefreshInterval, s.ToothCount),
	}
}
