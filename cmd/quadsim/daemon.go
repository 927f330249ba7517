package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Central Daemon Loop - Reducer-driven simulation brain
// ============================================================================
//
// Design rules enforced here:
//   - The reducer performs no I/O and computes: next state + commands +
//     broadcasts.
//   - The daemon loop is the only place that executes side effects (pin
//     writes, snapshot delivery).
//   - Effect failures are turned into Events and fed back into the reducer.
//   - All timestamps come from the injected clock, so tests can drive the
//     scheduler deterministically without sleeping.
//
// The poll cadence is the outer-loop delay of the simulated firmware (1ms by
// default); the tick scheduler inside the reducer decides which polls
// actually advance the encoder.
// ============================================================================

// runDaemon is the main daemon loop that:
//   - Receives command Events from IPC, input devices, and the ws handler
//   - Emits Poll events on the poll cadence
//   - Reduces events into (state, commands, broadcasts)
//   - Executes commands against the pin sink and forwards broadcasts
//
// Shutdown semantics:
//   - Exits when ctx is canceled
//   - Exits cleanly when the events channel is closed
//   - Exits when the reducer requests a stop (Shutdown event)
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	sink PinSink,
	broadcasts chan<- StateBroadcast,
	state *SimState,
	pollInterval time.Duration,
	clock func() time.Time,
	logger *slog.Logger,
) error {
	if state == nil {
		state = newSimState(DefaultConfig())
	}
	if clock == nil {
		clock = time.Now
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	// Explicit queues:
	// - eventQueue holds events awaiting reduction
	// - cmdQueue holds commands awaiting execution
	var eventQueue []Event
	var cmdQueue []Command
	stopping := false

	enqueueEvent := func(ev Event) {
		eventQueue = append(eventQueue, ev)
	}
	enqueueCommands := func(cmds []Command) {
		if len(cmds) == 0 {
			return
		}
		cmdQueue = append(cmdQueue, cmds...)
	}
	publish := func(bcasts []StateBroadcast) {
		if broadcasts == nil {
			return
		}
		for _, b := range bcasts {
			select {
			case broadcasts <- b:
			default:
				// Telemetry is best-effort; never stall the simulation for it.
				logger.Warn("broadcast queue full, dropping broadcast")
			}
		}
	}

	// Reduce all queued events, enqueuing any resulting commands.
	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			rr := Reduce(state, ev)
			if rr.State != nil {
				state = rr.State
			}
			enqueueCommands(rr.Commands)
			publish(rr.Broadcasts)
		}
	}

	// Execute all queued commands, reducing any observation events promptly
	// so state stays coherent.
	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			if runEffect(sink, cmd, logger, func(obs Event) {
				enqueueEvent(obs)
			}) {
				stopping = true
			}

			flushEvents()
		}
	}

	// Drive the power-on pin levels before the first poll, the way the
	// firmware wrote both pins once before entering its loop.
	enqueueCommands([]Command{CmdWritePins{A: state.Encoder.Pins.A, B: state.Encoder.Pins.B}})
	flushCommands()

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return nil

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return nil
			}
			enqueueEvent(ev)
			flushEvents()
			flushCommands()

		case <-ticker.C:
			enqueueEvent(Poll{Now: clock()})
			flushEvents()
			flushCommands()
		}

		if stopping {
			logger.Info("daemon stopping (shutdown requested)")
			return nil
		}
	}
}
