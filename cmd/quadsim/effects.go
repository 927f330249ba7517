package main

import (
	"log/slog"
	"time"
)

// runEffect executes a single reducer-emitted Command against the signal sink
// and reports failures back via onEvent.
//
// Design rules:
// - This function is allowed to perform I/O.
// - It must never call Reduce() directly; it only emits Events to be reduced
//   by the daemon loop.
// - The daemon loop owns sequencing: Reduce -> Commands -> runEffect ->
//   Events -> Reduce.
//
// The returned stop flag is true when the daemon loop should exit.
func runEffect(
	sink PinSink,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) (stop bool) {
	switch c := cmd.(type) {
	case CmdWritePins:
		if sink == nil {
			break
		}
		if err := sink.WritePins(c.A, c.B); err != nil {
			// A failed pin write is not fatal: the simulation continues and
			// the levels are re-driven on the next tick anyway.
			logger.Error("pin write failed", "a", c.A, "b", c.B, "error", err)
			if onEvent != nil {
				onEvent(SinkWriteFailed{Command: cmd, Err: err, At: time.Now()})
			}
		}

	case CmdPublishSnapshot:
		// Deliver the reducer-produced snapshot to the requester. The channel
		// send lives here to keep the reducer pure.
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			break
		}
		// Never block the daemon loop.
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	case CmdStopDaemon:
		return true

	default:
		logger.Warn("unknown command type", "command", cmd.String())
	}

	return false
}
