package main

// ============================================================================
// Revolution Accumulator
// ============================================================================
// Converts raw quadrature ticks into revolution counts for a gear-tooth
// encoder. One tooth passing the sensor produces four quadrature ticks, so a
// full shaft revolution is 4 * toothCount ticks.
//
// All counters are int32 free-running counters: they wrap on overflow by
// design, matching the fixed-width counters of the original hardware. Wrap is
// defined behavior, never an error.
// ============================================================================

// RevolutionState is the reducer-owned revolution accounting state.
type RevolutionState struct {
	// TickAccum counts ticks since the last completed revolution, signed by
	// direction. Reset to 0 each time it reaches +/- the revolution threshold.
	TickAccum int32

	// TotalRevolutions moves by one each time TickAccum reaches the threshold.
	TotalRevolutions int32

	// TransitionCount counts every tick since simulation start, independent of
	// revolution accounting. The tick-limited mode gate compares against it.
	TransitionCount int32
}

// revolutionThreshold is the number of quadrature ticks in one full
// revolution: four ticks per gear tooth.
func revolutionThreshold(toothCount int) int32 {
	return 4 * int32(toothCount)
}

// OnTick accounts for one tick in the given direction and returns the new
// state. The threshold is passed per call so a tooth-count change takes
// effect on the next tick; an in-flight TickAccum is deliberately kept as-is
// rather than rescaled, which can mis-time the next revolution boundary once.
func (r RevolutionState) OnTick(d Direction, threshold int32) RevolutionState {
	s := d.sign()
	r.TickAccum += s
	r.TransitionCount += s
	if r.TickAccum == threshold || r.TickAccum == -threshold {
		r.TickAccum = 0
		r.TotalRevolutions += s
	}
	return r
}

// shouldContinue is the mode gate consulted before each scheduling decision.
// Free-running simulations never stop on their own; tick-limited simulations
// stop once the transition count reaches the limit.
func shouldContinue(mode Mode, tickLimit, transitionCount int32) bool {
	if mode != ModeTickLimited {
		return true
	}
	return transitionCount < tickLimit
}
