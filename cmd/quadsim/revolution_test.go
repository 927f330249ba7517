package main

import (
	"math"
	"testing"
)

func TestRevolutionThreshold(t *testing.T) {
	if got := revolutionThreshold(25); got != 100 {
		t.Errorf("expected threshold 100 for 25 teeth, got %d", got)
	}
	if got := revolutionThreshold(1); got != 4 {
		t.Errorf("expected threshold 4 for 1 tooth, got %d", got)
	}
}

// TestRevolutionState_OnTick_ForwardRevolution drives one full forward
// revolution and checks the accumulator resets exactly at the threshold.
func TestRevolutionState_OnTick_ForwardRevolution(t *testing.T) {
	threshold := revolutionThreshold(25) // 100 ticks per revolution

	var r RevolutionState
	for i := int32(1); i < threshold; i++ {
		r = r.OnTick(Forward, threshold)
		if r.TickAccum != i {
			t.Fatalf("tick %d: expected accum %d, got %d", i, i, r.TickAccum)
		}
		if r.TotalRevolutions != 0 {
			t.Fatalf("tick %d: expected 0 revolutions, got %d", i, r.TotalRevolutions)
		}
	}

	r = r.OnTick(Forward, threshold)
	if r.TickAccum != 0 {
		t.Errorf("expected accum reset to 0 at threshold, got %d", r.TickAccum)
	}
	if r.TotalRevolutions != 1 {
		t.Errorf("expected 1 revolution at threshold, got %d", r.TotalRevolutions)
	}
	if r.TransitionCount != threshold {
		t.Errorf("expected transition count %d, got %d", threshold, r.TransitionCount)
	}
}

// TestRevolutionState_OnTick_BackwardRevolution mirrors the forward case:
// backward ticks drive the accumulator negative and decrement revolutions.
func TestRevolutionState_OnTick_BackwardRevolution(t *testing.T) {
	threshold := revolutionThreshold(2) // 8 ticks per revolution

	var r RevolutionState
	for i := int32(0); i < threshold; i++ {
		r = r.OnTick(Backward, threshold)
	}

	if r.TickAccum != 0 {
		t.Errorf("expected accum 0 after full backward revolution, got %d", r.TickAccum)
	}
	if r.TotalRevolutions != -1 {
		t.Errorf("expected -1 revolutions, got %d", r.TotalRevolutions)
	}
	if r.TransitionCount != -threshold {
		t.Errorf("expected transition count %d, got %d", -threshold, r.TransitionCount)
	}
}

// TestRevolutionState_OnTick_BalancedMotion checks that equal forward and
// backward motion cancels out: net zero accumulation, net zero revolutions.
func TestRevolutionState_OnTick_BalancedMotion(t *testing.T) {
	threshold := revolutionThreshold(25)

	var r RevolutionState
	for i := 0; i < 250; i++ {
		r = r.OnTick(Forward, threshold)
	}
	for i := 0; i < 250; i++ {
		r = r.OnTick(Backward, threshold)
	}

	if r.TickAccum != 0 {
		t.Errorf("expected accum 0 after balanced motion, got %d", r.TickAccum)
	}
	if r.TotalRevolutions != 0 {
		t.Errorf("expected 0 net revolutions, got %d", r.TotalRevolutions)
	}
	if r.TransitionCount != 0 {
		t.Errorf("expected 0 net transitions, got %d", r.TransitionCount)
	}
}

// TestRevolutionState_OnTick_DirectionChangeMidRevolution verifies that a
// direction change unwinds an in-flight accumulation tick by tick.
func TestRevolutionState_OnTick_DirectionChangeMidRevolution(t *testing.T) {
	threshold := revolutionThreshold(25)

	var r RevolutionState
	for i := 0; i < 60; i++ {
		r = r.OnTick(Forward, threshold)
	}
	if r.TickAccum != 60 {
		t.Fatalf("expected accum 60, got %d", r.TickAccum)
	}

	for i := 0; i < 60; i++ {
		r = r.OnTick(Backward, threshold)
	}
	if r.TickAccum != 0 {
		t.Errorf("expected accum back to 0, got %d", r.TickAccum)
	}
	if r.TotalRevolutions != 0 {
		t.Errorf("expected 0 revolutions after unwinding, got %d", r.TotalRevolutions)
	}
}

// TestRevolutionState_OnTick_CounterWrap checks that the transition counter
// wraps like any fixed-width counter instead of erroring or saturating.
func TestRevolutionState_OnTick_CounterWrap(t *testing.T) {
	threshold := revolutionThreshold(25)

	r := RevolutionState{TransitionCount: math.MaxInt32}
	r = r.OnTick(Forward, threshold)

	if r.TransitionCount != math.MinInt32 {
		t.Errorf("expected wrap to MinInt32, got %d", r.TransitionCount)
	}
}

func TestShouldContinue_FreeRunning(t *testing.T) {
	// Free-running ignores the limit entirely, even a bogus one.
	if !shouldContinue(ModeFreeRunning, 0, math.MaxInt32) {
		t.Errorf("free-running must always continue")
	}
}

func TestShouldContinue_TickLimited(t *testing.T) {
	if !shouldContinue(ModeTickLimited, 5, 4) {
		t.Errorf("expected continue at count 4 with limit 5")
	}
	if shouldContinue(ModeTickLimited, 5, 5) {
		t.Errorf("expected halt at count 5 with limit 5")
	}
	if shouldContinue(ModeTickLimited, 5, 6) {
		t.Errorf("expected halt past the limit")
	}
}

// TestShouldContinue_TickLimited_Backward: a backward simulation's transition
// count goes negative and stays below any positive limit, so it never halts.
func TestShouldContinue_TickLimited_Backward(t *testing.T) {
	if !shouldContinue(ModeTickLimited, 5, -100) {
		t.Errorf("expected backward (negative) counts to continue")
	}
}
