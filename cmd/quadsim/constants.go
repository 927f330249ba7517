package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_KEY = 0x01

	KEY_ESC       = 1
	KEY_R         = 19
	KEY_D         = 32
	KEY_SPACE     = 57
	KEY_POWER     = 116
	KEY_PLAYPAUSE = 164
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Simulation defaults. Refresh rate, tooth count, and pin numbers match the
// reference hardware: pins 13/27, a 10ms quarter-period, and a 25-tooth gear
// (one revolution per second at defaults).
const (
	defaultPinA = 13
	defaultPinB = 27

	defaultRefreshIntervalMS = 10
	defaultToothCount        = 25

	// The outer poll delay; the smallest cadence the scheduler is consulted at.
	defaultPollIntervalMS = 1
)
