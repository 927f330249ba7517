package main

import (
	"fmt"
	"log/slog"

	"github.com/aamcrae/gpio"
)

// ============================================================================
// Signal Sink
// ============================================================================
// The simulated encoder drives its two output pins through the PinSink port.
// The daemon loop is the only caller, once per fired tick, with both levels
// every time (a real two-wire signal is sampled on both wires).
//
// Two sinks are provided:
//   - gpio: real output pins via sysfs GPIO, for driving actual hardware
//     under test (counters, PLCs, scopes)
//   - log: debug-level log lines, for bench use without hardware
// ============================================================================

// PinSink receives both pin levels for every fired tick.
type PinSink interface {
	WritePins(a, b int) error
	Close() error
}

// Sink type names accepted in config.
const (
	sinkGPIO = "gpio"
	sinkLog  = "log"
)

// newPinSink builds the configured sink.
func newPinSink(cfg Config, logger *slog.Logger) (PinSink, error) {
	switch cfg.Pins.Sink {
	case sinkGPIO:
		return newGPIOPinSink(cfg.Pins.A, cfg.Pins.B)
	case sinkLog:
		return &logPinSink{logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Pins.Sink)
	}
}

// gpioPinSink drives two sysfs GPIO output pins.
type gpioPinSink struct {
	pinA *io.Gpio
	pinB *io.Gpio
}

func newGPIOPinSink(a, b int) (*gpioPinSink, error) {
	pinA, err := io.OutputPin(a)
	if err != nil {
		return nil, fmt.Errorf("open gpio %d for pin A: %w", a, err)
	}
	pinB, err := io.OutputPin(b)
	if err != nil {
		pinA.Close()
		return nil, fmt.Errorf("open gpio %d for pin B: %w", b, err)
	}
	return &gpioPinSink{pinA: pinA, pinB: pinB}, nil
}

func (g *gpioPinSink) WritePins(a, b int) error {
	if err := g.pinA.Set(a); err != nil {
		return fmt.Errorf("set pin A: %w", err)
	}
	if err := g.pinB.Set(b); err != nil {
		return fmt.Errorf("set pin B: %w", err)
	}
	return nil
}

func (g *gpioPinSink) Close() error {
	g.pinA.Close()
	g.pinB.Close()
	return nil
}

// logPinSink logs pin levels instead of driving hardware.
type logPinSink struct {
	logger *slog.Logger
}

func (l *logPinSink) WritePins(a, b int) error {
	l.logger.Debug("pins", "a", a, "b", b)
	return nil
}

func (l *logPinSink) Close() error { return nil }
