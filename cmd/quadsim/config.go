package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the quadsim daemon.
//
// This is intentionally user-facing and stable-ish. Keep defaults and
// validation centralized so the rest of the code can assume a well-formed
// config.
//
// Design goals:
// - Make the config file the primary configuration surface.
// - Keep flags for small overrides and for environments where a file is
//   awkward.
type Config struct {
	// Output pin configuration
	Pins PinsConfig `yaml:"pins"`

	// Simulated encoder configuration
	Encoder EncoderConfig `yaml:"encoder"`

	// Daemon loop configuration
	Daemon DaemonConfig `yaml:"daemon"`

	// IPC configuration (command interface)
	IPC IPCConfig `yaml:"ipc"`

	// Telemetry websocket configuration
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Optional button input devices
	Input InputConfig `yaml:"input"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type PinsConfig struct {
	A    int    `yaml:"a"`
	B    int    `yaml:"b"`
	Sink string `yaml:"sink"` // "gpio" or "log"
}

type EncoderConfig struct {
	RefreshIntervalMS int    `yaml:"refresh_interval_ms"`
	ToothCount        int    `yaml:"tooth_count"`
	Mode              string `yaml:"mode"` // "free_running" or "tick_limited"
	TickLimit         int    `yaml:"tick_limit,omitempty"`
}

type DaemonConfig struct {
	PollIntervalMS int `yaml:"poll_interval_ms"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type TelemetryConfig struct {
	// ListenAddr is the HTTP listen address for the state websocket.
	// Empty disables the telemetry server.
	ListenAddr string `yaml:"listen_addr,omitempty"`
}

type InputConfig struct {
	// Devices lists Linux input event devices to watch for button presses.
	// Empty disables button input.
	Devices []string `yaml:"devices,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go defaults and current CLI defaults.
func DefaultConfig() Config {
	return Config{
		Pins: PinsConfig{
			A:    defaultPinA,
			B:    defaultPinB,
			Sink: sinkLog,
		},
		Encoder: EncoderConfig{
			RefreshIntervalMS: defaultRefreshIntervalMS,
			ToothCount:        defaultToothCount,
			Mode:              string(ModeFreeRunning),
		},
		Daemon: DaemonConfig{
			PollIntervalMS: defaultPollIntervalMS,
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/quadsim.sock",
		},
		Telemetry: TelemetryConfig{
			ListenAddr: ":8791",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file.
//
// Notes:
//   - The file must be valid YAML.
//   - Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage after the document.
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies overrides from flags on top of a loaded config.
//
// Flags pass pointers; each override is only applied if the pointer is
// non-nil, so a config file can stay the primary configuration source with
// ad-hoc flag overrides for debugging/systemd drop-ins.
type FlagOverrides struct {
	PinA *int
	PinB *int
	Sink *string

	RefreshIntervalMS *int
	ToothCount        *int
	Mode              *string
	TickLimit         *int

	PollIntervalMS *int

	IPCSocketPath *string
	WSListenAddr  *string
	InputDevice   *string

	LogLevel *string
}

// Apply merges the overrides into cfg. Nil pointers are ignored; non-nil
// values are applied even when they are zero values.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.PinA != nil {
		cfg.Pins.A = *o.PinA
	}
	if o.PinB != nil {
		cfg.Pins.B = *o.PinB
	}
	if o.Sink != nil {
		cfg.Pins.Sink = *o.Sink
	}

	if o.RefreshIntervalMS != nil {
		cfg.Encoder.RefreshIntervalMS = *o.RefreshIntervalMS
	}
	if o.ToothCount != nil {
		cfg.Encoder.ToothCount = *o.ToothCount
	}
	if o.Mode != nil {
		cfg.Encoder.Mode = *o.Mode
	}
	if o.TickLimit != nil {
		cfg.Encoder.TickLimit = *o.TickLimit
	}

	if o.PollIntervalMS != nil {
		cfg.Daemon.PollIntervalMS = *o.PollIntervalMS
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.WSListenAddr != nil {
		cfg.Telemetry.ListenAddr = *o.WSListenAddr
	}
	if o.InputDevice != nil {
		cfg.Input.Devices = []string{*o.InputDevice}
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Pins
	if c.Pins.Sink != sinkGPIO && c.Pins.Sink != sinkLog {
		return fmt.Errorf("pins.sink must be %q or %q", sinkGPIO, sinkLog)
	}
	if c.Pins.Sink == sinkGPIO {
		if c.Pins.A < 0 || c.Pins.B < 0 {
			return errors.New("pins.a and pins.b must be valid GPIO numbers")
		}
		if c.Pins.A == c.Pins.B {
			return errors.New("pins.a and pins.b must differ")
		}
	}

	// Encoder
	if c.Encoder.RefreshIntervalMS <= 0 {
		return errors.New("encoder.refresh_interval_ms must be > 0")
	}
	if c.Encoder.ToothCount <= 0 {
		return errors.New("encoder.tooth_count must be > 0")
	}
	switch Mode(c.Encoder.Mode) {
	case ModeFreeRunning:
		// tick_limit ignored
	case ModeTickLimited:
		if c.Encoder.TickLimit <= 0 {
			return errors.New("encoder.tick_limit must be > 0 in tick_limited mode")
		}
	default:
		return fmt.Errorf("encoder.mode must be %q or %q", ModeFreeRunning, ModeTickLimited)
	}

	// Daemon
	if c.Daemon.PollIntervalMS <= 0 {
		return errors.New("daemon.poll_interval_ms must be > 0")
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// Input devices, when present, must be non-empty paths
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
