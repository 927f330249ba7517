package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
)

// ============================================================================
// quadsim-ctl - Command-line IPC Client
// ============================================================================
// This tool sends commands to the quadsim daemon via IPC.
//
// Usage:
//   quadsim-ctl start
//   quadsim-ctl stop
//   quadsim-ctl dir
//   quadsim-ctl refresh 5
//   quadsim-ctl teeth 30
//   quadsim-ctl mode limit 100
//   quadsim-ctl reset
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/quadsim.sock)
// ============================================================================

// Event types (duplicated from the daemon package for a standalone binary)
type Event interface{}

type Start struct{}

type Stop struct{}

type ToggleRun struct{}

type ToggleDirection struct{}

type SetRefreshInterval struct {
	MS int `json:"ms"`
}

type SetToothCount struct {
	Teeth int `json:"teeth"`
}

type SetMode struct {
	Mode      string `json:"mode"`
	TickLimit int32  `json:"tick_limit,omitempty"`
}

type Reset struct{}

type Shutdown struct{}

// EventEnvelope wraps events for JSON
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func main() {
	socketPath := "/tmp/quadsim.sock"

	// Parse arguments
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Check for -socket flag
	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Parse command
	var event Event

	switch args[0] {
	case "start", "run":
		event = Start{}

	case "stop", "pause":
		event = Stop{}

	case "toggle":
		event = ToggleRun{}

	case "dir", "toggle-direction":
		event = ToggleDirection{}

	case "refresh":
		ms, err := intArg(args, 1, "refresh requires an interval in ms")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		event = SetRefreshInterval{MS: ms}

	case "teeth":
		n, err := intArg(args, 1, "teeth requires a tooth count")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		event = SetToothCount{Teeth: n}

	case "mode":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: mode requires free|limit\n")
			os.Exit(1)
		}
		switch args[1] {
		case "free", "free_running":
			event = SetMode{Mode: "free_running"}
		case "limit", "tick_limited":
			n, err := intArg(args, 2, "mode limit requires a transition count")
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			event = SetMode{Mode: "tick_limited", TickLimit: int32(n)}
		default:
			fmt.Fprintf(os.Stderr, "error: unknown mode: %s\n", args[1])
			os.Exit(1)
		}

	case "reset":
		event = Reset{}

	case "shutdown":
		event = Shutdown{}

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	// Send event
	if err := sendEvent(socketPath, event); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("ok")
}

func intArg(args []string, idx int, missing string) (int, error) {
	if len(args) <= idx {
		return 0, fmt.Errorf("%s", missing)
	}
	n, err := strconv.Atoi(args[idx])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %v", args[idx], err)
	}
	return n, nil
}

func sendEvent(socketPath string, event Event) error {
	// Connect to socket
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	// Marshal event
	data, err := marshalEvent(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Send event (line-delimited JSON)
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send event: %w", err)
	}

	// Read response
	var response IPCResponse
	decoder := json.NewDecoder(conn)
	if err := decoder.Decode(&response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	// Check response status
	if response.Status == "error" {
		return fmt.Errorf("daemon error: %s", response.Error)
	}

	return nil
}

func marshalEvent(event Event) ([]byte, error) {
	var env EventEnvelope

	switch e := event.(type) {
	case Start:
		env.Type = "start"

	case Stop:
		env.Type = "stop"

	case ToggleRun:
		env.Type = "toggle_run"

	case ToggleDirection:
		env.Type = "toggle_direction"

	case SetRefreshInterval:
		env.Type = "set_refresh_interval"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal SetRefreshInterval: %w", err)
		}
		env.Data = data

	case SetToothCount:
		env.Type = "set_tooth_count"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal SetToothCount: %w", err)
		}
		env.Data = data

	case SetMode:
		env.Type = "set_mode"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal SetMode: %w", err)
		}
		env.Data = data

	case Reset:
		env.Type = "reset"

	case Shutdown:
		env.Type = "shutdown"

	default:
		return nil, fmt.Errorf("unknown event type: %T", event)
	}

	return json.Marshal(env)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `quadsim-ctl - Control the quadsim daemon via IPC

Usage:
  quadsim-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/quadsim.sock)

Commands:
  start, run              Start ticking (from paused)
  stop, pause             Pause ticking
  toggle                  Toggle between running and paused
  dir, toggle-direction   Reverse the rotation direction
  refresh <ms>            Set the refresh interval (quarter period) in ms
  teeth <n>               Set the gear tooth count
  mode free               Switch to free-running mode
  mode limit <n>          Halt after the transition counter reaches n
  reset                   Reset counters and encoder state (clears a halt)
  shutdown                Stop the daemon
  help, -h, --help        Show this help message

Examples:
  quadsim-ctl start
  quadsim-ctl refresh 5
  quadsim-ctl -socket /var/run/quadsim.sock mode limit 100
`)
}
