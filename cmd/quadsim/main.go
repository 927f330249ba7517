package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("quadsim v%s\n", version)
	fmt.Println("Two-phase quadrature rotary encoder simulator daemon")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  quadsim [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that simulates the two-wire output of a gear-tooth quadrature")
	fmt.Println("  encoder. Pin levels step through the Gray-code sequence on a fixed")
	fmt.Println("  refresh interval and are driven to GPIO pins or logged. Runtime")
	fmt.Println("  control is available over a Unix socket (see quadsim-ctl) and live")
	fmt.Println("  state is published on a websocket.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (optional; flags override file values)")
	fmt.Println()
	fmt.Println("  -pin-a int")
	fmt.Printf("        GPIO number for phase A (default %d)\n", defaultPinA)
	fmt.Println()
	fmt.Println("  -pin-b int")
	fmt.Printf("        GPIO number for phase B (default %d)\n", defaultPinB)
	fmt.Println()
	fmt.Println("  -sink string")
	fmt.Println("        Pin sink: gpio|log (default \"log\")")
	fmt.Println()
	fmt.Println("  -refresh-ms int")
	fmt.Printf("        Encoder refresh interval (quarter period) in ms (default %d)\n", defaultRefreshIntervalMS)
	fmt.Println()
	fmt.Println("  -teeth int")
	fmt.Printf("        Gear tooth count; one revolution is 4*teeth transitions (default %d)\n", defaultToothCount)
	fmt.Println()
	fmt.Println("  -mode string")
	fmt.Println("        Run mode: free_running|tick_limited (default \"free_running\")")
	fmt.Println()
	fmt.Println("  -tick-limit int")
	fmt.Println("        Transition count at which tick_limited mode halts")
	fmt.Println()
	fmt.Println("  -poll-interval-ms int")
	fmt.Printf("        Daemon poll cadence in ms (default %d)\n", defaultPollIntervalMS)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix domain socket path for IPC (default \"/tmp/quadsim.sock\")")
	fmt.Println()
	fmt.Println("  -ws-listen string")
	fmt.Println("        HTTP listen address for the state websocket (default \":8791\"; empty disables)")
	fmt.Println()
	fmt.Println("  -input-device string")
	fmt.Println("        Linux input event device for bench buttons (e.g. /dev/input/event3)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Log the simulated signal at one revolution per second")
	fmt.Println("  quadsim -sink log -log-level debug")
	fmt.Println()
	fmt.Println("  # Drive real pins for a counter under test")
	fmt.Println("  quadsim -sink gpio -pin-a 13 -pin-b 27")
	fmt.Println()
	fmt.Println("  # Emit exactly 100 transitions (one revolution at 25 teeth), then halt")
	fmt.Println("  quadsim -mode tick_limited -tick-limit 100")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - The simulation starts paused; send \"start\" over IPC or press the")
	fmt.Println("    play/pause button to begin ticking")
	fmt.Println("  - The gpio sink requires sysfs GPIO access (run as root or set up udev)")
	fmt.Println("  - Pin-level output from the log sink is emitted at debug level")
	fmt.Println()
}

func main() {
	// Check for version/help flags early
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	// Parse command-line flags
	var (
		configPath = flag.String("config", "", "Path to YAML config file")

		pinA = flag.Int("pin-a", defaultPinA, "GPIO number for phase A")
		pinB = flag.Int("pin-b", defaultPinB, "GPIO number for phase B")
		sink = flag.String("sink", sinkLog, "Pin sink: gpio|log")

		refreshMS = flag.Int("refresh-ms", defaultRefreshIntervalMS, "Encoder refresh interval in ms")
		teeth     = flag.Int("teeth", defaultToothCount, "Gear tooth count")
		mode      = flag.String("mode", string(ModeFreeRunning), "Run mode: free_running|tick_limited")
		tickLimit = flag.Int("tick-limit", 0, "Transition count at which tick_limited mode halts")

		pollIntervalMS = flag.Int("poll-interval-ms", defaultPollIntervalMS, "Daemon poll cadence in ms")

		ipcSocketPath = flag.String("ipc-socket", "/tmp/quadsim.sock", "Unix domain socket path for IPC")
		wsListenAddr  = flag.String("ws-listen", ":8791", "HTTP listen address for the state websocket (empty disables)")
		inputDevice   = flag.String("input-device", "", "Linux input event device for bench buttons")

		logLevelStr = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		showVersion = flag.Bool("version", false, "Print version and exit")
		showHelp    = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	// Build the effective config: defaults, then file, then explicitly-set
	// flags on top.
	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	overrides := FlagOverrides{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "pin-a":
			overrides.PinA = pinA
		case "pin-b":
			overrides.PinB = pinB
		case "sink":
			overrides.Sink = sink
		case "refresh-ms":
			overrides.RefreshIntervalMS = refreshMS
		case "teeth":
			overrides.ToothCount = teeth
		case "mode":
			overrides.Mode = mode
		case "tick-limit":
			overrides.TickLimit = tickLimit
		case "poll-interval-ms":
			overrides.PollIntervalMS = pollIntervalMS
		case "ipc-socket":
			overrides.IPCSocketPath = ipcSocketPath
		case "ws-listen":
			overrides.WSListenAddr = wsListenAddr
		case "input-device":
			overrides.InputDevice = inputDevice
		case "log-level":
			overrides.LogLevel = logLevelStr
		}
	})
	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(logLevel)

	// Pin sink
	pinSink, err := newPinSink(cfg, logger)
	if err != nil {
		logger.Error("failed to open pin sink", "error", err,
			"tip", "use -sink log to run without GPIO access")
		os.Exit(1)
	}
	defer pinSink.Close()

	// Open input devices before dropping into the run group so a bad path
	// fails fast.
	var inputFiles []*os.File
	for _, dev := range cfg.Input.Devices {
		f, err := os.Open(dev)
		if err != nil {
			logger.Error("failed to open input device", "device", dev, "error", err,
				"tip", "run as root or add user to 'input' group")
			os.Exit(1)
		}
		defer f.Close()
		inputFiles = append(inputFiles, f)
	}

	// Shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Central event bus: IPC, input devices, and the ws handler all feed the
	// daemon through this channel.
	events := make(chan Event, 64)
	broadcasts := make(chan StateBroadcast, 128)

	state := newSimState(cfg)
	pollInterval := time.Duration(cfg.Daemon.PollIntervalMS) * time.Millisecond

	logger.Debug("starting quadsim", "version", version)
	logger.Info("configuration",
		"sink", cfg.Pins.Sink,
		"pin_a", cfg.Pins.A,
		"pin_b", cfg.Pins.B,
		"refresh_interval_ms", cfg.Encoder.RefreshIntervalMS,
		"tooth_count", cfg.Encoder.ToothCount,
		"mode", cfg.Encoder.Mode,
		"tick_limit", cfg.Encoder.TickLimit,
		"poll_interval_ms", cfg.Daemon.PollIntervalMS,
		"ipc_socket", cfg.IPC.SocketPath,
		"ws_listen", cfg.Telemetry.ListenAddr,
		"input_devices", cfg.Input.Devices,
		"rev_per_second", revPerSecond(state.RefreshInterval, state.ToothCount))

	g, gctx := errgroup.WithContext(ctx)

	// Daemon brain. When it exits (Shutdown event or closed channel), cancel
	// everything else.
	g.Go(func() error {
		defer stop()
		return runDaemon(gctx, events, pinSink, broadcasts, state, pollInterval, time.Now, logger)
	})

	// IPC command server.
	g.Go(func() error {
		return runIPCServer(gctx, cfg.IPC.SocketPath, events, logger)
	})

	// Telemetry websocket server.
	if cfg.Telemetry.ListenAddr != "" {
		server := NewServer(logger, events, ServerConfig{})

		g.Go(func() error {
			server.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(gctx, server.Hub(), broadcasts, logger)
			return nil
		})

		mux := http.NewServeMux()
		server.Register(mux, "/ws/state")
		httpSrv := &http.Server{Addr: cfg.Telemetry.ListenAddr, Handler: mux}

		g.Go(func() error {
			logger.Info("telemetry listening", "addr", cfg.Telemetry.ListenAddr, "path", "/ws/state")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("telemetry server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutCtx)
		})
	} else {
		// Nobody consumes broadcasts; drain them so the daemon's best-effort
		// publish never logs drops.
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-broadcasts:
				}
			}
		})
	}

	// Bench button input.
	if len(inputFiles) > 0 {
		inputEvents := make(chan inputEvent, 64)
		readErr := make(chan error, 1)
		go readInputEventsEpoll(inputFiles, inputEvents, readErr)

		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case err := <-readErr:
					return fmt.Errorf("input reader: %w", err)
				case iev := <-inputEvents:
					ev, ok := translateInputEvent(iev)
					if !ok {
						continue
					}
					select {
					case events <- ev:
					default:
						logger.Warn("event queue full, dropping button event")
					}
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("quadsim stopped")
}
