package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"pulsebrainz/internal/pulseaudio"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("pulsebrainz v%s\n", version)
	fmt.Println("IR remote and IPC volume control daemon for PulseAudio sinks")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  pulsebrainz [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that keeps a PulseAudio sink's volume and mute state in sync,")
	fmt.Println("  applies changes from IR remotes (Linux input devices) and pulse-ctl,")
	fmt.Println("  and publishes state over a WebSocket. Follows the server's default")
	fmt.Println("  sink unless a sink is configured, and reconnects after server restarts.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (optional)")
	fmt.Println()
	fmt.Println("  -pulse-server string")
	fmt.Println("        PulseAudio server address (default: $PULSE_SERVER or the user socket)")
	fmt.Println()
	fmt.Println("  -pulse-sink string")
	fmt.Println("        Sink name to control (default: follow the server default sink)")
	fmt.Println()
	fmt.Println("  -pulse-use-ui-max")
	fmt.Println("        Allow volumes above 100% up to the UI maximum (~152%)")
	fmt.Println()
	fmt.Println("  -pulse-poll-hz int")
	fmt.Printf("        Event queue poll frequency in Hz (default %d)\n", defaultPollHz)
	fmt.Println()
	fmt.Println("  -ir-device string")
	fmt.Println("        Linux input event device for IR (repeatable; default: none)")
	fmt.Println()
	fmt.Println("  -ir-step-percent int")
	fmt.Printf("        Volume change per key press in percent (default %d)\n", defaultIRStepPercent)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultSocketPath)
	fmt.Println()
	fmt.Println("  -state-ws")
	fmt.Println("        Enable the state WebSocket server (default true)")
	fmt.Println()
	fmt.Println("  -state-ws-listen string")
	fmt.Printf("        State WebSocket listen address (default %q)\n", defaultWSListen)
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug, trace (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Follow the default sink")
	fmt.Println("  pulsebrainz")
	fmt.Println()
	fmt.Println("  # Control one sink from an IR receiver")
	fmt.Println("  pulsebrainz -pulse-sink alsa_output.usb-dac.analog-stereo -ir-device /dev/input/event6")
	fmt.Println()
	fmt.Println("  # Use a config file")
	fmt.Println("  pulsebrainz -config ~/.config/pulsebrainz.yaml")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires read access to input devices (run as root or add user to 'input' group)")
	fmt.Println("  - Flags override values from the config file")
	fmt.Println()
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	// Check for version/help early
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

	var irDevices stringList
	var (
		configPath     = flag.String("config", "", "Path to YAML config file")
		pulseServer    = flag.String("pulse-server", "", "PulseAudio server address")
		pulseSink      = flag.String("pulse-sink", "", "Sink name to control")
		pulseUseUIMax  = flag.Bool("pulse-use-ui-max", false, "Allow volumes up to the UI maximum")
		pulsePollHz    = flag.Int("pulse-poll-hz", defaultPollHz, "Event queue poll frequency in Hz")
		irStepPercent  = flag.Int("ir-step-percent", defaultIRStepPercent, "Volume change per key press in percent")
		ipcSocketPath  = flag.String("ipc-socket", defaultSocketPath, "Unix domain socket path for IPC")
		stateWSEnabled = flag.Bool("state-ws", true, "Enable the state WebSocket server")
		stateWSListen  = flag.String("state-ws-listen", defaultWSListen, "State WebSocket listen address")
		logLevelStr    = flag.String("log-level", "info", "Log level: error, warn, info, debug, trace")
		_              = flag.Bool("version", false, "Print version and exit")
		_              = flag.Bool("help", false, "Print help message")
	)
	flag.Var(&irDevices, "ir-device", "Linux input event device for IR (repeatable)")

	flag.Usage = printUsage
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only explicitly set flags override the config file.
	var ov FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "pulse-server":
			ov.PulseServer = pulseServer
		case "pulse-sink":
			ov.PulseSink = pulseSink
		case "pulse-use-ui-max":
			ov.PulseUseUIMax = pulseUseUIMax
		case "pulse-poll-hz":
			ov.PulsePollHz = pulsePollHz
		case "ir-device":
			ov.IRDevices = irDevices
		case "ir-step-percent":
			ov.IRStepPercent = irStepPercent
		case "ipc-socket":
			ov.IPCSocketPath = ipcSocketPath
		case "state-ws":
			ov.StateWSEnabled = stateWSEnabled
		case "state-ws-listen":
			ov.StateWSListen = stateWSListen
		case "log-level":
			ov.LogLevel = logLevelStr
		}
	})
	ov.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid config: %v\n", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(logLevel)

	logger.Info("pulsebrainz starting",
		"version", version,
		"sink", cfg.Pulse.Sink,
		"use_ui_max", cfg.Pulse.UseUIMax,
		"ir_devices", cfg.IR.Devices,
		"ipc_socket", cfg.IPC.SocketPath,
		"state_ws", cfg.StateWS.Enabled,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// run wires all components together and blocks until SIGINT/SIGTERM.
func run(cfg Config, logger *slog.Logger) error {
	mixer, err := pulseaudio.New(cfg.ToAdapterConfig(), logger.With("component", "pulseaudio"))
	if err != nil {
		return fmt.Errorf("connect to pulseaudio: %w", err)
	}
	defer mixer.Close()

	logger.Info("controlling sink", "sink", mixer.SinkName(), "max_volume_percent", pulseaudio.VolumePercent(mixer.MaxVolume()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	actions := make(chan Action, 64)

	// Without the state WS nobody reads broadcasts.
	var broadcasts chan StateBroadcast
	if cfg.StateWS.Enabled {
		broadcasts = make(chan StateBroadcast, 64)
	}

	var wg sync.WaitGroup
	goRun := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	goRun(func() {
		runDaemon(ctx, actions, mixer, cfg.ToDaemonConfig(), broadcasts, logger)
	})

	goRun(func() {
		if err := runIPCServer(ctx, ExpandPath(cfg.IPC.SocketPath), actions, logger); err != nil {
			logger.Error("IPC server failed", "error", err)
		}
	})

	if len(cfg.IR.Devices) > 0 {
		goRun(func() {
			if err := runInputReader(ctx, cfg.IR.Devices, cfg.ToKeyConfig(), actions, logger); err != nil {
				logger.Error("IR input stopped", "error", err)
			}
		})
	}

	var httpSrv *http.Server
	if cfg.StateWS.Enabled {
		wsSrv := NewServer(logger, actions, ServerConfig{})
		mux := http.NewServeMux()
		wsSrv.Register(mux, cfg.StateWS.Path)

		goRun(func() { wsSrv.Hub().Run(ctx) })
		goRun(func() { RunBroadcaster(ctx, wsSrv.Hub(), broadcasts, logger) })

		httpSrv = &http.Server{
			Addr:              cfg.StateWS.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		goRun(func() {
			logger.Info("state ws listening", "addr", cfg.StateWS.Listen, "path", cfg.StateWS.Path)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("state ws server failed", "error", err)
			}
		})
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = httpSrv.Shutdown(shutdownCtx)
		cancel()
	}

	wg.Wait()
	return nil
}
