package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// pulse-ctl - Command-line IPC Client
// ============================================================================
// This tool sends commands to the pulsebrainz daemon via IPC.
//
// Usage:
//   pulse-ctl up [percent]
//   pulse-ctl down [percent]
//   pulse-ctl mute
//   pulse-ctl set-mute on|off
//   pulse-ctl set 40
//   pulse-ctl get
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/pulsebrainz.sock)
// ============================================================================

const (
	defaultSocketPath  = "/tmp/pulsebrainz.sock"
	defaultStepPercent = 5
	responseTimeout    = 3 * time.Second
)

// Action types (duplicated from the daemon package for a standalone binary)
type Action interface{}

type VolumeStep struct {
	Percent int `json:"percent"`
}

type SetVolumePercent struct {
	Percent float64 `json:"percent"`
	Origin  string  `json:"origin,omitempty"`
}

type ToggleMute struct{}

type SetMute struct {
	Muted bool `json:"muted"`
}

type GetState struct{}

// ActionEnvelope wraps actions for JSON
type ActionEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// StateSnapshot mirrors the daemon's get_state payload
type StateSnapshot struct {
	VolumePercent int    `json:"volume_percent"`
	Muted         bool   `json:"muted"`
	Sink          string `json:"sink"`
	Connected     bool   `json:"connected"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string         `json:"status"`
	Error  string         `json:"error,omitempty"`
	State  *StateSnapshot `json:"state,omitempty"`
}

func main() {
	socketPath := defaultSocketPath

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

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

	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage()
		return
	}

	action, err := parseCommand(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		printUsage()
		os.Exit(1)
	}

	resp, err := sendAction(socketPath, action)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if resp.State != nil {
		printState(*resp.State)
		return
	}
	fmt.Println("ok")
}

// parseCommand maps command-line arguments to an action.
func parseCommand(args []string) (Action, error) {
	switch args[0] {
	case "volume-up", "up", "volume-down", "down":
		step := defaultStepPercent
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid step %q: must be a positive integer", args[1])
			}
			step = n
		}
		if strings.HasSuffix(args[0], "down") {
			step = -step
		}
		return VolumeStep{Percent: step}, nil

	case "mute", "toggle-mute":
		return ToggleMute{}, nil

	case "set-mute":
		if len(args) < 2 {
			return nil, fmt.Errorf("set-mute requires on or off")
		}
		switch strings.ToLower(args[1]) {
		case "on", "true", "1":
			return SetMute{Muted: true}, nil
		case "off", "false", "0":
			return SetMute{Muted: false}, nil
		default:
			return nil, fmt.Errorf("invalid mute state %q: use on or off", args[1])
		}

	case "set-volume", "set":
		if len(args) < 2 {
			return nil, fmt.Errorf("set-volume requires a percentage")
		}
		pct, err := strconv.ParseFloat(strings.TrimSuffix(args[1], "%"), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid percentage %q: %v", args[1], err)
		}
		return SetVolumePercent{Percent: pct, Origin: "pulse-ctl"}, nil

	case "get", "status":
		return GetState{}, nil

	default:
		return nil, fmt.Errorf("unknown command: %s", args[0])
	}
}

func sendAction(socketPath string, action Action) (IPCResponse, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(responseTimeout))

	data, err := marshalAction(action)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("marshal action: %w", err)
	}

	// Line-delimited JSON
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return IPCResponse{}, fmt.Errorf("send action: %w", err)
	}

	var response IPCResponse
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}

	if response.Status == "error" {
		return response, fmt.Errorf("daemon error: %s", response.Error)
	}

	return response, nil
}

func marshalAction(action Action) ([]byte, error) {
	var env ActionEnvelope

	switch a := action.(type) {
	case VolumeStep:
		env.Type = "volume_step"
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal VolumeStep: %w", err)
		}
		env.Data = data

	case SetVolumePercent:
		env.Type = "set_volume"
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal SetVolumePercent: %w", err)
		}
		env.Data = data

	case ToggleMute:
		env.Type = "toggle_mute"

	case SetMute:
		env.Type = "set_mute"
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal SetMute: %w", err)
		}
		env.Data = data

	case GetState:
		env.Type = "get_state"

	default:
		return nil, fmt.Errorf("unknown action type: %T", action)
	}

	return json.Marshal(env)
}

func printState(s StateSnapshot) {
	conn := "connected"
	if !s.Connected {
		conn = "disconnected"
	}
	mute := "unmuted"
	if s.Muted {
		mute = "muted"
	}
	fmt.Printf("sink:   %s\n", s.Sink)
	fmt.Printf("volume: %d%%\n", s.VolumePercent)
	fmt.Printf("mute:   %s\n", mute)
	fmt.Printf("server: %s\n", conn)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `pulse-ctl - Control the pulsebrainz daemon via IPC

Usage:
  pulse-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: %s)

Commands:
  volume-up, up [pct]        Raise volume by pct percent (default %d)
  volume-down, down [pct]    Lower volume by pct percent (default %d)
  mute, toggle-mute          Toggle mute state
  set-mute on|off            Set mute state explicitly
  set-volume, set <pct>      Set volume in percent (e.g., 40)
  get, status                Print the daemon's sink state
  help, -h, --help           Show this help message

Examples:
  pulse-ctl up
  pulse-ctl set 35
  pulse-ctl -socket /run/pulsebrainz.sock get
`, defaultSocketPath, defaultStepPercent, defaultStepPercent)
}
