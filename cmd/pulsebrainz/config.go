package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"pulsebrainz/internal/pulseaudio"
)

// Config is the top-level YAML configuration for the pulsebrainz daemon.
//
// Defaults and validation live here so the rest of the code can assume a
// well-formed config. The file is the primary configuration surface; flags
// are for small overrides.
type Config struct {
	// PulseAudio connection and sink selection
	Pulse PulseConfig `yaml:"pulse"`

	// IR input configuration
	IR IRConfig `yaml:"ir"`

	// IPC configuration (used by pulse-ctl)
	IPC IPCConfig `yaml:"ipc"`

	// State WebSocket server
	StateWS StateWSConfig `yaml:"state_ws"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type PulseConfig struct {
	Server           string `yaml:"server"`     // empty: $PULSE_SERVER or the user runtime socket
	Sink             string `yaml:"sink"`       // empty: follow the server default sink
	UseUIMax         bool   `yaml:"use_ui_max"` // allow volumes up to ~152%
	ClientName       string `yaml:"client_name"`
	KeepaliveMS      int    `yaml:"keepalive_ms"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
	PollHz           int    `yaml:"poll_hz"`
	ReconnectMS      int    `yaml:"reconnect_ms"`
}

type IRConfig struct {
	Devices        []string `yaml:"devices"` // empty disables IR input
	StepPercent    int      `yaml:"step_percent"`
	FastWindowMS   int      `yaml:"fast_window_ms"`
	FastThreshold  int      `yaml:"fast_threshold"`
	FastMultiplier int      `yaml:"fast_multiplier"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type StateWSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Pulse: PulseConfig{
			ClientName:       defaultClientName,
			KeepaliveMS:      defaultKeepaliveMS,
			RequestTimeoutMS: defaultRequestTimeoutMS,
			PollHz:           defaultPollHz,
			ReconnectMS:      defaultReconnectMS,
		},
		IR: IRConfig{
			StepPercent:    defaultIRStepPercent,
			FastWindowMS:   defaultIRFastWindowMS,
			FastThreshold:  defaultIRFastThreshold,
			FastMultiplier: defaultIRFastMultiplier,
		},
		IPC: IPCConfig{
			SocketPath: defaultSocketPath,
		},
		StateWS: StateWSConfig{
			Enabled: true,
			Listen:  defaultWSListen,
			Path:    defaultWSPath,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the defaults.
// Unknown fields are rejected via KnownFields(true).
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

	// Only whitespace/comments are allowed after the document.
	var trailing yaml.Node
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies overrides from flags on top of a loaded config.
// Each override is applied only if its pointer is non-nil, even when it
// points at a zero value. main.go decides which flags exist.
type FlagOverrides struct {
	PulseServer   *string
	PulseSink     *string
	PulseUseUIMax *bool
	PulsePollHz   *int

	IRDevices     []string
	IRStepPercent *int

	IPCSocketPath *string

	StateWSEnabled *bool
	StateWSListen  *string

	LogLevel *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}

	if o.PulseServer != nil {
		cfg.Pulse.Server = *o.PulseServer
	}
	if o.PulseSink != nil {
		cfg.Pulse.Sink = *o.PulseSink
	}
	if o.PulseUseUIMax != nil {
		cfg.Pulse.UseUIMax = *o.PulseUseUIMax
	}
	if o.PulsePollHz != nil {
		cfg.Pulse.PollHz = *o.PulsePollHz
	}

	if o.IRDevices != nil {
		cfg.IR.Devices = append([]string(nil), o.IRDevices...)
	}
	if o.IRStepPercent != nil {
		cfg.IR.StepPercent = *o.IRStepPercent
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}

	if o.StateWSEnabled != nil {
		cfg.StateWS.Enabled = *o.StateWSEnabled
	}
	if o.StateWSListen != nil {
		cfg.StateWS.Listen = *o.StateWSListen
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Pulse
	if c.Pulse.PollHz <= 0 || c.Pulse.PollHz > 1000 {
		return errors.New("pulse.poll_hz must be between 1 and 1000")
	}
	if c.Pulse.KeepaliveMS < 0 {
		return errors.New("pulse.keepalive_ms must be >= 0")
	}
	if c.Pulse.RequestTimeoutMS <= 0 {
		return errors.New("pulse.request_timeout_ms must be > 0")
	}
	if c.Pulse.ReconnectMS < 0 {
		return errors.New("pulse.reconnect_ms must be >= 0")
	}

	// IR
	for i, dev := range c.IR.Devices {
		if dev == "" {
			return fmt.Errorf("ir.devices[%d] is empty", i)
		}
	}
	if c.IR.StepPercent <= 0 || c.IR.StepPercent > maxStepPercent {
		return fmt.Errorf("ir.step_percent must be between 1 and %d", maxStepPercent)
	}
	if c.IR.FastWindowMS < 0 {
		return errors.New("ir.fast_window_ms must be >= 0")
	}
	if c.IR.FastThreshold < 0 {
		return errors.New("ir.fast_threshold must be >= 0")
	}
	if c.IR.FastMultiplier < 1 {
		return errors.New("ir.fast_multiplier must be >= 1")
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// State WS
	if c.StateWS.Enabled {
		if c.StateWS.Listen == "" {
			return errors.New("state_ws.enabled is true but state_ws.listen is empty")
		}
		if c.StateWS.Path == "" || c.StateWS.Path[0] != '/' {
			return errors.New("state_ws.path must start with /")
		}
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// ToAdapterConfig converts the pulse section into the adapter configuration.
func (c *Config) ToAdapterConfig() pulseaudio.Config {
	return pulseaudio.Config{
		SinkName:       c.Pulse.Sink,
		UseUIMaxVolume: c.Pulse.UseUIMax,
		Server:         c.Pulse.Server,
		ClientName:     c.Pulse.ClientName,
		RequestTimeout: time.Duration(c.Pulse.RequestTimeoutMS) * time.Millisecond,
		Keepalive:      time.Duration(c.Pulse.KeepaliveMS) * time.Millisecond,
	}
}

// ToDaemonConfig converts the polling knobs into the daemon loop configuration.
func (c *Config) ToDaemonConfig() DaemonConfig {
	return DaemonConfig{
		PollHz:         c.Pulse.PollHz,
		ReconnectDelay: time.Duration(c.Pulse.ReconnectMS) * time.Millisecond,
	}
}

// ToKeyConfig converts the IR section into the key translator configuration.
func (c *Config) ToKeyConfig() KeyConfig {
	return KeyConfig{
		StepPercent:    c.IR.StepPercent,
		FastWindowMS:   c.IR.FastWindowMS,
		FastThreshold:  c.IR.FastThreshold,
		FastMultiplier: c.IR.FastMultiplier,
	}
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
