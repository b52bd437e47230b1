package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_KEY = 0x01

	KEY_MUTE       = 113
	KEY_VOLUMEDOWN = 114
	KEY_VOLUMEUP   = 115
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Daemon defaults
const (
	defaultPollHz           = 20   // Event queue poll frequency (Hz)
	defaultKeepaliveMS      = 5000 // Idle liveness request interval (ms)
	defaultRequestTimeoutMS = 5000 // Per-request timeout (ms)
	defaultReconnectMS      = 2000 // Delay between failed reconnect attempts (ms)
	defaultClientName       = "pulsebrainz"

	defaultSocketPath = "/tmp/pulsebrainz.sock"
	defaultWSListen   = "127.0.0.1:8090"
	defaultWSPath     = "/ws/state"

	// IR key repeat acceleration
	defaultIRStepPercent    = 2   // Volume change per press/repeat (%)
	defaultIRFastWindowMS   = 400 // Time window for fast repeat detection (ms)
	defaultIRFastThreshold  = 4   // Repeats in window to trigger fast stepping
	defaultIRFastMultiplier = 2   // Step multiplier while fast stepping

	maxStepPercent = 100
)
