// Package pulseaudio controls the volume and mute state of one PulseAudio
// sink from a single consumer goroutine.
//
// Requests to the server are asynchronous; the adapter runs them on a loop
// goroutine and blocks the caller until each has completed. Server
// notifications are turned into queued events that the consumer drains with
// ProcessEvents.
package pulseaudio

import (
	"log/slog"
	"math"
	"time"
)

// Config selects the sink and the volume ceiling.
type Config struct {
	// SinkName is the sink to control. Empty follows the server default.
	SinkName string

	// UseUIMaxVolume raises the ceiling from VolumeNorm to VolumeUIMax.
	UseUIMaxVolume bool

	// Server and ClientName configure the native dialer. Ignored when Dialer
	// is set.
	Server         string
	ClientName     string
	RequestTimeout time.Duration

	// Keepalive is the interval of liveness requests while idle. Zero
	// disables them.
	Keepalive time.Duration

	Dialer Dialer
}

// Adapter is the public surface. Its methods are meant to be called from one
// goroutine.
type Adapter struct {
	s         *Session
	maxVolume Volume
	logger    *slog.Logger
}

// New connects and resolves the sink. It fails with ErrConnection if the
// server cannot be reached or the subscription fails.
func New(cfg Config, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = NativeDialer{
			Server:         cfg.Server,
			ClientName:     cfg.ClientName,
			RequestTimeout: cfg.RequestTimeout,
		}
	}
	maxVolume := VolumeNorm
	if cfg.UseUIMaxVolume {
		maxVolume = VolumeUIMax
	}

	a := &Adapter{
		s:         newSession(dialer, cfg.SinkName, cfg.Keepalive, logger),
		maxVolume: maxVolume,
		logger:    logger,
	}
	if err := a.s.connect(); err != nil {
		a.s.close()
		return nil, err
	}
	return a, nil
}

// Close disconnects. The adapter cannot be used afterwards.
func (a *Adapter) Close() error {
	a.s.close()
	return nil
}

// Wait reports whether events are queued.
func (a *Adapter) Wait() bool {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.s.events.len() > 0
}

// ProcessEvents drains the event queue and returns how many events were
// queued when it was called.
func (a *Adapter) ProcessEvents() (int, error) {
	return a.s.processEvents()
}

// RequestReconnect queues a reconnect unless one is already queued.
func (a *Adapter) RequestReconnect() {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if !a.s.events.contains(ReconnectRequested) {
		a.s.events.push(ReconnectRequested)
	}
}

// IsDisconnected reports whether the connection was lost and not yet
// re-established.
func (a *Adapter) IsDisconnected() bool {
	return a.s.disconnected.Load()
}

// SinkName returns the name of the tracked sink.
func (a *Adapter) SinkName() string {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.s.sink.name
}

// MaxVolume returns the configured ceiling.
func (a *Adapter) MaxVolume() Volume {
	return a.maxVolume
}

// Volume returns the last confirmed volume of the loudest channel in percent.
func (a *Adapter) Volume() int {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.s.volume.Channels.Percent()
}

// Muted returns the last confirmed mute state.
func (a *Adapter) Muted() bool {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.s.volume.Muted
}

// SetVolume sets the loudest channel to percent, keeping channel balance.
// The result is clamped to VolumeNorm whatever the configured ceiling; only
// IncVolume can go above it.
func (a *Adapter) SetVolume(percent float64) error {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	target := PercentToVolume(percent, VolumeNorm)
	return a.setSinkVolumeLocked(a.currentLocked().Scale(target))
}

// IncVolume changes the volume by delta percent. Raising stops at the
// configured ceiling; lowering stops at silence.
func (a *Adapter) IncVolume(delta int) error {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := a.currentLocked()
	step := PercentToVolume(math.Abs(float64(delta)), VolumeNorm)

	var next ChannelVolumes
	if delta > 0 {
		m := cur.Max()
		switch {
		case m+step <= a.maxVolume:
			next = cur.Inc(step)
		case m < a.maxVolume:
			s.logger.Warn("pulseaudio: maximum volume reached", "percent", VolumePercent(a.maxVolume))
			next = cur.Scale(a.maxVolume)
		default:
			s.logger.Warn("pulseaudio: maximum volume reached", "percent", VolumePercent(a.maxVolume))
			next = cur.Clone()
		}
	} else {
		next = cur.Dec(step)
	}
	return a.setSinkVolumeLocked(next)
}

// SetMute sets the mute state of the sink.
func (a *Adapter) SetMute(mute bool) error {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sink.known {
		return operationError("set sink mute", errNoSink)
	}
	index := s.sink.index
	err := s.runToCompletion(simpleOp(func(srv Server) error {
		return srv.SetSinkMute(index, mute)
	}))
	if err != nil {
		return operationError("set sink mute", err)
	}
	a.confirmLocked()
	return nil
}

// ToggleMute inverts the last confirmed mute state.
func (a *Adapter) ToggleMute() error {
	return a.SetMute(!a.Muted())
}

// currentLocked returns the confirmed channel volumes, or a single silent
// channel when none have been read yet.
func (a *Adapter) currentLocked() ChannelVolumes {
	if len(a.s.volume.Channels) == 0 {
		return ChannelVolumes{VolumeMuted}
	}
	return a.s.volume.Channels
}

func (a *Adapter) setSinkVolumeLocked(cv ChannelVolumes) error {
	s := a.s
	if !s.sink.known {
		return operationError("set sink volume", errNoSink)
	}
	index := s.sink.index
	err := s.runToCompletion(simpleOp(func(srv Server) error {
		return srv.SetSinkVolume(index, cv)
	}))
	if err != nil {
		return operationError("set sink volume", err)
	}
	a.confirmLocked()
	return nil
}

// confirmLocked re-reads the sink after a successful change so the snapshot
// holds what the server applied.
func (a *Adapter) confirmLocked() {
	if err := a.s.refreshVolume(); err != nil {
		a.logger.Error("pulseaudio: volume refresh failed", "error", err)
	}
}
