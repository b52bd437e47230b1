package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"pulsebrainz/internal/pulseaudio"
)

// ============================================================================
// Central Daemon Loop
// ============================================================================
//
// One goroutine owns the mixer. It:
//   - applies Actions from IR input, IPC and the state WebSocket
//   - polls the mixer's event queue on a fixed cadence and drains it
//   - publishes StateBroadcasts whenever the confirmed state changes
//
// The mixer is never touched from any other goroutine.
// ============================================================================

// Mixer is the sink control surface the daemon drives. *pulseaudio.Adapter
// implements it.
type Mixer interface {
	Wait() bool
	ProcessEvents() (int, error)
	RequestReconnect()
	IsDisconnected() bool

	SinkName() string
	Volume() int
	SetVolume(percent float64) error
	IncVolume(delta int) error
	Muted() bool
	SetMute(mute bool) error
	ToggleMute() error
}

var _ Mixer = (*pulseaudio.Adapter)(nil)

// DaemonConfig controls the loop cadence.
type DaemonConfig struct {
	PollHz         int
	ReconnectDelay time.Duration
}

// runDaemon runs until ctx is canceled or actions is closed.
// broadcasts may be nil; sends to it never block.
func runDaemon(
	ctx context.Context,
	actions <-chan Action,
	mixer Mixer,
	cfg DaemonConfig,
	broadcasts chan<- StateBroadcast,
	logger *slog.Logger,
) {
	pollHz := cfg.PollHz
	if pollHz <= 0 {
		pollHz = defaultPollHz
	}
	ticker := time.NewTicker(time.Second / time.Duration(pollHz))
	defer ticker.Stop()

	var (
		last      StateSnapshot
		published bool
		retryAt   time.Time
		lostSince time.Time
	)

	publish := func(now time.Time) {
		snap := snapshotOf(mixer)
		for _, b := range diffSnapshots(last, published, snap, now) {
			if broadcasts == nil {
				break
			}
			select {
			case broadcasts <- b:
			default:
				logger.Warn("state broadcast queue full, dropping update")
			}
		}
		last = snap
		published = true
	}

	// process drains the mixer's event queue. While disconnected, reconnect
	// attempts are spaced by cfg.ReconnectDelay.
	process := func(now time.Time) {
		if mixer.IsDisconnected() {
			if lostSince.IsZero() {
				lostSince = now
				logger.Warn("pulseaudio connection lost")
			}
			if now.Before(retryAt) {
				return
			}
			if !mixer.Wait() {
				mixer.RequestReconnect()
			}
		}

		if !mixer.Wait() {
			return
		}
		n, err := mixer.ProcessEvents()
		if err != nil {
			logger.Error("pulseaudio event processing failed", "error", err)
			if errors.Is(err, pulseaudio.ErrConnection) {
				retryAt = now.Add(cfg.ReconnectDelay)
			}
			return
		}
		logger.Log(ctx, pulseaudio.LevelTrace, "pulseaudio events processed", "count", n)

		if !lostSince.IsZero() && !mixer.IsDisconnected() {
			logger.Info("pulseaudio connection restored", "sink", mixer.SinkName(), "after", now.Sub(lostSince).Round(time.Millisecond))
			lostSince = time.Time{}
			retryAt = time.Time{}
		}
	}

	process(time.Now())
	publish(time.Now())

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case act, ok := <-actions:
			if !ok {
				logger.Info("daemon stopping (actions channel closed)")
				return
			}
			now := time.Now()
			applyAction(mixer, act, logger)
			process(now)
			publish(now)

		case now := <-ticker.C:
			process(now)
			publish(now)
		}
	}
}
