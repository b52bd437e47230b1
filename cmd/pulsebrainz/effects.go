package main

import (
	"log/slog"
)

// applyAction executes a single Action against the mixer.
//
// Errors are logged and never stop the daemon. State changes are not
// reported from here; the daemon loop reads the mixer's confirmed state
// afterwards.
func applyAction(mixer Mixer, act Action, logger *slog.Logger) {
	switch a := act.(type) {
	case VolumeStep:
		if a.Percent == 0 {
			return
		}
		if err := mixer.IncVolume(a.Percent); err != nil {
			logger.Error("volume step failed", "error", err, "percent", a.Percent)
		}

	case SetVolumePercent:
		if err := mixer.SetVolume(a.Percent); err != nil {
			logger.Error("set volume failed", "error", err, "percent", a.Percent, "origin", a.Origin)
		}

	case ToggleMute:
		if err := mixer.ToggleMute(); err != nil {
			logger.Error("toggle mute failed", "error", err)
		}

	case SetMute:
		if err := mixer.SetMute(a.Muted); err != nil {
			logger.Error("set mute failed", "error", err, "muted", a.Muted)
		}

	case RequestStateSnapshot:
		if a.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}
		// Never block the daemon loop on a slow requester.
		select {
		case a.Reply <- snapshotOf(mixer):
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		logger.Warn("unknown action type", "action", act)
	}
}
