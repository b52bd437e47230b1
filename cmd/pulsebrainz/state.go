package main

import "time"

// StateSnapshot is the daemon's published view of the sink. It is a value
// copy and safe to hand to other goroutines.
type StateSnapshot struct {
	VolumePercent int    `json:"volume_percent"`
	Muted         bool   `json:"muted"`
	Sink          string `json:"sink"`
	Connected     bool   `json:"connected"`
}

// StateBroadcast is a change to publish to WebSocket clients.
type StateBroadcast interface {
	broadcastMarker()
}

type BroadcastVolumeChanged struct {
	VolumePercent int
	At            time.Time
}

func (BroadcastVolumeChanged) broadcastMarker() {}

type BroadcastMuteChanged struct {
	Muted bool
	At    time.Time
}

func (BroadcastMuteChanged) broadcastMarker() {}

type BroadcastSinkChanged struct {
	Sink string
	At   time.Time
}

func (BroadcastSinkChanged) broadcastMarker() {}

type BroadcastConnectionChanged struct {
	Connected bool
	At        time.Time
}

func (BroadcastConnectionChanged) broadcastMarker() {}

// snapshotOf reads the mixer's confirmed state.
func snapshotOf(m Mixer) StateSnapshot {
	return StateSnapshot{
		VolumePercent: m.Volume(),
		Muted:         m.Muted(),
		Sink:          m.SinkName(),
		Connected:     !m.IsDisconnected(),
	}
}

// diffSnapshots returns a broadcast for every field that differs. With no
// previous snapshot everything is reported.
func diffSnapshots(prev StateSnapshot, havePrev bool, next StateSnapshot, now time.Time) []StateBroadcast {
	var out []StateBroadcast
	if !havePrev || prev.Connected != next.Connected {
		out = append(out, BroadcastConnectionChanged{Connected: next.Connected, At: now})
	}
	if !havePrev || prev.Sink != next.Sink {
		out = append(out, BroadcastSinkChanged{Sink: next.Sink, At: now})
	}
	if !havePrev || prev.VolumePercent != next.VolumePercent {
		out = append(out, BroadcastVolumeChanged{VolumePercent: next.VolumePercent, At: now})
	}
	if !havePrev || prev.Muted != next.Muted {
		out = append(out, BroadcastMuteChanged{Muted: next.Muted, At: now})
	}
	return out
}
