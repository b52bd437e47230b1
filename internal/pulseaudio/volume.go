package pulseaudio

import (
	"math"
)

// Volume is a raw per-channel volume as used by the native protocol.
// VolumeNorm is 100%, VolumeMuted is silence.
type Volume uint32

const (
	VolumeMuted Volume = 0
	VolumeNorm  Volume = 0x10000
	VolumeMax   Volume = math.MaxUint32 / 2
)

// VolumeUIMax is the loudest volume a mixer UI should offer (+11 dB, ~152%).
var VolumeUIMax = volumeFromDB(11.0)

// volumeFromDB converts a software gain in dB to a raw volume using the
// server's cubic mapping.
func volumeFromDB(db float64) Volume {
	linear := math.Pow(10, db/20)
	return Volume(math.Round(math.Cbrt(linear) * float64(VolumeNorm)))
}

// clampVolume keeps v inside [lo, hi].
func clampVolume(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PercentToVolume converts a percentage (100 = VolumeNorm) to a raw volume,
// clamped to [VolumeMuted, ceiling].
func PercentToVolume(percent float64, ceiling Volume) Volume {
	raw := math.Round(percent / 100 * float64(VolumeNorm))
	return Volume(clampVolume(raw, float64(VolumeMuted), float64(ceiling)))
}

// VolumePercent converts a raw volume to a percentage of VolumeNorm,
// rounding half up.
func VolumePercent(v Volume) int {
	return int(float64(v)*100/float64(VolumeNorm) + 0.5)
}

// ChannelVolumes holds one raw volume per channel of a sink.
type ChannelVolumes []Volume

// Max returns the loudest channel, or VolumeMuted for an empty vector.
func (cv ChannelVolumes) Max() Volume {
	m := VolumeMuted
	for _, v := range cv {
		if v > m {
			m = v
		}
	}
	return m
}

// Clone returns an independent copy.
func (cv ChannelVolumes) Clone() ChannelVolumes {
	if cv == nil {
		return nil
	}
	out := make(ChannelVolumes, len(cv))
	copy(out, cv)
	return out
}

// Scale returns a copy scaled proportionally so that the loudest channel
// equals target. A silent vector has every channel set to target.
func (cv ChannelVolumes) Scale(target Volume) ChannelVolumes {
	if target > VolumeMax {
		target = VolumeMax
	}
	out := cv.Clone()
	m := cv.Max()
	if m <= VolumeMuted {
		for i := range out {
			out[i] = target
		}
		return out
	}
	for i, v := range out {
		scaled := uint64(v) * uint64(target) / uint64(m)
		if scaled > uint64(VolumeMax) {
			scaled = uint64(VolumeMax)
		}
		out[i] = Volume(scaled)
	}
	return out
}

// Inc returns a copy whose loudest channel is raised by step, saturating at
// VolumeMax.
func (cv ChannelVolumes) Inc(step Volume) ChannelVolumes {
	m := cv.Max()
	if m >= VolumeMax-step {
		m = VolumeMax
	} else {
		m += step
	}
	return cv.Scale(m)
}

// Dec returns a copy whose loudest channel is lowered by step, floored at
// VolumeMuted.
func (cv ChannelVolumes) Dec(step Volume) ChannelVolumes {
	m := cv.Max()
	if m <= VolumeMuted+step {
		m = VolumeMuted
	} else {
		m -= step
	}
	return cv.Scale(m)
}

// Percent is VolumePercent of the loudest channel.
func (cv ChannelVolumes) Percent() int {
	return VolumePercent(cv.Max())
}

// VolumeSnapshot is the last sink volume and mute state confirmed by the server.
type VolumeSnapshot struct {
	Channels ChannelVolumes
	Muted    bool
}
