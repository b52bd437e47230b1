package main

import (
	"bytes"
	"encoding/binary"
	"time"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// inputEventSize is the wire size of one input_event on 64-bit Linux.
var inputEventSize = binary.Size(inputEvent{})

// decodeInputEvent parses one raw input_event.
func decodeInputEvent(buf []byte) (inputEvent, bool) {
	if len(buf) < inputEventSize {
		return inputEvent{}, false
	}
	var ev inputEvent
	if err := binary.Read(bytes.NewReader(buf[:inputEventSize]), binary.LittleEndian, &ev); err != nil {
		return inputEvent{}, false
	}
	return ev, true
}

// KeyConfig controls how remote key presses become volume actions.
type KeyConfig struct {
	StepPercent    int
	FastWindowMS   int
	FastThreshold  int // 0 disables fast stepping
	FastMultiplier int
}

// keyTranslator maps key events to Actions.
type keyTranslator struct {
	cfg     KeyConfig
	repeats *repeatTracker
}

func newKeyTranslator(cfg KeyConfig) *keyTranslator {
	return &keyTranslator{cfg: cfg, repeats: newRepeatTracker()}
}

// translate returns the Action for ev, or nil if the event is ignored.
//
// Volume keys act on press and autorepeat. Mute acts on press only so a
// held button does not flap.
func (k *keyTranslator) translate(ev inputEvent) Action {
	if ev.Type != EV_KEY {
		return nil
	}

	switch ev.Code {
	case KEY_VOLUMEUP:
		return k.volumeStep(ev.Value, +1)
	case KEY_VOLUMEDOWN:
		return k.volumeStep(ev.Value, -1)
	case KEY_MUTE:
		if ev.Value == evValuePress {
			return ToggleMute{}
		}
	}
	return nil
}

func (k *keyTranslator) volumeStep(value int32, direction int) Action {
	if value == evValueRelease {
		return nil
	}
	if value != evValuePress && value != evValueRepeat {
		return nil
	}

	step := k.cfg.StepPercent
	window := time.Duration(k.cfg.FastWindowMS) * time.Millisecond
	count := k.repeats.addStep(direction, window)
	if k.cfg.FastThreshold > 0 && count >= k.cfg.FastThreshold && k.cfg.FastMultiplier > 1 {
		step *= k.cfg.FastMultiplier
	}
	if step > maxStepPercent {
		step = maxStepPercent
	}
	return VolumeStep{Percent: direction * step}
}
