package main

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"pulsebrainz/internal/pulseaudio"
)

// mockMixer implements Mixer for daemon tests.
type mockMixer struct {
	mu sync.Mutex

	sink         string
	volume       int
	maxPercent   int
	muted        bool
	disconnected bool

	pending    int // queued events
	processErr error
	setErr     error

	processCalls   int
	reconnectCalls int
	setVolumes     []float64
	steps          []int
	muteSets       []bool
	toggles        int
}

var _ Mixer = (*mockMixer)(nil)

func newMockMixer() *mockMixer {
	return &mockMixer{sink: "speakers", volume: 40, maxPercent: 100}
}

func (m *mockMixer) Wait() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending > 0
}

func (m *mockMixer) ProcessEvents() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processCalls++
	n := m.pending
	if m.processErr != nil {
		return 0, m.processErr
	}
	m.pending = 0
	return n, nil
}

func (m *mockMixer) RequestReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnectCalls++
	m.pending++
}

func (m *mockMixer) IsDisconnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnected
}

func (m *mockMixer) SinkName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sink
}

func (m *mockMixer) Volume() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

func (m *mockMixer) SetVolume(percent float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setVolumes = append(m.setVolumes, percent)
	if m.setErr != nil {
		return m.setErr
	}
	// Absolute sets stop at 100% like the adapter; only steps use the ceiling.
	m.volume = min(max(int(percent+0.5), 0), 100)
	return nil
}

func (m *mockMixer) IncVolume(delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, delta)
	if m.setErr != nil {
		return m.setErr
	}
	m.volume = min(max(m.volume+delta, 0), m.maxPercent)
	return nil
}

func (m *mockMixer) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

func (m *mockMixer) SetMute(mute bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muteSets = append(m.muteSets, mute)
	if m.setErr != nil {
		return m.setErr
	}
	m.muted = mute
	return nil
}

func (m *mockMixer) ToggleMute() error {
	m.mu.Lock()
	m.toggles++
	muted := m.muted
	m.mu.Unlock()
	return m.SetMute(!muted)
}

func (m *mockMixer) update(fn func(m *mockMixer)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

func (m *mockMixer) read(fn func(m *mockMixer)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

var errMockConnection = &pulseaudio.Error{Kind: pulseaudio.ErrConnection, Op: "reconnect", Err: errors.New("refused")}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}
