package pulseaudio

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errNoEntity = errors.New("no such entity")

type fakeSink struct {
	index    uint32
	name     string
	channels ChannelVolumes
	muted    bool
}

// fakePulse is an in-memory audio server. Every Dial opens a new fakeConn
// against the same sinks.
type fakePulse struct {
	mu           sync.Mutex
	sinks        []*fakeSink
	defaultSink  string
	dialErr      error
	subscribeErr error
	refreshErr   error
	dials        int
	conns        []*fakeConn
	volumeSets   []ChannelVolumes
	muteSets     []bool
}

func newFakePulse(sinks ...*fakeSink) *fakePulse {
	p := &fakePulse{sinks: sinks}
	if len(sinks) > 0 {
		p.defaultSink = sinks[0].name
	}
	return p
}

func (p *fakePulse) Dial(notify func(Notification)) (Server, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dials++
	if p.dialErr != nil {
		return nil, p.dialErr
	}
	c := &fakeConn{p: p, notify: notify}
	p.conns = append(p.conns, c)
	return c, nil
}

func (p *fakePulse) findLocked(name string) *fakeSink {
	if name == DefaultSinkName {
		name = p.defaultSink
	}
	for _, s := range p.sinks {
		if s.name == name {
			return s
		}
	}
	return nil
}

func (p *fakePulse) indexLocked(index uint32) *fakeSink {
	for _, s := range p.sinks {
		if s.index == index {
			return s
		}
	}
	return nil
}

func (p *fakePulse) current() *fakeConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.conns) == 0 {
		return nil
	}
	return p.conns[len(p.conns)-1]
}

// emit pushes a notification on the newest connection.
func (p *fakePulse) emit(n Notification) {
	if c := p.current(); c != nil {
		c.emit(n)
	}
}

// drop kills the newest connection as if the server went away.
func (p *fakePulse) drop() {
	if c := p.current(); c != nil {
		c.Close()
	}
}

// hangup closes the newest connection from the server side and reports it
// the way the native client does.
func (p *fakePulse) hangup() {
	if c := p.current(); c != nil {
		c.hangup()
	}
}

func (p *fakePulse) set(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
}

func (p *fakePulse) dialCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dials
}

type fakeConn struct {
	p          *fakePulse
	notify     func(Notification)
	closed     atomic.Bool
	subscribed atomic.Bool
}

func (c *fakeConn) emit(n Notification) {
	if c.closed.Load() || !c.subscribed.Load() || c.notify == nil {
		return
	}
	c.notify(n)
}

func (c *fakeConn) hangup() {
	c.closed.Store(true)
	if c.notify != nil {
		c.notify(Notification{Facility: FacilityConnection, Kind: ChangeRemove})
	}
}

func (c *fakeConn) check() error {
	if c.closed.Load() {
		return io.EOF
	}
	return nil
}

func (c *fakeConn) Subscribe() error {
	if err := c.check(); err != nil {
		return err
	}
	c.p.mu.Lock()
	err := c.p.subscribeErr
	c.p.mu.Unlock()
	if err != nil {
		return err
	}
	c.subscribed.Store(true)
	return nil
}

func (c *fakeConn) SinkByName(name string) (SinkInfo, error) {
	if err := c.check(); err != nil {
		return SinkInfo{}, err
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	s := c.p.findLocked(name)
	if s == nil {
		return SinkInfo{}, errNoEntity
	}
	return SinkInfo{Index: s.index, Name: s.name, Channels: s.channels.Clone(), Muted: s.muted}, nil
}

func (c *fakeConn) SinkByIndex(index uint32) (SinkInfo, error) {
	if err := c.check(); err != nil {
		return SinkInfo{}, err
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	if c.p.refreshErr != nil {
		return SinkInfo{}, c.p.refreshErr
	}
	s := c.p.indexLocked(index)
	if s == nil {
		return SinkInfo{}, errNoEntity
	}
	return SinkInfo{Index: s.index, Name: s.name, Channels: s.channels.Clone(), Muted: s.muted}, nil
}

func (c *fakeConn) SetSinkVolume(index uint32, volumes ChannelVolumes) error {
	if err := c.check(); err != nil {
		return err
	}
	c.p.mu.Lock()
	s := c.p.indexLocked(index)
	if s == nil {
		c.p.mu.Unlock()
		return errNoEntity
	}
	if len(volumes) == 1 && len(s.channels) > 1 {
		s.channels = s.channels.Scale(volumes[0])
	} else {
		s.channels = volumes.Clone()
	}
	c.p.volumeSets = append(c.p.volumeSets, volumes.Clone())
	c.p.mu.Unlock()

	c.emit(Notification{Facility: FacilitySink, Kind: ChangeChange, Index: index})
	return nil
}

func (c *fakeConn) SetSinkMute(index uint32, mute bool) error {
	if err := c.check(); err != nil {
		return err
	}
	c.p.mu.Lock()
	s := c.p.indexLocked(index)
	if s == nil {
		c.p.mu.Unlock()
		return errNoEntity
	}
	s.muted = mute
	c.p.muteSets = append(c.p.muteSets, mute)
	c.p.mu.Unlock()

	c.emit(Notification{Facility: FacilitySink, Kind: ChangeChange, Index: index})
	return nil
}

func (c *fakeConn) ServerInfo() (ServerInfo, error) {
	if err := c.check(); err != nil {
		return ServerInfo{}, err
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	return ServerInfo{Name: "fake", Version: "1.0", DefaultSink: c.p.defaultSink}, nil
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// logBuffer collects log output from the loop and consumer goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func bufferLogger(b *logBuffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(b, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func stereo(v Volume) ChannelVolumes {
	return ChannelVolumes{v, v}
}

func newTestAdapter(t *testing.T, p *fakePulse, cfg Config) *Adapter {
	t.Helper()
	cfg.Dialer = p
	a, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

// drain processes events until the queue stays empty.
func drain(t *testing.T, a *Adapter) {
	t.Helper()
	for a.Wait() {
		if _, err := a.ProcessEvents(); err != nil {
			t.Fatalf("ProcessEvents failed: %v", err)
		}
	}
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
