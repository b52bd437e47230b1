package pulseaudio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// LevelTrace is below slog.LevelDebug and used for per-event chatter.
const LevelTrace = slog.LevelDebug - 4

// Session holds the connection and all state shared between the consumer
// and the loop goroutine. Everything except disconnected is guarded by mu.
type Session struct {
	mu   sync.Mutex
	cond *sync.Cond

	dialer    Dialer
	keepalive time.Duration
	sinkName  string
	logger    *slog.Logger

	disconnected atomic.Bool

	gen      uint64
	loop     *loop
	signaled bool
	lastErr  error

	events eventQueue
	sink   sinkIdentity
	volume VolumeSnapshot
}

func newSession(dialer Dialer, sinkName string, keepalive time.Duration, logger *slog.Logger) *Session {
	s := &Session{
		dialer:    dialer,
		keepalive: keepalive,
		sinkName:  sinkName,
		logger:    logger,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *Session) trace(msg string, args ...any) {
	s.logger.Log(context.Background(), LevelTrace, msg, args...)
}

// handler receives callbacks for one connection generation. Callbacks from
// a connection that has since been replaced are ignored.
type handler struct {
	s          *Session
	gen        uint64
	subscribed bool
}

func (h *handler) current() bool {
	return h.gen == h.s.gen
}

// stateChanged is called by the loop with the session lock held.
func (h *handler) stateChanged(state connState, err error) {
	s := h.s
	defer s.cond.Broadcast()
	if !h.current() {
		return
	}
	s.trace("pulseaudio: connection state", "state", state)

	switch state {
	case stateReady:
		s.signaled = true
	case stateFailed:
		s.signaled = true
		s.lastErr = err
		s.disconnected.Store(true)
		if !s.events.contains(ReconnectRequested) {
			s.events.push(ReconnectRequested)
		}
	case stateTerminated:
		s.signaled = true
	}
}

// notify is called from the connection's reader goroutine.
func (h *handler) notify(n Notification) {
	s := h.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if !h.current() {
		return
	}
	if n.Facility == FacilityConnection {
		if s.loop != nil {
			s.loop.connectionLost()
		}
		return
	}
	if !h.subscribed {
		return
	}
	ev, ok := eventFor(n, s.sink)
	if !ok {
		return
	}
	s.trace("pulseaudio: notification", "event", ev, "index", n.Index)
	s.events.push(ev)
	s.cond.Broadcast()
}

// connect starts a new loop and brings the session up: wait for the
// connection, resolve the sink, subscribe and queue an initial refresh.
func (s *Session) connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events.clear()
	s.sink = sinkIdentity{}
	s.gen++
	s.signaled = false
	s.lastErr = nil

	h := &handler{s: s, gen: s.gen}
	s.loop = newLoop(h, s.dialer, s.keepalive)
	s.loop.start()

	for !s.signaled {
		s.cond.Wait()
	}
	if s.loop.state != stateReady {
		return connectionError("connect", s.lastErr)
	}

	if err := s.resolveInitial(); err != nil {
		s.markFailedLocked()
		return connectionError("resolve sink", err)
	}

	if err := s.runToCompletion(simpleOp(func(srv Server) error { return srv.Subscribe() })); err != nil {
		s.markFailedLocked()
		return connectionError("subscribe", err)
	}
	h.subscribed = true

	s.disconnected.Store(false)
	s.events.push(Noop)
	s.cond.Broadcast()
	s.logger.Info("pulseaudio: connected", "sink", s.sink.name)
	return nil
}

// markFailedLocked flags the session as disconnected after a connect that
// did not complete, so the consumer retries.
func (s *Session) markFailedLocked() {
	s.disconnected.Store(true)
	if !s.events.contains(ReconnectRequested) {
		s.events.push(ReconnectRequested)
	}
	s.cond.Broadcast()
}

// detachLocked retires the current loop so its callbacks are ignored, and
// returns it for stopping outside the lock.
func (s *Session) detachLocked() *loop {
	l := s.loop
	s.gen++
	s.events.clear()
	return l
}

// reconnect tears the current connection down and connects again. Called
// without the session lock held.
func (s *Session) reconnect() error {
	s.mu.Lock()
	old := s.detachLocked()
	s.mu.Unlock()
	if old != nil {
		old.stop()
	}
	if err := s.connect(); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	return nil
}

// close stops the loop for good.
func (s *Session) close() {
	s.mu.Lock()
	old := s.detachLocked()
	s.loop = nil
	s.mu.Unlock()
	if old != nil {
		old.stop()
	}
	s.disconnected.Store(true)

	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}
