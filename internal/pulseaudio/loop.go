package pulseaudio

import (
	"sync"
	"time"
)

// connState is the lifecycle of one connection.
type connState int

const (
	stateConnecting connState = iota
	stateReady
	stateFailed
	stateTerminated
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateReady:
		return "ready"
	case stateFailed:
		return "failed"
	case stateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// loop owns one connection. A single goroutine dials, then executes
// submitted operations one at a time and pings the server while idle.
// state and srv are guarded by the session lock.
type loop struct {
	h         *handler
	dialer    Dialer
	keepalive time.Duration

	ops      chan *operation
	stopCh   chan struct{}
	stopOnce sync.Once
	lost     chan struct{}
	lostOnce sync.Once
	done     chan struct{}

	state connState
	srv   Server
}

func newLoop(h *handler, dialer Dialer, keepalive time.Duration) *loop {
	return &loop{
		h:         h,
		dialer:    dialer,
		keepalive: keepalive,
		ops:       make(chan *operation, 4),
		stopCh:    make(chan struct{}),
		lost:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (l *loop) start() {
	go l.run()
}

// submit hands an operation to the loop. Called with the session lock held.
func (l *loop) submit(o *operation) error {
	if l.state != stateReady {
		return errNotReady
	}
	select {
	case l.ops <- o:
		return nil
	default:
		return errNotReady
	}
}

// connectionLost tells the loop the server closed the connection. It may be
// called from any goroutine and more than once.
func (l *loop) connectionLost() {
	l.lostOnce.Do(func() { close(l.lost) })
}

// stop terminates the loop and waits for its goroutine. It must be called
// without the session lock held.
func (l *loop) stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })

	mu := &l.h.s.mu
	mu.Lock()
	srv := l.srv
	mu.Unlock()
	if srv != nil {
		srv.Close()
	}
	<-l.done
}

func (l *loop) run() {
	defer close(l.done)
	mu := &l.h.s.mu

	srv, err := l.dialer.Dial(l.h.notify)

	mu.Lock()
	if err != nil {
		l.setStateLocked(stateFailed, err)
		mu.Unlock()
		return
	}
	select {
	case <-l.stopCh:
		l.setStateLocked(stateTerminated, nil)
		mu.Unlock()
		srv.Close()
		return
	default:
	}
	l.srv = srv
	l.setStateLocked(stateReady, nil)
	mu.Unlock()

	var tick <-chan time.Time
	if l.keepalive > 0 {
		t := time.NewTicker(l.keepalive)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-l.stopCh:
			mu.Lock()
			l.setStateLocked(stateTerminated, nil)
			mu.Unlock()
			srv.Close()
			return

		case <-l.lost:
			mu.Lock()
			l.setStateLocked(stateFailed, errClosedByServer)
			mu.Unlock()
			srv.Close()
			return

		case o := <-l.ops:
			err := o.op.run(srv)
			lost := isTransportError(err)
			mu.Lock()
			o.complete(err)
			if lost {
				l.setStateLocked(stateFailed, err)
			}
			l.h.s.cond.Broadcast()
			mu.Unlock()
			if lost {
				srv.Close()
				return
			}

		case <-tick:
			if _, err := srv.ServerInfo(); isTransportError(err) {
				mu.Lock()
				l.setStateLocked(stateFailed, err)
				mu.Unlock()
				srv.Close()
				return
			}
		}
	}
}

// setStateLocked records a state transition, fails every operation still
// queued once the loop leaves ready, and reports the change to the handler.
func (l *loop) setStateLocked(state connState, err error) {
	l.state = state
	if state == stateFailed || state == stateTerminated {
		l.drainLocked()
	}
	l.h.stateChanged(state, err)
}

func (l *loop) drainLocked() {
	for {
		select {
		case o := <-l.ops:
			o.complete(errNotReady)
		default:
			l.h.s.cond.Broadcast()
			return
		}
	}
}
