package pulseaudio

// pendingOp is one request executed by the loop. run is called on the loop
// goroutine without the session lock; onComplete is called afterwards with
// the lock held and is the only place results reach session state.
type pendingOp interface {
	run(srv Server) error
	onComplete(err error)
}

// simpleOp is a request whose only result is success or failure.
type simpleOp func(srv Server) error

func (f simpleOp) run(srv Server) error { return f(srv) }
func (simpleOp) onComplete(error)       {}

type opState int

const (
	opRunning opState = iota
	opDone
)

// operation tracks a submitted pendingOp until the loop completes it.
// Fields other than op are guarded by the session lock.
type operation struct {
	op    pendingOp
	state opState
	err   error
}

// complete records the result. Called with the session lock held.
func (o *operation) complete(err error) {
	if o.state != opRunning {
		return
	}
	o.op.onComplete(err)
	o.err = err
	o.state = opDone
}

// runToCompletion submits op to the loop and waits for it. The session lock
// must be held; it is released while waiting.
func (s *Session) runToCompletion(op pendingOp) error {
	o := &operation{op: op}
	if s.loop == nil {
		return errNotReady
	}
	if err := s.loop.submit(o); err != nil {
		return err
	}
	for o.state == opRunning {
		s.cond.Wait()
	}
	return o.err
}

// sinkLookupOp fetches a sink by name and makes it the tracked sink.
type sinkLookupOp struct {
	s    *Session
	name string
	info SinkInfo
}

func (o *sinkLookupOp) run(srv Server) error {
	info, err := srv.SinkByName(o.name)
	o.info = info
	return err
}

func (o *sinkLookupOp) onComplete(err error) {
	if err != nil {
		return
	}
	o.s.sink = sinkIdentity{index: o.info.Index, name: o.info.Name, known: true}
}

// sinkVolumeOp fetches the tracked sink and stores its volume and mute state.
type sinkVolumeOp struct {
	s     *Session
	index uint32
	info  SinkInfo
}

func (o *sinkVolumeOp) run(srv Server) error {
	info, err := srv.SinkByIndex(o.index)
	o.info = info
	return err
}

func (o *sinkVolumeOp) onComplete(err error) {
	if err != nil {
		return
	}
	o.s.volume = VolumeSnapshot{Channels: o.info.Channels.Clone(), Muted: o.info.Muted}
}
