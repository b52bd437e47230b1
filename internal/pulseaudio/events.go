package pulseaudio

// Event is a unit of work queued for the consumer.
type Event int

const (
	// Noop only forces a volume refresh.
	Noop Event = iota
	SinkAppeared
	SinkChanged
	SinkRemoved
	ServerChanged
	ReconnectRequested
)

func (e Event) String() string {
	switch e {
	case Noop:
		return "noop"
	case SinkAppeared:
		return "sink_appeared"
	case SinkChanged:
		return "sink_changed"
	case SinkRemoved:
		return "sink_removed"
	case ServerChanged:
		return "server_changed"
	case ReconnectRequested:
		return "reconnect_requested"
	default:
		return "unknown"
	}
}

// eventQueue is a FIFO of events. It is guarded by the session lock.
type eventQueue struct {
	items []Event
}

func (q *eventQueue) push(ev Event) {
	q.items = append(q.items, ev)
}

func (q *eventQueue) pop() (Event, bool) {
	if len(q.items) == 0 {
		return Noop, false
	}
	ev := q.items[0]
	q.items[0] = Noop
	q.items = q.items[1:]
	return ev, true
}

func (q *eventQueue) len() int {
	return len(q.items)
}

func (q *eventQueue) clear() {
	q.items = nil
}

func (q *eventQueue) contains(ev Event) bool {
	for _, it := range q.items {
		if it == ev {
			return true
		}
	}
	return false
}

// eventFor maps a server notification to a queued event. Sink change and
// removal only matter for the tracked sink.
func eventFor(n Notification, sink sinkIdentity) (Event, bool) {
	switch n.Facility {
	case FacilitySink:
		switch n.Kind {
		case ChangeNew:
			return SinkAppeared, true
		case ChangeChange:
			if sink.known && n.Index == sink.index {
				return SinkChanged, true
			}
		case ChangeRemove:
			if sink.known && n.Index == sink.index {
				return SinkRemoved, true
			}
		}
	case FacilityServer:
		if n.Kind == ChangeChange {
			return ServerChanged, true
		}
	}
	return Noop, false
}

// processEvents drains the queue. It returns the number of events queued on
// entry. A failed volume refresh is logged and does not stop the drain; a
// failed sink resolution or reconnect is returned and leaves the remaining
// events queued.
func (s *Session) processEvents() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.events.len()
	for {
		ev, ok := s.events.pop()
		if !ok {
			return n, nil
		}
		s.trace("pulseaudio: processing event", "event", ev)

		var err error
		switch ev {
		case SinkAppeared:
			if s.sinkName != "" {
				err = s.resolveSink(s.sinkName)
			} else {
				err = s.resolveDefault()
			}
		case ServerChanged:
			if s.sinkName == "" {
				err = s.resolveDefault()
			}
		case SinkRemoved:
			err = s.resolveDefault()
		case ReconnectRequested:
			s.logger.Warn("pulseaudio: connection lost, reconnecting")
			s.mu.Unlock()
			err = s.reconnect()
			s.mu.Lock()
			if err != nil {
				return n, err
			}
			continue
		}
		if err != nil {
			return n, err
		}

		if err := s.refreshVolume(); err != nil {
			s.logger.Error("pulseaudio: volume refresh failed", "error", err)
		}
	}
}
