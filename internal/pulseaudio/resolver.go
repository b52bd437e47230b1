package pulseaudio

// sinkIdentity is the sink the adapter currently controls. known is false
// until a lookup has succeeded on the current connection.
type sinkIdentity struct {
	index uint32
	name  string
	known bool
}

// resolveSink looks name up and tracks the result. A lookup the server
// answers without a match leaves the tracked sink as it was. Only a lost
// connection is an error. Called with the session lock held.
func (s *Session) resolveSink(name string) error {
	err := s.runToCompletion(&sinkLookupOp{s: s, name: name})
	if err == nil {
		s.trace("pulseaudio: resolved sink", "request", name, "sink", s.sink.name, "index", s.sink.index)
		return nil
	}
	if isTransportError(err) {
		return operationError("get sink info by name", err)
	}
	s.logger.Debug("pulseaudio: sink lookup found nothing", "sink", name, "error", err)
	return nil
}

// resolveDefault tracks the server's default sink. Every fallback that does
// not land on the configured sink is logged, including when none is
// configured.
func (s *Session) resolveDefault() error {
	if err := s.resolveSink(DefaultSinkName); err != nil {
		return err
	}
	if s.sinkName != s.sink.name {
		s.logger.Warn("pulseaudio: using default sink", "configured", s.sinkName, "sink", s.sink.name)
	}
	return nil
}

// resolveInitial tracks the configured sink, falling back to the default
// when none is configured or the configured one does not exist.
func (s *Session) resolveInitial() error {
	if s.sinkName != "" {
		if err := s.resolveSink(s.sinkName); err != nil {
			return err
		}
	}
	if !s.sink.known {
		return s.resolveDefault()
	}
	s.trace("pulseaudio: using sink", "sink", s.sink.name)
	return nil
}

// refreshVolume re-reads volume and mute of the tracked sink.
func (s *Session) refreshVolume() error {
	if !s.sink.known {
		return operationError("get sink info", errNoSink)
	}
	if err := s.runToCompletion(&sinkVolumeOp{s: s, index: s.sink.index}); err != nil {
		return operationError("get sink info", err)
	}
	return nil
}
