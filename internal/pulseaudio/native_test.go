package pulseaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/jfreymuth/pulse/proto"
)

// tagged builds a native protocol tagstruct.
type tagged struct{ bytes.Buffer }

func (b *tagged) raw32(v uint32) {
	var x [4]byte
	binary.BigEndian.PutUint32(x[:], v)
	b.Write(x[:])
}

func (b *tagged) u32(v uint32) *tagged {
	b.WriteByte('L')
	b.raw32(v)
	return b
}

func (b *tagged) str(s string) *tagged {
	if s == "" {
		b.WriteByte('N')
		return b
	}
	b.WriteByte('t')
	b.WriteString(s)
	b.WriteByte(0)
	return b
}

func (b *tagged) boolean(v bool) *tagged {
	if v {
		b.WriteByte('1')
	} else {
		b.WriteByte('0')
	}
	return b
}

func (b *tagged) volumes(v ...uint32) *tagged {
	b.WriteByte('v')
	b.WriteByte(byte(len(v)))
	for _, x := range v {
		b.raw32(x)
	}
	return b
}

// packet prefixes the payload with a control-channel frame header.
func (b *tagged) packet() []byte {
	hdr := make([]byte, 20)
	binary.BigEndian.PutUint32(hdr[0:4], uint32(b.Len()))
	binary.BigEndian.PutUint32(hdr[4:8], 0xffffffff)
	return append(hdr, b.Bytes()...)
}

func okReply(tag uint32) []byte {
	return new(tagged).u32(proto.OpReply).u32(tag).packet()
}

func errorReply(tag uint32, code proto.Error) []byte {
	return new(tagged).u32(proto.OpError).u32(tag).u32(uint32(code)).packet()
}

func serverInfoReply(tag uint32, defaultSink string) []byte {
	b := new(tagged).u32(proto.OpReply).u32(tag)
	b.str("pulseaudio").str("16.1").str("user").str("host")
	b.WriteByte('a')
	b.WriteByte(3) // s16le
	b.WriteByte(2)
	b.raw32(44100)
	b.str(defaultSink).str("alsa_input.mic").u32(42)
	b.WriteByte('m')
	b.WriteByte(2)
	b.WriteByte(1)
	b.WriteByte(2)
	return b.packet()
}

type pulseRequest struct {
	cmd  uint32
	tag  uint32
	body []byte
}

// pulsePeer is the server end of a net.Pipe. It reads requests and writes
// whatever the handler returns; a nil answer leaves the request hanging.
type pulsePeer struct {
	conn     net.Conn
	requests chan pulseRequest
}

func newPulsePeer(conn net.Conn) *pulsePeer {
	return &pulsePeer{conn: conn, requests: make(chan pulseRequest, 16)}
}

func (p *pulsePeer) read() (pulseRequest, error) {
	hdr := make([]byte, 20)
	if _, err := io.ReadFull(p.conn, hdr); err != nil {
		return pulseRequest{}, err
	}
	payload := make([]byte, binary.BigEndian.Uint32(hdr[0:4]))
	if _, err := io.ReadFull(p.conn, payload); err != nil {
		return pulseRequest{}, err
	}
	if len(payload) < 10 {
		return pulseRequest{}, io.ErrUnexpectedEOF
	}
	return pulseRequest{
		cmd:  binary.BigEndian.Uint32(payload[1:5]),
		tag:  binary.BigEndian.Uint32(payload[6:10]),
		body: payload[10:],
	}, nil
}

func (p *pulsePeer) serve(answer func(pulseRequest) []byte) {
	for {
		req, err := p.read()
		if err != nil {
			return
		}
		select {
		case p.requests <- req:
		default:
		}
		if answer == nil {
			continue
		}
		if out := answer(req); out != nil {
			p.conn.Write(out)
		}
	}
}

func (p *pulsePeer) nextRequest(t *testing.T) pulseRequest {
	t.Helper()
	select {
	case req := <-p.requests:
		return req
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for a request")
		return pulseRequest{}
	}
}

// dialPipe builds a nativeServer on a proto.Client speaking over net.Pipe.
func dialPipe(timeout time.Duration, notify func(Notification)) (*nativeServer, *pulsePeer) {
	clientEnd, serverEnd := net.Pipe()
	client := &proto.Client{}
	srv := newNativeServer(client, clientEnd, timeout, notify)
	client.Open(clientEnd)
	return srv, newPulsePeer(serverEnd)
}

func newPipeServer(t *testing.T, timeout time.Duration, answer func(pulseRequest) []byte) (*nativeServer, *pulsePeer, <-chan Notification) {
	t.Helper()
	notes := make(chan Notification, 8)
	srv, peer := dialPipe(timeout, func(n Notification) { notes <- n })
	go peer.serve(answer)
	t.Cleanup(func() {
		srv.Close()
		peer.conn.Close()
	})
	return srv, peer, notes
}

func TestNativeServer_RequestEncoding(t *testing.T) {
	tests := []struct {
		name    string
		call    func(s *nativeServer) error
		cmd     uint32
		body    []byte
		failure proto.Error
	}{
		{
			name: "default sink lookup",
			call: func(s *nativeServer) error {
				_, err := s.SinkByName(DefaultSinkName)
				return err
			},
			cmd:     proto.OpGetSinkInfo,
			body:    new(tagged).u32(proto.Undefined).str("@DEFAULT_SINK@").Bytes(),
			failure: proto.ErrNoSuchEntity,
		},
		{
			name: "sink by index",
			call: func(s *nativeServer) error {
				_, err := s.SinkByIndex(3)
				return err
			},
			cmd:     proto.OpGetSinkInfo,
			body:    new(tagged).u32(3).str("").Bytes(),
			failure: proto.ErrNoSuchEntity,
		},
		{
			name: "set volume per channel",
			call: func(s *nativeServer) error {
				return s.SetSinkVolume(3, ChannelVolumes{VolumeNorm, VolumeNorm / 2})
			},
			cmd:  proto.OpSetSinkVolume,
			body: new(tagged).u32(3).str("").volumes(uint32(VolumeNorm), uint32(VolumeNorm/2)).Bytes(),
		},
		{
			name: "mute",
			call: func(s *nativeServer) error { return s.SetSinkMute(3, true) },
			cmd:  proto.OpSetSinkMute,
			body: new(tagged).u32(3).str("").boolean(true).Bytes(),
		},
		{
			name: "subscribe to sinks and server",
			call: func(s *nativeServer) error { return s.Subscribe() },
			cmd:  proto.OpSubscribe,
			body: new(tagged).u32(0x0081).Bytes(),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, peer, _ := newPipeServer(t, time.Second, func(req pulseRequest) []byte {
				if tc.failure != 0 {
					return errorReply(req.tag, tc.failure)
				}
				return okReply(req.tag)
			})

			err := tc.call(srv)
			req := peer.nextRequest(t)
			if req.cmd != tc.cmd {
				t.Errorf("command = %d, want %d", req.cmd, tc.cmd)
			}
			if !bytes.Equal(req.body, tc.body) {
				t.Errorf("body = %q, want %q", req.body, tc.body)
			}

			if tc.failure == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.failure) {
				t.Fatalf("expected %v, got %v", tc.failure, err)
			}
			if isTransportError(err) {
				t.Errorf("a rejected request must not count as a lost connection: %v", err)
			}
		})
	}
}

func TestNativeServer_ServerInfo(t *testing.T) {
	srv, peer, _ := newPipeServer(t, time.Second, func(req pulseRequest) []byte {
		return serverInfoReply(req.tag, "alsa_output.usb")
	})

	info, err := srv.ServerInfo()
	if err != nil {
		t.Fatalf("ServerInfo failed: %v", err)
	}
	if req := peer.nextRequest(t); req.cmd != proto.OpGetServerInfo || len(req.body) != 0 {
		t.Errorf("unexpected request %+v", req)
	}
	want := ServerInfo{Name: "pulseaudio", Version: "16.1", DefaultSink: "alsa_output.usb"}
	if info != want {
		t.Errorf("info = %+v, want %+v", info, want)
	}
}

func TestNativeServer_UnansweredRequestTimesOut(t *testing.T) {
	const timeout = 50 * time.Millisecond
	srv, _, _ := newPipeServer(t, timeout, nil)

	start := time.Now()
	_, err := srv.ServerInfo()
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed < timeout-10*time.Millisecond || elapsed > 900*time.Millisecond {
		t.Errorf("request gave up after %v, want about %v", elapsed, timeout)
	}
	if !isTransportError(err) {
		t.Errorf("a timed out request must count as a lost connection: %v", err)
	}

	if _, err := srv.ServerInfo(); !isTransportError(err) {
		t.Errorf("expected later requests to fail as lost connection, got %v", err)
	}
}

func TestNativeServer_ServerCloseIsReported(t *testing.T) {
	srv, peer, notes := newPipeServer(t, time.Second, nil)

	peer.conn.Close()

	select {
	case n := <-notes:
		if n.Facility != FacilityConnection || n.Kind != ChangeRemove {
			t.Fatalf("unexpected notification %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("expected closure to be reported")
	}

	if err := srv.SetSinkMute(1, true); !isTransportError(err) {
		t.Errorf("expected lost connection, got %v", err)
	}
}

func TestNativeServer_ForwardsSubscribeEvents(t *testing.T) {
	_, peer, notes := newPipeServer(t, time.Second, nil)

	ev := new(tagged).u32(proto.OpSubscribeEvent).u32(0xffffffff).u32(eventSink | eventChange).u32(7)
	if _, err := peer.conn.Write(ev.packet()); err != nil {
		t.Fatalf("write event: %v", err)
	}

	select {
	case n := <-notes:
		want := Notification{Facility: FacilitySink, Kind: ChangeChange, Index: 7}
		if n != want {
			t.Fatalf("notification = %+v, want %+v", n, want)
		}
	case <-time.After(time.Second):
		t.Fatal("expected event to be forwarded")
	}
}

func TestSinkInfoFromReply(t *testing.T) {
	got := sinkInfoFromReply(&proto.GetSinkInfoReply{
		SinkIndex:      5,
		SinkName:       "alsa_output.usb",
		ChannelVolumes: proto.ChannelVolumes{uint32(VolumeNorm), uint32(VolumeNorm / 4)},
		Mute:           true,
	})

	if got.Index != 5 || got.Name != "alsa_output.usb" || !got.Muted {
		t.Errorf("unexpected sink %+v", got)
	}
	if len(got.Channels) != 2 || got.Channels[0] != VolumeNorm || got.Channels[1] != VolumeNorm/4 {
		t.Errorf("channels = %v", got.Channels)
	}
}

func TestIsTransportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not ready", errNotReady, true},
		{"eof", io.EOF, true},
		{"closed by server", errClosedByServer, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"closed pipe", io.ErrClosedPipe, true},
		{"closed socket", net.ErrClosed, true},
		{"socket deadline", os.ErrDeadlineExceeded, true},
		{"request timeout", context.DeadlineExceeded, true},
		{"wrapped request timeout", fmt.Errorf("request timed out after 5s: %w", context.DeadlineExceeded), true},
		{"broken pipe", syscall.EPIPE, true},
		{"reset", syscall.ECONNRESET, true},
		{"net op error", &net.OpError{Op: "read", Net: "unix", Err: errors.New("boom")}, true},
		{"no such entity", proto.ErrNoSuchEntity, false},
		{"access denied", proto.ErrAccessDenied, false},
		{"no sink", errNoSink, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isTransportError(tc.err); got != tc.want {
				t.Errorf("isTransportError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

// pipeDialer hands out native servers over net.Pipe and exposes the peers.
type pipeDialer struct {
	timeout time.Duration
	answer  func(pulseRequest) []byte
	peers   chan *pulsePeer
}

func (d *pipeDialer) Dial(notify func(Notification)) (Server, error) {
	srv, peer := dialPipe(d.timeout, notify)
	go peer.serve(d.answer)
	d.peers <- peer
	return srv, nil
}

// startPipeSession runs a loop over a pipeDialer and waits for it to be ready.
func startPipeSession(t *testing.T, d *pipeDialer, keepalive time.Duration) (*Session, *pulsePeer) {
	t.Helper()
	s := newSession(d, "", keepalive, testLogger())

	s.mu.Lock()
	s.gen++
	s.loop = newLoop(&handler{s: s, gen: s.gen}, d, keepalive)
	s.loop.start()
	for !s.signaled {
		s.cond.Wait()
	}
	state := s.loop.state
	s.mu.Unlock()

	peer := <-d.peers
	t.Cleanup(func() {
		s.close()
		peer.conn.Close()
	})
	if state != stateReady {
		t.Fatalf("loop state = %v, want ready", state)
	}
	return s, peer
}

func reconnectQueued(s *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events.contains(ReconnectRequested)
}

func TestLoop_KeepaliveFailsOnUnresponsiveServer(t *testing.T) {
	d := &pipeDialer{timeout: 50 * time.Millisecond, peers: make(chan *pulsePeer, 1)}
	s, peer := startPipeSession(t, d, 20*time.Millisecond)

	if req := peer.nextRequest(t); req.cmd != proto.OpGetServerInfo {
		t.Fatalf("expected a keepalive server info request, got command %d", req.cmd)
	}
	waitUntil(t, time.Second, s.disconnected.Load, "expected unresponsive server to be detected")
	if !reconnectQueued(s) {
		t.Error("expected a reconnect request queued")
	}
}

func TestLoop_KeepaliveAnsweredStaysReady(t *testing.T) {
	d := &pipeDialer{
		timeout: 200 * time.Millisecond,
		answer:  func(req pulseRequest) []byte { return serverInfoReply(req.tag, "alsa_output.usb") },
		peers:   make(chan *pulsePeer, 1),
	}
	s, peer := startPipeSession(t, d, 10*time.Millisecond)

	for i := 0; i < 3; i++ {
		peer.nextRequest(t)
	}
	if s.disconnected.Load() || reconnectQueued(s) {
		t.Error("answered keepalives must not disconnect")
	}
}

func TestLoop_ServerCloseWithoutKeepalive(t *testing.T) {
	d := &pipeDialer{timeout: time.Second, peers: make(chan *pulsePeer, 1)}
	s, peer := startPipeSession(t, d, 0)

	peer.conn.Close()

	waitUntil(t, time.Second, s.disconnected.Load, "expected server closure to be detected")
	if !reconnectQueued(s) {
		t.Error("expected a reconnect request queued")
	}
	s.mu.Lock()
	lastErr := s.lastErr
	s.mu.Unlock()
	if !errors.Is(lastErr, io.EOF) {
		t.Errorf("lastErr = %v, want EOF", lastErr)
	}
}
