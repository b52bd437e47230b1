package pulseaudio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/jfreymuth/pulse/proto"
)

// Native subscription bits (pulse/def.h).
const (
	subscriptionMaskSink   = 0x0001
	subscriptionMaskServer = 0x0080

	eventFacilityMask = 0x000f
	eventSink         = 0x0000
	eventServer       = 0x0007

	eventTypeMask = 0x0030
	eventNew      = 0x0000
	eventChange   = 0x0010
	eventRemove   = 0x0020
)

const defaultRequestTimeout = 5 * time.Second

// NativeDialer connects over the PulseAudio native protocol.
type NativeDialer struct {
	// Server uses the PulseAudio server string syntax. Empty means
	// $PULSE_SERVER or the per-user runtime socket.
	Server string

	// ClientName is announced to the server as application.name.
	ClientName string

	// RequestTimeout bounds a single request. A request that times out is
	// treated as a lost connection. Zero uses a default of 5s.
	RequestTimeout time.Duration
}

// Dial implements Dialer.
func (d NativeDialer) Dial(notify func(Notification)) (Server, error) {
	client, conn, err := proto.Connect(d.Server)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	s := newNativeServer(client, conn, timeout, notify)

	name := d.ClientName
	if name == "" {
		name = filepath.Base(os.Args[0])
	}
	props := proto.PropList{
		"application.name":           proto.PropListString(name),
		"application.process.id":     proto.PropListString(strconv.Itoa(os.Getpid())),
		"application.process.binary": proto.PropListString(os.Args[0]),
	}
	if err := s.request(&proto.SetClientName{Props: props}, &proto.SetClientNameReply{}); err != nil {
		s.Close()
		return nil, fmt.Errorf("set client name: %w", err)
	}
	return s, nil
}

// newNativeServer configures client for use by the loop. The client's read
// loop calls Callback unconditionally on EOF, so it is installed before any
// further request.
func newNativeServer(client *proto.Client, conn net.Conn, timeout time.Duration, notify func(Notification)) *nativeServer {
	client.SetTimeout(timeout)
	client.Callback = func(msg interface{}) {
		if notify == nil {
			return
		}
		switch m := msg.(type) {
		case *proto.SubscribeEvent:
			notify(translateEvent(uint32(m.Event), m.Index))
		case *proto.ConnectionClosed:
			notify(Notification{Facility: FacilityConnection, Kind: ChangeRemove})
		}
	}
	return &nativeServer{client: client, conn: conn, timeout: timeout}
}

func translateEvent(raw uint32, index uint32) Notification {
	n := Notification{Index: index}
	switch raw & eventFacilityMask {
	case eventSink:
		n.Facility = FacilitySink
	case eventServer:
		n.Facility = FacilityServer
	default:
		n.Facility = FacilityOther
	}
	switch raw & eventTypeMask {
	case eventNew:
		n.Kind = ChangeNew
	case eventChange:
		n.Kind = ChangeChange
	case eventRemove:
		n.Kind = ChangeRemove
	}
	return n
}

// nativeServer wraps a proto.Client and the socket it runs on.
type nativeServer struct {
	client  *proto.Client
	conn    net.Conn
	timeout time.Duration

	closeOnce sync.Once
}

// request runs one request. A request the server does not answer within the
// timeout closes the socket, so the connection is reported as lost rather
// than every later request failing on its own.
func (s *nativeServer) request(req proto.RequestArgs, rpl proto.Reply) error {
	err := s.client.Request(req, rpl)
	if errors.Is(err, context.DeadlineExceeded) {
		s.Close()
		return fmt.Errorf("request timed out after %s: %w", s.timeout, err)
	}
	return err
}

func (s *nativeServer) Subscribe() error {
	mask := proto.SubscriptionMask(subscriptionMaskSink | subscriptionMaskServer)
	return s.request(&proto.Subscribe{Mask: mask}, nil)
}

func (s *nativeServer) SinkByName(name string) (SinkInfo, error) {
	var reply proto.GetSinkInfoReply
	if err := s.request(&proto.GetSinkInfo{SinkIndex: proto.Undefined, SinkName: name}, &reply); err != nil {
		return SinkInfo{}, err
	}
	return sinkInfoFromReply(&reply), nil
}

func (s *nativeServer) SinkByIndex(index uint32) (SinkInfo, error) {
	var reply proto.GetSinkInfoReply
	if err := s.request(&proto.GetSinkInfo{SinkIndex: index}, &reply); err != nil {
		return SinkInfo{}, err
	}
	return sinkInfoFromReply(&reply), nil
}

func (s *nativeServer) SetSinkVolume(index uint32, volumes ChannelVolumes) error {
	cv := make(proto.ChannelVolumes, len(volumes))
	for i, v := range volumes {
		cv[i] = uint32(v)
	}
	return s.request(&proto.SetSinkVolume{SinkIndex: index, ChannelVolumes: cv}, nil)
}

func (s *nativeServer) SetSinkMute(index uint32, mute bool) error {
	return s.request(&proto.SetSinkMute{SinkIndex: index, Mute: mute}, nil)
}

func (s *nativeServer) ServerInfo() (ServerInfo, error) {
	var reply proto.GetServerInfoReply
	if err := s.request(&proto.GetServerInfo{}, &reply); err != nil {
		return ServerInfo{}, err
	}
	return ServerInfo{
		Name:        reply.PackageName,
		Version:     reply.PackageVersion,
		DefaultSink: reply.DefaultSinkName,
	}, nil
}

func (s *nativeServer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}

func sinkInfoFromReply(r *proto.GetSinkInfoReply) SinkInfo {
	cv := make(ChannelVolumes, len(r.ChannelVolumes))
	for i, v := range r.ChannelVolumes {
		cv[i] = Volume(v)
	}
	return SinkInfo{
		Index:    r.SinkIndex,
		Name:     r.SinkName,
		Channels: cv,
		Muted:    r.Mute,
	}
}
