package pulseaudio

// DefaultSinkName asks the server for whatever it currently uses as its
// default sink.
const DefaultSinkName = "@DEFAULT_SINK@"

// SinkInfo is the part of a sink description the adapter uses.
type SinkInfo struct {
	Index    uint32
	Name     string
	Channels ChannelVolumes
	Muted    bool
}

// ServerInfo describes the connected server.
type ServerInfo struct {
	Name        string
	Version     string
	DefaultSink string
}

// Facility is the object class a subscription notification is about.
type Facility int

const (
	FacilityOther Facility = iota
	FacilitySink
	FacilityServer
	// FacilityConnection with ChangeRemove reports that the server closed
	// the connection.
	FacilityConnection
)

// ChangeKind says what happened to the object of a notification.
type ChangeKind int

const (
	ChangeNew ChangeKind = iota
	ChangeChange
	ChangeRemove
)

// Notification is one subscription event pushed by the server.
type Notification struct {
	Facility Facility
	Kind     ChangeKind
	Index    uint32
}

// Server is one established connection to the audio server. Every method is
// a single request that blocks until its terminal reply. The loop goroutine
// is the only caller, except for Close.
type Server interface {
	// Subscribe asks for sink and server change notifications.
	Subscribe() error
	SinkByName(name string) (SinkInfo, error)
	SinkByIndex(index uint32) (SinkInfo, error)
	SetSinkVolume(index uint32, volumes ChannelVolumes) error
	SetSinkMute(index uint32, mute bool) error
	ServerInfo() (ServerInfo, error)
	// Close tears the connection down. It unblocks pending requests and may
	// be called more than once and from any goroutine.
	Close() error
}

// Dialer opens connections. notify is invoked for every subscription
// notification, from a goroutine owned by the connection. A connection the
// server closes is reported through notify as well, subscribed or not.
type Dialer interface {
	Dial(notify func(Notification)) (Server, error)
}
