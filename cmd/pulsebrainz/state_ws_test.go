package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Hub tests construct Clients with a nil websocket.Conn; the hub guards
// against nil when closing.

func newTestHub(t *testing.T, sendBuf int, broadcastBuf int) *Hub {
	t.Helper()
	return NewHub(testLogger(), HubConfig{
		SendBuf:      sendBuf,
		BroadcastBuf: broadcastBuf,
	})
}

func runHub(t *testing.T, hub *Hub) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Errorf("timeout waiting for hub to stop")
		}
	})
	return cancel
}

func testClient(hub *Hub, name string, buf int) *Client {
	return &Client{
		hub:        hub,
		send:       make(chan []byte, buf),
		remoteAddr: name,
		logger:     testLogger(),
	}
}

func registerClient(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.register <- c
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c]
		return ok
	}, c.remoteAddr+" not registered in time")
}

func recvMsg(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case got := <-c.send:
		return got
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for %s to receive broadcast", c.remoteAddr)
		return nil
	}
}

func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	hub := newTestHub(t, 4, 8)
	runHub(t, hub)

	c1 := testClient(hub, "c1", 4)
	c2 := testClient(hub, "c2", 4)
	registerClient(t, hub, c1)
	registerClient(t, hub, c2)

	msg := []byte(`{"type":"volume_changed","data":{"volume_percent":40}}`)
	hub.broadcast <- msg

	if got := recvMsg(t, c1); string(got) != string(msg) {
		t.Fatalf("client1 got %q, want %q", got, msg)
	}
	if got := recvMsg(t, c2); string(got) != string(msg) {
		t.Fatalf("client2 got %q, want %q", got, msg)
	}
}

func TestHub_SlowClientDisconnectedOnFullSendBuffer(t *testing.T) {
	hub := newTestHub(t, 1, 8)
	runHub(t, hub)

	slow := testClient(hub, "slow", 1)
	fast := testClient(hub, "fast", 8)
	registerClient(t, hub, slow)
	registerClient(t, hub, fast)

	// Simulate a stuck client.
	slow.send <- []byte(`"already queued"`)

	msg := []byte(`{"type":"mute_changed","data":{"muted":true}}`)
	hub.broadcast <- msg

	if got := recvMsg(t, fast); string(got) != string(msg) {
		t.Fatalf("fast client got %q, want %q", got, msg)
	}

	// Drain the pre-filled message, then expect the channel to be closed.
	select {
	case <-slow.send:
	default:
	}
	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.send:
			return !ok
		default:
			return false
		}
	}, "expected slow send channel to be closed")

	if n := hub.ClientCount(); n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}
}

func decodeEnvelope(t *testing.T, msg []byte) (string, map[string]any) {
	t.Helper()
	var env struct {
		Type string         `json:"type"`
		Ts   *time.Time     `json:"ts"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
	if env.Ts == nil {
		t.Fatalf("message without timestamp: %s", msg)
	}
	return env.Type, env.Data
}

func TestRunBroadcaster_CoalescesVolume(t *testing.T) {
	hub := newTestHub(t, 16, 16)
	runHub(t, hub)
	c := testClient(hub, "c", 16)
	registerClient(t, hub, c)

	src := make(chan StateBroadcast, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go RunBroadcaster(ctx, hub, src, testLogger())

	src <- BroadcastVolumeChanged{VolumePercent: 10}
	src <- BroadcastVolumeChanged{VolumePercent: 11}
	src <- BroadcastVolumeChanged{VolumePercent: 12}

	typ, data := decodeEnvelope(t, recvMsg(t, c))
	if typ != "volume_changed" || data["volume_percent"] != float64(12) {
		t.Fatalf("got %s %v, want latest volume 12", typ, data)
	}

	select {
	case extra := <-c.send:
		t.Fatalf("unexpected extra message %s", extra)
	case <-time.After(3 * wsVolumeCoalesceWindow):
	}
}

func TestRunBroadcaster_FlushesVolumeBeforeOtherEvents(t *testing.T) {
	hub := newTestHub(t, 16, 16)
	runHub(t, hub)
	c := testClient(hub, "c", 16)
	registerClient(t, hub, c)

	src := make(chan StateBroadcast, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go RunBroadcaster(ctx, hub, src, testLogger())

	src <- BroadcastVolumeChanged{VolumePercent: 20}
	src <- BroadcastSinkChanged{Sink: "hdmi"}
	src <- BroadcastConnectionChanged{Connected: false}

	want := []struct {
		typ, key string
		val      any
	}{
		{"volume_changed", "volume_percent", float64(20)},
		{"sink_changed", "sink", "hdmi"},
		{"connection_changed", "connected", false},
	}
	for _, w := range want {
		typ, data := decodeEnvelope(t, recvMsg(t, c))
		if typ != w.typ || data[w.key] != w.val {
			t.Fatalf("got %s %v, want %s %s=%v", typ, data, w.typ, w.key, w.val)
		}
	}
}

func TestStateWS_SendsStateInit(t *testing.T) {
	actions := make(chan Action, 4)
	srv := NewServer(testLogger(), actions, ServerConfig{})
	runHub(t, srv.Hub())

	go func() {
		for act := range actions {
			if req, ok := act.(RequestStateSnapshot); ok {
				req.Reply <- StateSnapshot{VolumePercent: 33, Sink: "usb", Connected: true}
			}
		}
	}()
	t.Cleanup(func() { close(actions) })

	mux := http.NewServeMux()
	srv.Register(mux, "/ws/state")
	ts := httptest.NewServer(mux)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/state"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	typ, data := decodeEnvelope(t, msg)
	if typ != "state_init" {
		t.Fatalf("type = %q, want state_init", typ)
	}
	if data["volume_percent"] != float64(33) || data["sink"] != "usb" || data["connected"] != true {
		t.Fatalf("data = %v", data)
	}
}
