package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// ws_listen connects to the pulsebrainz state WebSocket and prints every
// state message it receives.

// stateMessage is the envelope sent by the daemon.
type stateMessage struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type stateData struct {
	VolumePercent *int    `json:"volume_percent,omitempty"`
	Muted         *bool   `json:"muted,omitempty"`
	Sink          *string `json:"sink,omitempty"`
	Connected     *bool   `json:"connected,omitempty"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:8090/ws/state", "pulsebrainz state websocket URL")
		raw   = flag.Bool("raw", false, "Print raw JSON messages")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Protects concurrent writes to the websocket
	var writeMu sync.Mutex

	// The daemon pings every 20s; answer pongs keep the read deadline fresh.
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if messageType != websocket.TextMessage {
				fmt.Printf("[BINARY] %d bytes\n", len(message))
				continue
			}
			if *raw {
				fmt.Printf("%s\n", message)
				continue
			}
			handleTextMessage(message)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// handleTextMessage prints one state message in a compact form.
func handleTextMessage(message []byte) {
	var msg stateMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return
	}

	var data stateData
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			fmt.Printf("[%s] %s\n", msg.Type, string(msg.Data))
			return
		}
	}

	switch msg.Type {
	case "state_init":
		fmt.Printf("[STATE] sink=%s volume=%s muted=%s connected=%s\n",
			str(data.Sink), num(data.VolumePercent), boolStr(data.Muted), boolStr(data.Connected))
	case "volume_changed":
		fmt.Printf("[VOLUME] %s%%\n", num(data.VolumePercent))
	case "mute_changed":
		if data.Muted != nil && *data.Muted {
			fmt.Printf("[MUTE] MUTED\n")
		} else {
			fmt.Printf("[MUTE] UNMUTED\n")
		}
	case "sink_changed":
		fmt.Printf("[SINK] %s\n", str(data.Sink))
	case "connection_changed":
		if data.Connected != nil && *data.Connected {
			fmt.Printf("[SERVER] CONNECTED\n")
		} else {
			fmt.Printf("[SERVER] DISCONNECTED\n")
		}
	default:
		pretty, _ := json.MarshalIndent(msg, "", "  ")
		fmt.Printf("[MESSAGE]\n%s\n\n", string(pretty))
	}
}

func str(s *string) string {
	if s == nil {
		return "?"
	}
	return *s
}

func num(n *int) string {
	if n == nil {
		return "?"
	}
	return fmt.Sprint(*n)
}

func boolStr(b *bool) string {
	if b == nil {
		return "false"
	}
	return fmt.Sprint(*b)
}
