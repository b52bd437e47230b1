package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// External clients (pulse-ctl, scripts) send actions to the daemon.
//
// Protocol: Line-delimited JSON
//   - Client sends: {"type": "action_name", "data": {...}}
//   - Server responds: {"status": "ok"} or {"status": "error", "error": "msg"}
//   - get_state responds: {"status": "ok", "state": {...}}
// ============================================================================

// ipcSnapshotTimeout bounds how long get_state waits for the daemon loop.
const ipcSnapshotTimeout = time.Second

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status string         `json:"status"`          // "ok" or "error"
	Error  string         `json:"error,omitempty"` // error message if status == "error"
	State  *StateSnapshot `json:"state,omitempty"` // set for get_state
}

// runIPCServer starts the Unix domain socket server.
// It runs until ctx is canceled, at which point it closes the listener and exits.
func runIPCServer(ctx context.Context, socketPath string, actions chan<- Action, logger *slog.Logger) error {
	listener, err := listenIPC(socketPath)
	if err != nil {
		return err
	}
	return serveIPC(ctx, listener, socketPath, actions, logger)
}

func listenIPC(socketPath string) (net.Listener, error) {
	// Remove a stale socket file left by a previous run
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", socketPath, err)
	}

	// Make socket accessible to unprivileged control clients
	if err := os.Chmod(socketPath, 0666); err != nil {
		listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return listener, nil
}

func serveIPC(ctx context.Context, listener net.Listener, socketPath string, actions chan<- Action, logger *slog.Logger) error {
	defer listener.Close()
	defer os.Remove(socketPath)

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}

			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(ctx, conn, actions, logger)
	}
}

// handleIPCConnection handles a single IPC connection
func handleIPCConnection(ctx context.Context, conn net.Conn, actions chan<- Action, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	reply := func(resp IPCResponse) {
		if err := encoder.Encode(resp); err != nil {
			logger.Error("IPC failed to send response", "error", err, "status", resp.Status)
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		logger.Debug("IPC received", "line", line)

		act, err := UnmarshalAction([]byte(line))
		if err != nil {
			reply(IPCResponse{Status: "error", Error: fmt.Sprintf("parse action: %v", err)})
			continue
		}

		if _, ok := act.(RequestStateSnapshot); ok {
			snap, err := requestSnapshot(ctx, actions)
			if err != nil {
				reply(IPCResponse{Status: "error", Error: err.Error()})
				continue
			}
			reply(IPCResponse{Status: "ok", State: &snap})
			continue
		}

		select {
		case actions <- act:
			reply(IPCResponse{Status: "ok"})
		default:
			// Action channel is full (should rarely happen with buffer)
			reply(IPCResponse{Status: "error", Error: "action queue full"})
		}
	}

	logger.Debug("IPC connection closed")
}

// requestSnapshot asks the daemon loop for a snapshot and waits for it.
func requestSnapshot(ctx context.Context, actions chan<- Action) (StateSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, ipcSnapshotTimeout)
	defer cancel()

	reply := make(chan StateSnapshot, 1)
	select {
	case actions <- RequestStateSnapshot{Reply: reply}:
	case <-ctx.Done():
		return StateSnapshot{}, fmt.Errorf("request state: %w", ctx.Err())
	}

	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return StateSnapshot{}, fmt.Errorf("wait for state: %w", ctx.Err())
	}
}
