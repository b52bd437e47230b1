package pulseaudio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

var (
	// ErrConnection reports that the connection to the server could not be
	// established, subscribed, or was lost.
	ErrConnection = errors.New("pulseaudio: connection error")

	// ErrOperation reports that a single server request was rejected or
	// could not be submitted.
	ErrOperation = errors.New("pulseaudio: operation failed")

	// errNotReady is returned when a request is submitted to a loop whose
	// connection is not (or no longer) ready.
	errNotReady = errors.New("connection not ready")

	errNoSink = errors.New("no sink resolved")

	errClosedByServer = fmt.Errorf("connection closed by server: %w", io.EOF)
)

// Error carries the kind (ErrConnection or ErrOperation), the failing
// operation and the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func connectionError(op string, err error) error {
	return &Error{Kind: ErrConnection, Op: op, Err: err}
}

func operationError(op string, err error) error {
	return &Error{Kind: ErrOperation, Op: op, Err: err}
}

// isTransportError reports whether err means the connection itself is gone,
// as opposed to the server rejecting one request.
func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errNotReady) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
