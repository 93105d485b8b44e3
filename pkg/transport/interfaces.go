package transport

import (
	"context"
	"net/http"
)

// FrameType is the WebSocket data frame opcode.
type FrameType int

const (
	// FrameText is a UTF-8 text frame.
	FrameText FrameType = 1
	// FrameBinary is a binary frame.
	FrameBinary FrameType = 2
)

// String returns the frame type name.
func (f FrameType) String() string {
	switch f {
	case FrameText:
		return "TEXT"
	case FrameBinary:
		return "BINARY"
	default:
		return "UNKNOWN"
	}
}

// WebSocket close codes used by this package.
const (
	CloseNormalClosure = 1000
	CloseGoingAway     = 1001
	CloseAbnormal      = 1006
)

// Conn is an established WebSocket connection.
// Implemented by the gorilla and nhooyr adapters.
type Conn interface {
	// ReadFrame blocks for the next data frame. A close frame from the
	// peer is reported as a *CloseError.
	ReadFrame(ctx context.Context) (FrameType, []byte, error)

	// WriteFrame writes one data frame. Safe for concurrent use with
	// ReadFrame, Ping and Close.
	WriteFrame(ctx context.Context, kind FrameType, data []byte) error

	// Ping sends a ping and waits for the pong. Requires a concurrent
	// ReadFrame loop.
	Ping(ctx context.Context) error

	// Close sends a close frame with the given code and waits briefly
	// for the peer to answer before closing the socket.
	Close(code int, reason string) error
}

// Dialer opens WebSocket connections.
type Dialer interface {
	Dial(ctx context.Context, rawURL string, header http.Header) (Conn, error)
}

// ConnectionHandler receives connection notifications. All methods are
// called from the connection's dispatcher goroutine, one at a time.
type ConnectionHandler interface {
	// OnMessage is called for every inbound data frame, in arrival order.
	OnMessage(kind FrameType, data []byte)

	// OnStateChange is called for every state transition.
	OnStateChange(oldState, newState State)

	// OnError is called when a transport error ends the connection.
	OnError(err error)
}

var (
	_ Dialer = (*GorillaDialer)(nil)
	_ Dialer = (*NhooyrDialer)(nil)
	_ Conn   = (*gorillaConn)(nil)
	_ Conn   = (*nhooyrConn)(nil)
)
