package transport

import (
	"errors"
	"fmt"
)

// Connection errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendQueueFull    = errors.New("send queue full")
	ErrKeepAliveTimeout = errors.New("keep-alive timeout")
	ErrInvalidEndpoint  = errors.New("invalid endpoint")
)

// TransportError reports a failure of the underlying WebSocket.
type TransportError struct {
	// Op is the operation that failed: "dial", "read", "write" or "keepalive".
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// CloseError is returned by Conn.ReadFrame when the peer sent a close frame.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("websocket closed by peer: %d", e.Code)
	}
	return fmt.Sprintf("websocket closed by peer: %d %s", e.Code, e.Reason)
}

// Normal reports whether the close counts as a natural end of the session.
func (e *CloseError) Normal() bool {
	return e.Code == CloseNormalClosure || e.Code == CloseGoingAway
}

// IsNormalClose reports whether err is a normal closure by the peer.
func IsNormalClose(err error) bool {
	var ce *CloseError
	return errors.As(err, &ce) && ce.Normal()
}

// redactedError masks a secret in the message of err while keeping the
// chain intact for errors.Is and errors.As.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }

func redactError(err error, secret string) error {
	if err == nil || secret == "" {
		return err
	}
	msg := err.Error()
	redacted := RedactSecret(msg, secret)
	if redacted == msg {
		return err
	}
	return &redactedError{msg: redacted, err: err}
}
