package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Dialer defaults.
const (
	DefaultHandshakeTimeout = 45 * time.Second
	DefaultCloseTimeout     = time.Second
	DefaultReadLimit        = 1 << 20
)

// GorillaDialer dials with github.com/gorilla/websocket.
type GorillaDialer struct {
	// HandshakeTimeout bounds the opening handshake.
	HandshakeTimeout time.Duration

	// Proxy selects a proxy per request. Defaults to http.ProxyFromEnvironment.
	Proxy func(*http.Request) (*url.URL, error)

	// TLSConfig is used for wss:// endpoints.
	TLSConfig *tls.Config

	// ReadLimit is the maximum inbound message size.
	ReadLimit int64

	// CloseTimeout bounds the wait for the peer's close frame.
	CloseTimeout time.Duration
}

// NewGorillaDialer returns a GorillaDialer with default settings.
func NewGorillaDialer() *GorillaDialer {
	return &GorillaDialer{
		HandshakeTimeout: DefaultHandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
		ReadLimit:        DefaultReadLimit,
		CloseTimeout:     DefaultCloseTimeout,
	}
}

// Dial opens a connection to rawURL.
func (d *GorillaDialer) Dial(ctx context.Context, rawURL string, header http.Header) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            d.Proxy,
		HandshakeTimeout: d.HandshakeTimeout,
		TLSClientConfig:  d.TLSConfig,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = DefaultHandshakeTimeout
	}

	ws, resp, err := dialer.DialContext(ctx, rawURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, fmt.Errorf("%w: HTTP %d", err, resp.StatusCode)
		}
		return nil, err
	}

	limit := d.ReadLimit
	if limit == 0 {
		limit = DefaultReadLimit
	}
	ws.SetReadLimit(limit)

	closeTimeout := d.CloseTimeout
	if closeTimeout == 0 {
		closeTimeout = DefaultCloseTimeout
	}

	c := &gorillaConn{
		ws:           ws,
		closeTimeout: closeTimeout,
		pongCh:       make(chan struct{}, 1),
		readDone:     make(chan struct{}),
	}
	ws.SetPongHandler(func(string) error {
		select {
		case c.pongCh <- struct{}{}:
		default:
		}
		return nil
	})
	return c, nil
}

type gorillaConn struct {
	ws           *websocket.Conn
	closeTimeout time.Duration

	// gorilla allows one concurrent writer; control frames share the lock
	// so that ping and close never interleave with a data frame.
	writeMu sync.Mutex

	pongCh   chan struct{}
	readDone chan struct{}
	readOnce sync.Once

	closeOnce sync.Once
	closeErr  error
}

func (c *gorillaConn) ReadFrame(ctx context.Context) (FrameType, []byte, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			c.readOnce.Do(func() { close(c.readDone) })
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return 0, nil, &CloseError{Code: ce.Code, Reason: ce.Text}
			}
			return 0, nil, err
		}
		switch mt {
		case websocket.TextMessage:
			return FrameText, data, nil
		case websocket.BinaryMessage:
			return FrameBinary, data, nil
		}
	}
}

func (c *gorillaConn) WriteFrame(ctx context.Context, kind FrameType, data []byte) error {
	mt := websocket.TextMessage
	if kind == FrameBinary {
		mt = websocket.BinaryMessage
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(mt, data)
}

func (c *gorillaConn) Ping(ctx context.Context) error {
	// Discard a pong left over from an earlier ping.
	select {
	case <-c.pongCh:
	default:
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultPongTimeout)
	}
	c.writeMu.Lock()
	err := c.ws.WriteControl(websocket.PingMessage, nil, deadline)
	c.writeMu.Unlock()
	if err != nil {
		return err
	}

	select {
	case <-c.pongCh:
		return nil
	case <-c.readDone:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *gorillaConn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		c.writeMu.Lock()
		err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.closeTimeout))
		c.writeMu.Unlock()

		if err == nil {
			// The reader sees the peer's close frame and exits.
			timer := time.NewTimer(c.closeTimeout)
			select {
			case <-c.readDone:
			case <-timer.C:
			}
			timer.Stop()
		} else if !errors.Is(err, websocket.ErrCloseSent) {
			c.closeErr = err
		}

		if err := c.ws.Close(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
	})
	return c.closeErr
}
