package transport

import (
	"context"
	"errors"
	"net/http"

	"nhooyr.io/websocket"
)

// NhooyrDialer dials with nhooyr.io/websocket.
type NhooyrDialer struct {
	// HTTPClient is used for the opening handshake. Nil means http.DefaultClient.
	HTTPClient *http.Client

	// ReadLimit is the maximum inbound message size.
	ReadLimit int64

	// Subprotocols to offer during the handshake.
	Subprotocols []string
}

// Dial opens a connection to rawURL.
func (d *NhooyrDialer) Dial(ctx context.Context, rawURL string, header http.Header) (Conn, error) {
	ws, _, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{
		HTTPClient:   d.HTTPClient,
		HTTPHeader:   header,
		Subprotocols: d.Subprotocols,
	})
	if err != nil {
		return nil, err
	}

	limit := d.ReadLimit
	if limit == 0 {
		limit = DefaultReadLimit
	}
	ws.SetReadLimit(limit)
	return &nhooyrConn{ws: ws}, nil
}

type nhooyrConn struct {
	ws *websocket.Conn
}

func (c *nhooyrConn) ReadFrame(ctx context.Context) (FrameType, []byte, error) {
	mt, data, err := c.ws.Read(ctx)
	if err != nil {
		var ce websocket.CloseError
		if errors.As(err, &ce) {
			return 0, nil, &CloseError{Code: int(ce.Code), Reason: ce.Reason}
		}
		return 0, nil, err
	}
	if mt == websocket.MessageBinary {
		return FrameBinary, data, nil
	}
	return FrameText, data, nil
}

func (c *nhooyrConn) WriteFrame(ctx context.Context, kind FrameType, data []byte) error {
	mt := websocket.MessageText
	if kind == FrameBinary {
		mt = websocket.MessageBinary
	}
	return c.ws.Write(ctx, mt, data)
}

func (c *nhooyrConn) Ping(ctx context.Context) error {
	return c.ws.Ping(ctx)
}

func (c *nhooyrConn) Close(code int, reason string) error {
	return c.ws.Close(websocket.StatusCode(code), reason)
}
