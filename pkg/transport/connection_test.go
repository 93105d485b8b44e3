package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	plog "github.com/zhycit/postoffice-go/pkg/log"
)

func TestConnectionStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "IDLE"},
		{StateConnecting, "CONNECTING"},
		{StateOpen, "OPEN"},
		{StateClosing, "CLOSING"},
		{StateClosed, "CLOSED"},
		{StateFailed, "FAILED"},
		{State(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateIdle, StateConnecting, StateOpen, StateClosing, StateFailed} {
		assert.False(t, s.Terminal(), s.String())
	}
	assert.True(t, StateClosed.Terminal())
}

func TestConnectionLifecycle(t *testing.T) {
	_, url := newWSServer(t, echo)
	h := newRecordingHandler()
	c := NewConnection(testConfig(), h)

	require.Equal(t, StateIdle, c.State())
	require.NoError(t, c.Connect(context.Background(), Params{Endpoint: url}))
	assert.Equal(t, StateOpen, c.State())

	require.NoError(t, c.Send(FrameText, []byte("hello")))
	assert.Equal(t, "hello", h.waitMessage(t))

	require.NoError(t, c.Close())
	waitDone(t, c)

	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, [][2]State{
		{StateIdle, StateConnecting},
		{StateConnecting, StateOpen},
		{StateOpen, StateClosing},
		{StateClosing, StateClosed},
	}, h.Transitions())
	assert.Empty(t, h.Errors())
}

func TestConnectionInboundOrder(t *testing.T) {
	const n = 100
	_, url := newWSServer(t, func(ws *websocket.Conn, _ *http.Request) {
		for i := 0; i < n; i++ {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(fmt.Sprint(i))); err != nil {
				return
			}
		}
		echo(ws, nil)
	})
	h := newRecordingHandler()
	c := NewConnection(testConfig(), h)
	require.NoError(t, c.Connect(context.Background(), Params{Endpoint: url}))
	defer c.Close()

	for i := 0; i < n; i++ {
		assert.Equal(t, fmt.Sprint(i), h.waitMessage(t))
	}
}

func TestConnectionSendOutsideOpen(t *testing.T) {
	d := &mockDialer{}
	c := NewConnection(ConnectionConfig{Dialer: d}, nil)

	assert.ErrorIs(t, c.Send(FrameText, []byte("x")), ErrNotConnected)

	d.On("Dial", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))
	err := c.Connect(context.Background(), Params{Endpoint: "ws://127.0.0.1:1/"})
	require.Error(t, err)
	waitDone(t, c)

	assert.ErrorIs(t, c.Send(FrameText, []byte("x")), ErrNotConnected)
	d.AssertNumberOfCalls(t, "Dial", 1)
}

func TestConnectionDialFailure(t *testing.T) {
	d := &mockDialer{}
	cause := errors.New("connection refused")
	d.On("Dial", mock.Anything, "ws://localhost:7502/?token=abc&clientID=c1", mock.Anything).Return(nil, cause)

	h := newRecordingHandler()
	c := NewConnection(ConnectionConfig{Dialer: d}, h)
	err := c.Connect(context.Background(), Params{
		Endpoint:    "ws://localhost:7502/",
		Auth:        AuthQuery,
		Credentials: Credentials{Token: "abc", ClientID: "c1"},
	})

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "dial", terr.Op)
	assert.ErrorIs(t, err, cause)

	waitDone(t, c)
	assert.Equal(t, [][2]State{
		{StateIdle, StateConnecting},
		{StateConnecting, StateFailed},
		{StateFailed, StateClosed},
	}, h.Transitions())
	require.Len(t, h.Errors(), 1)
	assert.ErrorIs(t, h.Errors()[0], cause)
	d.AssertExpectations(t)
}

func TestConnectionUnreachableServer(t *testing.T) {
	srv, url := newWSServer(t, echo)
	srv.Close()

	h := newRecordingHandler()
	c := NewConnection(testConfig(), h)
	err := c.Connect(context.Background(), Params{Endpoint: url})
	require.Error(t, err)
	waitDone(t, c)

	assert.Len(t, h.Errors(), 1)
	assert.Equal(t, StateClosed, c.State())
}

func TestConnectionConnectTwice(t *testing.T) {
	_, url := newWSServer(t, echo)
	c := NewConnection(testConfig(), nil)
	require.NoError(t, c.Connect(context.Background(), Params{Endpoint: url}))
	defer c.Close()

	assert.ErrorIs(t, c.Connect(context.Background(), Params{Endpoint: url}), ErrAlreadyConnected)
}

func TestConnectionInvalidEndpoint(t *testing.T) {
	c := NewConnection(testConfig(), nil)
	err := c.Connect(context.Background(), Params{Endpoint: "http://example.com"})
	assert.ErrorIs(t, err, ErrInvalidEndpoint)
	assert.Equal(t, StateIdle, c.State())
}

func TestConnectionCloseIdempotent(t *testing.T) {
	// Idle: no-op.
	c := NewConnection(testConfig(), nil)
	assert.NoError(t, c.Close())
	assert.Equal(t, StateIdle, c.State())

	_, url := newWSServer(t, echo)
	h := newRecordingHandler()
	c = NewConnection(testConfig(), h)
	require.NoError(t, c.Connect(context.Background(), Params{Endpoint: url}))

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	waitDone(t, c)
	assert.NoError(t, c.Close())

	closing := 0
	for _, tr := range h.Transitions() {
		if tr[1] == StateClosing {
			closing++
		}
	}
	assert.Equal(t, 1, closing)
	assert.Empty(t, h.Errors())
}

func TestConnectionCloseWhileConnecting(t *testing.T) {
	d := &blockingDialer{started: make(chan struct{})}
	h := newRecordingHandler()
	c := NewConnection(ConnectionConfig{Dialer: d}, h)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Connect(context.Background(), Params{Endpoint: "ws://localhost:7502/"})
	}()

	<-d.started
	require.NoError(t, c.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrConnectionClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Connect did not return")
	}
	waitDone(t, c)

	assert.Equal(t, [][2]State{
		{StateIdle, StateConnecting},
		{StateConnecting, StateClosing},
		{StateClosing, StateClosed},
	}, h.Transitions())
	assert.Empty(t, h.Errors())
}

func TestConnectionPeerNormalClose(t *testing.T) {
	_, url := newWSServer(t, func(ws *websocket.Conn, _ *http.Request) {
		ws.WriteMessage(websocket.TextMessage, []byte("bye"))
		ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
		// Wait for the client's close reply.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})
	h := newRecordingHandler()
	c := NewConnection(testConfig(), h)
	require.NoError(t, c.Connect(context.Background(), Params{Endpoint: url}))

	assert.Equal(t, "bye", h.waitMessage(t))
	waitDone(t, c)

	assert.Empty(t, h.Errors())
	tr := h.Transitions()
	require.Len(t, tr, 4)
	assert.Equal(t, [2]State{StateOpen, StateClosing}, tr[2])
	assert.Equal(t, [2]State{StateClosing, StateClosed}, tr[3])
}

func TestConnectionPeerDrop(t *testing.T) {
	_, url := newWSServer(t, func(ws *websocket.Conn, _ *http.Request) {
		ws.UnderlyingConn().Close()
	})
	h := newRecordingHandler()
	c := NewConnection(testConfig(), h)
	require.NoError(t, c.Connect(context.Background(), Params{Endpoint: url}))
	waitDone(t, c)

	errs := h.Errors()
	require.Len(t, errs, 1)
	var terr *TransportError
	require.True(t, errors.As(errs[0], &terr))
	assert.Equal(t, "read", terr.Op)

	tr := h.Transitions()
	require.Len(t, tr, 4)
	assert.Equal(t, [2]State{StateOpen, StateFailed}, tr[2])
	assert.Equal(t, [2]State{StateFailed, StateClosed}, tr[3])
}

func TestConnectionPeerAbnormalCloseCode(t *testing.T) {
	_, url := newWSServer(t, func(ws *websocket.Conn, _ *http.Request) {
		ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "boom"))
		ws.ReadMessage()
	})
	h := newRecordingHandler()
	c := NewConnection(testConfig(), h)
	require.NoError(t, c.Connect(context.Background(), Params{Endpoint: url}))
	waitDone(t, c)

	require.Len(t, h.Errors(), 1)
	var ce *CloseError
	require.True(t, errors.As(h.Errors()[0], &ce))
	assert.Equal(t, websocket.CloseInternalServerErr, ce.Code)
	assert.False(t, ce.Normal())
}

func TestConnectionReentrantCloseFromHandler(t *testing.T) {
	_, url := newWSServer(t, echo)
	h := newRecordingHandler()
	c := NewConnection(testConfig(), h)
	h.onMessage = func(FrameType, []byte) {
		// Send and Close from inside a callback must not deadlock.
		_ = c.Send(FrameText, []byte("late"))
		_ = c.Close()
	}
	require.NoError(t, c.Connect(context.Background(), Params{Endpoint: url}))
	require.NoError(t, c.Send(FrameText, []byte("ping")))

	waitDone(t, c)
	assert.Empty(t, h.Errors())
}

func TestConnectionSendQueueFull(t *testing.T) {
	conn := newStallConn()
	d := &mockDialer{}
	d.On("Dial", mock.Anything, mock.Anything, mock.Anything).Return(conn, nil)

	c := NewConnection(ConnectionConfig{Dialer: d, SendQueueSize: 2}, nil)
	require.NoError(t, c.Connect(context.Background(), Params{Endpoint: "ws://localhost:7502/"}))

	accepted := 0
	var full bool
	for i := 0; i < 10; i++ {
		err := c.Send(FrameText, []byte("x"))
		if errors.Is(err, ErrSendQueueFull) {
			full = true
			break
		}
		require.NoError(t, err)
		accepted++
	}
	assert.True(t, full, "expected ErrSendQueueFull")

	require.NoError(t, c.Close())
	close(conn.release)
	waitDone(t, c)

	// Queued frames are flushed before the transport closes.
	assert.Equal(t, accepted, conn.Writes())
}

func TestConnectionQueryAuthOnServer(t *testing.T) {
	queries := make(chan string, 1)
	_, url := newWSServer(t, func(ws *websocket.Conn, r *http.Request) {
		queries <- r.URL.RawQuery
		echo(ws, r)
	})
	c := NewConnection(testConfig(), nil)
	require.NoError(t, c.Connect(context.Background(), Params{
		Endpoint:    url,
		Auth:        AuthQuery,
		Credentials: Credentials{Token: "abc", ClientID: "js-client-001"},
	}))
	defer c.Close()

	assert.Equal(t, "token=abc&clientID=js-client-001", <-queries)
}

func TestConnectionHeaderAuthOnServer(t *testing.T) {
	type seen struct{ auth, query string }
	ch := make(chan seen, 1)
	_, url := newWSServer(t, func(ws *websocket.Conn, r *http.Request) {
		ch <- seen{r.Header.Get("Authorization"), r.URL.RawQuery}
		echo(ws, r)
	})
	c := NewConnection(testConfig(), nil)
	require.NoError(t, c.Connect(context.Background(), Params{
		Endpoint:    url,
		Auth:        AuthHeader,
		Credentials: Credentials{Token: "s3cret", ClientID: "go-client"},
	}))
	defer c.Close()

	got := <-ch
	assert.Equal(t, "Bearer s3cret", got.auth)
	assert.Equal(t, "clientID=go-client", got.query)
}

func TestConnectionNhooyrDialer(t *testing.T) {
	_, url := newWSServer(t, echo)
	cfg := testConfig()
	cfg.Dialer = &NhooyrDialer{}

	h := newRecordingHandler()
	c := NewConnection(cfg, h)
	require.NoError(t, c.Connect(context.Background(), Params{Endpoint: url}))

	require.NoError(t, c.Send(FrameBinary, []byte{1, 2, 3}))
	assert.Equal(t, string([]byte{1, 2, 3}), h.waitMessage(t))

	require.NoError(t, c.Close())
	waitDone(t, c)
	assert.Empty(t, h.Errors())
}

func TestConnectionKeepAliveTimeout(t *testing.T) {
	// The server never reads, so pings are never answered.
	block := make(chan struct{})
	_, url := newWSServer(t, func(*websocket.Conn, *http.Request) { <-block })
	defer close(block)

	cfg := testConfig()
	cfg.KeepAlive = KeepAliveConfig{
		PingInterval:   20 * time.Millisecond,
		PongTimeout:    20 * time.Millisecond,
		MaxMissedPongs: 2,
	}
	h := newRecordingHandler()
	c := NewConnection(cfg, h)
	require.NoError(t, c.Connect(context.Background(), Params{Endpoint: url}))
	waitDone(t, c)

	require.Len(t, h.Errors(), 1)
	assert.ErrorIs(t, h.Errors()[0], ErrKeepAliveTimeout)
}

func TestConnectionKeepAliveAnswered(t *testing.T) {
	_, url := newWSServer(t, echo)
	cfg := testConfig()
	cfg.KeepAlive = KeepAliveConfig{PingInterval: 10 * time.Millisecond, PongTimeout: time.Second, MaxMissedPongs: 1}

	h := newRecordingHandler()
	c := NewConnection(cfg, h)
	require.NoError(t, c.Connect(context.Background(), Params{Endpoint: url}))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateOpen, c.State())

	require.NoError(t, c.Close())
	waitDone(t, c)
	assert.Empty(t, h.Errors())
}

func TestConnectionPost(t *testing.T) {
	c := NewConnection(testConfig(), nil)
	assert.False(t, c.Post(func() {}), "Post before Connect")

	_, url := newWSServer(t, echo)
	require.NoError(t, c.Connect(context.Background(), Params{Endpoint: url}))

	ran := make(chan struct{})
	require.True(t, c.Post(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("posted func did not run")
	}

	require.NoError(t, c.Close())
	waitDone(t, c)
	assert.False(t, c.Post(func() {}), "Post after Closed")
}

func TestConnectionDialErrorHidesQueryToken(t *testing.T) {
	const token = "s3cret value"
	d := &mockDialer{}
	cause := errors.New("connection refused")
	d.On("Dial", mock.Anything, mock.Anything, mock.Anything).Return(nil,
		fmt.Errorf(`failed to send handshake request: Get "http://localhost:7502/?token=s3cret%%20value&clientID=c1": %w`, cause))

	rec := &eventRecorder{}
	cfg := testConfig()
	cfg.Dialer = d
	cfg.ProtocolLogger = rec
	c := NewConnection(cfg, newRecordingHandler())
	err := c.Connect(context.Background(), Params{
		Endpoint:    "ws://localhost:7502/",
		Auth:        AuthQuery,
		Credentials: Credentials{Token: token, ClientID: "c1"},
	})
	require.Error(t, err)
	waitDone(t, c)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), Fingerprint(token))
	assertNoToken(t, err.Error())

	var reasons, messages int
	for _, e := range rec.Events() {
		if e.StateChange != nil && e.StateChange.NewState == StateFailed.String() {
			reasons++
			assertNoToken(t, e.StateChange.Reason)
		}
		if e.Error != nil {
			messages++
			assertNoToken(t, e.Error.Message)
		}
	}
	assert.Equal(t, 1, reasons)
	assert.Equal(t, 1, messages)
}

func TestConnectionNhooyrDialErrorHidesQueryToken(t *testing.T) {
	srv, url := newWSServer(t, echo)
	srv.Close()

	rec := &eventRecorder{}
	cfg := testConfig()
	cfg.Dialer = &NhooyrDialer{}
	cfg.ProtocolLogger = rec
	c := NewConnection(cfg, newRecordingHandler())
	err := c.Connect(context.Background(), Params{
		Endpoint:    url,
		Auth:        AuthQuery,
		Credentials: Credentials{Token: "s3cret value", ClientID: "c1"},
	})
	require.Error(t, err)
	waitDone(t, c)

	assertNoToken(t, err.Error())
	for _, e := range rec.Events() {
		if e.StateChange != nil {
			assertNoToken(t, e.StateChange.Reason)
		}
		if e.Error != nil {
			assertNoToken(t, e.Error.Message)
		}
	}
}

func assertNoToken(t *testing.T, s string) {
	t.Helper()
	for _, form := range []string{"s3cret value", "s3cret%20value", "s3cret+value"} {
		assert.NotContains(t, s, form)
	}
}

func TestConnectionGreetingPrecedesSends(t *testing.T) {
	got := make(chan string, 8)
	_, url := newWSServer(t, func(ws *websocket.Conn, _ *http.Request) {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			got <- string(data)
		}
	})

	c := NewConnection(testConfig(), nil)
	hello := []byte("hello")
	require.NoError(t, c.Connect(context.Background(), Params{Endpoint: url},
		Frame{Kind: FrameText, Data: hello}))
	hello[0] = 'j'
	require.NoError(t, c.Send(FrameText, []byte("first send")))

	for _, want := range []string{"hello", "first send"} {
		select {
		case frame := <-got:
			assert.Equal(t, want, frame)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
	require.NoError(t, c.Close())
	waitDone(t, c)
}

func TestConnectionSensitiveFrameLoggedBySize(t *testing.T) {
	_, url := newWSServer(t, func(ws *websocket.Conn, _ *http.Request) {
		ws.ReadMessage()
		ws.ReadMessage()
	})
	rec := &eventRecorder{}
	cfg := testConfig()
	cfg.ProtocolLogger = rec
	c := NewConnection(cfg, nil)
	require.NoError(t, c.Connect(context.Background(), Params{Endpoint: url},
		Frame{Kind: FrameText, Data: []byte("token-bearing"), Sensitive: true}))
	require.NoError(t, c.Send(FrameText, []byte("plain")))
	require.NoError(t, c.Close())
	waitDone(t, c)

	var frames []*plog.FrameEvent
	for _, e := range rec.Events() {
		if e.Frame != nil && e.Direction == plog.DirectionOut {
			frames = append(frames, e.Frame)
		}
	}
	require.Len(t, frames, 2)
	assert.True(t, frames[0].Redacted)
	assert.Nil(t, frames[0].Data)
	assert.Equal(t, len("token-bearing"), frames[0].Size)
	assert.False(t, frames[1].Redacted)
	assert.Equal(t, []byte("plain"), frames[1].Data)
}

func TestIsNormalClose(t *testing.T) {
	assert.True(t, IsNormalClose(&CloseError{Code: CloseNormalClosure}))
	assert.True(t, IsNormalClose(fmt.Errorf("read: %w", &CloseError{Code: CloseGoingAway})))
	assert.False(t, IsNormalClose(&CloseError{Code: websocket.CloseInternalServerErr}))
	assert.False(t, IsNormalClose(errors.New("reset")))
}
