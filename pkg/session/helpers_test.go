package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhycit/postoffice-go/pkg/transport"
	"github.com/zhycit/postoffice-go/pkg/wire"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// frameLog collects frames received by a test server.
type frameLog struct {
	mu     sync.Mutex
	frames []string
	ch     chan string
}

func newFrameLog() *frameLog {
	return &frameLog{ch: make(chan string, 256)}
}

func (l *frameLog) add(s string) {
	l.mu.Lock()
	l.frames = append(l.frames, s)
	l.mu.Unlock()
	l.ch <- s
}

func (l *frameLog) Frames() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.frames...)
}

func (l *frameLog) next(t *testing.T) string {
	t.Helper()
	select {
	case f := <-l.ch:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
		return ""
	}
}

// startServer runs serve for every WebSocket and returns its ws:// URL.
func startServer(t *testing.T, serve func(ws *websocket.Conn, r *http.Request)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		serve(ws, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
}

// recordingServer logs every inbound frame and echoes nothing.
func recordingServer(log *frameLog) func(*websocket.Conn, *http.Request) {
	return func(ws *websocket.Conn, _ *http.Request) {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			log.add(string(data))
		}
	}
}

func echoServer(ws *websocket.Conn, _ *http.Request) {
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if err := ws.WriteMessage(mt, data); err != nil {
			return
		}
	}
}

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.Params.Endpoint = url
	cfg.Params.Credentials.ClientID = "c1"
	cfg.Heartbeat.Mode = HeartbeatOff
	cfg.Connection.KeepAlive = transport.KeepAliveConfig{}
	return cfg
}

// events records session callbacks in order.
type events struct {
	mu    sync.Mutex
	order []string
	msgs  []wire.Envelope
	errs  []error
	msgCh chan wire.Envelope
	errCh chan error
}

func watch(c *Client) *events {
	ev := &events{msgCh: make(chan wire.Envelope, 64), errCh: make(chan error, 64)}
	c.OnOpen(func() { ev.add("open") })
	c.OnClose(func() { ev.add("close") })
	c.OnMessage(func(env wire.Envelope) {
		ev.mu.Lock()
		ev.order = append(ev.order, "message")
		ev.msgs = append(ev.msgs, env)
		ev.mu.Unlock()
		ev.msgCh <- env
	})
	c.OnError(func(err error) {
		ev.mu.Lock()
		ev.order = append(ev.order, "error")
		ev.errs = append(ev.errs, err)
		ev.mu.Unlock()
		ev.errCh <- err
	})
	return ev
}

func (e *events) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.order = append(e.order, s)
}

func (e *events) Order() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

func (e *events) Errors() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.errs...)
}

func (e *events) nextMessage(t *testing.T) wire.Envelope {
	t.Helper()
	select {
	case env := <-e.msgCh:
		return env
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return wire.Envelope{}
	}
}

func (e *events) nextError(t *testing.T) error {
	t.Helper()
	select {
	case err := <-e.errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for error")
		return nil
	}
}

func waitClosed(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not close, state %s", c.State())
	}
}

func count(items []string, want string) int {
	n := 0
	for _, s := range items {
		if s == want {
			n++
		}
	}
	return n
}
