package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/mock"

	plog "github.com/zhycit/postoffice-go/pkg/log"
)

// recordingHandler records every notification in delivery order.
type recordingHandler struct {
	mu          sync.Mutex
	transitions [][2]State
	messages    []string
	errs        []error

	msgCh     chan string
	onMessage func(kind FrameType, data []byte)
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{msgCh: make(chan string, 256)}
}

func (h *recordingHandler) OnMessage(kind FrameType, data []byte) {
	h.mu.Lock()
	h.messages = append(h.messages, string(data))
	fn := h.onMessage
	h.mu.Unlock()
	h.msgCh <- string(data)
	if fn != nil {
		fn(kind, data)
	}
}

func (h *recordingHandler) OnStateChange(oldState, newState State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transitions = append(h.transitions, [2]State{oldState, newState})
}

func (h *recordingHandler) OnError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func (h *recordingHandler) Transitions() [][2]State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][2]State(nil), h.transitions...)
}

func (h *recordingHandler) Errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

func (h *recordingHandler) waitMessage(t *testing.T) string {
	t.Helper()
	select {
	case m := <-h.msgCh:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return ""
	}
}

func waitDone(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("connection did not reach Closed, state %s", c.State())
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// newWSServer starts a test server running serve for every WebSocket.
func newWSServer(t *testing.T, serve func(ws *websocket.Conn, r *http.Request)) (*httptest.Server, string) {
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
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
}

// echo returns every data frame to the sender until the socket closes.
func echo(ws *websocket.Conn, _ *http.Request) {
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

func testConfig() ConnectionConfig {
	cfg := DefaultConnectionConfig()
	cfg.KeepAlive = KeepAliveConfig{}
	cfg.ConnectTimeout = 5 * time.Second
	return cfg
}

// mockDialer is a testify mock of Dialer.
type mockDialer struct {
	mock.Mock
}

func (m *mockDialer) Dial(ctx context.Context, rawURL string, header http.Header) (Conn, error) {
	args := m.Called(ctx, rawURL, header)
	conn, _ := args.Get(0).(Conn)
	return conn, args.Error(1)
}

// blockingDialer blocks until the dial context is cancelled.
type blockingDialer struct {
	started chan struct{}
}

func (d *blockingDialer) Dial(ctx context.Context, _ string, _ http.Header) (Conn, error) {
	close(d.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

// stallConn is a Conn whose writes block until released.
type stallConn struct {
	release chan struct{}
	closed  chan struct{}
	once    sync.Once

	mu     sync.Mutex
	writes int
}

func newStallConn() *stallConn {
	return &stallConn{release: make(chan struct{}), closed: make(chan struct{})}
}

func (s *stallConn) ReadFrame(ctx context.Context) (FrameType, []byte, error) {
	<-s.closed
	return 0, nil, ErrConnectionClosed
}

func (s *stallConn) WriteFrame(ctx context.Context, _ FrameType, _ []byte) error {
	select {
	case <-s.release:
	case <-s.closed:
		return ErrConnectionClosed
	}
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return nil
}

func (s *stallConn) Ping(ctx context.Context) error { return nil }

func (s *stallConn) Close(int, string) error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *stallConn) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// eventRecorder is a protocol logger that keeps every event.
type eventRecorder struct {
	mu     sync.Mutex
	events []plog.Event
}

func (r *eventRecorder) Log(e plog.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) Events() []plog.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]plog.Event(nil), r.events...)
}
