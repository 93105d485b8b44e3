package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	plog "github.com/zhycit/postoffice-go/pkg/log"
)

// Connection defaults.
const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultSendQueueSize  = 64
)

// ConnectionConfig configures a Connection.
type ConnectionConfig struct {
	// Dialer opens the WebSocket (default: NewGorillaDialer()).
	Dialer Dialer

	// ConnectTimeout bounds the dial (default: 30s).
	ConnectTimeout time.Duration

	// WriteTimeout bounds each frame write (default: 10s).
	WriteTimeout time.Duration

	// SendQueueSize is the capacity of the outbound queue (default: 64).
	SendQueueSize int

	// KeepAlive configures WebSocket pings. Zero value disables them.
	KeepAlive KeepAliveConfig

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives frame and state events (optional).
	ProtocolLogger plog.Logger
}

// DefaultConnectionConfig returns the default connection configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		Dialer:         NewGorillaDialer(),
		ConnectTimeout: DefaultConnectTimeout,
		WriteTimeout:   DefaultWriteTimeout,
		SendQueueSize:  DefaultSendQueueSize,
		KeepAlive:      DefaultKeepAliveConfig(),
	}
}

// Frame is a data frame queued by Connect ahead of any application
// traffic, such as an in-band login.
type Frame struct {
	Kind FrameType
	Data []byte

	// Sensitive frames carry credentials; the protocol log records only
	// their size.
	Sensitive bool
}

// Connection is one WebSocket session lifecycle: Idle to Closed.
type Connection struct {
	config  ConnectionConfig
	handler ConnectionHandler
	id      string
	plog    plog.Logger

	mu             sync.Mutex
	state          State
	endpoint       string
	conn           Conn
	outbox         chan Frame
	cancelDial     context.CancelFunc
	closeRequested bool
	cancel         context.CancelFunc
	keepAlive      *KeepAlive

	events *eventQueue
}

// NewConnection creates a connection in state Idle. handler may be nil.
func NewConnection(config ConnectionConfig, handler ConnectionHandler) *Connection {
	if config.Dialer == nil {
		config.Dialer = NewGorillaDialer()
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.SendQueueSize <= 0 {
		config.SendQueueSize = DefaultSendQueueSize
	}

	return &Connection{
		config:  config,
		handler: handler,
		id:      uuid.NewString(),
		plog:    plog.OrNoop(config.ProtocolLogger),
		state:   StateIdle,
		events:  newEventQueue(),
	}
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() string {
	return c.id
}

// State returns the current connection state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the connection reached Closed and every
// notification has been delivered to the handler. It never closes for a
// connection that was not started.
func (c *Connection) Done() <-chan struct{} {
	return c.events.done
}

// Connect dials params.Endpoint. It blocks only for the dial.
//
// The greeting frames are queued before the state becomes Open, so they
// are written before anything passed to Send.
//
// On success the state is Open. On dial failure the connection moves
// Connecting → Failed → Closed, the handler receives one *TransportError,
// and the same error is returned. If Close is called while dialing, the
// attempt ends Connecting → Closing → Closed and ErrConnectionClosed is
// returned.
func (c *Connection) Connect(ctx context.Context, params Params, greeting ...Frame) error {
	rawURL, err := params.URL()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	dialCtx, cancelDial := context.WithTimeout(ctx, c.config.ConnectTimeout)
	c.cancelDial = cancelDial
	c.endpoint = RedactURL(rawURL)
	c.setStateLocked(StateConnecting, "connect")
	c.mu.Unlock()

	go c.events.run()

	c.debugLog("dialing", "endpoint", c.endpoint, "auth", string(params.Auth))
	conn, err := c.config.Dialer.Dial(dialCtx, rawURL, params.Header())
	cancelDial()
	if err != nil {
		// Dial errors may quote the URL, query token included.
		err = redactError(err, params.Credentials.Token)
	}

	c.mu.Lock()
	c.cancelDial = nil

	if c.closeRequested {
		c.setStateLocked(StateClosing, "closed while connecting")
		c.setStateLocked(StateClosed, "")
		c.mu.Unlock()
		if conn != nil {
			conn.Close(CloseNormalClosure, "")
		}
		return ErrConnectionClosed
	}

	if err != nil {
		terr := &TransportError{Op: "dial", Err: err}
		c.setStateLocked(StateFailed, err.Error())
		c.emitErrorLocked(terr)
		c.setStateLocked(StateClosed, "")
		c.mu.Unlock()
		c.debugLog("dial failed", "endpoint", c.endpoint, "error", err)
		return terr
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = cancel
	c.outbox = make(chan Frame, c.config.SendQueueSize+len(greeting))
	for _, f := range greeting {
		f.Data = append([]byte(nil), f.Data...)
		c.outbox <- f
	}
	c.setStateLocked(StateOpen, "")

	go c.readLoop(runCtx, conn)
	go c.writeLoop(runCtx, conn, c.outbox)

	if c.config.KeepAlive.Enabled() {
		c.keepAlive = NewKeepAlive(c.config.KeepAlive, conn.Ping, func() {
			c.fail(&TransportError{Op: "keepalive", Err: ErrKeepAliveTimeout})
		})
		c.keepAlive.Start(runCtx)
	}
	c.mu.Unlock()

	c.debugLog("connected", "endpoint", c.endpoint, "conn_id", c.id)
	return nil
}

// Send queues a data frame. It only succeeds in state Open; otherwise it
// returns ErrNotConnected without touching the transport. Delivery is
// fire-and-forget: write failures surface through OnError.
func (c *Connection) Send(kind FrameType, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		return ErrNotConnected
	}
	frame := Frame{Kind: kind, Data: append([]byte(nil), data...)}
	select {
	case c.outbox <- frame:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close gracefully closes the connection: queued frames are flushed, then
// a normal-closure close frame is sent. Close does not wait for Closed;
// use Done for that. It is a no-op in Idle, Closing and Closed.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateConnecting:
		c.closeRequested = true
		if c.cancelDial != nil {
			c.cancelDial()
		}
	case StateOpen:
		c.setStateLocked(StateClosing, "local close")
		close(c.outbox)
	}
	return nil
}

// Post runs fn on the dispatcher goroutine after every notification
// queued so far. It returns false if the connection already reached Closed
// or was never started.
func (c *Connection) Post(fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle || c.state.Terminal() {
		return false
	}
	return c.events.push(fn)
}

// fail ends an open connection after a transport error.
func (c *Connection) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		return
	}
	c.debugLog("transport failure", "conn_id", c.id, "error", err)
	c.setStateLocked(StateFailed, err.Error())
	c.emitErrorLocked(err)
	close(c.outbox)
}

// peerClosed records the peer's close frame, if err carries one, and
// starts the closing path for a normal closure. It reports whether err was
// handled; anything else is a transport failure.
func (c *Connection) peerClosed(err error) bool {
	var ce *CloseError
	if !errors.As(err, &ce) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	code := ce.Code
	c.plog.Log(c.event(plog.DirectionIn, plog.CategoryControl, func(ev *plog.Event) {
		ev.Control = &plog.ControlEvent{Type: plog.ControlClose, CloseCode: &code, CloseReason: ce.Reason}
	}))
	if !IsNormalClose(err) {
		return false
	}
	if c.state == StateOpen {
		c.setStateLocked(StateClosing, ce.Error())
		close(c.outbox)
	}
	return true
}

func (c *Connection) readLoop(ctx context.Context, conn Conn) {
	for {
		kind, data, err := conn.ReadFrame(ctx)
		if err != nil {
			if !c.peerClosed(err) {
				c.fail(&TransportError{Op: "read", Err: err})
			}
			return
		}

		c.plog.Log(c.event(plog.DirectionIn, plog.CategoryMessage, func(ev *plog.Event) {
			ev.Frame = plog.NewFrameEvent(kind == FrameBinary, data)
		}))

		c.mu.Lock()
		if c.state == StateOpen && c.handler != nil {
			h := c.handler
			c.events.push(func() { h.OnMessage(kind, data) })
		}
		c.mu.Unlock()
	}
}

// writeLoop drains the outbox until it is closed, then shuts the
// transport down and moves the connection to Closed.
func (c *Connection) writeLoop(ctx context.Context, conn Conn, outbox <-chan Frame) {
	var writeErr error
	for frame := range outbox {
		if writeErr != nil {
			continue
		}
		wctx, cancel := context.WithTimeout(ctx, c.config.WriteTimeout)
		writeErr = conn.WriteFrame(wctx, frame.Kind, frame.Data)
		cancel()
		if writeErr != nil {
			c.fail(&TransportError{Op: "write", Err: writeErr})
			continue
		}
		c.plog.Log(c.event(plog.DirectionOut, plog.CategoryMessage, func(ev *plog.Event) {
			binary := frame.Kind == FrameBinary
			if frame.Sensitive {
				ev.Frame = plog.NewRedactedFrameEvent(binary, len(frame.Data))
			} else {
				ev.Frame = plog.NewFrameEvent(binary, frame.Data)
			}
		}))
	}

	c.mu.Lock()
	failed := c.state == StateFailed
	if c.keepAlive != nil {
		c.keepAlive.Stop()
	}
	c.mu.Unlock()

	if !failed {
		code := CloseNormalClosure
		c.plog.Log(c.event(plog.DirectionOut, plog.CategoryControl, func(ev *plog.Event) {
			ev.Control = &plog.ControlEvent{Type: plog.ControlClose, CloseCode: &code}
		}))
	}
	if err := conn.Close(CloseNormalClosure, ""); err != nil {
		c.debugLog("close transport", "conn_id", c.id, "error", err)
	}
	c.cancel()

	c.mu.Lock()
	c.setStateLocked(StateClosed, "")
	c.mu.Unlock()
}

// setStateLocked records a transition and queues the notification.
// Reaching Closed closes the notification queue.
func (c *Connection) setStateLocked(next State, reason string) {
	prev := c.state
	c.state = next

	c.plog.Log(c.event(plog.DirectionOut, plog.CategoryState, func(ev *plog.Event) {
		ev.StateChange = &plog.StateChangeEvent{
			Entity:   plog.StateEntityConnection,
			OldState: prev.String(),
			NewState: next.String(),
			Reason:   reason,
		}
	}))

	if c.handler != nil {
		h := c.handler
		c.events.push(func() { h.OnStateChange(prev, next) })
	}
	if next == StateClosed {
		c.events.close()
	}
}

func (c *Connection) emitErrorLocked(err error) {
	c.plog.Log(c.event(plog.DirectionIn, plog.CategoryError, func(ev *plog.Event) {
		ev.Error = &plog.ErrorEventData{Layer: plog.LayerTransport, Message: err.Error()}
	}))
	if c.handler != nil {
		h := c.handler
		c.events.push(func() { h.OnError(err) })
	}
}

func (c *Connection) event(dir plog.Direction, cat plog.Category, fill func(*plog.Event)) plog.Event {
	ev := plog.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        plog.LayerTransport,
		Category:     cat,
		Endpoint:     c.endpoint,
	}
	fill(&ev)
	return ev
}

func (c *Connection) debugLog(msg string, args ...any) {
	if c.config.Logger != nil {
		c.config.Logger.Debug(msg, args...)
	}
}

// String describes the connection for diagnostics.
func (c *Connection) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("connection %s %s %s", c.id, c.state, c.endpoint)
}
