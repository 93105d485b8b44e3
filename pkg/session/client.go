package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhycit/postoffice-go/pkg/heartbeat"
	plog "github.com/zhycit/postoffice-go/pkg/log"
	"github.com/zhycit/postoffice-go/pkg/transport"
	"github.com/zhycit/postoffice-go/pkg/wire"
)

// ErrClosed is returned by Open after Close.
var ErrClosed = errors.New("session closed")

// Option configures a Client.
type Option func(*Client)

// WithClock drives the heartbeat from the given clock.
func WithClock(clock heartbeat.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithDialer replaces the transport dialer.
func WithDialer(d transport.Dialer) Option {
	return func(c *Client) { c.cfg.Connection.Dialer = d }
}

// Client is one post office session.
type Client struct {
	cfg      Config
	clientID string
	codec    wire.Codec
	logger   *slog.Logger
	plog     plog.Logger
	clock    heartbeat.Clock

	conn *transport.Connection
	hb   *heartbeat.Scheduler

	mu        sync.Mutex
	onMessage func(wire.Envelope)
	onOpen    func()
	onClose   func()
	onError   func(error)
	closing   bool
}

// New creates a session client. The connection is not opened until Open.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	if cfg.Codec == nil {
		cfg.Codec = wire.JSON
	}
	if cfg.Heartbeat.Mode == "" {
		cfg.Heartbeat.Mode = HeartbeatEnvelope
	}
	if cfg.Params.Credentials.ClientID == "" {
		cfg.Params.Credentials.ClientID = "client-" + uuid.NewString()
	}
	if cfg.Connection.Logger == nil {
		cfg.Connection.Logger = cfg.Logger
	}
	if cfg.Connection.ProtocolLogger == nil {
		cfg.Connection.ProtocolLogger = cfg.ProtocolLogger
	}

	c := &Client{
		cfg:      cfg,
		clientID: cfg.Params.Credentials.ClientID,
		codec:    cfg.Codec,
		logger:   cfg.Logger,
		plog:     plog.OrNoop(cfg.ProtocolLogger),
		clock:    heartbeat.RealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.conn = transport.NewConnection(c.cfg.Connection, (*connHandler)(c))
	c.hb = heartbeat.New(c.sendHeartbeat,
		heartbeat.WithClock(c.clock),
		heartbeat.WithErrorHandler(c.heartbeatError),
	)
	return c, nil
}

// ClientID returns the identifier the session presents to the server.
func (c *Client) ClientID() string {
	return c.clientID
}

// State returns the connection state.
func (c *Client) State() transport.State {
	return c.conn.State()
}

// ConnectionID returns the transport connection identifier.
func (c *Client) ConnectionID() string {
	return c.conn.ID()
}

// Done is closed after the final notification (OnClose) was delivered.
func (c *Client) Done() <-chan struct{} {
	return c.conn.Done()
}

// HeartbeatStats returns heartbeat statistics.
func (c *Client) HeartbeatStats() heartbeat.Stats {
	return c.hb.Stats()
}

// OnMessage registers the handler for decoded inbound envelopes.
func (c *Client) OnMessage(fn func(wire.Envelope)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

// OnOpen registers the handler called once the connection is open.
func (c *Client) OnOpen(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOpen = fn
}

// OnClose registers the handler called once the connection is closed.
func (c *Client) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

// OnError registers the handler for transport, decode and heartbeat errors.
func (c *Client) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// Open connects to the server. Under the handshake strategy the login
// envelope is queued ahead of any envelope sent after Open returns. The
// heartbeat starts asynchronously once the connection is open.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	closing := c.closing
	c.mu.Unlock()
	if closing {
		return ErrClosed
	}
	c.debugLog("opening session", "client_id", c.clientID, "credentials", c.cfg.Params.Credentials.String())

	if c.cfg.Params.Auth != transport.AuthHandshake {
		return c.conn.Connect(ctx, c.cfg.Params)
	}

	login := c.controlEnvelope(wire.TypeLogin, c.cfg.Params.Credentials.Token)
	data, err := c.codec.Encode(login)
	if err != nil {
		return fmt.Errorf("encode login: %w", err)
	}
	greeting := transport.Frame{Kind: c.frameType(), Data: data, Sensitive: true}
	if err := c.conn.Connect(ctx, c.cfg.Params, greeting); err != nil {
		return err
	}
	c.logControl(plog.ControlLogin)
	return nil
}

// SendEnvelope encodes env and queues it for sending.
func (c *Client) SendEnvelope(env wire.Envelope) error {
	data, err := c.codec.Encode(env)
	if err != nil {
		return err
	}
	if err := c.conn.Send(c.frameType(), data); err != nil {
		return err
	}
	c.logEnvelope(plog.DirectionOut, env)
	return nil
}

// Send builds an envelope from this client and sends it.
func (c *Client) Send(to, subject, content, typ string) error {
	env, err := wire.NewEnvelope(c.clientID, to, subject, content, typ)
	if err != nil {
		return err
	}
	return c.SendEnvelope(env)
}

// Close stops the heartbeat, sends a logout envelope under the handshake
// strategy and closes the connection. It is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.mu.Unlock()

	c.hb.Stop()

	if c.cfg.Params.Auth == transport.AuthHandshake && c.conn.State() == transport.StateOpen {
		if err := c.sendControl(wire.TypeLogout, "Logging out", plog.ControlLogout); err != nil {
			c.debugLog("logout not sent", "error", err)
		}
	}
	return c.conn.Close()
}

func (c *Client) frameType() transport.FrameType {
	if c.codec.Binary() {
		return transport.FrameBinary
	}
	return transport.FrameText
}

func (c *Client) controlEnvelope(typ, content string) wire.Envelope {
	return wire.Envelope{
		From:    c.clientID,
		To:      wire.ServerRecipient,
		Subject: typ,
		Content: content,
		Type:    typ,
	}
}

func (c *Client) sendControl(typ, content string, ctrl plog.ControlType) error {
	data, err := c.codec.Encode(c.controlEnvelope(typ, content))
	if err != nil {
		return err
	}
	if err := c.conn.Send(c.frameType(), data); err != nil {
		return err
	}
	c.logControl(ctrl)
	return nil
}

// heartbeatPayload returns the payload factory for the configured mode.
func (c *Client) heartbeatPayload() heartbeat.PayloadFunc {
	if c.cfg.Heartbeat.Mode == HeartbeatText {
		text := c.cfg.Heartbeat.Text
		if text == "" {
			text = DefaultPingText
		}
		return func() ([]byte, error) { return []byte(text), nil }
	}

	env := c.cfg.Heartbeat.Envelope
	if env == (wire.Envelope{}) {
		env = DefaultHeartbeatEnvelope(c.clientID)
	}
	if env.From == "" {
		env.From = c.clientID
	}
	return func() ([]byte, error) { return c.codec.Encode(env) }
}

func (c *Client) sendHeartbeat(payload []byte) error {
	kind := transport.FrameText
	if c.cfg.Heartbeat.Mode != HeartbeatText {
		kind = c.frameType()
	}
	if err := c.conn.Send(kind, payload); err != nil {
		return err
	}
	c.logControl(plog.ControlHeartbeat)
	return nil
}

// heartbeatError forwards heartbeat failures to OnError on the dispatcher.
// ErrNotConnected only means the connection is going away.
func (c *Client) heartbeatError(err error) {
	if errors.Is(err, transport.ErrNotConnected) {
		return
	}
	c.debugLog("heartbeat failed", "error", err)
	c.conn.Post(func() { c.emitError(err) })
}

func (c *Client) startHeartbeat() {
	if c.cfg.Heartbeat.Mode == HeartbeatOff {
		return
	}
	if err := c.hb.Start(c.cfg.Heartbeat.interval(), c.heartbeatPayload()); err != nil {
		c.emitError(fmt.Errorf("start heartbeat: %w", err))
	}
}

func (c *Client) emitError(err error) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// connHandler adapts Client to transport.ConnectionHandler without
// exporting the callback methods.
type connHandler Client

func (h *connHandler) OnStateChange(oldState, newState transport.State) {
	c := (*Client)(h)
	c.logState(oldState, newState)

	if oldState == transport.StateOpen {
		c.hb.Stop()
	}

	switch newState {
	case transport.StateOpen:
		c.startHeartbeat()

		c.mu.Lock()
		fn := c.onOpen
		c.mu.Unlock()
		if fn != nil {
			fn()
		}

	case transport.StateClosed:
		c.mu.Lock()
		fn := c.onClose
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
	}
}

func (h *connHandler) OnMessage(kind transport.FrameType, data []byte) {
	c := (*Client)(h)

	codec := wire.JSON
	if kind == transport.FrameBinary {
		codec = wire.CBOR
	} else if c.cfg.Schema != nil {
		if err := c.cfg.Schema.Validate(data); err != nil {
			c.logDecodeError(err)
			c.emitError(err)
			return
		}
	}

	env, err := codec.Decode(data)
	if err != nil {
		c.logDecodeError(err)
		c.emitError(err)
		return
	}
	c.logEnvelope(plog.DirectionIn, env)

	c.mu.Lock()
	fn := c.onMessage
	c.mu.Unlock()
	if fn != nil {
		fn(env)
	}
}

func (h *connHandler) OnError(err error) {
	(*Client)(h).emitError(err)
}

func (c *Client) event(dir plog.Direction, layer plog.Layer, cat plog.Category) plog.Event {
	return plog.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.conn.ID(),
		Direction:    dir,
		Layer:        layer,
		Category:     cat,
		ClientID:     c.clientID,
	}
}

func (c *Client) logEnvelope(dir plog.Direction, env wire.Envelope) {
	cat := plog.CategoryMessage
	if env.IsControl() {
		cat = plog.CategoryControl
	}
	ev := c.event(dir, plog.LayerWire, cat)
	ev.Envelope = &plog.EnvelopeEvent{
		From:        env.From,
		To:          env.To,
		Subject:     env.Subject,
		Type:        env.Type,
		ContentSize: len(env.Content),
	}
	c.plog.Log(ev)
}

func (c *Client) logControl(ctrl plog.ControlType) {
	ev := c.event(plog.DirectionOut, plog.LayerSession, plog.CategoryControl)
	ev.Control = &plog.ControlEvent{Type: ctrl}
	c.plog.Log(ev)
}

func (c *Client) logState(oldState, newState transport.State) {
	ev := c.event(plog.DirectionIn, plog.LayerSession, plog.CategoryState)
	ev.StateChange = &plog.StateChangeEvent{
		Entity:   plog.StateEntitySession,
		OldState: oldState.String(),
		NewState: newState.String(),
	}
	c.plog.Log(ev)
}

func (c *Client) logDecodeError(err error) {
	ev := c.event(plog.DirectionIn, plog.LayerWire, plog.CategoryError)
	ev.Error = &plog.ErrorEventData{Layer: plog.LayerWire, Message: err.Error(), Context: "decode"}
	var de *wire.DecodingError
	if errors.As(err, &de) {
		ev.Frame = plog.NewFrameEvent(false, de.Frame)
	}
	c.plog.Log(ev)
}

func (c *Client) debugLog(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
