package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	plog "github.com/zhycit/postoffice-go/pkg/log"
	"github.com/zhycit/postoffice-go/pkg/session"
	"github.com/zhycit/postoffice-go/pkg/wire"
)

// Manager errors.
var (
	ErrManagerClosed  = errors.New("reconnect manager closed")
	ErrAlreadyStarted = errors.New("reconnect manager already started")
	ErrNotConnected   = errors.New("not connected")
)

// DefaultAttemptTimeout bounds a single Open call.
const DefaultAttemptTimeout = 30 * time.Second

// State represents the manager state.
type State uint8

const (
	// StateDisconnected indicates no active session and no pending attempt.
	StateDisconnected State = iota

	// StateConnecting indicates the first attempt is in progress.
	StateConnecting

	// StateConnected indicates an open session.
	StateConnected

	// StateReconnecting indicates the manager is waiting out a backoff
	// delay or retrying after a lost session.
	StateReconnecting

	// StateClosed indicates the manager has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Factory builds a fresh, unopened session client. Callbacks the caller
// wants on every session are registered here.
type Factory func() (*session.Client, error)

// Config configures a Manager.
type Config struct {
	Backoff BackoffConfig

	// AttemptTimeout bounds each Open call.
	AttemptTimeout time.Duration

	Logger         *slog.Logger
	ProtocolLogger plog.Logger
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		Backoff:        DefaultBackoffConfig(),
		AttemptTimeout: DefaultAttemptTimeout,
	}
}

// Manager keeps a session open, replacing it after every loss.
type Manager struct {
	mu sync.RWMutex

	state         State
	factory       Factory
	backoff       *backoff.ExponentialBackOff
	autoReconnect bool
	timeout       time.Duration
	logger        *slog.Logger
	plog          plog.Logger

	current  *session.Client
	attempts int
	err      error

	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
	wg        sync.WaitGroup
	done      chan struct{}
	closeDone sync.Once

	onStateChange  func(oldState, newState State)
	onConnected    func(*session.Client)
	onDisconnected func()
	onReconnecting func(attempt int, delay time.Duration)
}

// NewManager creates a reconnect manager. Nothing happens until Start.
func NewManager(factory Factory, cfg Config) *Manager {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		state:         StateDisconnected,
		factory:       factory,
		backoff:       NewBackoff(cfg.Backoff),
		autoReconnect: true,
		timeout:       cfg.AttemptTimeout,
		logger:        cfg.Logger,
		plog:          plog.OrNoop(cfg.ProtocolLogger),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
}

// State returns the current manager state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected returns true if a session is open.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Client returns the open session, or nil.
func (m *Manager) Client() *session.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Err returns the factory error that stopped the loop, if any.
func (m *Manager) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Done is closed once the reconnect loop has exited.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Attempts returns the number of failed attempts since the last open session.
func (m *Manager) Attempts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempts
}

// SetAutoReconnect enables or disables reconnection. With reconnection
// disabled the loop ends after the first lost session or failed attempt.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoReconnect = enabled
}

// Send forwards env to the open session.
func (m *Manager) Send(env wire.Envelope) error {
	c := m.Client()
	if c == nil {
		return ErrNotConnected
	}
	return c.SendEnvelope(env)
}

// Start launches the reconnect loop.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed {
		return ErrManagerClosed
	}
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true

	m.wg.Add(1)
	go m.run()
	return nil
}

// Close closes the current session and stops the loop. It blocks until
// the loop has exited.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	oldState := m.state
	m.state = StateClosed
	started := m.started
	m.mu.Unlock()

	m.notifyState(oldState, StateClosed)
	m.cancel()
	m.wg.Wait()
	if !started {
		m.closeDone.Do(func() { close(m.done) })
	}
}

func (m *Manager) run() {
	defer m.wg.Done()
	defer m.closeDone.Do(func() { close(m.done) })

	next := StateConnecting
	for {
		if !m.setState(next) {
			return
		}
		next = StateReconnecting

		client, err := m.factory()
		if err != nil {
			m.debugLog("session factory failed", "error", err)
			m.mu.Lock()
			m.err = err
			m.mu.Unlock()
			m.setState(StateDisconnected)
			return
		}

		if m.open(client) {
			m.wait(client)
		}
		if m.ctx.Err() != nil {
			return
		}

		m.mu.RLock()
		auto := m.autoReconnect
		m.mu.RUnlock()
		if !auto {
			m.setState(StateDisconnected)
			return
		}

		if !m.delay() {
			return
		}
	}
}

// open opens client and reports whether it reached the open state.
func (m *Manager) open(client *session.Client) bool {
	ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
	err := client.Open(ctx)
	cancel()
	if err != nil {
		m.debugLog("reconnect attempt failed", "error", err)
		return false
	}

	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		client.Close()
		return false
	}
	m.current = client
	m.attempts = 0
	m.backoff.Reset()
	m.mu.Unlock()

	m.setState(StateConnected)

	m.mu.RLock()
	fn := m.onConnected
	m.mu.RUnlock()
	if fn != nil {
		fn(client)
	}
	return true
}

// wait blocks until client closes or the manager is closed.
func (m *Manager) wait(client *session.Client) {
	select {
	case <-client.Done():
	case <-m.ctx.Done():
		client.Close()
		<-client.Done()
	}

	m.mu.Lock()
	m.current = nil
	fn := m.onDisconnected
	m.mu.Unlock()

	if m.ctx.Err() == nil && fn != nil {
		fn()
	}
}

// delay waits out the next backoff interval. It returns false if the
// manager was closed meanwhile.
func (m *Manager) delay() bool {
	m.mu.Lock()
	d := m.backoff.NextBackOff()
	m.attempts++
	attempt := m.attempts
	fn := m.onReconnecting
	m.mu.Unlock()

	if !m.setState(StateReconnecting) {
		return false
	}
	m.debugLog("reconnecting", "attempt", attempt, "delay", d)
	if fn != nil {
		fn(attempt, d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-m.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// setState moves to next unless the manager is closed.
func (m *Manager) setState(next State) bool {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return false
	}
	oldState := m.state
	m.state = next
	m.mu.Unlock()

	if oldState != next {
		m.notifyState(oldState, next)
	}
	return true
}

func (m *Manager) notifyState(oldState, newState State) {
	var connID string
	if c := m.Client(); c != nil {
		connID = c.ConnectionID()
	}
	m.plog.Log(plog.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    plog.DirectionOut,
		Layer:        plog.LayerSession,
		Category:     plog.CategoryState,
		StateChange: &plog.StateChangeEvent{
			Entity:   plog.StateEntityReconnect,
			OldState: oldState.String(),
			NewState: newState.String(),
		},
	})

	m.mu.RLock()
	fn := m.onStateChange
	m.mu.RUnlock()
	if fn != nil {
		fn(oldState, newState)
	}
}

// OnStateChange sets a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnConnected sets a callback for every session that reaches the open state.
func (m *Manager) OnConnected(fn func(*session.Client)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = fn
}

// OnDisconnected sets a callback for lost sessions.
func (m *Manager) OnDisconnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnected = fn
}

// OnReconnecting sets a callback invoked before each backoff delay.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnecting = fn
}

func (m *Manager) debugLog(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}
