package transport

import (
	"context"
	"sync"
	"time"
)

// Keep-alive constants.
const (
	// DefaultPingInterval is the default interval between pings.
	DefaultPingInterval = 30 * time.Second

	// DefaultPongTimeout is the default time to wait for a pong.
	DefaultPongTimeout = 5 * time.Second

	// DefaultMaxMissedPongs is the default number of missed pongs before
	// the connection is considered dead.
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig configures WebSocket ping/pong liveness checks.
// A zero PingInterval disables keep-alive.
type KeepAliveConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMissedPongs int
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// Enabled reports whether pings should be sent.
func (c KeepAliveConfig) Enabled() bool {
	return c.PingInterval > 0
}

// DetectionDelay is the longest time a dead peer can go unnoticed.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

// KeepAliveStats contains keep-alive statistics.
type KeepAliveStats struct {
	LastPingTime time.Time
	LastPongTime time.Time
	LastLatency  time.Duration
	MissedPongs  int
	PingsSent    uint64
}

// KeepAlive pings the peer periodically and reports a timeout after
// MaxMissedPongs consecutive failures.
type KeepAlive struct {
	config    KeepAliveConfig
	ping      func(ctx context.Context) error
	onTimeout func()

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	stats   KeepAliveStats
}

// NewKeepAlive creates a keep-alive monitor. Zero fields in config take
// their defaults, except PingInterval.
func NewKeepAlive(config KeepAliveConfig, ping func(ctx context.Context) error, onTimeout func()) *KeepAlive {
	if config.PongTimeout == 0 {
		config.PongTimeout = DefaultPongTimeout
	}
	if config.MaxMissedPongs == 0 {
		config.MaxMissedPongs = DefaultMaxMissedPongs
	}
	return &KeepAlive{
		config:    config,
		ping:      ping,
		onTimeout: onTimeout,
	}
}

// Start begins the ping loop. It is a no-op if already running or if
// keep-alive is disabled.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if ka.running || !ka.config.Enabled() {
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	go ka.loop(ctx, ka.stopCh)
}

// Stop ends the ping loop. Safe to call multiple times.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if !ka.running {
		return
	}
	ka.running = false
	close(ka.stopCh)
}

// IsRunning returns true if the ping loop is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// Stats returns current keep-alive statistics.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.stats
}

func (ka *KeepAlive) loop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(ka.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if !ka.tick(ctx, stopCh) {
				return
			}
		}
	}
}

// tick sends one ping and returns false once the peer is considered dead.
func (ka *KeepAlive) tick(ctx context.Context, stopCh chan struct{}) bool {
	pingCtx, cancel := context.WithTimeout(ctx, ka.config.PongTimeout)
	defer cancel()

	// Stop aborts an outstanding ping.
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-pingCtx.Done():
		}
	}()

	start := time.Now()
	ka.mu.Lock()
	ka.stats.LastPingTime = start
	ka.stats.PingsSent++
	ka.mu.Unlock()

	err := ka.ping(pingCtx)

	ka.mu.Lock()
	if !ka.running {
		ka.mu.Unlock()
		return false
	}
	if err == nil {
		now := time.Now()
		ka.stats.LastPongTime = now
		ka.stats.LastLatency = now.Sub(start)
		ka.stats.MissedPongs = 0
		ka.mu.Unlock()
		return true
	}
	ka.stats.MissedPongs++
	dead := ka.stats.MissedPongs >= ka.config.MaxMissedPongs
	ka.mu.Unlock()

	if dead && ka.onTimeout != nil {
		ka.onTimeout()
	}
	return !dead
}
