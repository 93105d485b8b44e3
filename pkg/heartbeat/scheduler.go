package heartbeat

import (
	"errors"
	"sync"
	"time"
)

// Errors.
var (
	ErrAlreadyRunning  = errors.New("heartbeat already running")
	ErrInvalidInterval = errors.New("heartbeat interval must be positive")
)

// SendFunc transmits one payload.
type SendFunc func(payload []byte) error

// PayloadFunc produces the payload for the next tick. Returning an error
// skips the tick.
type PayloadFunc func() ([]byte, error)

// Stats contains scheduler statistics.
type Stats struct {
	Sent     uint64
	Failed   uint64
	LastSent time.Time
	LastErr  error
}

// Scheduler emits heartbeats. The zero value is not usable; use New.
type Scheduler struct {
	send    SendFunc
	clock   Clock
	onError func(error)

	mu      sync.Mutex
	running bool
	gen     uint64
	timer   Timer
	payload PayloadFunc
	period  time.Duration
	stats   Stats

	// sendMu is held for the duration of a send so Stop can wait it out.
	sendMu sync.Mutex
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithErrorHandler receives payload and send errors. It is called from the
// tick goroutine and must not call Stop.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Scheduler) { s.onError = fn }
}

// New creates a stopped scheduler that delivers payloads through send.
func New(send SendFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		send:  send,
		clock: RealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start emits the first payload immediately and then every interval.
func (s *Scheduler) Start(interval time.Duration, payload PayloadFunc) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.gen++
	s.period = interval
	s.payload = payload
	s.armLocked(0)
	return nil
}

// Stop cancels future ticks and waits for an in-flight send to finish.
// It is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	// A tick that already passed its running check holds sendMu.
	s.sendMu.Lock()
	s.sendMu.Unlock()
}

// Running reports whether the scheduler is started.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Interval returns the current interval, or zero when stopped.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return 0
	}
	return s.period
}

// Stats returns a snapshot of the scheduler statistics.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Scheduler) armLocked(d time.Duration) {
	gen := s.gen
	s.timer = s.clock.AfterFunc(d, func() { s.tick(gen) })
}

func (s *Scheduler) tick(gen uint64) {
	s.mu.Lock()
	if !s.running || s.gen != gen {
		s.mu.Unlock()
		return
	}
	payload := s.payload
	s.mu.Unlock()

	data, err := payload()
	if err == nil {
		err = s.sendIfCurrent(gen, data)
	}

	s.mu.Lock()
	if err != nil && !errors.Is(err, errStale) {
		s.stats.Failed++
		s.stats.LastErr = err
	}
	if s.running && s.gen == gen {
		s.armLocked(s.period)
	}
	onError := s.onError
	s.mu.Unlock()

	if err != nil && !errors.Is(err, errStale) && onError != nil {
		onError(err)
	}
}

var errStale = errors.New("stale tick")

// sendIfCurrent sends data unless Stop ran since the tick began.
func (s *Scheduler) sendIfCurrent(gen uint64, data []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	current := s.running && s.gen == gen
	s.mu.Unlock()
	if !current {
		return errStale
	}

	if err := s.send(data); err != nil {
		return err
	}

	s.mu.Lock()
	s.stats.Sent++
	s.stats.LastSent = s.clock.Now()
	s.mu.Unlock()
	return nil
}
