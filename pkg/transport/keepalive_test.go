package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultKeepAliveConfig(t *testing.T) {
	cfg := DefaultKeepAliveConfig()

	if !cfg.Enabled() {
		t.Error("default config should be enabled")
	}
	if got := cfg.DetectionDelay(); got != 95*time.Second {
		t.Errorf("DetectionDelay: got %v, want 95s", got)
	}
	if (KeepAliveConfig{}).Enabled() {
		t.Error("zero config should be disabled")
	}
}

func TestKeepAliveTimeoutAfterMissedPongs(t *testing.T) {
	var pings atomic.Int32
	timedOut := make(chan struct{})

	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   5 * time.Millisecond,
		PongTimeout:    5 * time.Millisecond,
		MaxMissedPongs: 3,
	}, func(ctx context.Context) error {
		pings.Add(1)
		return errors.New("no pong")
	}, func() { close(timedOut) })

	ka.Start(context.Background())
	defer ka.Stop()

	select {
	case <-timedOut:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout callback not called")
	}
	if got := pings.Load(); got != 3 {
		t.Errorf("pings: got %d, want 3", got)
	}
	if got := ka.Stats().MissedPongs; got != 3 {
		t.Errorf("MissedPongs: got %d, want 3", got)
	}
}

func TestKeepAlivePongResetsMissed(t *testing.T) {
	var calls atomic.Int32
	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   5 * time.Millisecond,
		MaxMissedPongs: 2,
	}, func(ctx context.Context) error {
		// Alternate failure and success; never two failures in a row.
		if calls.Add(1)%2 == 1 {
			return errors.New("lost")
		}
		return nil
	}, func() { t.Error("unexpected timeout") })

	ka.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	ka.Stop()

	stats := ka.Stats()
	if stats.PingsSent < 2 {
		t.Errorf("PingsSent: got %d, want >= 2", stats.PingsSent)
	}
	if stats.LastPongTime.IsZero() {
		t.Error("LastPongTime not recorded")
	}
}

func TestKeepAliveStartStop(t *testing.T) {
	ka := NewKeepAlive(KeepAliveConfig{PingInterval: time.Hour}, func(context.Context) error { return nil }, nil)

	ka.Start(context.Background())
	ka.Start(context.Background())
	if !ka.IsRunning() {
		t.Error("expected running")
	}
	ka.Stop()
	ka.Stop()
	if ka.IsRunning() {
		t.Error("expected stopped")
	}

	disabled := NewKeepAlive(KeepAliveConfig{}, func(context.Context) error { return nil }, nil)
	disabled.Start(context.Background())
	if disabled.IsRunning() {
		t.Error("disabled keep-alive should not start")
	}
}
