package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/zhycit/postoffice-go/pkg/session"
	"github.com/zhycit/postoffice-go/pkg/transport"
	"github.com/zhycit/postoffice-go/pkg/wire"
)

// ValidationError reports an invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks every setting and returns all problems joined.
func (c Config) Validate() error {
	var errs []error

	if c.Endpoint == "" {
		errs = append(errs, invalid("endpoint", "is required"))
	} else if _, err := transport.BuildURL(c.Endpoint, transport.AuthNone, transport.Credentials{}); err != nil {
		errs = append(errs, invalid("endpoint", "%v", err))
	}

	if _, err := transport.ParseAuthStrategy(c.Auth); err != nil {
		errs = append(errs, invalid("auth", "%v", err))
	}

	if _, err := wire.CodecByName(c.Codec); err != nil {
		errs = append(errs, invalid("codec", "%v", err))
	}

	if _, err := session.ParseHeartbeatMode(c.Heartbeat.Mode); err != nil {
		errs = append(errs, invalid("heartbeat.mode", "%v", err))
	}
	if c.Heartbeat.Interval < 0 {
		errs = append(errs, invalid("heartbeat.interval", "must not be negative"))
	}

	switch c.Transport.Dialer {
	case "", DialerGorilla, DialerNhooyr:
	default:
		errs = append(errs, invalid("transport.dialer", "unknown dialer %q", c.Transport.Dialer))
	}
	if c.Transport.SendQueueSize < 0 {
		errs = append(errs, invalid("transport.send_queue_size", "must not be negative"))
	}
	if c.Transport.PingInterval < 0 || c.Transport.PongTimeout < 0 {
		errs = append(errs, invalid("transport.ping_interval", "must not be negative"))
	}

	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, invalid("tls", "cert_file and key_file must be set together"))
	}

	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter >= 1 {
		errs = append(errs, invalid("reconnect.jitter", "must be in [0, 1)"))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, invalid("log.level", "%v", err))
	}

	return errors.Join(errs...)
}

// SlogLevel parses Level ("debug", "info", "warn", "error").
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}
