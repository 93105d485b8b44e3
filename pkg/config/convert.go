package config

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/zhycit/postoffice-go/pkg/connection"
	plog "github.com/zhycit/postoffice-go/pkg/log"
	"github.com/zhycit/postoffice-go/pkg/session"
	"github.com/zhycit/postoffice-go/pkg/transport"
	"github.com/zhycit/postoffice-go/pkg/wire"
)

// Session converts the settings into a session configuration. The
// loggers are attached as given.
func (c Config) Session(logger *slog.Logger, protocol plog.Logger) (session.Config, error) {
	if err := c.Validate(); err != nil {
		return session.Config{}, err
	}

	auth, _ := transport.ParseAuthStrategy(c.Auth)
	codec, _ := wire.CodecByName(c.Codec)
	mode, _ := session.ParseHeartbeatMode(c.Heartbeat.Mode)

	cfg := session.DefaultConfig()
	cfg.Params = transport.Params{
		Endpoint:    c.Endpoint,
		Auth:        auth,
		Credentials: transport.Credentials{Token: c.Token, ClientID: c.ClientID},
	}
	cfg.Codec = codec
	cfg.Heartbeat = session.HeartbeatConfig{
		Mode:     mode,
		Interval: c.Heartbeat.Interval,
		Text:     c.Heartbeat.Text,
		Envelope: wire.Envelope{
			To:      c.Heartbeat.To,
			Subject: c.Heartbeat.Subject,
			Content: c.Heartbeat.Content,
			Type:    c.Heartbeat.Type,
		},
	}
	if cfg.Heartbeat.Envelope != (wire.Envelope{}) {
		cfg.Heartbeat.Envelope = mergeEnvelope(cfg.Heartbeat.Envelope, session.DefaultHeartbeatEnvelope(c.ClientID))
	}

	if c.Schema != "" {
		schema, err := wire.LoadSchemaValidator(c.Schema)
		if err != nil {
			return session.Config{}, fmt.Errorf("load schema: %w", err)
		}
		cfg.Schema = schema
	}

	tlsConfig, err := c.tlsConfig()
	if err != nil {
		return session.Config{}, err
	}

	cfg.Connection = transport.ConnectionConfig{
		Dialer:         c.dialer(tlsConfig),
		ConnectTimeout: c.Transport.ConnectTimeout,
		WriteTimeout:   c.Transport.WriteTimeout,
		SendQueueSize:  c.Transport.SendQueueSize,
		KeepAlive: transport.KeepAliveConfig{
			PingInterval:   c.Transport.PingInterval,
			PongTimeout:    c.Transport.PongTimeout,
			MaxMissedPongs: c.Transport.MaxMissedPongs,
		},
	}
	cfg.Logger = logger
	cfg.ProtocolLogger = protocol
	return cfg, nil
}

// Backoff returns the reconnect delays.
func (c Config) Backoff() connection.BackoffConfig {
	return connection.BackoffConfig{
		Initial:    c.Reconnect.Initial,
		Max:        c.Reconnect.Max,
		Multiplier: c.Reconnect.Multiplier,
		Jitter:     c.Reconnect.Jitter,
	}
}

func (c Config) tlsConfig() (*tls.Config, error) {
	tc := transport.TLSConfig{
		CAFile:             c.TLS.CAFile,
		CertFile:           c.TLS.CertFile,
		KeyFile:            c.TLS.KeyFile,
		ServerName:         c.TLS.ServerName,
		InsecureSkipVerify: c.TLS.Insecure,
	}
	if tc.Empty() {
		return nil, nil
	}
	return transport.NewClientTLSConfig(tc)
}

func (c Config) dialer(tlsConfig *tls.Config) transport.Dialer {
	if c.Transport.Dialer == DialerNhooyr {
		return &transport.NhooyrDialer{
			HTTPClient: &http.Client{
				Transport: &http.Transport{
					Proxy:           http.ProxyFromEnvironment,
					TLSClientConfig: tlsConfig,
				},
			},
			ReadLimit: c.Transport.ReadLimit,
		}
	}

	d := transport.NewGorillaDialer()
	d.TLSConfig = tlsConfig
	if c.Transport.HandshakeTimeout > 0 {
		d.HandshakeTimeout = c.Transport.HandshakeTimeout
	}
	if c.Transport.CloseTimeout > 0 {
		d.CloseTimeout = c.Transport.CloseTimeout
	}
	if c.Transport.ReadLimit > 0 {
		d.ReadLimit = c.Transport.ReadLimit
	}
	return d
}

func mergeEnvelope(env, defaults wire.Envelope) wire.Envelope {
	if env.To == "" {
		env.To = defaults.To
	}
	if env.Subject == "" {
		env.Subject = defaults.Subject
	}
	if env.Content == "" {
		env.Content = defaults.Content
	}
	if env.Type == "" {
		env.Type = defaults.Type
	}
	return env
}
