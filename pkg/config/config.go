// Package config loads post office client settings.
//
// Settings come from three layers, later ones winning: built-in defaults,
// an optional YAML file, and POSTOFFICE_* environment variables. The
// result is validated and converted into a session.Config.
//
//	endpoint: wss://po.example.com/ws
//	auth: query
//	token: your_token_here
//	client_id: go-client-001
//	heartbeat:
//	  mode: envelope
//	  interval: 5s
//
// The same settings as environment variables:
//
//	POSTOFFICE_ENDPOINT=wss://po.example.com/ws
//	POSTOFFICE_AUTH=query
//	POSTOFFICE_HEARTBEAT_INTERVAL=5s
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/zhycit/postoffice-go/pkg/connection"
	"github.com/zhycit/postoffice-go/pkg/session"
	"github.com/zhycit/postoffice-go/pkg/transport"
	"github.com/zhycit/postoffice-go/pkg/wire"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "POSTOFFICE_"

// Dialer names.
const (
	DialerGorilla = "gorilla"
	DialerNhooyr  = "nhooyr"
)

// Config holds all client settings.
type Config struct {
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	Auth     string `yaml:"auth" env:"AUTH"`
	Token    string `yaml:"token" env:"TOKEN"`
	ClientID string `yaml:"client_id" env:"CLIENT_ID"`
	Codec    string `yaml:"codec" env:"CODEC"`

	// Schema is the path of a JSON schema inbound text frames must satisfy.
	Schema string `yaml:"schema" env:"SCHEMA"`

	Heartbeat HeartbeatConfig `yaml:"heartbeat" envPrefix:"HEARTBEAT_"`
	Transport TransportConfig `yaml:"transport" envPrefix:"TRANSPORT_"`
	TLS       TLSConfig       `yaml:"tls" envPrefix:"TLS_"`
	Reconnect ReconnectConfig `yaml:"reconnect" envPrefix:"RECONNECT_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
}

// HeartbeatConfig selects the heartbeat payload.
type HeartbeatConfig struct {
	Mode     string        `yaml:"mode" env:"MODE"`
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`

	// Text is the payload in text mode.
	Text string `yaml:"text" env:"TEXT"`

	// Envelope fields in envelope mode. Empty fields keep the defaults.
	To      string `yaml:"to" env:"TO"`
	Subject string `yaml:"subject" env:"SUBJECT"`
	Content string `yaml:"content" env:"CONTENT"`
	Type    string `yaml:"type" env:"TYPE"`
}

// TransportConfig tunes the WebSocket connection.
type TransportConfig struct {
	Dialer           string        `yaml:"dialer" env:"DIALER"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" env:"HANDSHAKE_TIMEOUT"`
	WriteTimeout     time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	CloseTimeout     time.Duration `yaml:"close_timeout" env:"CLOSE_TIMEOUT"`
	SendQueueSize    int           `yaml:"send_queue_size" env:"SEND_QUEUE_SIZE"`
	ReadLimit        int64         `yaml:"read_limit" env:"READ_LIMIT"`

	// PingInterval of zero disables WebSocket keepalive pings.
	PingInterval   time.Duration `yaml:"ping_interval" env:"PING_INTERVAL"`
	PongTimeout    time.Duration `yaml:"pong_timeout" env:"PONG_TIMEOUT"`
	MaxMissedPongs int           `yaml:"max_missed_pongs" env:"MAX_MISSED_PONGS"`
}

// TLSConfig configures wss:// connections.
type TLSConfig struct {
	CAFile     string `yaml:"ca_file" env:"CA_FILE"`
	CertFile   string `yaml:"cert_file" env:"CERT_FILE"`
	KeyFile    string `yaml:"key_file" env:"KEY_FILE"`
	ServerName string `yaml:"server_name" env:"SERVER_NAME"`
	Insecure   bool   `yaml:"insecure" env:"INSECURE"`
}

// ReconnectConfig enables and tunes the reconnect loop.
type ReconnectConfig struct {
	Enabled    bool          `yaml:"enabled" env:"ENABLED"`
	Initial    time.Duration `yaml:"initial" env:"INITIAL"`
	Max        time.Duration `yaml:"max" env:"MAX"`
	Multiplier float64       `yaml:"multiplier" env:"MULTIPLIER"`
	Jitter     float64       `yaml:"jitter" env:"JITTER"`
}

// LogConfig configures operational and protocol logging.
type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	JSON  bool   `yaml:"json" env:"JSON"`

	// ProtocolFile enables the CBOR protocol log when set.
	ProtocolFile string `yaml:"protocol_file" env:"PROTOCOL_FILE"`
	MaxBytes     int64  `yaml:"max_bytes" env:"MAX_BYTES"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address, e.g. ":9464". Empty disables metrics.
	Addr string `yaml:"addr" env:"ADDR"`
}

// Default returns the built-in defaults.
func Default() Config {
	kc := transport.DefaultKeepAliveConfig()
	bc := connection.DefaultBackoffConfig()
	return Config{
		Auth:  string(transport.AuthQuery),
		Codec: wire.JSON.Name(),
		Heartbeat: HeartbeatConfig{
			Mode:     string(session.HeartbeatEnvelope),
			Interval: session.DefaultEnvelopeInterval,
		},
		Transport: TransportConfig{
			Dialer:           DialerGorilla,
			ConnectTimeout:   transport.DefaultConnectTimeout,
			HandshakeTimeout: transport.DefaultHandshakeTimeout,
			WriteTimeout:     transport.DefaultWriteTimeout,
			CloseTimeout:     transport.DefaultCloseTimeout,
			SendQueueSize:    transport.DefaultSendQueueSize,
			ReadLimit:        transport.DefaultReadLimit,
			PingInterval:     kc.PingInterval,
			PongTimeout:      kc.PongTimeout,
			MaxMissedPongs:   kc.MaxMissedPongs,
		},
		Reconnect: ReconnectConfig{
			Initial:    bc.Initial,
			Max:        bc.Max,
			Multiplier: bc.Multiplier,
			Jitter:     bc.Jitter,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path (if path is non-empty), applies the
// process environment and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		defer f.Close()
		if err := decodeYAML(f, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg, nil); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Parse decodes YAML over the defaults without consulting the environment.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := decodeYAML(bytes.NewReader(data), &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides cfg with POSTOFFICE_* variables. A nil environ
// reads the process environment. Unset variables leave fields alone.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}
