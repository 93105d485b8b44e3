// Command postoffice-client connects to a post office server, keeps the
// session alive with heartbeats and logs every envelope it receives.
//
// Usage:
//
//	postoffice-client [flags]
//
// Flags:
//
//	-config string          YAML configuration file
//	-endpoint string        WebSocket endpoint (ws:// or wss://)
//	-token string           Authentication token
//	-client-id string       Client identifier (default: generated)
//	-auth string            Auth strategy: none, query, header, handshake
//	-codec string           Envelope codec: json, cbor
//	-heartbeat string       Heartbeat mode: envelope, text, off
//	-heartbeat-interval dur Heartbeat interval
//	-reconnect              Reconnect with exponential backoff
//	-discover string        Find the server via mDNS ("any" for the first one)
//	-insecure               Skip TLS certificate verification
//	-log-level string       Log level: debug, info, warn, error
//	-log-json               Log in JSON format
//	-protocol-log string    Write a CBOR protocol log to this file
//	-metrics-addr string    Serve Prometheus metrics on this address
//	-interactive            Enable the interactive shell
//
// Every setting can also come from POSTOFFICE_* environment variables;
// flags win over the environment, which wins over the config file.
//
// Examples:
//
//	# Replay the demo: heartbeat every 5s, log inbound envelopes
//	postoffice-client -endpoint ws://localhost:7502/ -token your_token_here -client-id go-client-001
//
//	# In-band login, reconnecting, with an interactive shell
//	postoffice-client -endpoint wss://po.example.com/ws -auth handshake -reconnect -interactive
//
//	# Find a server on the LAN
//	postoffice-client -discover any -metrics-addr :9464
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/zhycit/postoffice-go/cmd/postoffice-client/interactive"
	"github.com/zhycit/postoffice-go/pkg/config"
	"github.com/zhycit/postoffice-go/pkg/connection"
	"github.com/zhycit/postoffice-go/pkg/discovery"
	plog "github.com/zhycit/postoffice-go/pkg/log"
	"github.com/zhycit/postoffice-go/pkg/metrics"
	"github.com/zhycit/postoffice-go/pkg/session"
	"github.com/zhycit/postoffice-go/pkg/wire"
)

// Flags holds the command line. Only flags that were set override the
// loaded configuration.
type Flags struct {
	ConfigFile        string
	Endpoint          string
	Token             string
	ClientID          string
	Auth              string
	Codec             string
	Heartbeat         string
	HeartbeatInterval time.Duration
	Reconnect         bool
	Discover          string
	Insecure          bool
	LogLevel          string
	LogJSON           bool
	ProtocolLog       string
	MetricsAddr       string
	Interactive       bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "YAML configuration file")
	flag.StringVar(&flags.Endpoint, "endpoint", "", "WebSocket endpoint (ws:// or wss://)")
	flag.StringVar(&flags.Token, "token", "", "Authentication token")
	flag.StringVar(&flags.ClientID, "client-id", "", "Client identifier (default: generated)")
	flag.StringVar(&flags.Auth, "auth", "", "Auth strategy: none, query, header, handshake")
	flag.StringVar(&flags.Codec, "codec", "", "Envelope codec: json, cbor")
	flag.StringVar(&flags.Heartbeat, "heartbeat", "", "Heartbeat mode: envelope, text, off")
	flag.DurationVar(&flags.HeartbeatInterval, "heartbeat-interval", 0, "Heartbeat interval")
	flag.BoolVar(&flags.Reconnect, "reconnect", false, "Reconnect with exponential backoff")
	flag.StringVar(&flags.Discover, "discover", "", `Find the server via mDNS ("any" for the first one)`)
	flag.BoolVar(&flags.Insecure, "insecure", false, "Skip TLS certificate verification")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&flags.LogJSON, "log-json", false, "Log in JSON format")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Write a CBOR protocol log to this file")
	flag.StringVar(&flags.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Enable the interactive shell")
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "postoffice-client: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var shell *interactive.Shell
	var out io.Writer = os.Stderr
	if flags.Interactive {
		shell, err = interactive.New()
		if err != nil {
			return err
		}
		out = shell.Stderr()
	}

	logger, err := newLogger(out, cfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.Endpoint == "" || flags.Discover != "" {
		endpoint, err := discover(ctx, flags.Discover, logger)
		if err != nil {
			return err
		}
		cfg.Endpoint = endpoint
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	protocol, closeProtocol, err := newProtocolLogger(cfg)
	if err != nil {
		return err
	}
	defer closeProtocol()

	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		collector := metrics.NewCollector("postoffice")
		collector.MustRegister(reg)
		protocol = plog.NewMultiLogger(protocol, collector)
		serveMetrics(ctx, g, cfg.Metrics.Addr, reg, logger)
	}

	sessionCfg, err := cfg.Session(logger, protocol)
	if err != nil {
		return err
	}

	factory := func() (*session.Client, error) {
		c, err := session.New(sessionCfg)
		if err != nil {
			return nil, err
		}
		// Keep a generated ID across reconnects.
		sessionCfg.Params.Credentials.ClientID = c.ClientID()
		watchSession(c, logger)
		return c, nil
	}

	mgrCfg := connection.DefaultConfig()
	mgrCfg.Backoff = cfg.Backoff()
	mgrCfg.AttemptTimeout = cfg.Transport.ConnectTimeout
	mgrCfg.Logger = logger
	mgrCfg.ProtocolLogger = protocol

	mgr := connection.NewManager(factory, mgrCfg)
	mgr.SetAutoReconnect(cfg.Reconnect.Enabled)
	mgr.OnReconnecting(func(attempt int, delay time.Duration) {
		logger.Info("reconnecting", "attempt", attempt, "delay", delay)
	})
	if err := mgr.Start(); err != nil {
		return err
	}

	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-mgr.Done():
		}
		mgr.Close()
		stop()
		return mgr.Err()
	})

	if shell != nil {
		g.Go(func() error {
			shell.Run(ctx, managerTarget{mgr: mgr})
			stop()
			return nil
		})
	}

	logger.Info("postoffice client started", "endpoint", cfg.Endpoint, "auth", cfg.Auth, "reconnect", cfg.Reconnect.Enabled)
	err = g.Wait()
	logger.Info("postoffice client stopped")
	return err
}

// loadConfig loads the file and environment, then applies set flags.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if flags.ConfigFile != "" {
		loaded, err := config.Load(flags.ConfigFile)
		if err != nil && !isValidation(err) {
			return cfg, err
		}
		cfg = loaded
	} else if err := config.ApplyEnv(&cfg, nil); err != nil {
		return cfg, err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "endpoint":
			cfg.Endpoint = flags.Endpoint
		case "token":
			cfg.Token = flags.Token
		case "client-id":
			cfg.ClientID = flags.ClientID
		case "auth":
			cfg.Auth = flags.Auth
		case "codec":
			cfg.Codec = flags.Codec
		case "heartbeat":
			cfg.Heartbeat.Mode = flags.Heartbeat
		case "heartbeat-interval":
			cfg.Heartbeat.Interval = flags.HeartbeatInterval
		case "reconnect":
			cfg.Reconnect.Enabled = flags.Reconnect
		case "insecure":
			cfg.TLS.Insecure = flags.Insecure
		case "log-level":
			cfg.Log.Level = flags.LogLevel
		case "log-json":
			cfg.Log.JSON = flags.LogJSON
		case "protocol-log":
			cfg.Log.ProtocolFile = flags.ProtocolLog
		case "metrics-addr":
			cfg.Metrics.Addr = flags.MetricsAddr
		}
	})

	if cfg.Endpoint == "" && flags.Discover == "" {
		return cfg, errors.New("no endpoint: set -endpoint, POSTOFFICE_ENDPOINT or -discover")
	}
	if cfg.Endpoint != "" {
		if err := cfg.Validate(); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func isValidation(err error) bool {
	var verr *config.ValidationError
	return errors.As(err, &verr)
}

func newLogger(w io.Writer, lc config.LogConfig) (*slog.Logger, error) {
	level, err := lc.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.JSON {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// newProtocolLogger returns the file logger if configured. The returned
// func closes it.
func newProtocolLogger(cfg config.Config) (plog.Logger, func(), error) {
	if cfg.Log.ProtocolFile == "" {
		return nil, func() {}, nil
	}
	var opts []plog.FileLoggerOption
	if cfg.Log.MaxBytes > 0 {
		opts = append(opts, plog.WithMaxBytes(cfg.Log.MaxBytes))
	}
	fl, err := plog.NewFileLogger(cfg.Log.ProtocolFile, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("open protocol log: %w", err)
	}
	return fl, func() { fl.Close() }, nil
}

func discover(ctx context.Context, name string, logger *slog.Logger) (string, error) {
	if name == "any" {
		name = ""
	}
	browser := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
	defer browser.Stop()

	logger.Info("browsing for post office servers", "service", discovery.ServiceType, "name", name)
	svc, err := browser.Find(ctx, name)
	if err != nil {
		return "", fmt.Errorf("discover: %w", err)
	}
	endpoint, err := svc.Endpoint()
	if err != nil {
		return "", fmt.Errorf("discover %s: %w", svc.InstanceName, err)
	}
	logger.Info("found server", "instance", svc.InstanceName, "endpoint", endpoint, "auth", svc.Auth)
	return endpoint, nil
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// watchSession logs session events the way the demo clients print them.
func watchSession(c *session.Client, logger *slog.Logger) {
	logger = logger.With("client_id", c.ClientID())
	c.OnOpen(func() {
		logger.Info("connected to post office")
	})
	c.OnMessage(func(env wire.Envelope) {
		logger.Info("received envelope", "from", env.From, "to", env.To, "subject", env.Subject, "type", env.Type, "content", env.Content)
	})
	c.OnError(func(err error) {
		logger.Warn("session error", "error", err)
	})
	c.OnClose(func() {
		logger.Info("connection closed")
	})
}

// managerTarget adapts the reconnect manager to the shell.
type managerTarget struct {
	mgr *connection.Manager
}

func (t managerTarget) Send(env wire.Envelope) error {
	return t.mgr.Send(env)
}

func (t managerTarget) ClientID() string {
	if c := t.mgr.Client(); c != nil {
		return c.ClientID()
	}
	return ""
}

func (t managerTarget) Status() interactive.Status {
	st := interactive.Status{
		Manager:  t.mgr.State().String(),
		Attempts: t.mgr.Attempts(),
	}
	if c := t.mgr.Client(); c != nil {
		st.ClientID = c.ClientID()
		st.ConnectionID = c.ConnectionID()
		st.Connection = c.State().String()
		hb := c.HeartbeatStats()
		st.HeartbeatsSent = hb.Sent
		st.HeartbeatsFailed = hb.Failed
		st.LastHeartbeat = hb.LastSent
	}
	return st
}
