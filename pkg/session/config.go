package session

import (
	"fmt"
	"log/slog"
	"time"

	plog "github.com/zhycit/postoffice-go/pkg/log"
	"github.com/zhycit/postoffice-go/pkg/transport"
	"github.com/zhycit/postoffice-go/pkg/wire"
)

// HeartbeatMode selects the heartbeat payload.
type HeartbeatMode string

const (
	// HeartbeatEnvelope sends an envelope built from HeartbeatConfig.Envelope.
	HeartbeatEnvelope HeartbeatMode = "envelope"

	// HeartbeatText sends HeartbeatConfig.Text as a raw text frame.
	HeartbeatText HeartbeatMode = "text"

	// HeartbeatOff disables the heartbeat.
	HeartbeatOff HeartbeatMode = "off"
)

// Heartbeat defaults.
const (
	DefaultEnvelopeInterval = 5 * time.Second
	DefaultTextInterval     = 30 * time.Second
	DefaultPingText         = "Ping"
)

// ParseHeartbeatMode parses a mode name. The empty string means HeartbeatEnvelope.
func ParseHeartbeatMode(s string) (HeartbeatMode, error) {
	switch m := HeartbeatMode(s); m {
	case "":
		return HeartbeatEnvelope, nil
	case HeartbeatEnvelope, HeartbeatText, HeartbeatOff:
		return m, nil
	}
	return "", fmt.Errorf("unknown heartbeat mode %q", s)
}

// HeartbeatConfig configures periodic outbound traffic.
type HeartbeatConfig struct {
	Mode HeartbeatMode

	// Interval between heartbeats. Zero selects the mode's default.
	Interval time.Duration

	// Envelope is the payload in envelope mode. An empty From is replaced
	// by the client ID; a zero Envelope selects DefaultHeartbeatEnvelope.
	Envelope wire.Envelope

	// Text is the payload in text mode (default "Ping").
	Text string
}

// interval returns the effective interval.
func (h HeartbeatConfig) interval() time.Duration {
	if h.Interval > 0 {
		return h.Interval
	}
	if h.Mode == HeartbeatText {
		return DefaultTextInterval
	}
	return DefaultEnvelopeInterval
}

// DefaultHeartbeatEnvelope is the periodic greeting sent by the sample clients.
func DefaultHeartbeatEnvelope(clientID string) wire.Envelope {
	return wire.Envelope{
		From:    clientID,
		To:      wire.ServerRecipient,
		Subject: "Hello",
		Content: "How are you?",
		Type:    wire.TypeMessage,
	}
}

// Config configures a Client.
type Config struct {
	// Params select endpoint, auth strategy and credentials. An empty
	// ClientID is replaced by a generated one.
	Params transport.Params

	// Codec encodes outbound envelopes (default wire.JSON). Inbound frames
	// are decoded by frame type: text as JSON, binary as CBOR.
	Codec wire.Codec

	Heartbeat HeartbeatConfig

	// Schema, if set, validates inbound text frames before decoding.
	Schema *wire.SchemaValidator

	// Connection configures the transport. Logger and ProtocolLogger are
	// inherited from this Config when unset.
	Connection transport.ConnectionConfig

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives envelope and session events (optional).
	ProtocolLogger plog.Logger
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Params:     transport.Params{Auth: transport.AuthNone},
		Codec:      wire.JSON,
		Heartbeat:  HeartbeatConfig{Mode: HeartbeatEnvelope, Interval: DefaultEnvelopeInterval},
		Connection: transport.DefaultConnectionConfig(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Params.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if _, err := transport.BuildURL(c.Params.Endpoint, c.Params.Auth, c.Params.Credentials); err != nil {
		return err
	}
	if _, err := ParseHeartbeatMode(string(c.Heartbeat.Mode)); err != nil {
		return err
	}
	if c.Heartbeat.Interval < 0 {
		return fmt.Errorf("heartbeat interval must not be negative")
	}
	return nil
}
