// Package log provides structured protocol logging for post office sessions.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, session).
// It is separate from operational logging (slog): protocol capture provides
// a complete machine-readable trace of every frame, envelope and state
// transition of a session.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/postoffice/client.plog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: raw frames (FrameEvent) and close frames (ControlEvent)
//   - Wire: decoded envelopes (EnvelopeEvent)
//   - Session: state changes (StateChangeEvent), login/logout/heartbeat
//
// # File Format
//
// Log files are a stream of CBOR-encoded events with the .plog extension.
// The postoffice-log tool views, filters, summarizes and exports them.
package log
