package wire

import (
	"fmt"
	"unicode/utf8"
)

// Well-known envelope types.
const (
	// TypeMessage is an application message.
	TypeMessage = "msg"

	// TypeLog is a client log line forwarded to the server.
	TypeLog = "log"

	// TypeHeartbeat marks keep-alive traffic.
	TypeHeartbeat = "heartbeat"

	// TypeLogin carries credentials in-band as the first envelope of a session.
	TypeLogin = "login"

	// TypeLogout announces a graceful session end.
	TypeLogout = "logout"
)

// ServerRecipient is the conventional recipient for envelopes addressed to
// the post office itself rather than another client.
const ServerRecipient = "server"

// Envelope is the unit of application-level communication.
//
// Envelopes are values; copying one never aliases another.
type Envelope struct {
	From    string `json:"from" cbor:"1,keyasint"`
	To      string `json:"to" cbor:"2,keyasint"`
	Subject string `json:"subject" cbor:"3,keyasint"`
	Content string `json:"content" cbor:"4,keyasint"`
	Type    string `json:"type" cbor:"5,keyasint"`
}

// NewEnvelope builds an envelope and validates it.
func NewEnvelope(from, to, subject, content, typ string) (Envelope, error) {
	env := Envelope{
		From:    from,
		To:      to,
		Subject: subject,
		Content: content,
		Type:    typ,
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Validate reports whether the envelope can be encoded.
func (e Envelope) Validate() error {
	if e.From == "" {
		return &EncodingError{Field: "from", Err: ErrMissingField}
	}
	if e.To == "" {
		return &EncodingError{Field: "to", Err: ErrMissingField}
	}
	if e.Type == "" {
		return &EncodingError{Field: "type", Err: ErrMissingField}
	}

	fields := [...]struct {
		name  string
		value string
	}{
		{"from", e.From},
		{"to", e.To},
		{"subject", e.Subject},
		{"content", e.Content},
		{"type", e.Type},
	}
	for _, f := range fields {
		if !utf8.ValidString(f.value) {
			return &EncodingError{Field: f.name, Err: ErrNotText}
		}
	}
	return nil
}

// IsControl reports whether the envelope is session plumbing (login, logout,
// heartbeat) rather than application traffic.
func (e Envelope) IsControl() bool {
	switch e.Type {
	case TypeLogin, TypeLogout, TypeHeartbeat:
		return true
	}
	return false
}

// String returns a compact single-line form for diagnostics. Content is
// reported by length only.
func (e Envelope) String() string {
	return fmt.Sprintf("%s->%s type=%s subject=%q content=%dB", e.From, e.To, e.Type, e.Subject, len(e.Content))
}
