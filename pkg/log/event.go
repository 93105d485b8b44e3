package log

import "time"

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// ClientID is the session's client identifier.
	ClientID string `cbor:"6,keyasint,omitempty"`

	// Endpoint is the server URL with credentials redacted.
	Endpoint string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Envelope    *EnvelopeEvent    `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Control     *ControlEvent     `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// ParseDirection parses "IN"/"OUT" in upper or lower case.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "IN", "in":
		return DirectionIn, true
	case "OUT", "out":
		return DirectionOut, true
	}
	return 0, false
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the WebSocket frame layer.
	LayerTransport Layer = 0
	// LayerWire is the envelope encoding layer.
	LayerWire Layer = 1
	// LayerSession is the session layer (login, heartbeat, lifecycle).
	LayerSession Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates application traffic (frames and envelopes).
	CategoryMessage Category = 0
	// CategoryControl indicates session plumbing (heartbeat, login, logout, close).
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MaxFrameData is the number of frame bytes kept in a FrameEvent.
const MaxFrameData = 4096

// FrameEvent captures a WebSocket data frame at the transport layer.
type FrameEvent struct {
	// Binary is true for binary frames, false for text frames.
	Binary bool `cbor:"1,keyasint,omitempty"`

	// Size is the payload size in bytes.
	Size int `cbor:"2,keyasint"`

	// Data is the raw payload (truncated to MaxFrameData).
	Data []byte `cbor:"3,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"4,keyasint,omitempty"`

	// Redacted indicates the payload carried credentials and was not kept.
	Redacted bool `cbor:"5,keyasint,omitempty"`
}

// NewFrameEvent copies data into a FrameEvent, truncating large payloads.
func NewFrameEvent(binary bool, data []byte) *FrameEvent {
	fe := &FrameEvent{Binary: binary, Size: len(data)}
	keep := data
	if len(keep) > MaxFrameData {
		keep = keep[:MaxFrameData]
		fe.Truncated = true
	}
	fe.Data = append([]byte(nil), keep...)
	return fe
}

// NewRedactedFrameEvent records only the size of a frame that carries
// credentials.
func NewRedactedFrameEvent(binary bool, size int) *FrameEvent {
	return &FrameEvent{Binary: binary, Size: size, Redacted: true}
}

// EnvelopeEvent captures a decoded envelope at the wire layer.
// Content is summarized by size; it may carry credentials.
type EnvelopeEvent struct {
	From        string `cbor:"1,keyasint"`
	To          string `cbor:"2,keyasint"`
	Subject     string `cbor:"3,keyasint,omitempty"`
	Type        string `cbor:"4,keyasint"`
	ContentSize int    `cbor:"5,keyasint"`
}

// StateChangeEvent captures connection and session lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntitySession indicates a session state change.
	StateEntitySession StateEntity = 1
	// StateEntityReconnect indicates a reconnect manager state change.
	StateEntityReconnect StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	case StateEntityReconnect:
		return "RECONNECT"
	default:
		return "UNKNOWN"
	}
}

// ControlEvent captures session plumbing.
type ControlEvent struct {
	// Type of control traffic.
	Type ControlType `cbor:"1,keyasint"`

	// CloseCode is the WebSocket close code for close events.
	CloseCode *int `cbor:"2,keyasint,omitempty"`

	// CloseReason is the close frame reason text.
	CloseReason string `cbor:"3,keyasint,omitempty"`
}

// ControlType indicates the kind of control traffic.
type ControlType uint8

const (
	// ControlHeartbeat indicates a heartbeat payload.
	ControlHeartbeat ControlType = 0
	// ControlLogin indicates an in-band login envelope.
	ControlLogin ControlType = 1
	// ControlLogout indicates an in-band logout envelope.
	ControlLogout ControlType = 2
	// ControlClose indicates a WebSocket close frame.
	ControlClose ControlType = 3
)

// String returns the control type name.
func (c ControlType) String() string {
	switch c {
	case ControlHeartbeat:
		return "HEARTBEAT"
	case ControlLogin:
		return "LOGIN"
	case ControlLogout:
		return "LOGOUT"
	case ControlClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the close code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
