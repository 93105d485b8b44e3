package log

import (
	"bytes"
	"testing"
	"time"
)

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{DirectionIn.String(), "IN"},
		{DirectionOut.String(), "OUT"},
		{Direction(9).String(), "UNKNOWN"},
		{LayerTransport.String(), "TRANSPORT"},
		{LayerWire.String(), "WIRE"},
		{LayerSession.String(), "SESSION"},
		{CategoryMessage.String(), "MESSAGE"},
		{CategoryControl.String(), "CONTROL"},
		{CategoryState.String(), "STATE"},
		{CategoryError.String(), "ERROR"},
		{StateEntityConnection.String(), "CONNECTION"},
		{StateEntitySession.String(), "SESSION"},
		{StateEntityReconnect.String(), "RECONNECT"},
		{ControlHeartbeat.String(), "HEARTBEAT"},
		{ControlLogin.String(), "LOGIN"},
		{ControlLogout.String(), "LOGOUT"},
		{ControlClose.String(), "CLOSE"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestParseDirection(t *testing.T) {
	if d, ok := ParseDirection("in"); !ok || d != DirectionIn {
		t.Errorf("ParseDirection(in) = %v, %v", d, ok)
	}
	if d, ok := ParseDirection("OUT"); !ok || d != DirectionOut {
		t.Errorf("ParseDirection(OUT) = %v, %v", d, ok)
	}
	if _, ok := ParseDirection("sideways"); ok {
		t.Error("ParseDirection accepted an unknown direction")
	}
}

func TestNewFrameEventTruncates(t *testing.T) {
	data := bytes.Repeat([]byte{'x'}, MaxFrameData+10)
	fe := NewFrameEvent(false, data)

	if fe.Size != len(data) {
		t.Errorf("Size: got %d, want %d", fe.Size, len(data))
	}
	if !fe.Truncated {
		t.Error("expected Truncated")
	}
	if len(fe.Data) != MaxFrameData {
		t.Errorf("Data length: got %d, want %d", len(fe.Data), MaxFrameData)
	}

	small := []byte("Ping")
	fe = NewFrameEvent(true, small)
	small[0] = 'X'
	if string(fe.Data) != "Ping" || fe.Truncated || !fe.Binary {
		t.Errorf("unexpected frame event %+v", fe)
	}
}

func TestNewRedactedFrameEvent(t *testing.T) {
	fe := NewRedactedFrameEvent(false, 42)
	if fe.Size != 42 || !fe.Redacted || fe.Data != nil {
		t.Errorf("unexpected frame event %+v", fe)
	}
}

func TestEventCBORRoundTrip(t *testing.T) {
	code := 1000
	ts := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	events := []Event{
		{
			Timestamp: ts, ConnectionID: "c-1", Direction: DirectionOut, Layer: LayerTransport,
			Category: CategoryMessage, ClientID: "js-client-001", Endpoint: "ws://localhost:7502/",
			Frame: &FrameEvent{Size: 4, Data: []byte("Ping")},
		},
		{
			Timestamp: ts, ConnectionID: "c-1", Direction: DirectionIn, Layer: LayerWire,
			Category: CategoryMessage,
			Envelope: &EnvelopeEvent{From: "server", To: "c1", Subject: "Hello", Type: "msg", ContentSize: 12},
		},
		{
			Timestamp: ts, ConnectionID: "c-1", Layer: LayerTransport, Category: CategoryState,
			StateChange: &StateChangeEvent{Entity: StateEntityConnection, OldState: "OPEN", NewState: "CLOSING", Reason: "local close"},
		},
		{
			Timestamp: ts, ConnectionID: "c-1", Layer: LayerTransport, Category: CategoryControl,
			Control: &ControlEvent{Type: ControlClose, CloseCode: &code, CloseReason: "bye"},
		},
		{
			Timestamp: ts, ConnectionID: "c-1", Layer: LayerWire, Category: CategoryError,
			Error: &ErrorEventData{Layer: LayerWire, Message: "malformed frame", Context: "decode"},
		},
	}

	for _, ev := range events {
		data, err := EncodeEvent(ev)
		if err != nil {
			t.Fatalf("EncodeEvent: %v", err)
		}
		got, err := DecodeEvent(data)
		if err != nil {
			t.Fatalf("DecodeEvent: %v", err)
		}
		if !got.Timestamp.Equal(ev.Timestamp) {
			t.Errorf("Timestamp: got %v, want %v", got.Timestamp, ev.Timestamp)
		}
		if got.Category != ev.Category || got.Layer != ev.Layer || got.Direction != ev.Direction {
			t.Errorf("header mismatch: got %+v, want %+v", got, ev)
		}
		if (got.Frame == nil) != (ev.Frame == nil) ||
			(got.Envelope == nil) != (ev.Envelope == nil) ||
			(got.StateChange == nil) != (ev.StateChange == nil) ||
			(got.Control == nil) != (ev.Control == nil) ||
			(got.Error == nil) != (ev.Error == nil) {
			t.Errorf("payload mismatch: got %+v", got)
		}
	}
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	if _, err := DecodeEvent([]byte{0xff, 0x00}); err == nil {
		t.Error("expected error")
	}
}
