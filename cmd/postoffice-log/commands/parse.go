// Package commands implements the postoffice-log subcommands.
package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/zhycit/postoffice-go/pkg/log"
)

// Selection holds the flag values shared by view and filter.
type Selection struct {
	ConnID       string
	ClientID     string
	EnvelopeType string
	TimeStart    string
	TimeEnd      string
	Layer        string
	Direction    string
	Category     string
}

// Filter converts the selection into a log.Filter.
func (s Selection) Filter() (log.Filter, error) {
	f := log.Filter{
		ConnectionID: s.ConnID,
		ClientID:     s.ClientID,
		EnvelopeType: s.EnvelopeType,
	}
	if s.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, s.TimeStart)
		if err != nil {
			return f, fmt.Errorf("invalid time-start: %w", err)
		}
		f.TimeStart = &t
	}
	if s.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, s.TimeEnd)
		if err != nil {
			return f, fmt.Errorf("invalid time-end: %w", err)
		}
		f.TimeEnd = &t
	}
	if s.Layer != "" {
		l, err := ParseLayer(s.Layer)
		if err != nil {
			return f, err
		}
		f.Layer = &l
	}
	if s.Direction != "" {
		d, ok := log.ParseDirection(strings.ToLower(s.Direction))
		if !ok {
			return f, fmt.Errorf("invalid direction: %s (must be in or out)", s.Direction)
		}
		f.Direction = &d
	}
	if s.Category != "" {
		c, err := ParseCategory(s.Category)
		if err != nil {
			return f, err
		}
		f.Category = &c
	}
	return f, nil
}

// ParseLayer parses a layer name (case-insensitive).
func ParseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "session":
		return log.LayerSession, nil
	}
	return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, or session)", s)
}

// ParseCategory parses a category name (case-insensitive).
func ParseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "control":
		return log.CategoryControl, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	}
	return 0, fmt.Errorf("invalid category: %s (must be message, control, state, or error)", s)
}

// eventKind names the populated payload of an event.
func eventKind(e log.Event) string {
	switch {
	case e.Frame != nil:
		if e.Frame.Binary {
			return "binary"
		}
		return "text"
	case e.Envelope != nil:
		return e.Envelope.Type
	case e.StateChange != nil:
		return "state"
	case e.Control != nil:
		return strings.ToLower(e.Control.Type.String())
	case e.Error != nil:
		return "error"
	}
	return "unknown"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

const timestampLayout = "2006-01-02T15:04:05.000000Z"
