package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/zhycit/postoffice-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents int
	ByLayer     map[log.Layer]int
	ByCategory  map[log.Category]int
	ByDirection map[log.Direction]int

	// Envelopes counts envelope events by direction and type.
	Envelopes map[log.Direction]map[string]int

	Heartbeats  int
	Errors      int
	Connections map[string]*ConnectionStats
	Start, End  time.Time
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	ClientID  string
	Endpoint  string
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	LastState string
}

// Collect reads every event in path into a Stats.
func Collect(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	s := &Stats{
		ByLayer:     make(map[log.Layer]int),
		ByCategory:  make(map[log.Category]int),
		ByDirection: make(map[log.Direction]int),
		Envelopes:   make(map[log.Direction]map[string]int),
		Connections: make(map[string]*ConnectionStats),
	}
	err = each(reader, func(e log.Event) error {
		s.add(e)
		return nil
	})
	return s, err
}

func (s *Stats) add(e log.Event) {
	s.TotalEvents++
	s.ByLayer[e.Layer]++
	s.ByCategory[e.Category]++
	s.ByDirection[e.Direction]++

	if s.Start.IsZero() || e.Timestamp.Before(s.Start) {
		s.Start = e.Timestamp
	}
	if e.Timestamp.After(s.End) {
		s.End = e.Timestamp
	}

	conn, ok := s.Connections[e.ConnectionID]
	if !ok {
		conn = &ConnectionStats{FirstSeen: e.Timestamp, LastSeen: e.Timestamp}
		s.Connections[e.ConnectionID] = conn
	}
	conn.Events++
	if e.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = e.Timestamp
	}
	if conn.ClientID == "" {
		conn.ClientID = e.ClientID
	}
	if conn.Endpoint == "" {
		conn.Endpoint = e.Endpoint
	}

	switch {
	case e.Envelope != nil:
		byType := s.Envelopes[e.Direction]
		if byType == nil {
			byType = make(map[string]int)
			s.Envelopes[e.Direction] = byType
		}
		byType[e.Envelope.Type]++
	case e.Control != nil:
		if e.Control.Type == log.ControlHeartbeat {
			s.Heartbeats++
		}
	case e.StateChange != nil:
		if e.StateChange.Entity == log.StateEntitySession {
			conn.LastState = e.StateChange.NewState
		}
	case e.Error != nil:
		s.Errors++
	}
}

// RunStats prints statistics for the log in path.
func RunStats(path string, w io.Writer) error {
	s, err := Collect(path)
	if err != nil {
		return err
	}
	s.Print(w)
	return nil
}

// Print writes a human-readable report.
func (s *Stats) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Postoffice Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if s.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n", s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n\n", s.End.Sub(s.Start).Round(time.Second))
	}
	fmt.Fprintf(w, "Total Events: %d\n\n", s.TotalEvents)

	fmt.Fprintln(w, "Events by Layer:")
	for _, l := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerSession} {
		printCount(w, l.String(), s.ByLayer[l])
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, c := range []log.Category{log.CategoryMessage, log.CategoryControl, log.CategoryState, log.CategoryError} {
		printCount(w, c.String(), s.ByCategory[c])
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, d := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		printCount(w, d.String(), s.ByDirection[d])
	}
	fmt.Fprintln(w)

	if len(s.Envelopes) > 0 {
		fmt.Fprintln(w, "Envelopes:")
		for _, d := range []log.Direction{log.DirectionIn, log.DirectionOut} {
			byType := s.Envelopes[d]
			types := make([]string, 0, len(byType))
			for t := range byType {
				types = append(types, t)
			}
			sort.Strings(types)
			for _, t := range types {
				printCount(w, d.String()+" "+t, byType[t])
			}
		}
		fmt.Fprintln(w)
	}
	if s.Heartbeats > 0 {
		fmt.Fprintf(w, "Heartbeats: %d\n\n", s.Heartbeats)
	}

	fmt.Fprintf(w, "Connections: %d\n", len(s.Connections))
	ids := make([]string, 0, len(s.Connections))
	for id := range s.Connections {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.Connections[ids[i]].FirstSeen.Before(s.Connections[ids[j]].FirstSeen)
	})
	for _, id := range ids {
		c := s.Connections[id]
		fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortID(id), c.Events,
			c.LastSeen.Sub(c.FirstSeen).Round(time.Millisecond))
		if c.ClientID != "" {
			fmt.Fprintf(w, "           Client: %s\n", c.ClientID)
		}
		if c.Endpoint != "" {
			fmt.Fprintf(w, "           Endpoint: %s\n", c.Endpoint)
		}
		if c.LastState != "" {
			fmt.Fprintf(w, "           Last state: %s\n", c.LastState)
		}
	}

	if s.Errors > 0 {
		fmt.Fprintf(w, "\nErrors: %d\n", s.Errors)
	}
}

func printCount(w io.Writer, label string, n int) {
	if n > 0 {
		fmt.Fprintf(w, "  %-14s %d\n", label+":", n)
	}
}
