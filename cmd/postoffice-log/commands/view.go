package commands

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/zhycit/postoffice-go/pkg/log"
	"github.com/zhycit/postoffice-go/pkg/wire"
)

// RunView prints the events in path that match sel in human-readable form.
func RunView(path string, sel Selection, w io.Writer) error {
	filter, err := sel.Filter()
	if err != nil {
		return err
	}
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(w, event)
	}
}

func formatEvent(w io.Writer, e log.Event) {
	layer := e.Layer.String()
	if e.Category == log.CategoryControl {
		layer = "CTRL"
	}
	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s\n",
		e.Timestamp.UTC().Format(timestampLayout), shortID(e.ConnectionID),
		e.Direction, layer, eventKind(e))
	if e.ClientID != "" {
		fmt.Fprintf(w, "  Client: %s\n", e.ClientID)
	}
	if e.Endpoint != "" {
		fmt.Fprintf(w, "  Endpoint: %s\n", e.Endpoint)
	}

	switch {
	case e.Frame != nil:
		fmt.Fprintf(w, "  Size: %d bytes\n", e.Frame.Size)
		if e.Frame.Redacted {
			fmt.Fprintln(w, "  Data: (redacted)")
		}
		if typ := wire.PeekType(e.Frame.Data); !e.Frame.Binary && typ != "" {
			fmt.Fprintf(w, "  Type: %s\n", typ)
		}
		if len(e.Frame.Data) > 0 {
			fmt.Fprintf(w, "  Data: %s", framePreview(e.Frame))
			if e.Frame.Truncated {
				fmt.Fprint(w, " (truncated)")
			}
			fmt.Fprintln(w)
		}
	case e.Envelope != nil:
		env := e.Envelope
		fmt.Fprintf(w, "  %s -> %s\n", env.From, env.To)
		if env.Subject != "" {
			fmt.Fprintf(w, "  Subject: %s\n", env.Subject)
		}
		fmt.Fprintf(w, "  Content: %d bytes\n", env.ContentSize)
	case e.StateChange != nil:
		sc := e.StateChange
		fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
		if sc.Reason != "" {
			fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
		}
	case e.Control != nil:
		if e.Control.CloseCode != nil {
			fmt.Fprintf(w, "  Code: %d\n", *e.Control.CloseCode)
		}
		if e.Control.CloseReason != "" {
			fmt.Fprintf(w, "  Reason: %s\n", e.Control.CloseReason)
		}
	case e.Error != nil:
		fmt.Fprintf(w, "  Layer: %s\n", e.Error.Layer)
		fmt.Fprintf(w, "  Message: %s\n", e.Error.Message)
		if e.Error.Code != nil {
			fmt.Fprintf(w, "  Code: %d\n", *e.Error.Code)
		}
		if e.Error.Context != "" {
			fmt.Fprintf(w, "  Context: %s\n", e.Error.Context)
		}
	}
	fmt.Fprintln(w)
}

// framePreview quotes text frames and hex-dumps binary ones.
func framePreview(f *log.FrameEvent) string {
	if !f.Binary && utf8.Valid(f.Data) {
		return fmt.Sprintf("%q", f.Data)
	}
	return fmt.Sprintf("%x", f.Data)
}
