package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/zhycit/postoffice-go/pkg/log"
)

var csvHeader = []string{
	"timestamp", "connection_id", "client_id", "direction", "layer",
	"category", "kind", "from", "to", "subject", "size",
}

// RunExport converts the log in path to jsonl or csv. An empty output
// writes to stdout.
func RunExport(path, format, output string) error {
	var write func(*log.Reader, io.Writer) error
	switch format {
	case "jsonl":
		write = exportJSONL
	case "csv":
		write = exportCSV
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return write(reader, w)
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	enc := json.NewEncoder(w)
	return each(reader, func(e log.Event) error {
		return enc.Encode(e)
	})
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	err := each(reader, func(e log.Event) error {
		return cw.Write(csvRow(e))
	})
	cw.Flush()
	if err != nil {
		return err
	}
	return cw.Error()
}

func csvRow(e log.Event) []string {
	var from, to, subject, size string
	switch {
	case e.Envelope != nil:
		from, to, subject = e.Envelope.From, e.Envelope.To, e.Envelope.Subject
		size = strconv.Itoa(e.Envelope.ContentSize)
	case e.Frame != nil:
		size = strconv.Itoa(e.Frame.Size)
	}
	return []string{
		e.Timestamp.UTC().Format(timestampLayout),
		e.ConnectionID,
		e.ClientID,
		e.Direction.String(),
		e.Layer.String(),
		e.Category.String(),
		eventKind(e),
		from, to, subject, size,
	}
}

func each(reader *log.Reader, fn func(log.Event) error) error {
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(event); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}
}
