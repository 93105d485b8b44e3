package log

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends protocol events to a CBOR stream file.
// It is safe for concurrent use from multiple goroutines.
//
// When MaxBytes is set, the file is rotated to path+".1" once it grows past
// that size; only one previous generation is kept.
type FileLogger struct {
	path     string
	maxBytes int64

	mu      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	written int64
	closed  bool
	dropped uint64
}

// FileLoggerOption configures a FileLogger.
type FileLoggerOption func(*FileLogger)

// WithMaxBytes enables size-based rotation.
func WithMaxBytes(n int64) FileLoggerOption {
	return func(l *FileLogger) { l.maxBytes = n }
}

// NewFileLogger opens path for appending, creating it with 0644 if needed.
func NewFileLogger(path string, opts ...FileLoggerOption) (*FileLogger, error) {
	l := &FileLogger{path: path}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open protocol log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat protocol log: %w", err)
	}
	l.file = f
	l.written = info.Size()
	l.encoder = newEncoder(&countingWriter{w: f, n: &l.written})
	return nil
}

func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return err
	}
	return l.open()
}

// Log writes an event to the log file. Encoding and I/O failures are
// counted, never returned.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if l.maxBytes > 0 && l.written >= l.maxBytes {
		if err := l.rotate(); err != nil {
			// The old file is gone or unusable; stop logging.
			l.dropped++
			l.closed = true
			return
		}
	}
	if err := l.encoder.Encode(event); err != nil {
		l.dropped++
	}
}

// Dropped returns the number of events that could not be written.
func (l *FileLogger) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close closes the log file. Subsequent Log calls are ignored.
// It is safe to call Close multiple times.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)

type countingWriter struct {
	w io.Writer
	n *int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	*c.n += int64(n)
	return n, err
}
