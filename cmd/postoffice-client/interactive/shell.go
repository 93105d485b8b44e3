// Package interactive provides the interactive command-line interface
// for the post office client.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/zhycit/postoffice-go/pkg/wire"
)

// Status is a snapshot shown by the status command.
type Status struct {
	Manager      string
	Attempts     int
	ClientID     string
	ConnectionID string
	Connection   string

	HeartbeatsSent   uint64
	HeartbeatsFailed uint64
	LastHeartbeat    time.Time
}

// Target is the session the shell drives.
type Target interface {
	Send(env wire.Envelope) error
	ClientID() string
	Status() Status
}

// Shell handles interactive mode for postoffice-client.
type Shell struct {
	rl  *readline.Instance
	out io.Writer
}

// New creates a shell reading from the terminal.
func New() (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "postoffice> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{rl: rl, out: rl.Stdout()}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Run reads commands until quit, EOF or ctx is done.
func (s *Shell) Run(ctx context.Context, t Target) {
	defer s.rl.Close()

	go func() {
		<-ctx.Done()
		s.rl.Close()
	}()

	s.printHelp()

	for {
		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			return
		}
		if s.Execute(t, line) {
			return
		}
	}
}

// Execute runs one command line and reports whether the shell should exit.
func (s *Shell) Execute(t Target, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()

	case "send", "s":
		s.cmdSend(t, args)

	case "log":
		s.cmdLog(t, args)

	case "status", "st":
		s.cmdStatus(t)

	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return true

	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
Post Office Client Commands:
  send <to> <subject> <content...>  - Send a message envelope
  log <content...>                  - Send a log envelope to the server
  status                            - Show connection and heartbeat status
  help                              - Show this help
  quit                              - Exit the client`)
}

func (s *Shell) cmdSend(t Target, args []string) {
	if len(args) < 3 {
		fmt.Fprintln(s.out, "Usage: send <to> <subject> <content...>")
		return
	}
	env := wire.Envelope{
		From:    t.ClientID(),
		To:      args[0],
		Subject: args[1],
		Content: strings.Join(args[2:], " "),
		Type:    wire.TypeMessage,
	}
	s.send(t, env)
}

func (s *Shell) cmdLog(t Target, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "Usage: log <content...>")
		return
	}
	env := wire.Envelope{
		From:    t.ClientID(),
		To:      wire.ServerRecipient,
		Subject: "log",
		Content: strings.Join(args, " "),
		Type:    wire.TypeLog,
	}
	s.send(t, env)
}

func (s *Shell) send(t Target, env wire.Envelope) {
	if err := t.Send(env); err != nil {
		fmt.Fprintf(s.out, "Send failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Sent %s\n", env)
}

func (s *Shell) cmdStatus(t Target) {
	st := t.Status()

	fmt.Fprintln(s.out, "\nClient Status:")
	fmt.Fprintln(s.out, "-------------------------------------------")
	fmt.Fprintf(s.out, "  Reconnect:   %s", st.Manager)
	if st.Attempts > 0 {
		fmt.Fprintf(s.out, " (%d failed attempts)", st.Attempts)
	}
	fmt.Fprintln(s.out)

	if st.ClientID == "" {
		fmt.Fprintln(s.out, "  Session:     none")
		return
	}
	fmt.Fprintf(s.out, "  Client ID:   %s\n", st.ClientID)
	fmt.Fprintf(s.out, "  Connection:  %s (%s)\n", st.Connection, st.ConnectionID)
	fmt.Fprintf(s.out, "  Heartbeats:  %d sent, %d failed\n", st.HeartbeatsSent, st.HeartbeatsFailed)
	if !st.LastHeartbeat.IsZero() {
		fmt.Fprintf(s.out, "  Last beat:   %s\n", st.LastHeartbeat.Format("15:04:05"))
	}
}
